package webendpoint

import (
	"net/netip"
	"reflect"
	"testing"
)

func TestParseKVText(t *testing.T) {
	in := "server|213.179.209.168\nport|17091\ntype2|0\n"
	got := parseKVText(in)
	want := map[string]string{
		"server": "213.179.209.168",
		"port":   "17091",
		"type2":  "0",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseKVText(%q) = %v, want %v", in, got, want)
	}
}

func TestParseKVTextValueContainsPipe(t *testing.T) {
	got := parseKVText("meta|a|b|c")
	if got["meta"] != "a|b|c" {
		t.Fatalf("meta = %q, want %q", got["meta"], "a|b|c")
	}
}

func TestMapToKVTextRoundTrip(t *testing.T) {
	m := map[string]string{"server": "127.0.0.1", "port": "17111"}
	s := mapToKVText(m)
	got := parseKVText(s)
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("round trip = %v, want %v", got, m)
	}
}

func TestAddrPortFromData(t *testing.T) {
	addr, ok := addrPortFromData(map[string]string{
		"server": "213.179.209.168",
		"port":   "17091",
	})
	if !ok {
		t.Fatal("expected ok")
	}
	want := netip.MustParseAddrPort("213.179.209.168:17091")
	if addr != want {
		t.Fatalf("addr = %v, want %v", addr, want)
	}
}

func TestAddrPortFromDataMissing(t *testing.T) {
	if _, ok := addrPortFromData(map[string]string{"server": "1.2.3.4"}); ok {
		t.Fatal("expected !ok when port is missing")
	}
	if _, ok := addrPortFromData(map[string]string{"port": "1234"}); ok {
		t.Fatal("expected !ok when server is missing")
	}
}

func TestToSemver(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"4.61", "v4.61.0"},
		{"v4.61", "v4.61.0"},
		{"4.61.2", "v4.61.2"},
		{"", ""},
	} {
		if got := toSemver(tc.in); got != tc.want {
			t.Fatalf("toSemver(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestVersionAllowed(t *testing.T) {
	for _, tc := range []struct {
		name    string
		minimum string
		client  string
		want    bool
	}{
		{"no minimum configured", "", "1.0", true},
		{"invalid minimum configured", "not-a-version", "1.0", true},
		{"client above minimum", "4.60", "4.61", true},
		{"client equal to minimum", "4.61", "4.61", true},
		{"client below minimum", "4.61", "4.60", false},
		{"unparseable client version allowed", "4.61", "not-a-version", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{cfg: Config{MinimumVersion: tc.minimum}}
			if got := h.versionAllowed(tc.client); got != tc.want {
				t.Fatalf("versionAllowed(%q) with minimum %q = %v, want %v", tc.client, tc.minimum, got, tc.want)
			}
		})
	}
}
