// Package webendpoint implements the fake server_data.php HTTPS endpoint
// the game client hits as part of its login handshake. It resolves the
// real Growtopia server over DNS-over-HTTPS, forwards the client's form
// to it with certificate verification disabled, stashes the real
// server/port in the bridge's routing table, and replies to the client
// with the same body pointed back at the local ENet bridge.
package webendpoint

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/mod/semver"
	"golang.org/x/net/idna"
)

// dohEndpoint is Cloudflare's DNS-over-HTTPS JSON endpoint, queried the
// same way the original implementation's resolver does.
const dohEndpoint = "https://1.1.1.1/dns-query"

// growtopiaHost is the real game server's web endpoint hostname, both the
// DoH query name and the Host header sent on the forwarded request.
const growtopiaHost = "www.growtopia1.com"

// userAgent is the fixed User-Agent the original client sends; matched
// verbatim so the real server's reply shape is preserved.
const userAgent = "UbiServices_SDK_2022.Release.9_PC64_ansi_static"

// Config configures a Handler.
type Config struct {
	// LocalHost and LocalENetPort are where the handler redirects the
	// client's ENet connection to.
	LocalHost     string
	LocalENetPort uint16

	// OnServerData is called with each key/value pair parsed from the
	// real server's reply, before it is rewritten.
	OnServerData func(key, value string)
	// OnUpstreamAddr is called once the real server's address has been
	// parsed from its reply, so the upstream connector can dial it.
	OnUpstreamAddr func(addr netip.AddrPort)

	// MinimumVersion, if set, rejects server_data requests from a client
	// reporting an older "version" form value, the same version-gate
	// idea atlas's API0 handler applies to the launcher.
	MinimumVersion string

	Log zerolog.Logger
}

// Handler serves POST /growtopia/server_data.php.
type Handler struct {
	cfg    Config
	client *http.Client
}

// NewHandler builds a Handler from cfg.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.cfg.Log.With().Str("remote", r.RemoteAddr).Logger()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if host, err := idna.Lookup.ToASCII(strings.TrimSuffix(strings.ToLower(r.Host), ":443")); err != nil {
		log.Debug().Err(err).Str("host", r.Host).Msg("webendpoint: invalid host header, continuing anyway")
	} else if host != "" {
		log.Debug().Str("host", host).Msg("webendpoint: client request host")
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	log.Info().
		Str("version", r.FormValue("version")).
		Str("platform", r.FormValue("platform")).
		Str("protocol", r.FormValue("protocol")).
		Msg("webendpoint: server_data request")

	if !h.versionAllowed(r.FormValue("version")) {
		log.Warn().Str("version", r.FormValue("version")).Str("minimum", h.cfg.MinimumVersion).Msg("webendpoint: client version below minimum, rejecting")
		http.Error(w, "client version too old", http.StatusForbidden)
		return
	}

	ip, err := h.resolveGrowtopiaIP(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("webendpoint: resolve real server failed")
		http.Error(w, "resolve failed", http.StatusBadGateway)
		return
	}

	body, err := h.queryServerData(r.Context(), ip, r.PostForm)
	if err != nil {
		log.Error().Err(err).Str("ip", ip).Msg("webendpoint: query real server failed")
		http.Error(w, "upstream failed", http.StatusBadGateway)
		return
	}

	data := parseKVText(body)
	for k, v := range data {
		h.cfg.OnServerData(k, v)
	}

	if addr, ok := addrPortFromData(data); ok {
		h.cfg.OnUpstreamAddr(addr)
		log.Info().Str("addr", addr.String()).Msg("webendpoint: resolved upstream address")
	} else {
		log.Warn().Msg("webendpoint: reply missing server/port, upstream connect will not happen")
	}

	data["server"] = h.cfg.LocalHost
	data["port"] = strconv.Itoa(int(h.cfg.LocalENetPort))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, mapToKVText(data)+"\ntype2|0")
}

// versionAllowed reports whether a client-reported version passes the
// configured minimum, following atlas's versiongate: no minimum, an
// invalid minimum, or an unparseable client version all allow the
// request through rather than denying on ambiguity.
func (h *Handler) versionAllowed(clientVersion string) bool {
	mver := toSemver(h.cfg.MinimumVersion)
	if mver == "" || !semver.IsValid(mver) {
		return true
	}
	rver := toSemver(clientVersion)
	if !semver.IsValid(rver) {
		return true
	}
	return semver.Compare(rver, mver) >= 0
}

// toSemver turns a Growtopia "MAJOR.MINOR" style version string (e.g.
// "4.61") into the "vMAJOR.MINOR.PATCH" form golang.org/x/mod/semver
// requires, padding a missing patch component with zero.
func toSemver(v string) string {
	v = strings.TrimPrefix(v, "v")
	if v == "" {
		return ""
	}
	if strings.Count(v, ".") < 2 {
		v += ".0"
	}
	return "v" + v
}

// dohAnswer mirrors the subset of a DNS-over-HTTPS JSON response this
// handler needs.
type dohAnswer struct {
	Answer []struct {
		Data string `json:"data"`
	} `json:"Answer"`
}

// resolveGrowtopiaIP resolves growtopiaHost via Cloudflare's
// DNS-over-HTTPS, picking the last Answer entry: CNAME chains can precede
// the final A record, and the original implementation always takes the
// tail of the list.
func (h *Handler) resolveGrowtopiaIP(ctx context.Context) (string, error) {
	u := dohEndpoint + "?" + url.Values{
		"name": {growtopiaHost},
		"type": {"A"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("doh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("doh request: status %s", resp.Status)
	}

	var ans dohAnswer
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		return "", fmt.Errorf("doh response: %w", err)
	}
	if len(ans.Answer) == 0 {
		return "", fmt.Errorf("doh response: no answers for %s", growtopiaHost)
	}
	return ans.Answer[len(ans.Answer)-1].Data, nil
}

// queryServerData forwards form to the real server's server_data.php,
// with TLS verification disabled since we're connecting by IP with a
// spoofed Host header.
func (h *Handler) queryServerData(ctx context.Context, ip string, form url.Values) (string, error) {
	u := fmt.Sprintf("https://%s/growtopia/server_data.php", ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Host = growtopiaHost
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %s: %s", resp.Status, b)
	}
	return string(b), nil
}

// parseKVText parses a pipe-delimited key/value text blob, one "key|value"
// pair per line, tolerating values that themselves contain "|".
func parseKVText(s string) map[string]string {
	m := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		m[k] = v
	}
	return m
}

// mapToKVText is the inverse of parseKVText. Key order is unconstrained.
func mapToKVText(m map[string]string) string {
	var b strings.Builder
	for k, v := range m {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('|')
		b.WriteString(v)
	}
	return b.String()
}

func addrPortFromData(m map[string]string) (netip.AddrPort, bool) {
	host, ok := m["server"]
	if !ok || host == "" {
		return netip.AddrPort{}, false
	}
	portStr, ok := m["port"]
	if !ok {
		return netip.AddrPort{}, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.AddrPort{}, false
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		addrs, lookupErr := net.DefaultResolver.LookupHost(context.Background(), host)
		if lookupErr != nil || len(addrs) == 0 {
			return netip.AddrPort{}, false
		}
		addr, err = netip.ParseAddr(addrs[0])
		if err != nil {
			return netip.AddrPort{}, false
		}
	}
	return netip.AddrPortFrom(addr, uint16(port)), true
}
