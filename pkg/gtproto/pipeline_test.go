package gtproto

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func buildGamePacket(header TankHeader, vl VariantList) []byte {
	body := vl.Serialize()
	header.ExtendedDataLength = uint32(len(body))

	out := make([]byte, OuterTagSize)
	binary.LittleEndian.PutUint32(out, uint32(NetMessageGamePacket))
	h := header.Marshal()
	out = append(out, h[:]...)
	out = append(out, body...)
	return out
}

func testPipeline() *Pipeline {
	return NewPipeline("127.0.0.1", 17091, zerolog.Nop())
}

func TestPipelineOnSendToServerRewrite(t *testing.T) {
	p := testPipeline()
	vl := VariantList{Elements: []Variant{
		NewStringVariant("OnSendToServer"),
		NewI32Variant(17242),
		NewI32Variant(0),
		NewI32Variant(0),
		NewStringVariant("213.179.209.168|"),
	}}
	pkt := buildGamePacket(TankHeader{Type: TankCallFunction, Flags: FlagExtended}, vl)

	res := p.Intercept(pkt, FromServer)
	if res.Action != ActionRewrite {
		t.Fatalf("action = %v, want ActionRewrite", res.Action)
	}
	if !res.HasServerData || res.ServerHost != "213.179.209.168" || res.ServerPort != 17242 {
		t.Fatalf("stored server data = %q:%d", res.ServerHost, res.ServerPort)
	}

	header, err := UnmarshalTankHeader(res.Packet[OuterTagSize:])
	if err != nil {
		t.Fatalf("unmarshal rewritten header: %v", err)
	}
	if header.Flags != FlagExtended {
		t.Fatalf("flags changed: got %v", header.Flags)
	}

	outVL, err := DeserializeVariantList(res.Packet[payloadOffset:])
	if err != nil {
		t.Fatalf("deserialize rewritten variant list: %v", err)
	}
	port, _ := outVL.Get(1)
	server, _ := outVL.Get(4)
	if port.I != 17091 {
		t.Fatalf("rewritten port = %d, want 17091", port.I)
	}
	if server.S != "127.0.0.1|" {
		t.Fatalf("rewritten server = %q, want %q", server.S, "127.0.0.1|")
	}
}

func TestPipelineOnSpawnLocal(t *testing.T) {
	p := testPipeline()
	vl := VariantList{Elements: []Variant{
		NewStringVariant("OnSpawn"),
		NewStringVariant("type|local\nname|foo\n"),
	}}
	pkt := buildGamePacket(TankHeader{Type: TankCallFunction}, vl)

	res := p.Intercept(pkt, FromServer)
	if res.Action != ActionRewrite {
		t.Fatalf("action = %v, want ActionRewrite", res.Action)
	}
	outVL, err := DeserializeVariantList(res.Packet[payloadOffset:])
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	arg1, _ := outVL.Get(1)
	if !strings.Contains(arg1.S, "mstate|1") {
		t.Fatalf("expected mstate|1 injected, got %q", arg1.S)
	}
	if !strings.Contains(arg1.S, "type|local") || !strings.Contains(arg1.S, "name|foo") {
		t.Fatalf("original fields lost: %q", arg1.S)
	}
}

func TestPipelineOnSpawnNonLocalForwarded(t *testing.T) {
	p := testPipeline()
	vl := VariantList{Elements: []Variant{
		NewStringVariant("OnSpawn"),
		NewStringVariant("type|avatar\nname|bar"),
	}}
	pkt := buildGamePacket(TankHeader{Type: TankCallFunction}, vl)

	res := p.Intercept(pkt, FromServer)
	if res.Action != ActionForward {
		t.Fatalf("action = %v, want ActionForward", res.Action)
	}
	if string(res.Packet) != string(pkt) {
		t.Fatalf("packet mutated when it should be byte-identical")
	}
}

func TestPipelineAppIntegrityFailSuppressed(t *testing.T) {
	p := testPipeline()
	pkt := buildGamePacket(TankHeader{Type: TankAppIntegrityFail}, VariantList{})

	res := p.Intercept(pkt, FromServer)
	if res.Action != ActionDrop {
		t.Fatalf("action = %v, want ActionDrop", res.Action)
	}
}

func TestPipelineTankDisconnectReconnects(t *testing.T) {
	p := testPipeline()
	pkt := buildGamePacket(TankHeader{Type: TankDisconnect}, VariantList{})

	res := p.Intercept(pkt, FromClient)
	if res.Action != ActionReconnect {
		t.Fatalf("action = %v, want ActionReconnect", res.Action)
	}
	if res.Dir != FromClient {
		t.Fatalf("dir = %v, want FromClient", res.Dir)
	}
}

func TestPipelineTankDisconnectFromServerReconnectsWithServerDir(t *testing.T) {
	p := testPipeline()
	pkt := buildGamePacket(TankHeader{Type: TankDisconnect}, VariantList{})

	res := p.Intercept(pkt, FromServer)
	if res.Action != ActionReconnect {
		t.Fatalf("action = %v, want ActionReconnect", res.Action)
	}
	if res.Dir != FromServer {
		t.Fatalf("dir = %v, want FromServer: the bridge relies on this to know which leg is opposite", res.Dir)
	}
}

func TestPipelineActionQuitDisconnectsBoth(t *testing.T) {
	p := testPipeline()
	pkt := make([]byte, OuterTagSize)
	binary.LittleEndian.PutUint32(pkt, uint32(NetMessageGameMessage))
	pkt = append(pkt, "action|quit"...)

	res := p.Intercept(pkt, FromClient)
	if res.Action != ActionDisconnectBoth {
		t.Fatalf("action = %v, want ActionDisconnectBoth", res.Action)
	}
}

func TestPipelineGameMessageOtherForwarded(t *testing.T) {
	p := testPipeline()
	pkt := make([]byte, OuterTagSize)
	binary.LittleEndian.PutUint32(pkt, uint32(NetMessageGameMessage))
	pkt = append(pkt, "action|refresh_item_data"...)

	res := p.Intercept(pkt, FromClient)
	if res.Action != ActionForward {
		t.Fatalf("action = %v, want ActionForward", res.Action)
	}
}

func TestPacketRecompositionIntegrity(t *testing.T) {
	vl := VariantList{Elements: []Variant{
		NewStringVariant("OnSendToServer"),
		NewI32Variant(17242),
		NewI32Variant(0),
		NewI32Variant(0),
		NewStringVariant("213.179.209.168|"),
	}}
	header := TankHeader{Type: TankCallFunction, Flags: FlagIsStanding, NetID: 7}
	orig := buildGamePacket(header, vl)

	p := testPipeline()
	res := p.Intercept(orig, FromServer)
	if res.Action != ActionRewrite {
		t.Fatalf("expected rewrite")
	}

	if string(res.Packet[:OuterTagSize]) != string(orig[:OuterTagSize]) {
		t.Fatalf("outer tag changed")
	}

	origHeader, _ := UnmarshalTankHeader(orig[OuterTagSize:])
	newHeader, _ := UnmarshalTankHeader(res.Packet[OuterTagSize:])
	origHeader.ExtendedDataLength = newHeader.ExtendedDataLength
	if origHeader != newHeader {
		t.Fatalf("header fields other than extended_data_length changed: got %+v want %+v", newHeader, origHeader)
	}

	newVL, err := DeserializeVariantList(res.Packet[payloadOffset:])
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if int(newHeader.ExtendedDataLength) != len(newVL.Serialize()) {
		t.Fatalf("extended_data_length = %d, want %d", newHeader.ExtendedDataLength, len(newVL.Serialize()))
	}
}
