package enet

import (
	"net/netip"
	"testing"
	"time"
)

func mustLocalhost(t *testing.T, settings Settings) *Host {
	t.Helper()
	h, err := NewHost(netip.MustParseAddrPort("127.0.0.1:0"), settings)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func pumpUntil(t *testing.T, hosts []*Host, want int, typ EventType) []Event {
	t.Helper()
	var got []Event
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(got) < want {
		for _, h := range hosts {
			if ev, ok, err := h.Service(); err != nil {
				t.Fatalf("service: %v", err)
			} else if ok && ev.Type == typ {
				got = append(got, ev)
			}
		}
		time.Sleep(time.Millisecond)
	}
	return got
}

func TestHostConnectAndExchange(t *testing.T) {
	settings := Settings{
		PeerLimit:    1,
		ChannelLimit: 2,
		Compressor:   NewRangeCoder(),
		Checksum:     CRC32,
	}

	server := mustLocalhost(t, settings)
	client := mustLocalhost(t, settings)

	clientPeer, err := client.Connect(server.LocalAddr(), 2)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	connects := pumpUntil(t, []*Host{server, client}, 2, EventConnect)
	if len(connects) != 2 {
		t.Fatalf("expected 2 connect events, got %d", len(connects))
	}
	if !clientPeer.Connected() {
		t.Fatalf("client peer should be connected")
	}

	serverPeer, ok := server.Peer(connects[0].Peer)
	if !ok {
		t.Fatalf("server has no peer for connect event")
	}

	payload := []byte("OnSendToServer")
	if err := clientPeer.Send(0, payload, PacketReliable); err != nil {
		t.Fatalf("send: %v", err)
	}

	recvs := pumpUntil(t, []*Host{server, client}, 1, EventReceive)
	if len(recvs) != 1 {
		t.Fatalf("expected 1 receive event, got %d", len(recvs))
	}
	if string(recvs[0].Data) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", recvs[0].Data, payload)
	}

	serverPeer.DisconnectNow(0)

	disconnects := pumpUntil(t, []*Host{server, client}, 1, EventDisconnect)
	if len(disconnects) != 1 {
		t.Fatalf("expected a disconnect event on the client side")
	}
}
