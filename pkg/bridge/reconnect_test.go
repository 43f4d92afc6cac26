package bridge

import (
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pg9182/growtopia-proxy/pkg/enet"
	"github.com/pg9182/growtopia-proxy/pkg/gtproto"
	"github.com/pg9182/growtopia-proxy/pkg/metricsx"
)

func mustLocalhost(t *testing.T, settings enet.Settings) *enet.Host {
	t.Helper()
	h, err := enet.NewHost(netip.MustParseAddrPort("127.0.0.1:0"), settings)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

// pumpConnect services hosts until each has produced a connect event,
// returning the peer ID each host assigned to its side of the connection.
func pumpConnect(t *testing.T, hosts []*enet.Host) map[*enet.Host]enet.PeerID {
	t.Helper()
	ids := make(map[*enet.Host]enet.PeerID, len(hosts))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(ids) < len(hosts) {
		for _, h := range hosts {
			if _, ok := ids[h]; ok {
				continue
			}
			if ev, ok, err := h.Service(); err != nil {
				t.Fatalf("service: %v", err)
			} else if ok && ev.Type == enet.EventConnect {
				ids[h] = ev.Peer
			}
		}
		time.Sleep(time.Millisecond)
	}
	if len(ids) < len(hosts) {
		t.Fatalf("only got %d/%d connect events", len(ids), len(hosts))
	}
	return ids
}

// testServer wires a bridge.Server around two real connected ENet peer
// pairs, one per leg, without the HTTP/TLS side of NewServer, so the
// reconnect cycle's peer bookkeeping can be exercised directly.
func testServer(t *testing.T) (*Server, *enet.Peer, *enet.Peer) {
	t.Helper()

	downstream := mustLocalhost(t, enet.Settings{PeerLimit: 1, ChannelLimit: 2})
	fakeClient := mustLocalhost(t, enet.Settings{PeerLimit: 1, ChannelLimit: 2})
	upstream := mustLocalhost(t, enet.Settings{PeerLimit: 1, ChannelLimit: 1})
	fakeServer := mustLocalhost(t, enet.Settings{PeerLimit: 1, ChannelLimit: 1})

	if _, err := fakeClient.Connect(downstream.LocalAddr(), 2); err != nil {
		t.Fatalf("connect client leg: %v", err)
	}
	clientIDs := pumpConnect(t, []*enet.Host{downstream, fakeClient})

	if _, err := upstream.Connect(fakeServer.LocalAddr(), 1); err != nil {
		t.Fatalf("connect upstream leg: %v", err)
	}
	upstreamIDs := pumpConnect(t, []*enet.Host{upstream, fakeServer})

	clientPeer, ok := downstream.Peer(clientIDs[downstream])
	if !ok {
		t.Fatalf("downstream host missing its peer for the client leg")
	}
	upstreamPeer, ok := upstream.Peer(upstreamIDs[upstream])
	if !ok {
		t.Fatalf("upstream host missing its peer for the server leg")
	}

	rt := NewRoutingTable()
	rt.SetClientPeer(clientPeer)
	rt.SetUpstreamPeer(upstreamPeer)
	rt.SetUpstreamAddr(fakeServer.LocalAddr())

	s := &Server{
		Log:        zerolog.Nop(),
		Routing:    rt,
		Pipeline:   gtproto.NewPipeline("127.0.0.1", int32(upstream.LocalAddr().Port()), zerolog.Nop()),
		Counters:   metricsx.NewPacketCounters(),
		downstream: downstream,
		upstream:   upstream,
	}
	return s, clientPeer, upstreamPeer
}

func TestTriggerReconnectFromClientDisconnectsUpstreamOnly(t *testing.T) {
	s, clientPeer, upstreamPeer := testServer(t)

	s.triggerReconnect(gtproto.FromClient)

	if s.Routing.UpstreamPeer() != nil {
		t.Fatalf("upstream peer should have been cleared")
	}
	if upstreamPeer.Connected() {
		t.Fatalf("upstream peer should have been disconnected")
	}
	if s.Routing.ClientPeer() != clientPeer {
		t.Fatalf("client peer should be untouched, the reconnect was triggered by the client leg")
	}
	if !clientPeer.Connected() {
		t.Fatalf("client peer should still be connected")
	}
}

func TestTriggerReconnectFromServerDisconnectsClientOnly(t *testing.T) {
	s, clientPeer, upstreamPeer := testServer(t)

	s.triggerReconnect(gtproto.FromServer)

	if s.Routing.ClientPeer() != nil {
		t.Fatalf("client peer should have been cleared: a Disconnect from the server must tear down the opposite (client) leg")
	}
	if clientPeer.Connected() {
		t.Fatalf("client peer should have been disconnected")
	}
	if s.Routing.UpstreamPeer() != upstreamPeer {
		t.Fatalf("upstream peer should be untouched by disconnectClient")
	}
}
