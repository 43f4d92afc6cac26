package bridge

import (
	"net/netip"
	"sync"

	"github.com/pg9182/growtopia-proxy/pkg/enet"
)

// RoutingTable is the shared state the downstream listener, upstream
// connector, and web endpoint coordinate through. Each field has its own
// mutex; lock ordering when more than one is needed is always
// serverData -> clientPeer -> upstreamPeer -> hosts, and no lock is ever
// held across network I/O.
type RoutingTable struct {
	serverDataMu sync.Mutex
	serverData   map[string]string
	upstreamAddr netip.AddrPort
	haveUpstream bool

	clientPeerMu sync.Mutex
	clientPeer   *enet.Peer

	upstreamPeerMu sync.Mutex
	upstreamPeer   *enet.Peer
}

// NewRoutingTable creates an empty RoutingTable.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{serverData: make(map[string]string)}
}

// SetServerData stashes a key/value pair from the web endpoint or the
// OnSendToServer rewrite.
func (rt *RoutingTable) SetServerData(key, value string) {
	rt.serverDataMu.Lock()
	defer rt.serverDataMu.Unlock()
	rt.serverData[key] = value
}

// ServerData reads a previously stashed key/value pair.
func (rt *RoutingTable) ServerData(key string) (string, bool) {
	rt.serverDataMu.Lock()
	defer rt.serverDataMu.Unlock()
	v, ok := rt.serverData[key]
	return v, ok
}

// SetUpstreamAddr records the resolved address of the real game server,
// set by the web endpoint before any UDP traffic can be forwarded.
func (rt *RoutingTable) SetUpstreamAddr(addr netip.AddrPort) {
	rt.serverDataMu.Lock()
	defer rt.serverDataMu.Unlock()
	rt.upstreamAddr = addr
	rt.haveUpstream = true
}

// UpstreamAddr returns the resolved upstream address, if any.
func (rt *RoutingTable) UpstreamAddr() (netip.AddrPort, bool) {
	rt.serverDataMu.Lock()
	defer rt.serverDataMu.Unlock()
	return rt.upstreamAddr, rt.haveUpstream
}

// SetClientPeer records the downstream peer, or clears it if p is nil.
func (rt *RoutingTable) SetClientPeer(p *enet.Peer) {
	rt.clientPeerMu.Lock()
	defer rt.clientPeerMu.Unlock()
	rt.clientPeer = p
}

// ClientPeer returns the downstream peer, if connected.
func (rt *RoutingTable) ClientPeer() *enet.Peer {
	rt.clientPeerMu.Lock()
	defer rt.clientPeerMu.Unlock()
	return rt.clientPeer
}

// SetUpstreamPeer records the upstream peer, or clears it if p is nil.
func (rt *RoutingTable) SetUpstreamPeer(p *enet.Peer) {
	rt.upstreamPeerMu.Lock()
	defer rt.upstreamPeerMu.Unlock()
	rt.upstreamPeer = p
}

// UpstreamPeer returns the upstream peer, if connected.
func (rt *RoutingTable) UpstreamPeer() *enet.Peer {
	rt.upstreamPeerMu.Lock()
	defer rt.upstreamPeerMu.Unlock()
	return rt.upstreamPeer
}

// Ready reports whether both legs of the bridge are connected, the only
// state in which forwarding is attempted.
func (rt *RoutingTable) Ready() bool {
	return rt.ClientPeer() != nil && rt.UpstreamPeer() != nil
}
