package enet

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"
)

// defaultRTO and defaultMaxTries bound reliable-send retransmission. They
// are deliberately conservative since this proxy relays small, infrequent
// control packets rather than a bulk data stream.
const (
	defaultRTO      = 200 * time.Millisecond
	defaultMaxTries = 15
)

// Host is one side of an ENet connection pair: either the downstream
// (client-facing) or upstream (server-facing) leg of the bridge. A Host owns
// exactly one UDP socket and services peers non-blockingly: Service must be
// polled by the caller, returning at most one Event per call.
type Host struct {
	mu       sync.Mutex
	conn     *net.UDPConn
	settings Settings

	peers    map[PeerID]*Peer
	byAddr   map[netip.AddrPort]PeerID
	nextID   PeerID
	session  uint16

	pending []Event
	closed  bool
}

// NewHost creates a Host bound to addr (use an unspecified port for an
// ephemeral port, as the upstream connector does).
func NewHost(addr netip.AddrPort, settings Settings) (*Host, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("enet: bind: %w", err)
	}
	if err := conn.SetReadBuffer(1 << 20); err != nil {
		// non-fatal; larger buffers just reduce the chance of dropped
		// datagrams under load
	}
	return &Host{
		conn:     conn,
		settings: settings,
		peers:    make(map[PeerID]*Peer),
		byAddr:   make(map[netip.AddrPort]PeerID),
		session:  1,
	}, nil
}

// LocalAddr returns the bound local address.
func (h *Host) LocalAddr() netip.AddrPort {
	if a, ok := h.conn.LocalAddr().(*net.UDPAddr); ok {
		return a.AddrPort()
	}
	return netip.AddrPort{}
}

// Close releases the host's socket. Any peers are considered zombied.
func (h *Host) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return h.conn.Close()
}

// Peer looks up a peer by ID.
func (h *Host) Peer(id PeerID) (*Peer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[id]
	return p, ok
}

// Connect begins connecting to addr with the given channel limit, returning
// a Peer handle immediately. The connection is not usable (Peer.Connected
// returns false, sends fail) until a corresponding EventConnect is observed
// from Service.
func (h *Host) Connect(addr netip.AddrPort, channelLimit int) (*Peer, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHostClosed
	}
	if h.settings.PeerLimit > 0 && len(h.peers) >= h.settings.PeerLimit {
		h.mu.Unlock()
		return nil, ErrPeerLimit
	}
	h.nextID++
	id := h.nextID
	h.session++
	p := &Peer{
		host:         h,
		id:           id,
		addr:         addr,
		state:        peerStateConnecting,
		channelLimit: uint8(channelLimit),
		sessionID:    h.session,
	}
	h.peers[id] = p
	h.byAddr[addr] = id
	h.mu.Unlock()

	dgram, err := h.encodeDatagram(p, encodeConnect(cmdConnect, uint16(channelLimit), p.sessionID))
	if err != nil {
		return nil, err
	}
	if err := h.writeTo(addr, dgram); err != nil {
		return nil, err
	}
	return p, nil
}

// Flush sends any pending outgoing data immediately. Since this
// implementation sends every command as soon as it is queued, Flush is a
// no-op kept for parity with ENet's API.
func (h *Host) Flush() {}

// Service polls the socket once, waiting at most a millisecond, processes at most one
// incoming datagram, and returns the next queued Event, or a zero Event with
// ok=false if there is nothing to do right now.
func (h *Host) Service() (Event, bool, error) {
	h.mu.Lock()
	if len(h.pending) > 0 {
		ev := h.pending[0]
		h.pending = h.pending[1:]
		h.mu.Unlock()
		return ev, true, nil
	}
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return Event{}, false, ErrHostClosed
	}

	h.checkTimeouts()

	h.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	buf := make([]byte, 4096)
	n, raddr, err := h.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return Event{}, false, ErrHostClosed
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Event{}, false, nil
		}
		return Event{}, false, err
	}
	raddr = netip.AddrPortFrom(raddr.Addr().Unmap(), raddr.Port())

	if err := h.handleDatagram(raddr, buf[:n]); err != nil {
		return Event{}, false, fmt.Errorf("enet: handle datagram from %s: %w", raddr, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) > 0 {
		ev := h.pending[0]
		h.pending = h.pending[1:]
		return ev, true, nil
	}
	return Event{}, false, nil
}

func (h *Host) checkTimeouts() {
	h.mu.Lock()
	var dead []*Peer
	for _, p := range h.peers {
		if p.state != peerStateConnected {
			continue
		}
		if !p.retransmitDue(defaultRTO, defaultMaxTries) {
			dead = append(dead, p)
			continue
		}
		if p.timeoutMinimum > 0 && !p.lastRecv.IsZero() {
			if time.Since(p.lastRecv) > time.Duration(p.timeoutMinimum)*time.Millisecond {
				dead = append(dead, p)
			}
		}
	}
	h.mu.Unlock()

	for _, p := range dead {
		h.mu.Lock()
		_, exists := h.peers[p.id]
		if exists {
			delete(h.peers, p.id)
			delete(h.byAddr, p.addr)
		}
		h.mu.Unlock()
		if exists {
			h.queueEvent(Event{Type: EventDisconnect, Peer: p.id, Addr: p.addr})
		}
	}
}

func (h *Host) handleDatagram(raddr netip.AddrPort, raw []byte) error {
	if h.settings.Checksum != nil {
		if len(raw) < 4 {
			return errShortCommand
		}
		body, sum := raw[:len(raw)-4], raw[len(raw)-4:]
		var zero [4]byte
		want := h.settings.Checksum(body, zero[:])
		got := leUint32(sum)
		if want != got {
			return fmt.Errorf("enet: checksum mismatch")
		}
		raw = body
	}
	if len(raw) < protocolHeaderSize {
		return errShortCommand
	}
	hdr := unmarshalProtocolHeader(raw)
	payload := raw[protocolHeaderSize:]

	if h.settings.Compressor != nil && len(payload) > 0 {
		// The first 2 bytes of the payload, written uncompressed ahead of
		// the range-coded stream, record its decompressed length, so the
		// range coder knows when to stop.
		if len(payload) < 2 {
			return errShortCommand
		}
		n := int(leUint16(payload[:2]))
		dec, err := h.settings.Compressor.Decompress(nil, payload[2:], n)
		if err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
		payload = dec
	}

	cmds, err := splitCommands(payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	id, known := h.byAddr[raddr]
	var p *Peer
	if known {
		p = h.peers[id]
	}
	h.mu.Unlock()

	for _, c := range cmds {
		if err := h.handleCommand(raddr, hdr, p, c); err != nil {
			return err
		}
		if p == nil {
			// the connect handler may have just created the peer
			h.mu.Lock()
			if id, known = h.byAddr[raddr]; known {
				p = h.peers[id]
			}
			h.mu.Unlock()
		}
	}
	return nil
}

func (h *Host) handleCommand(raddr netip.AddrPort, hdr protocolHeader, p *Peer, c encodedCommand) error {
	switch c.header.Command {
	case cmdConnect:
		return h.handleConnect(raddr, c)
	case cmdVerifyConnect:
		return h.handleVerifyConnect(p, c)
	case cmdDisconnect:
		if p == nil {
			return nil
		}
		return h.handleDisconnect(p, leUint32(c.payload[0:4]))
	case cmdPing:
		if p != nil {
			p.lastRecv = time.Now()
		}
		return nil
	case cmdAcknowledge:
		if p == nil || len(c.payload) < 2 {
			return nil
		}
		p.lastRecv = time.Now()
		p.ackReliable(leUint16(c.payload[:2]))
		return nil
	case cmdSendReliable:
		if p == nil {
			return nil
		}
		return h.handleSendReliable(p, c)
	case cmdSendUnreliable, cmdSendUnsequenced:
		if p == nil {
			return nil
		}
		p.lastRecv = time.Now()
		data := dataCommandPayload(c.payload)
		h.queueEvent(Event{Type: EventReceive, Peer: p.id, Addr: p.addr, Data: append([]byte(nil), data...)})
		return nil
	default:
		return nil
	}
}

func (h *Host) handleConnect(raddr netip.AddrPort, c encodedCommand) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	if id, ok := h.byAddr[raddr]; ok {
		// already connected (retransmitted Connect); just re-ack
		p := h.peers[id]
		h.mu.Unlock()
		if p != nil {
			return h.sendVerifyConnect(p)
		}
		return nil
	}
	if h.settings.PeerLimit > 0 && len(h.peers) >= h.settings.PeerLimit {
		h.mu.Unlock()
		return nil // silently refuse; matches a single-peer host ignoring extra clients
	}
	h.nextID++
	id := h.nextID
	channelLimit := leUint16(c.payload[0:2])
	if h.settings.ChannelLimit > 0 && int(channelLimit) > h.settings.ChannelLimit {
		channelLimit = uint16(h.settings.ChannelLimit)
	}
	p := &Peer{
		host:          h,
		id:            id,
		addr:          raddr,
		state:         peerStateConnected,
		channelLimit:  uint8(channelLimit),
		remoteSession: leUint16(c.payload[2:4]),
		lastRecv:      time.Now(),
	}
	h.peers[id] = p
	h.byAddr[raddr] = id
	h.mu.Unlock()

	if err := h.sendVerifyConnect(p); err != nil {
		return err
	}
	h.queueEvent(Event{Type: EventConnect, Peer: p.id, Addr: p.addr})
	return nil
}

func (h *Host) sendVerifyConnect(p *Peer) error {
	dgram, err := h.encodeDatagram(p, encodeConnect(cmdVerifyConnect, uint16(p.channelLimit), p.sessionID))
	if err != nil {
		return err
	}
	return h.writeTo(p.addr, dgram)
}

func (h *Host) handleVerifyConnect(p *Peer, c encodedCommand) error {
	if p == nil || p.state != peerStateConnecting {
		return nil
	}
	p.remoteSession = leUint16(c.payload[2:4])
	p.state = peerStateConnected
	p.lastRecv = time.Now()
	h.queueEvent(Event{Type: EventConnect, Peer: p.id, Addr: p.addr})
	return nil
}

func (h *Host) handleDisconnect(p *Peer, reason uint32) error {
	h.removePeer(p.id)
	h.queueEvent(Event{Type: EventDisconnect, Peer: p.id, Addr: p.addr, Reason: reason})
	return nil
}

func (h *Host) handleSendReliable(p *Peer, c encodedCommand) error {
	p.lastRecv = time.Now()
	ch := c.header.ChannelID
	seq := c.header.ReliableSequenceNumber

	if int16(seq-p.incomingSeq[ch]) > 0 {
		// ahead of the next expected sequence number; drop it without an
		// ack (ENet would buffer and reorder, but control traffic here is
		// low-rate enough that the sender simply retransmits it and it is
		// delivered once the gap has been filled)
		return nil
	}

	// ack the expected packet and duplicates alike, so the sender's
	// retransmit timer clears
	ack, err := h.encodeDatagram(p, encodeAcknowledge(commandHeader{Command: cmdAcknowledge, ChannelID: ch, ReliableSequenceNumber: seq}, 0))
	if err == nil {
		h.writeTo(p.addr, ack)
	}

	if seq != p.incomingSeq[ch] {
		// duplicate of an already delivered packet; drop silently
		return nil
	}
	p.incomingSeq[ch]++

	data := dataCommandPayload(c.payload)
	h.queueEvent(Event{Type: EventReceive, Peer: p.id, Addr: p.addr, Data: append([]byte(nil), data...), Flags: PacketReliable})
	return nil
}

func (h *Host) removePeer(id PeerID) {
	h.mu.Lock()
	if p, ok := h.peers[id]; ok {
		delete(h.peers, id)
		delete(h.byAddr, p.addr)
	}
	h.mu.Unlock()
}

func (h *Host) queueEvent(e Event) {
	h.mu.Lock()
	h.pending = append(h.pending, e)
	h.mu.Unlock()
}

// encodeDatagram wraps body (one command) with the protocol header and
// optional compression/checksum, ready to write to the socket.
func (h *Host) encodeDatagram(p *Peer, body []byte) ([]byte, error) {
	payload := body
	if h.settings.Compressor != nil {
		compressed := h.settings.Compressor.Compress(nil, body)
		lenPrefixed := make([]byte, 2+len(compressed))
		putLeUint16(lenPrefixed, uint16(len(body)))
		copy(lenPrefixed[2:], compressed)
		payload = lenPrefixed
	}

	out := make([]byte, protocolHeaderSize+len(payload))
	var pid uint16
	if p != nil {
		pid = uint16(p.id)
	}
	protocolHeader{PeerID: pid}.marshal(out)
	copy(out[protocolHeaderSize:], payload)

	if h.settings.Checksum != nil {
		var zero [4]byte
		sum := h.settings.Checksum(out, zero[:])
		sumBuf := make([]byte, 4)
		putLeUint32(sumBuf, sum)
		out = append(out, sumBuf...)
	}
	return out, nil
}

func (h *Host) writeTo(addr netip.AddrPort, b []byte) error {
	_, err := h.conn.WriteToUDPAddrPort(b, addr)
	return err
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func putLeUint16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLeUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
