// Package enet implements the subset of the ENet reliable-UDP protocol
// needed to bridge a game client and a game server: connection setup,
// channelized reliable and unreliable packet delivery, a range-coder
// compressor, and a CRC-32 checksum, driven by a non-blocking
// service/event loop.
//
// This is not a byte-for-byte reimplementation of upstream ENet (no
// fragmentation, bandwidth throttling, or sliding-window acknowledgement);
// it implements the parts of the wire protocol that a proxy sitting
// between two ENet peers needs to terminate and originate connections of
// its own.
package enet

import (
	"errors"
	"net/netip"
)

// PeerID identifies a peer within a Host. It is only meaningful for the
// Host that produced it.
type PeerID uint32

var (
	ErrHostClosed     = errors.New("enet: host closed")
	ErrNoSuchPeer     = errors.New("enet: no such peer")
	ErrPeerLimit      = errors.New("enet: peer limit reached")
	ErrNotConnected   = errors.New("enet: peer not connected")
	ErrPacketTooLarge = errors.New("enet: packet too large")

	errShortCommand  = errors.New("enet: truncated command")
	errUnknownCommand = errors.New("enet: unknown command type")
)

// PacketFlags controls how a packet is delivered.
type PacketFlags uint8

const (
	// PacketReliable delivers the packet exactly once, in order relative to
	// other reliable packets on the same channel, retransmitting until
	// acknowledged.
	PacketReliable PacketFlags = 1 << iota
	// PacketUnsequenced delivers the packet with no ordering or reliability
	// guarantee relative to other packets.
	PacketUnsequenced
)

// Settings configures a Host.
type Settings struct {
	// PeerLimit is the maximum number of simultaneously connected peers.
	PeerLimit int
	// ChannelLimit is the number of channels available to peers of this host.
	ChannelLimit int
	// Compressor, if set, is used to compress/decompress packet payloads.
	Compressor Compressor
	// Checksum, if set, is appended to and verified on every datagram.
	Checksum ChecksumFunc
	// UsingNewPacket records the "new-packet" client-side framing option
	// for a host that issues the outbound ENet connection. Host always uses
	// the single framing this package implements; the field does not change
	// what goes on the wire.
	UsingNewPacket bool
	// UsingNewPacketServer records the "new-packet-server" framing option
	// for a host that accepts inbound ENet connections. Like UsingNewPacket,
	// it does not change what goes on the wire.
	UsingNewPacketServer bool
}

// Compressor compresses and decompresses packet payloads. Decompress must be
// told the exact decompressed length n, since the range coder's bitstream
// does not self-terminate.
type Compressor interface {
	Compress(dst, src []byte) []byte
	Decompress(dst, src []byte, n int) ([]byte, error)
}

// ChecksumFunc computes a checksum over b.
type ChecksumFunc func(b ...[]byte) uint32

// EventType identifies the kind of Event produced by Host.Service.
type EventType int

const (
	EventNone EventType = iota
	EventConnect
	EventDisconnect
	EventReceive
)

// Event describes something that happened on a Host, returned one at a time
// from Host.Service.
type Event struct {
	Type   EventType
	Peer   PeerID
	Addr   netip.AddrPort
	Data   []byte // valid for EventReceive
	Flags  PacketFlags
	Reason uint32 // valid for EventDisconnect
}
