package enet

import (
	"net/netip"
	"time"
)

type peerState int

const (
	peerStateConnecting peerState = iota
	peerStateConnected
	peerStateDisconnecting
	peerStateZombie
)

type pendingReliable struct {
	channel uint8
	seq     uint16
	datagram []byte
	sentAt  time.Time
	tries   int
}

// Peer is a remote endpoint known to a Host.
type Peer struct {
	host *Host

	id    PeerID
	addr  netip.AddrPort
	state peerState

	channelLimit  uint8
	sessionID     uint16
	remoteSession uint16

	outgoingSeq [256]uint16
	incomingSeq [256]uint16

	pending []*pendingReliable

	timeoutLimit, timeoutMinimum, timeoutMaximum uint32
	lastRecv                                     time.Time

	data any // user data, mirroring ENet's peer->data
}

// ID returns the peer's identifier within its Host.
func (p *Peer) ID() PeerID { return p.id }

// Addr returns the peer's remote address.
func (p *Peer) Addr() netip.AddrPort { return p.addr }

// Connected reports whether the peer is fully connected.
func (p *Peer) Connected() bool { return p.state == peerStateConnected }

// SetTimeout stores the peer's disconnect timeout in ENet's limit/minimum/
// maximum form. Only minimum is enforced: a connected peer from which
// nothing has been received for longer than minimum milliseconds is timed
// out, and 0 disables this. limit and maximum are stored but not consulted.
func (p *Peer) SetTimeout(limit, minimum, maximum uint32) {
	p.timeoutLimit, p.timeoutMinimum, p.timeoutMaximum = limit, minimum, maximum
}

// SetData attaches arbitrary user data to the peer.
func (p *Peer) SetData(v any) { p.data = v }

// Data returns the peer's attached user data.
func (p *Peer) Data() any { return p.data }

// Send queues data for delivery on channel, reliably or not depending on
// flags. Reliable sends are retransmitted by the host's service loop until
// acknowledged or the peer times out.
func (p *Peer) Send(channel uint8, data []byte, flags PacketFlags) error {
	if p.state != peerStateConnected {
		return ErrNotConnected
	}
	if len(data) > 0xFFFF-2 {
		return ErrPacketTooLarge
	}

	var cmd commandType
	switch {
	case flags&PacketUnsequenced != 0:
		cmd = cmdSendUnsequenced
	case flags&PacketReliable != 0:
		cmd = cmdSendReliable
	default:
		cmd = cmdSendUnreliable
	}

	// only reliable sends consume a sequence number, matching the
	// receiver, which counts reliable packets only
	seq := p.outgoingSeq[channel]
	if cmd == cmdSendReliable {
		p.outgoingSeq[channel]++
	}

	h := commandHeader{Command: cmd, ChannelID: channel, ReliableSequenceNumber: seq}
	body := encodeDataCommand(h, data)

	dgram, err := p.host.encodeDatagram(p, body)
	if err != nil {
		return err
	}
	if err := p.host.writeTo(p.addr, dgram); err != nil {
		return err
	}
	if cmd == cmdSendReliable {
		p.pending = append(p.pending, &pendingReliable{
			channel:  channel,
			seq:      seq,
			datagram: dgram,
			sentAt:   time.Now(),
			tries:    1,
		})
	}
	return nil
}

// DisconnectNow immediately tells the peer it is disconnected without
// waiting for acknowledgement, then removes it from the host.
func (p *Peer) DisconnectNow(reason uint32) {
	if p.state == peerStateZombie {
		return
	}
	dgram, err := p.host.encodeDatagram(p, encodeDisconnect(reason))
	if err == nil {
		p.host.writeTo(p.addr, dgram)
	}
	p.state = peerStateZombie
	p.host.removePeer(p.id)
}

func (p *Peer) ackReliable(seq uint16) {
	for i, pr := range p.pending {
		if pr.seq == seq {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return
		}
	}
}

// retransmitDue resends any reliable sends that have been outstanding longer
// than rto, returning false if the peer should be considered timed out.
func (p *Peer) retransmitDue(rto time.Duration, maxTries int) bool {
	now := time.Now()
	for _, pr := range p.pending {
		if now.Sub(pr.sentAt) < rto {
			continue
		}
		if pr.tries >= maxTries {
			return false
		}
		p.host.writeTo(p.addr, pr.datagram)
		pr.sentAt = now
		pr.tries++
	}
	return true
}
