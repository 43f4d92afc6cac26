package enet

import "encoding/binary"

// commandType identifies an ENet protocol command. Only the subset needed to
// bridge a client and server session is implemented; fragmentation,
// bandwidth limiting, and throttle configuration commands from upstream
// ENet are not modeled since this proxy never needs to split a datagram
// across multiple MTU-sized sends for the control traffic it intercepts.
type commandType uint8

const (
	cmdNone commandType = iota
	cmdAcknowledge
	cmdConnect
	cmdVerifyConnect
	cmdDisconnect
	cmdPing
	cmdSendReliable
	cmdSendUnreliable
	cmdSendUnsequenced
)

const (
	commandHeaderSize  = 1 + 1 + 2 // commandType, channelID, reliableSequenceNumber
	protocolHeaderSize = 2         // peerID
	connectBodySize    = 2 + 2     // channelLimit, sessionID
)

// commandHeader prefixes every command in a datagram.
type commandHeader struct {
	Command                commandType
	ChannelID               uint8
	ReliableSequenceNumber  uint16
}

func (h commandHeader) marshal(b []byte) {
	b[0] = byte(h.Command)
	b[1] = h.ChannelID
	binary.LittleEndian.PutUint16(b[2:4], h.ReliableSequenceNumber)
}

func unmarshalCommandHeader(b []byte) commandHeader {
	return commandHeader{
		Command:                commandType(b[0]),
		ChannelID:              b[1],
		ReliableSequenceNumber: binary.LittleEndian.Uint16(b[2:4]),
	}
}

// protocolHeader prefixes every datagram with the sender's ID for the peer
// slot. Incoming datagrams are routed to peers by source address only; the
// received PeerID is not consulted.
type protocolHeader struct {
	PeerID uint16
}

func (h protocolHeader) marshal(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.PeerID)
}

func unmarshalProtocolHeader(b []byte) protocolHeader {
	return protocolHeader{PeerID: binary.LittleEndian.Uint16(b[0:2])}
}

// encodedCommand is a single parsed command plus its payload, as found
// within a datagram.
type encodedCommand struct {
	header  commandHeader
	payload []byte // command-specific body (e.g. connect params, packet data)
}

// splitCommands parses the commands within a single datagram body (after the
// protocol header and before the trailing checksum, if any).
func splitCommands(b []byte) ([]encodedCommand, error) {
	var cmds []encodedCommand
	for len(b) > 0 {
		if len(b) < commandHeaderSize {
			return nil, errShortCommand
		}
		h := unmarshalCommandHeader(b)
		b = b[commandHeaderSize:]

		var bodyLen int
		switch h.Command {
		case cmdAcknowledge:
			bodyLen = 4 // acknowledged reliable sequence number + sent time
		case cmdConnect:
			bodyLen = connectBodySize
		case cmdVerifyConnect:
			bodyLen = connectBodySize
		case cmdDisconnect:
			bodyLen = 4 // reason
		case cmdPing:
			bodyLen = 0
		case cmdSendReliable, cmdSendUnreliable, cmdSendUnsequenced:
			if len(b) < 2 {
				return nil, errShortCommand
			}
			bodyLen = 2 + int(binary.LittleEndian.Uint16(b[0:2]))
		default:
			return nil, errUnknownCommand
		}
		if len(b) < bodyLen {
			return nil, errShortCommand
		}
		cmds = append(cmds, encodedCommand{header: h, payload: append([]byte(nil), b[:bodyLen]...)})
		b = b[bodyLen:]
	}
	return cmds, nil
}

// dataCommandPayload returns the packet data of a send* command's payload,
// the bytes after its 2-byte length prefix (truncated to what is present).
func dataCommandPayload(p []byte) []byte {
	if len(p) < 2 {
		return nil
	}
	n := binary.LittleEndian.Uint16(p[0:2])
	if int(n) > len(p)-2 {
		n = uint16(len(p) - 2)
	}
	return p[2 : 2+n]
}

func encodeDataCommand(h commandHeader, data []byte) []byte {
	out := make([]byte, commandHeaderSize+2+len(data))
	h.marshal(out)
	binary.LittleEndian.PutUint16(out[commandHeaderSize:], uint16(len(data)))
	copy(out[commandHeaderSize+2:], data)
	return out
}

func encodeAcknowledge(h commandHeader, sentTime uint16) []byte {
	out := make([]byte, commandHeaderSize+4)
	h.marshal(out)
	binary.LittleEndian.PutUint16(out[commandHeaderSize:], h.ReliableSequenceNumber)
	binary.LittleEndian.PutUint16(out[commandHeaderSize+2:], sentTime)
	return out
}

func encodeConnect(cmd commandType, channelLimit uint16, sessionID uint16) []byte {
	out := make([]byte, commandHeaderSize+connectBodySize)
	commandHeader{Command: cmd}.marshal(out)
	binary.LittleEndian.PutUint16(out[commandHeaderSize:], channelLimit)
	binary.LittleEndian.PutUint16(out[commandHeaderSize+2:], sessionID)
	return out
}

func encodeDisconnect(reason uint32) []byte {
	out := make([]byte, commandHeaderSize+4)
	commandHeader{Command: cmdDisconnect}.marshal(out)
	binary.LittleEndian.PutUint32(out[commandHeaderSize:], reason)
	return out
}

func encodePing() []byte {
	out := make([]byte, commandHeaderSize)
	commandHeader{Command: cmdPing}.marshal(out)
	return out
}
