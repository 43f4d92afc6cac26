// Package gtproto implements the layered application packet format carried
// over the ENet bridge (pkg/enet): the outer packet type tag, the
// fixed-size tank packet header, its packet-flag bitfield, the
// variant-list codec embedded in CallFunction packets, and the
// interception pipeline that decides how each packet is forwarded between
// the client and server legs of the bridge.
package gtproto

import "encoding/binary"

// EPacketType is the outer packet type tag, the first 4 bytes of every
// ENet packet payload in this protocol.
type EPacketType uint32

const (
	NetMessageUnused            EPacketType = 0
	NetMessageServerHello       EPacketType = 1
	NetMessageGenericText       EPacketType = 2
	NetMessageGameMessage       EPacketType = 3
	NetMessageGamePacket        EPacketType = 4
	NetMessageError             EPacketType = 5
	NetMessageTrack             EPacketType = 6
	NetMessageClientLogRequest  EPacketType = 7
	NetMessageClientLogResponse EPacketType = 8
)

func (t EPacketType) String() string {
	switch t {
	case NetMessageUnused:
		return "Unused"
	case NetMessageServerHello:
		return "ServerHello"
	case NetMessageGenericText:
		return "GenericText"
	case NetMessageGameMessage:
		return "GameMessage"
	case NetMessageGamePacket:
		return "GamePacket"
	case NetMessageError:
		return "Error"
	case NetMessageTrack:
		return "Track"
	case NetMessageClientLogRequest:
		return "ClientLogRequest"
	case NetMessageClientLogResponse:
		return "ClientLogResponse"
	default:
		return "Unknown"
	}
}

// OuterTagSize is the size in bytes of the leading outer packet type tag.
const OuterTagSize = 4

// ReadOuterTag reads the little-endian u32 outer packet type tag from the
// start of b. The caller must ensure len(b) >= OuterTagSize.
func ReadOuterTag(b []byte) EPacketType {
	return EPacketType(binary.LittleEndian.Uint32(b[:OuterTagSize]))
}
