package gtproto

import (
	"encoding/binary"
	"fmt"
)

// TankPacketType is the tank packet sub-type tag stored in a TankHeader.
// The interception pipeline acts on TankCallFunction, TankDisconnect and
// TankAppIntegrityFail; every other value is forwarded unchanged.
type TankPacketType uint8

const (
	TankState              TankPacketType = 0
	TankCallFunction       TankPacketType = 1
	TankUpdateStatus       TankPacketType = 2
	TankTileChangeRequest  TankPacketType = 3
	TankSendMapData        TankPacketType = 4
	TankSendInventoryState TankPacketType = 9
	TankPingReply          TankPacketType = 21
	TankPingRequest        TankPacketType = 22
	TankAppCheckResponse   TankPacketType = 24
	TankAppIntegrityFail   TankPacketType = 25
	TankDisconnect         TankPacketType = 26
)

// TankHeaderSize is the fixed size in bytes of a TankHeader record.
const TankHeaderSize = 56

// TankHeader is the fixed-size record immediately following the outer
// packet type tag in a NetMessageGamePacket payload. The application
// payload (a VariantList for TankCallFunction) follows it starting at
// offset OuterTagSize+TankHeaderSize.
type TankHeader struct {
	Type               TankPacketType
	Flags              PacketFlag
	NetID              int32
	TargetNetID        int32
	Count1             uint8
	Count2             uint8
	Value              float32
	VecX, VecY         float32
	VecX2, VecY2       float32
	ParticleRotation   float32
	ExtendedDataLength uint32
	ItemID             int32
}

// Field byte offsets within the 56-byte header.
const (
	offType               = 0
	offFlags              = 4
	offNetID              = 8
	offTargetNetID        = 12
	offCount1             = 16
	offCount2             = 17
	offValue              = 20
	offVecX               = 24
	offVecY               = 28
	offVecX2              = 32
	offVecY2              = 36
	offParticleRotation   = 40
	offExtendedDataLength = 44
	offItemID             = 48
)

// Marshal encodes h into its 56-byte wire form.
func (h TankHeader) Marshal() [TankHeaderSize]byte {
	var b [TankHeaderSize]byte
	b[offType] = byte(h.Type)
	binary.LittleEndian.PutUint32(b[offFlags:], uint32(h.Flags))
	binary.LittleEndian.PutUint32(b[offNetID:], uint32(h.NetID))
	binary.LittleEndian.PutUint32(b[offTargetNetID:], uint32(h.TargetNetID))
	b[offCount1] = h.Count1
	b[offCount2] = h.Count2
	binary.LittleEndian.PutUint32(b[offValue:], f32bits(h.Value))
	binary.LittleEndian.PutUint32(b[offVecX:], f32bits(h.VecX))
	binary.LittleEndian.PutUint32(b[offVecY:], f32bits(h.VecY))
	binary.LittleEndian.PutUint32(b[offVecX2:], f32bits(h.VecX2))
	binary.LittleEndian.PutUint32(b[offVecY2:], f32bits(h.VecY2))
	binary.LittleEndian.PutUint32(b[offParticleRotation:], f32bits(h.ParticleRotation))
	binary.LittleEndian.PutUint32(b[offExtendedDataLength:], h.ExtendedDataLength)
	binary.LittleEndian.PutUint32(b[offItemID:], uint32(h.ItemID))
	return b
}

// UnmarshalTankHeader decodes a TankHeader from the first TankHeaderSize
// bytes of b, returning an error if b is too short.
func UnmarshalTankHeader(b []byte) (TankHeader, error) {
	if len(b) < TankHeaderSize {
		return TankHeader{}, fmt.Errorf("gtproto: tank header: need %d bytes, got %d", TankHeaderSize, len(b))
	}
	var h TankHeader
	h.Type = TankPacketType(b[offType])
	h.Flags = PacketFlag(binary.LittleEndian.Uint32(b[offFlags:]))
	h.NetID = int32(binary.LittleEndian.Uint32(b[offNetID:]))
	h.TargetNetID = int32(binary.LittleEndian.Uint32(b[offTargetNetID:]))
	h.Count1 = b[offCount1]
	h.Count2 = b[offCount2]
	h.Value = f32frombits(binary.LittleEndian.Uint32(b[offValue:]))
	h.VecX = f32frombits(binary.LittleEndian.Uint32(b[offVecX:]))
	h.VecY = f32frombits(binary.LittleEndian.Uint32(b[offVecY:]))
	h.VecX2 = f32frombits(binary.LittleEndian.Uint32(b[offVecX2:]))
	h.VecY2 = f32frombits(binary.LittleEndian.Uint32(b[offVecY2:]))
	h.ParticleRotation = f32frombits(binary.LittleEndian.Uint32(b[offParticleRotation:]))
	h.ExtendedDataLength = binary.LittleEndian.Uint32(b[offExtendedDataLength:])
	h.ItemID = int32(binary.LittleEndian.Uint32(b[offItemID:]))
	return h, nil
}
