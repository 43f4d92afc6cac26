package gtproto

import "testing"

func TestTankHeaderRoundTrip(t *testing.T) {
	h := TankHeader{
		Type:               TankCallFunction,
		Flags:              FlagIsStanding | FlagOnSwimming,
		NetID:              42,
		TargetNetID:        -1,
		Count1:             1,
		Count2:             2,
		Value:              3.5,
		VecX:               1.25,
		VecY:               -1.25,
		VecX2:              0,
		VecY2:              99.5,
		ParticleRotation:   180,
		ExtendedDataLength: 17,
		ItemID:             9001,
	}
	b := h.Marshal()
	if len(b) != TankHeaderSize {
		t.Fatalf("marshal length = %d, want %d", len(b), TankHeaderSize)
	}
	got, err := UnmarshalTankHeader(b[:])
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestUnmarshalTankHeaderShort(t *testing.T) {
	if _, err := UnmarshalTankHeader(make([]byte, TankHeaderSize-1)); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}
