package gtproto

import (
	"encoding/binary"
	"fmt"
)

// VariantKind tags the type of a Variant's payload.
type VariantKind uint8

const (
	VariantUnknown VariantKind = 0
	VariantFloat   VariantKind = 1
	VariantString  VariantKind = 2
	VariantVec2    VariantKind = 3
	VariantVec3    VariantKind = 4
	VariantU32     VariantKind = 5
	VariantI32     VariantKind = 9
)

// Variant is one tagged-union element of a VariantList. Only the fields
// matching Kind are meaningful.
type Variant struct {
	Kind    VariantKind
	F       float32
	S       string
	X, Y, Z float32
	U       uint32
	I       int32
}

func NewFloatVariant(f float32) Variant   { return Variant{Kind: VariantFloat, F: f} }
func NewStringVariant(s string) Variant   { return Variant{Kind: VariantString, S: s} }
func NewVec2Variant(x, y float32) Variant { return Variant{Kind: VariantVec2, X: x, Y: y} }
func NewVec3Variant(x, y, z float32) Variant {
	return Variant{Kind: VariantVec3, X: x, Y: y, Z: z}
}
func NewU32Variant(u uint32) Variant { return Variant{Kind: VariantU32, U: u} }
func NewI32Variant(i int32) Variant  { return Variant{Kind: VariantI32, I: i} }

// String renders a human-readable form for logging.
func (v Variant) String() string {
	switch v.Kind {
	case VariantFloat:
		return fmt.Sprintf("%g", v.F)
	case VariantString:
		return v.S
	case VariantVec2:
		return fmt.Sprintf("(%g, %g)", v.X, v.Y)
	case VariantVec3:
		return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
	case VariantU32:
		return fmt.Sprintf("%d", v.U)
	case VariantI32:
		return fmt.Sprintf("%d", v.I)
	default:
		return "<unknown>"
	}
}

// VariantList is the tagged-union array embedded after the TankHeader in a
// TankCallFunction packet: a u8 count followed by that many elements, each
// prefixed by a u8 index (its position in the original element list) and a
// u8 type tag.
type VariantList struct {
	Elements []Variant
}

type cursor struct {
	b   []byte
	pos int
}

func (c *cursor) remaining() int { return len(c.b) - c.pos }

func (c *cursor) byte() (byte, error) {
	if c.remaining() < 1 {
		return 0, fmt.Errorf("gtproto: variant list: truncated at byte %d", c.pos)
	}
	v := c.b[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) take(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, fmt.Errorf("gtproto: variant list: need %d bytes at offset %d, have %d", n, c.pos, c.remaining())
	}
	v := c.b[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) f32() (float32, error) {
	u, err := c.u32()
	if err != nil {
		return 0, err
	}
	return f32frombits(u), nil
}

// DeserializeVariantList parses a VariantList from b. Elements with an
// unrecognized type tag are decoded as VariantUnknown and carry no body,
// matching the source format where unknown tags contribute no payload
// bytes and are not themselves an error.
func DeserializeVariantList(b []byte) (VariantList, error) {
	c := &cursor{b: b}
	count, err := c.byte()
	if err != nil {
		return VariantList{}, err
	}

	vl := VariantList{Elements: make([]Variant, 0, count)}
	for i := 0; i < int(count); i++ {
		if _, err := c.byte(); err != nil { // index byte, position is implicit in slice order
			return VariantList{}, fmt.Errorf("gtproto: variant list: element %d: %w", i, err)
		}
		tag, err := c.byte()
		if err != nil {
			return VariantList{}, fmt.Errorf("gtproto: variant list: element %d: %w", i, err)
		}

		var v Variant
		switch VariantKind(tag) {
		case VariantFloat:
			v.Kind = VariantFloat
			if v.F, err = c.f32(); err != nil {
				return VariantList{}, err
			}
		case VariantString:
			v.Kind = VariantString
			n, err := c.u32()
			if err != nil {
				return VariantList{}, err
			}
			sb, err := c.take(int(n))
			if err != nil {
				return VariantList{}, err
			}
			v.S = string(sb)
		case VariantVec2:
			v.Kind = VariantVec2
			if v.X, err = c.f32(); err != nil {
				return VariantList{}, err
			}
			if v.Y, err = c.f32(); err != nil {
				return VariantList{}, err
			}
		case VariantVec3:
			v.Kind = VariantVec3
			if v.X, err = c.f32(); err != nil {
				return VariantList{}, err
			}
			if v.Y, err = c.f32(); err != nil {
				return VariantList{}, err
			}
			if v.Z, err = c.f32(); err != nil {
				return VariantList{}, err
			}
		case VariantU32:
			v.Kind = VariantU32
			if v.U, err = c.u32(); err != nil {
				return VariantList{}, err
			}
		case VariantI32:
			v.Kind = VariantI32
			u, err := c.u32()
			if err != nil {
				return VariantList{}, err
			}
			v.I = int32(u)
		default:
			v.Kind = VariantUnknown
		}
		vl.Elements = append(vl.Elements, v)
	}
	return vl, nil
}

// Serialize encodes vl back to wire form. Unknown elements are skipped
// entirely: they contribute neither an index/tag pair nor a body, and do
// not count towards the emitted element count, mirroring how they were
// read.
func (vl VariantList) Serialize() []byte {
	var body []byte
	var count int
	for i, v := range vl.Elements {
		if v.Kind == VariantUnknown {
			continue
		}
		count++
		body = append(body, byte(i), byte(v.Kind))
		switch v.Kind {
		case VariantFloat:
			body = appendU32(body, f32bits(v.F))
		case VariantString:
			body = appendU32(body, uint32(len(v.S)))
			body = append(body, v.S...)
		case VariantVec2:
			body = appendU32(body, f32bits(v.X))
			body = appendU32(body, f32bits(v.Y))
		case VariantVec3:
			body = appendU32(body, f32bits(v.X))
			body = appendU32(body, f32bits(v.Y))
			body = appendU32(body, f32bits(v.Z))
		case VariantU32:
			body = appendU32(body, v.U)
		case VariantI32:
			body = appendU32(body, uint32(v.I))
		}
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(count))
	out = append(out, body...)
	return out
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// Get returns the element at index i, the position it held when the list
// was deserialized.
func (vl VariantList) Get(i int) (Variant, bool) {
	if i < 0 || i >= len(vl.Elements) {
		return Variant{}, false
	}
	return vl.Elements[i], true
}

// FunctionName returns element 0 as a string, the convention used by
// TankCallFunction packets to name the function being invoked.
func (vl VariantList) FunctionName() (string, bool) {
	v, ok := vl.Get(0)
	if !ok || v.Kind != VariantString {
		return "", false
	}
	return v.S, true
}
