package enet

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRangeCoderRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("OnSendToServer"),
		bytes.Repeat([]byte{0}, 256),
		bytes.Repeat([]byte("213.179.209.168|"), 8),
	}

	r := rand.New(rand.NewSource(1))
	big := make([]byte, 8192)
	r.Read(big)
	cases = append(cases, big)

	rc := NewRangeCoder()
	for i, src := range cases {
		enc := rc.Compress(nil, src)
		dec, err := rc.Decompress(nil, enc, len(src))
		if err != nil {
			t.Fatalf("case %d: decompress: %v", i, err)
		}
		if !bytes.Equal(dec, src) {
			t.Fatalf("case %d: round trip mismatch: got %x want %x", i, dec, src)
		}
	}
}

func TestCRC32Deterministic(t *testing.T) {
	a := CRC32([]byte("hello"), []byte("world"))
	b := CRC32([]byte("helloworld"))
	if a != b {
		t.Fatalf("checksum over split buffers should match concatenated buffer: %x != %x", a, b)
	}
}
