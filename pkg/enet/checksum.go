package enet

import "hash/crc32"

// CRC32 is the standard ENet checksum function: the IEEE CRC-32 of the
// concatenation of all buffers, with the 4 checksum bytes in the datagram
// itself treated as zero while computing it.
func CRC32(b ...[]byte) uint32 {
	h := crc32.NewIEEE()
	for _, p := range b {
		h.Write(p)
	}
	return h.Sum32()
}
