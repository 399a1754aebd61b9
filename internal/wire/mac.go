package wire

import (
	"crypto/hmac"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

func computeMAC(key []byte, kind Kind, flags Flag, identAndPort, payload []byte) []byte {
	h, _ := blake2b.New256(key)
	var kindFlags [3]byte
	binary.BigEndian.PutUint16(kindFlags[0:2], uint16(kind))
	kindFlags[2] = byte(flags)
	h.Write(kindFlags[:])
	h.Write(identAndPort)
	h.Write(payload)
	return h.Sum(nil)
}

func verifyMAC(key []byte, fixedHeader, identAndPort, payload, mac []byte) bool {
	kind := Kind(binary.BigEndian.Uint16(fixedHeader[6:8]))
	flags := Flag(fixedHeader[8])
	expected := computeMAC(key, kind, flags, identAndPort, payload)
	return hmac.Equal(expected, mac)
}
