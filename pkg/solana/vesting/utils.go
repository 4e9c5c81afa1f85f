package vesting_program

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/mr-tron/base58"
)

const vecPrefixSize = 4

func putDiscriminator(dst []byte, src []byte, offset *int) {
	copy(dst[*offset:], src)
	*offset += 8
}
func getDiscriminator(src []byte, dst *[]byte, offset *int) {
	*dst = make([]byte, 8)
	copy(*dst, src[*offset:])
	*offset += 8
}

func putKey(dst []byte, src []byte, offset *int) {
	copy(dst[*offset:], src)
	*offset += ed25519.PublicKeySize
}
func getKey(src []byte, dst *ed25519.PublicKey, offset *int) {
	*dst = make([]byte, ed25519.PublicKeySize)
	copy(*dst, src[*offset:])
	*offset += ed25519.PublicKeySize
}

func putUint8(dst []byte, v uint8, offset *int) {
	dst[*offset] = v
	*offset += 1
}
func getUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[*offset]
	*offset += 1
}

func putUint32(dst []byte, v uint32, offset *int) {
	binary.LittleEndian.PutUint32(dst[*offset:], v)
	*offset += 4
}
func getUint32(src []byte, dst *uint32, offset *int) {
	*dst = binary.LittleEndian.Uint32(src[*offset:])
	*offset += 4
}

func putUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst[*offset:], v)
	*offset += 8
}
func getUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src[*offset:])
	*offset += 8
}

// Borsh strings and vectors carry a u32 length prefix. Their getters are
// bounds checked since the length comes from untrusted data.

func putString(dst []byte, v string, offset *int) {
	putUint32(dst, uint32(len(v)), offset)
	copy(dst[*offset:], v)
	*offset += len(v)
}
func getString(src []byte, dst *string, offset *int) bool {
	if len(src) < *offset+vecPrefixSize {
		return false
	}

	var length uint32
	getUint32(src, &length, offset)
	if uint64(len(src)) < uint64(*offset)+uint64(length) {
		return false
	}

	*dst = string(src[*offset : *offset+int(length)])
	*offset += int(length)
	return true
}

func putUint64Vec(dst []byte, v []uint64, offset *int) {
	putUint32(dst, uint32(len(v)), offset)
	for _, item := range v {
		putUint64(dst, item, offset)
	}
}
func getUint64Vec(src []byte, dst *[]uint64, offset *int) bool {
	if len(src) < *offset+vecPrefixSize {
		return false
	}

	var length uint32
	getUint32(src, &length, offset)
	if uint64(len(src)) < uint64(*offset)+8*uint64(length) {
		return false
	}

	*dst = make([]uint64, length)
	for i := range *dst {
		getUint64(src, &(*dst)[i], offset)
	}
	return true
}

func stringSize(v string) int {
	return vecPrefixSize + len(v)
}

func uint64VecSize(v []uint64) int {
	return vecPrefixSize + 8*len(v)
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
