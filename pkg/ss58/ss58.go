// Package ss58 encodes and decodes Substrate SS58 account addresses.
package ss58

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

// GenericPrefix is the network identifier of generic Substrate chains ("5..." addresses).
const GenericPrefix uint16 = 42

const checksumLen = 2

var (
	checksumPreimage = []byte("SS58PRE")

	ErrInvalidAddress = errors.New("invalid ss58 address")
)

// Encode renders a 32-byte account id (or 33-byte compressed ecdsa key) as an SS58 string.
func Encode(pub []byte, prefix uint16) (string, error) {
	if len(pub) != 32 && len(pub) != 33 {
		return "", fmt.Errorf("unsupported public key length %d", len(pub))
	}
	if prefix > 16383 {
		return "", fmt.Errorf("ss58 prefix %d out of range", prefix)
	}

	payload := append(encodePrefix(prefix), pub...)
	sum := checksum(payload)
	return base58.Encode(append(payload, sum[:checksumLen]...)), nil
}

// Decode returns the account bytes and network prefix encoded in addr.
func Decode(addr string) ([]byte, uint16, error) {
	data := base58.Decode(addr)
	if len(data) < 1+32+checksumLen {
		return nil, 0, fmt.Errorf("%w: %q too short", ErrInvalidAddress, addr)
	}

	prefixLen := 1
	prefix := uint16(data[0])
	if data[0]&0x40 != 0 {
		prefixLen = 2
		lower := (data[0] << 2) | (data[1] >> 6)
		upper := data[1] & 0x3f
		prefix = uint16(lower) | uint16(upper)<<8
	} else if data[0] > 63 {
		return nil, 0, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidAddress, data[0])
	}

	body := data[:len(data)-checksumLen]
	pub := body[prefixLen:]
	if len(pub) != 32 && len(pub) != 33 {
		return nil, 0, fmt.Errorf("%w: unexpected account length %d", ErrInvalidAddress, len(pub))
	}

	sum := checksum(body)
	if !bytes.Equal(sum[:checksumLen], data[len(data)-checksumLen:]) {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return append([]byte{}, pub...), prefix, nil
}

// MustEncode is Encode for inputs already known to be well formed.
func MustEncode(pub []byte, prefix uint16) string {
	s, err := Encode(pub, prefix)
	if err != nil {
		panic(err)
	}
	return s
}

func encodePrefix(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	first := byte((prefix&0x00fc)>>2) | 0x40
	second := byte(prefix>>8) | byte(prefix&0x03)<<6
	return []byte{first, second}
}

func checksum(payload []byte) [64]byte {
	return blake2b.Sum512(append(append([]byte{}, checksumPreimage...), payload...))
}
