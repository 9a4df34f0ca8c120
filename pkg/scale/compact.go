package scale

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

var (
	compactSingleMax = big.NewInt(1<<6 - 1)
	compactTwoMax    = big.NewInt(1<<14 - 1)
	compactFourMax   = big.NewInt(1<<30 - 1)
)

// EncodeCompact returns the SCALE compact encoding of a non-negative integer.
func EncodeCompact(n *big.Int) ([]byte, error) {
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%w: compact of negative %s", ErrInvalidValue, n)
	}

	switch {
	case n.Cmp(compactSingleMax) <= 0:
		return []byte{byte(n.Uint64() << 2)}, nil
	case n.Cmp(compactTwoMax) <= 0:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, uint16(n.Uint64()<<2)|0b01)
		return out, nil
	case n.Cmp(compactFourMax) <= 0:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, uint32(n.Uint64()<<2)|0b10)
		return out, nil
	}

	le := littleEndian(n)
	if len(le) > 67 {
		return nil, fmt.Errorf("%w: compact value too large", ErrInvalidValue)
	}
	if len(le) < 4 {
		le = append(le, make([]byte, 4-len(le))...)
	}
	return append([]byte{byte(len(le)-4)<<2 | 0b11}, le...), nil
}

// EncodeCompactUint is EncodeCompact for lengths and other machine integers.
func EncodeCompactUint(n uint64) []byte {
	out, _ := EncodeCompact(new(big.Int).SetUint64(n))
	return out
}

func (d *decoder) compact() (*big.Int, error) {
	first, err := d.take(1)
	if err != nil {
		return nil, err
	}

	switch first[0] & 0b11 {
	case 0b00:
		return big.NewInt(int64(first[0] >> 2)), nil
	case 0b01:
		next, err := d.take(1)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint16([]byte{first[0], next[0]}) >> 2
		return big.NewInt(int64(v)), nil
	case 0b10:
		next, err := d.take(3)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint32(append([]byte{first[0]}, next...)) >> 2
		return big.NewInt(int64(v)), nil
	default:
		size := int(first[0]>>2) + 4
		raw, err := d.take(size)
		if err != nil {
			return nil, err
		}
		return fromLittleEndian(raw), nil
	}
}

func (d *decoder) compactLen() (int, error) {
	n, err := d.compact()
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() > int64(d.remaining()) {
		return 0, fmt.Errorf("%w: length %s exceeds remaining %d bytes", ErrShortInput, n, d.remaining())
	}
	return int(n.Int64()), nil
}

func littleEndian(n *big.Int) []byte {
	be := n.Bytes()
	le := make([]byte, len(be))
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	return le
}

func fromLittleEndian(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}
