package scale

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/Layr-Labs/ink-verifier/pkg/ss58"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortInput, n, d.pos, d.remaining())
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

// Decode decodes data as type id. Trailing bytes are an error.
//
// Values come back as: bool, string, uint64 / int64 for integers up to 64 bits,
// *big.Int above that, hexutil.Bytes for byte arrays and byte vectors, SS58
// strings for AccountId, map[string]any for named composites, []any for lists
// and tuples, map[string]any{variant: payload} for enums and the bare variant
// name for fieldless ones. Option decodes to nil or its payload.
func (r *Registry) Decode(id TypeID, data []byte) (any, error) {
	d := &decoder{data: data}
	v, err := r.decode(d, id, 0)
	if err != nil {
		return nil, err
	}
	if d.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidValue, d.remaining())
	}
	return v, nil
}

// DecodePrefix decodes one value of type id from the front of data and returns
// the number of bytes consumed.
func (r *Registry) DecodePrefix(id TypeID, data []byte) (any, int, error) {
	d := &decoder{data: data}
	v, err := r.decode(d, id, 0)
	if err != nil {
		return nil, 0, err
	}
	return v, d.pos, nil
}

func (r *Registry) decode(d *decoder, id TypeID, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: type nesting too deep", ErrInvalidValue)
	}
	def, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}

	switch def.Kind {
	case KindPrimitive:
		return decodePrimitive(d, def.Primitive)
	case KindCompact:
		n, err := d.compact()
		if err != nil {
			return nil, err
		}
		if n.IsUint64() {
			return n.Uint64(), nil
		}
		return n, nil
	case KindSequence:
		n, err := d.compactLen()
		if err != nil {
			return nil, err
		}
		return r.decodeList(d, def.Elem, n, depth)
	case KindArray:
		return r.decodeList(d, def.Elem, int(def.Len), depth)
	case KindTuple:
		if len(def.Tuple) == 0 {
			return nil, nil
		}
		out := make([]any, len(def.Tuple))
		for i, elem := range def.Tuple {
			if out[i], err = r.decode(d, elem, depth+1); err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindComposite:
		if r.isAccountID(def) {
			raw, err := d.take(32)
			if err != nil {
				return nil, err
			}
			return ss58.Encode(raw, r.prefix)
		}
		return r.decodeFields(d, def.Fields, depth)
	case KindVariant:
		return r.decodeVariant(d, def, depth)
	default:
		return nil, fmt.Errorf("type %d: cannot decode %s", id, def.Kind)
	}
}

func decodePrimitive(d *decoder, prim string) (any, error) {
	switch prim {
	case "bool":
		b, err := d.take(1)
		if err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, fmt.Errorf("%w: bool byte %#x", ErrInvalidValue, b[0])
		}
	case "str":
		n, err := d.compactLen()
		if err != nil {
			return nil, err
		}
		raw, err := d.take(n)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("%w: invalid utf-8 string", ErrInvalidValue)
		}
		return string(raw), nil
	case "char":
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return string(rune(binary.LittleEndian.Uint32(raw))), nil
	}

	width := primitiveWidths[prim]
	raw, err := d.take(width)
	if err != nil {
		return nil, err
	}
	signed := prim[0] == 'i'

	if width <= 8 {
		var u uint64
		for i := width - 1; i >= 0; i-- {
			u = u<<8 | uint64(raw[i])
		}
		if !signed {
			return u, nil
		}
		shift := uint(64 - width*8)
		return int64(u<<shift) >> shift, nil
	}

	n := fromLittleEndian(raw)
	if signed && raw[width-1]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(width*8)))
	}
	return n, nil
}

func (r *Registry) decodeList(d *decoder, elem TypeID, n int, depth int) (any, error) {
	if r.isByte(elem) {
		raw, err := d.take(n)
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(append([]byte{}, raw...)), nil
	}

	// fixed array lengths come from metadata, not the input; size the buffer
	// by what the input could hold
	capacity := n
	if capacity > d.remaining() {
		capacity = d.remaining()
	}
	out := make([]any, 0, capacity)
	for i := 0; i < n; i++ {
		v, err := r.decode(d, elem, depth+1)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Registry) decodeFields(d *decoder, fields []Field, depth int) (any, error) {
	switch {
	case len(fields) == 0:
		return nil, nil
	case len(fields) == 1 && fields[0].Name == "":
		return r.decode(d, fields[0].Type, depth+1)
	case namedFields(fields):
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			v, err := r.decode(d, f.Type, depth+1)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			out[f.Name] = v
		}
		return out, nil
	default:
		out := make([]any, len(fields))
		for i, f := range fields {
			v, err := r.decode(d, f.Type, depth+1)
			if err != nil {
				return nil, fmt.Errorf("field %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}
}

func (r *Registry) decodeVariant(d *decoder, def *TypeDef, depth int) (any, error) {
	tag, err := d.take(1)
	if err != nil {
		return nil, err
	}
	for _, variant := range def.Variants {
		if variant.Index != tag[0] {
			continue
		}
		payload, err := r.decodeFields(d, variant.Fields, depth)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", variant.Name, err)
		}
		if isOption(def) {
			return payload, nil
		}
		if len(variant.Fields) == 0 {
			return variant.Name, nil
		}
		return map[string]any{variant.Name: payload}, nil
	}
	return nil, fmt.Errorf("%w: %s has no variant index %d", ErrInvalidValue, def, tag[0])
}
