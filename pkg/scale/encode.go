package scale

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/Layr-Labs/ink-verifier/pkg/ss58"
)

// Encode returns the SCALE encoding of v as type id.
func (r *Registry) Encode(id TypeID, v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.encode(&buf, id, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const maxDepth = 64

func (r *Registry) encode(buf *bytes.Buffer, id TypeID, v any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: type nesting too deep", ErrInvalidValue)
	}
	def, err := r.Lookup(id)
	if err != nil {
		return err
	}

	switch def.Kind {
	case KindPrimitive:
		return encodePrimitive(buf, def.Primitive, v)
	case KindCompact:
		n, err := toBigInt(v)
		if err != nil {
			return err
		}
		enc, err := EncodeCompact(n)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	case KindSequence:
		return r.encodeSequence(buf, def, v, depth)
	case KindArray:
		return r.encodeArray(buf, def, v, depth)
	case KindTuple:
		return r.encodeTuple(buf, def, v, depth)
	case KindComposite:
		return r.encodeComposite(buf, def, v, depth)
	case KindVariant:
		return r.encodeVariant(buf, def, v, depth)
	default:
		return fmt.Errorf("type %d: cannot encode %s", id, def.Kind)
	}
}

func encodePrimitive(buf *bytes.Buffer, prim string, v any) error {
	switch prim {
	case "bool":
		b, err := toBool(v)
		if err != nil {
			return err
		}
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case "str":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: %T is not a string", ErrInvalidValue, v)
		}
		buf.Write(EncodeCompactUint(uint64(len(s))))
		buf.WriteString(s)
		return nil
	case "char":
		s, ok := v.(string)
		if !ok || utf8.RuneCountInString(s) != 1 {
			return fmt.Errorf("%w: char needs a single-rune string", ErrInvalidValue)
		}
		r, _ := utf8.DecodeRuneInString(s)
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, uint32(r))
		buf.Write(out)
		return nil
	}

	width := primitiveWidths[prim]
	n, err := toBigInt(v)
	if err != nil {
		return err
	}
	signed := prim[0] == 'i'
	bits := uint(width * 8)

	if signed {
		limit := new(big.Int).Lsh(big.NewInt(1), bits-1)
		if n.Cmp(new(big.Int).Neg(limit)) < 0 || n.Cmp(limit) >= 0 {
			return fmt.Errorf("%w: %s overflows %s", ErrInvalidValue, n, prim)
		}
		if n.Sign() < 0 {
			n = new(big.Int).Add(n, new(big.Int).Lsh(big.NewInt(1), bits))
		}
	} else if n.Sign() < 0 || n.BitLen() > int(bits) {
		return fmt.Errorf("%w: %s overflows %s", ErrInvalidValue, n, prim)
	}

	le := littleEndian(n)
	buf.Write(le)
	buf.Write(make([]byte, width-len(le)))
	return nil
}

func (r *Registry) encodeSequence(buf *bytes.Buffer, def *TypeDef, v any, depth int) error {
	if r.isByte(def.Elem) {
		if raw, ok, err := toBytes(v); ok {
			if err != nil {
				return err
			}
			buf.Write(EncodeCompactUint(uint64(len(raw))))
			buf.Write(raw)
			return nil
		}
	}

	items, err := toList(v)
	if err != nil {
		return err
	}
	buf.Write(EncodeCompactUint(uint64(len(items))))
	for i, item := range items {
		if err := r.encode(buf, def.Elem, item, depth+1); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (r *Registry) encodeArray(buf *bytes.Buffer, def *TypeDef, v any, depth int) error {
	if r.isByte(def.Elem) {
		if raw, ok, err := toBytes(v); ok {
			if err != nil {
				return err
			}
			if uint32(len(raw)) != def.Len {
				return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidValue, def.Len, len(raw))
			}
			buf.Write(raw)
			return nil
		}
	}

	items, err := toList(v)
	if err != nil {
		return err
	}
	if uint32(len(items)) != def.Len {
		return fmt.Errorf("%w: expected %d elements, got %d", ErrInvalidValue, def.Len, len(items))
	}
	for i, item := range items {
		if err := r.encode(buf, def.Elem, item, depth+1); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (r *Registry) encodeTuple(buf *bytes.Buffer, def *TypeDef, v any, depth int) error {
	if len(def.Tuple) == 0 {
		return nil
	}
	items, err := toList(v)
	if err != nil {
		return err
	}
	if len(items) != len(def.Tuple) {
		return fmt.Errorf("%w: tuple of %d, got %d values", ErrInvalidValue, len(def.Tuple), len(items))
	}
	for i, elem := range def.Tuple {
		if err := r.encode(buf, elem, items[i], depth+1); err != nil {
			return fmt.Errorf("tuple element %d: %w", i, err)
		}
	}
	return nil
}

func (r *Registry) encodeComposite(buf *bytes.Buffer, def *TypeDef, v any, depth int) error {
	if r.isAccountID(def) {
		if s, ok := v.(string); ok && len(s) > 0 && s[0] != '0' {
			account, _, err := ss58.Decode(s)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			if len(account) != 32 {
				return fmt.Errorf("%w: account id must be 32 bytes", ErrInvalidValue)
			}
			buf.Write(account)
			return nil
		}
	}

	return r.encodeFields(buf, def.Fields, v, depth)
}

func (r *Registry) encodeFields(buf *bytes.Buffer, fields []Field, v any, depth int) error {
	if len(fields) == 0 {
		return nil
	}

	// newtype wrappers take the inner value directly
	if len(fields) == 1 {
		if m, ok := toMap(v); ok && fields[0].Name != "" {
			if inner, found := lookupField(m, fields[0].Name); found {
				return r.encode(buf, fields[0].Type, inner, depth+1)
			}
		}
		return r.encode(buf, fields[0].Type, v, depth+1)
	}

	if m, ok := toMap(v); ok {
		if !namedFields(fields) {
			return fmt.Errorf("%w: unnamed fields need a list", ErrInvalidValue)
		}
		for _, f := range fields {
			fv, found := lookupField(m, f.Name)
			if !found {
				return fmt.Errorf("%w: missing field %q", ErrInvalidValue, f.Name)
			}
			if err := r.encode(buf, f.Type, fv, depth+1); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		return nil
	}

	items, err := toList(v)
	if err != nil {
		return err
	}
	if len(items) != len(fields) {
		return fmt.Errorf("%w: expected %d fields, got %d values", ErrInvalidValue, len(fields), len(items))
	}
	for i, f := range fields {
		if err := r.encode(buf, f.Type, items[i], depth+1); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return nil
}

func (r *Registry) encodeVariant(buf *bytes.Buffer, def *TypeDef, v any, depth int) error {
	var (
		name  string
		inner any
	)

	switch val := v.(type) {
	case nil:
		if !isOption(def) {
			return fmt.Errorf("%w: nil for non-option variant %s", ErrInvalidValue, def)
		}
		name = "None"
	case string:
		name = val
	default:
		m, ok := toMap(v)
		if !ok {
			if !isOption(def) {
				return fmt.Errorf("%w: %T for variant %s", ErrInvalidValue, v, def)
			}
			name, inner = "Some", v
			break
		}
		if len(m) != 1 {
			return fmt.Errorf("%w: variant value needs exactly one key", ErrInvalidValue)
		}
		for k, val := range m {
			name, inner = k, val
		}
	}

	for _, variant := range def.Variants {
		if variant.Name != name && normalizeName(variant.Name) != normalizeName(name) {
			continue
		}
		buf.WriteByte(variant.Index)
		return r.encodeFields(buf, variant.Fields, inner, depth)
	}

	// a bare value for an Option is its Some payload
	if isOption(def) && v != nil {
		for _, variant := range def.Variants {
			if variant.Name == "Some" {
				buf.WriteByte(variant.Index)
				return r.encodeFields(buf, variant.Fields, v, depth)
			}
		}
	}
	return fmt.Errorf("%w: %s has no variant %q", ErrInvalidValue, def, name)
}
