package scale

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// toBigInt accepts the integer shapes produced by YAML/JSON decoding and by Go callers.
func toBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, n)
		}
		b, _ := big.NewFloat(n).Int(nil)
		return b, nil
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("%w: nil integer", ErrInvalidValue)
		}
		return new(big.Int).Set(n), nil
	case big.Int:
		return new(big.Int).Set(&n), nil
	case json.Number:
		return parseBigInt(string(n))
	case string:
		return parseBigInt(n)
	default:
		return nil, fmt.Errorf("%w: %T is not an integer", ErrInvalidValue, v)
	}
}

func parseBigInt(s string) (*big.Int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	s = strings.ReplaceAll(s, ",", "")
	b, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, s)
	}
	return b, nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %v is not a bool", ErrInvalidValue, v)
}

// toBytes accepts byte slices and 0x-prefixed hex strings.
func toBytes(v any) ([]byte, bool, error) {
	switch b := v.(type) {
	case []byte:
		return b, true, nil
	case hexutil.Bytes:
		return b, true, nil
	case string:
		if strings.HasPrefix(b, "0x") || strings.HasPrefix(b, "0X") {
			raw, err := hexutil.Decode("0x" + b[2:])
			if err != nil {
				return nil, true, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			return raw, true, nil
		}
	}
	return nil, false, nil
}

// toList flattens any slice or array into []any.
func toList(v any) ([]any, error) {
	if l, ok := v.([]any); ok {
		return l, nil
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("%w: %T is not a list", ErrInvalidValue, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// toMap accepts string-keyed maps, including the map[any]any shape some YAML decoders produce.
func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// normalizeName folds snake_case and camelCase spellings onto one key.
func normalizeName(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

// lookupField finds name in m by exact key, then by normalized key.
func lookupField(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	want := normalizeName(name)
	for k, v := range m {
		if normalizeName(k) == want {
			return v, true
		}
	}
	return nil, false
}
