package verifier

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/ink-verifier/pkg/identity"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Step arguments may reference values only known once the identity exists.
const (
	PlaceholderSigner    = "$signer"
	PlaceholderMessage   = "$message"
	PlaceholderSignature = "$signature"
)

type placeholders map[string]string

func newPlaceholders(signer string, signed *identity.SignedMessage) placeholders {
	return placeholders{
		PlaceholderSigner:    signer,
		PlaceholderMessage:   hexutil.Encode(signed.Message),
		PlaceholderSignature: hexutil.Encode(signed.Signature),
	}
}

// resolve returns a copy of args with every exact placeholder string replaced.
// Nested lists and maps are walked; config args are never modified.
func (p placeholders) resolve(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = p.value(a)
	}
	return out
}

func (p placeholders) value(v any) any {
	switch val := v.(type) {
	case string:
		if sub, ok := p[val]; ok {
			return sub
		}
		return val
	case []any:
		return p.resolve(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = p.value(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = p.value(item)
		}
		return out
	default:
		return v
	}
}

func encodeOutput(v any) (json.RawMessage, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to render query output: %w", err)
	}
	return out, nil
}
