package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Layr-Labs/ink-verifier/pkg/metadata"
	"github.com/Layr-Labs/ink-verifier/pkg/scale"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrDecodeFailed = errors.New("failed to decode contract response")

type FaultKind string

const (
	// FaultDispatch is a pallet-level failure such as OutOfGas or ContractTrapped
	FaultDispatch FaultKind = "dispatch_error"
	// FaultReverted means the contract set the revert flag
	FaultReverted FaultKind = "reverted"
	// FaultContract is an Err value returned by the message itself
	FaultContract FaultKind = "contract_error"
)

// Fault is an error reported by the remote side for a query that otherwise
// completed. It is a step outcome, not a client failure.
type Fault struct {
	Kind    FaultKind
	Message string
	Detail  any
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// DecodeError means the node answered but the answer could not be decoded
// against the contract interface.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDecodeFailed, e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecodeFailed
}

// QueryResult holds exactly one of Ok or Err. Ok may itself be nil for
// messages without a return value.
type QueryResult struct {
	GasConsumed  types.Weight
	GasRequired  types.Weight
	Ok           any
	Err          *Fault
	DebugMessage string
}

func (r *QueryResult) IsOk() bool {
	return r.Err == nil
}

func (b *Binding) interpret(msg *metadata.Message, res *types.ContractExecResult) (*QueryResult, error) {
	qr := &QueryResult{
		GasConsumed:  res.GasConsumed,
		GasRequired:  res.GasRequired,
		DebugMessage: string(res.DebugMessage),
	}

	if res.Result.Err != nil {
		qr.Err = &Fault{Kind: FaultDispatch, Message: compactJSON(res.Result.Err), Detail: res.Result.Err}
		return qr, nil
	}
	if res.Result.Ok == nil {
		return nil, &DecodeError{Method: msg.Label, Err: fmt.Errorf("response has no result")}
	}

	data := []byte(res.Result.Ok.Data)
	if res.Result.Ok.Flags.Reverted() {
		fault := &Fault{Kind: FaultReverted, Message: hexutil.Encode(data), Detail: hexutil.Bytes(data)}
		if msg.ReturnType != nil {
			if v, err := b.registry.Decode(*msg.ReturnType, data); err == nil {
				fault.Detail = v
				fault.Message = describe(v)
			}
		}
		qr.Err = fault
		return qr, nil
	}

	if msg.ReturnType == nil {
		if len(data) != 0 {
			return nil, &DecodeError{Method: msg.Label, Err: fmt.Errorf("%d bytes returned by a message without a return type", len(data))}
		}
		return qr, nil
	}

	v, err := b.registry.Decode(*msg.ReturnType, data)
	if err != nil {
		return nil, &DecodeError{Method: msg.Label, Err: err}
	}

	v, fault := b.unwrapResult(*msg.ReturnType, v)
	if fault != nil {
		qr.Err = fault
		return qr, nil
	}
	qr.Ok = v
	return qr, nil
}

// unwrapResult peels Result<T, E> layers, including the LangError wrapper newer
// ink! versions put around every return value.
func (b *Binding) unwrapResult(id scale.TypeID, v any) (any, *Fault) {
	for {
		def, err := b.registry.Lookup(id)
		if err != nil || !isResult(def) {
			return v, nil
		}
		m, ok := v.(map[string]any)
		if !ok {
			return v, nil
		}
		if payload, ok := m["Err"]; ok {
			return nil, &Fault{Kind: FaultContract, Message: describe(payload), Detail: payload}
		}
		v = m["Ok"]
		id = okType(def)
	}
}

func isResult(def *scale.TypeDef) bool {
	if def.Kind != scale.KindVariant || len(def.Variants) != 2 {
		return false
	}
	if len(def.Path) == 0 || def.Path[len(def.Path)-1] != "Result" {
		return false
	}
	for _, v := range def.Variants {
		if v.Name == "Ok" && len(v.Fields) == 1 {
			return true
		}
	}
	return false
}

func okType(def *scale.TypeDef) scale.TypeID {
	for _, v := range def.Variants {
		if v.Name == "Ok" {
			return v.Fields[0].Type
		}
	}
	return 0
}

// describe renders a decoded value for log lines and fault messages.
func describe(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "()"
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// SummarizePage recognises page-result shaped values and checks the returned
// length against the page arithmetic: start = index*size, end = min(start+size, total).
// An empty result (total 0, no data) is consistent for any window, since the
// contract answers accounts without records with an all-zero page.
func SummarizePage(value any, window *Window) (*types.PageSummary, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	total, ok1 := m["total"].(uint64)
	pages, ok2 := m["pages"].(uint64)
	index, ok3 := m["page_index"].(uint64)
	size, ok4 := m["page_size"].(uint64)
	data, ok5 := m["data"].([]any)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return nil, false
	}

	expected := uint64(0)
	if start := index * size; start < total {
		end := start + size
		if end > total {
			end = total
		}
		expected = end - start
	}

	summary := &types.PageSummary{
		Total:     total,
		Pages:     pages,
		PageIndex: index,
		PageSize:  size,
		Returned:  len(data),
		Expected:  int(expected),
	}
	summary.Consistent = summary.Returned == summary.Expected
	if window != nil && (window.Offset != index || window.Limit != size) {
		summary.Consistent = false
	}
	if total == 0 && len(data) == 0 {
		summary.Consistent = true
	}
	return summary, true
}
