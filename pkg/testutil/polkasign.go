package testutil

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Layr-Labs/ink-verifier/pkg/metadata"
	"github.com/Layr-Labs/ink-verifier/pkg/ss58"
	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Agreement is one record held by the polkasign simulator
type Agreement struct {
	Index   uint64
	Creator string
	Name    string
	Status  uint8
	Signers []string
}

func (a Agreement) value() map[string]any {
	signers := a.Signers
	if signers == nil {
		signers = []string{}
	}
	return map[string]any{
		"index":   a.Index,
		"creator": a.Creator,
		"name":    a.Name,
		"status":  a.Status,
		"signers": signers,
	}
}

// trap is a contract panic; the node reports it as ContractTrapped
type trap string

func (t trap) Error() string {
	return string(t)
}

const (
	trapUnwrapNone  trap = "panicked at 'called `Option::unwrap()` on a `None` value'"
	trapDivideZero  trap = "panicked at 'attempt to divide by zero'"
	pageResultOkMsg      = "success"
)

// PolkasignContract simulates the polkasign agreement contract. It decodes the
// call input against the contract metadata and answers like the deployed
// contract would for a dry run.
type PolkasignContract struct {
	// GasRequired is reported on every call; a fixed gas limit below it fails
	// the call with OutOfGas.
	GasRequired types.Weight

	md *metadata.Metadata

	mu         sync.Mutex
	agreements []Agreement
}

func NewPolkasignContract(agreements ...Agreement) (*PolkasignContract, error) {
	md, err := metadata.Parse(polkasignMetadata)
	if err != nil {
		return nil, err
	}
	return &PolkasignContract{
		GasRequired: types.Weight{RefTime: 1_250_000_000, ProofSize: 65_536},
		md:          md,
		agreements:  agreements,
	}, nil
}

func (c *PolkasignContract) AddAgreement(a Agreement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agreements = append(c.agreements, a)
}

func (c *PolkasignContract) Call(req types.ContractCallRequest) (*types.ContractExecResult, error) {
	res := &types.ContractExecResult{
		GasConsumed: types.Weight{RefTime: c.GasRequired.RefTime * 4 / 5, ProofSize: c.GasRequired.ProofSize},
		GasRequired: c.GasRequired,
	}

	if req.GasLimit != nil && *req.GasLimit < c.GasRequired.RefTime {
		res.GasConsumed = types.Weight{RefTime: *req.GasLimit}
		res.Result.Err = moduleError("OutOfGas")
		return res, nil
	}

	if len(req.InputData) < 4 {
		res.DebugMessage = "could not read selector"
		res.Result.Err = moduleError("ContractTrapped")
		return res, nil
	}

	var msg *metadata.Message
	for _, m := range c.md.Messages {
		if bytes.Equal(m.Selector[:], req.InputData[:4]) {
			msg = m
			break
		}
	}
	if msg == nil {
		res.DebugMessage = "unknown selector"
		res.Result.Err = moduleError("ContractTrapped")
		return res, nil
	}

	args, err := c.decodeArgs(msg, req.InputData[4:])
	if err != nil {
		res.DebugMessage = types.DebugMessage(err.Error())
		res.Result.Err = moduleError("ContractTrapped")
		return res, nil
	}

	out, err := c.dispatch(msg.Label, req.Origin, args)
	var panicked trap
	if errors.As(err, &panicked) {
		res.DebugMessage = types.DebugMessage(panicked)
		res.Result.Err = moduleError("ContractTrapped")
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := c.md.Registry.Encode(*msg.ReturnType, out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s output: %w", msg.Label, err)
	}
	res.Result.Ok = &types.ExecReturnValue{Data: data}
	return res, nil
}

func (c *PolkasignContract) decodeArgs(msg *metadata.Message, input []byte) ([]any, error) {
	args := make([]any, 0, len(msg.Args))
	for _, a := range msg.Args {
		v, n, err := c.md.Registry.DecodePrefix(a.Type, input)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.Label, err)
		}
		args = append(args, v)
		input = input[n:]
	}
	if len(input) != 0 {
		return nil, fmt.Errorf("%d trailing input bytes", len(input))
	}
	return args, nil
}

func (c *PolkasignContract) dispatch(label, origin string, args []any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch label {
	case "check_sign":
		// the contract reads the caller's account id as an ed25519 public key
		msg, _ := args[0].(hexutil.Bytes)
		sig, _ := args[1].(hexutil.Bytes)
		pub, _, err := ss58.Decode(origin)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return nil, trap("panicked at 'covert PublicKey err'")
		}
		return ed25519.Verify(pub, msg, sig), nil

	case "query_agreement_by_id":
		index, _ := args[0].(uint64)
		for _, a := range c.agreements {
			if a.Index == index {
				return a.value(), nil
			}
		}
		return nil, trapUnwrapNone

	case "query_agreement_by_creator", "query_agreement_by_collaborator":
		account, _ := args[0].(string)
		index, size := pageParams(args[1])
		var matched []Agreement
		for _, a := range c.agreements {
			if label == "query_agreement_by_creator" && sameAccount(a.Creator, account) {
				matched = append(matched, a)
			}
			if label == "query_agreement_by_collaborator" && containsAccount(a.Signers, account) {
				matched = append(matched, a)
			}
		}
		return page(matched, index, size)

	case "create_agreement":
		return uint64(len(c.agreements) + 1), nil
	}
	return nil, fmt.Errorf("polkasign simulator has no handler for %s", label)
}

// page mirrors the contract's page helper. An account without records gets
// the all-zero result whatever page was asked for.
func page(all []Agreement, index, size uint64) (map[string]any, error) {
	result := map[string]any{
		"success":    true,
		"err":        pageResultOkMsg,
		"total":      uint64(0),
		"pages":      uint64(0),
		"page_index": uint64(0),
		"page_size":  uint64(0),
		"data":       []any{},
	}
	if len(all) == 0 {
		return result, nil
	}
	if size == 0 {
		return nil, trapDivideZero
	}

	total := uint64(len(all))
	result["total"] = total
	result["pages"] = (total + size - 1) / size
	result["page_index"] = index
	result["page_size"] = size

	start := index * size
	if start >= total {
		return result, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	data := make([]any, 0, end-start)
	for _, a := range all[start:end] {
		data = append(data, a.value())
	}
	result["data"] = data
	return result, nil
}

func pageParams(v any) (uint64, uint64) {
	m, _ := v.(map[string]any)
	index, _ := m["page_index"].(uint64)
	size, _ := m["page_size"].(uint64)
	return index, size
}

func sameAccount(a, b string) bool {
	pa, _, errA := ss58.Decode(a)
	pb, _, errB := ss58.Decode(b)
	return errA == nil && errB == nil && bytes.Equal(pa, pb)
}

func containsAccount(list []string, account string) bool {
	for _, a := range list {
		if sameAccount(a, account) {
			return true
		}
	}
	return false
}

func moduleError(name string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"Module": map[string]any{"index": 8, "error": name},
	})
	return raw
}
