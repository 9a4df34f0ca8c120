package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ContractCallRequest is the single parameter of the contracts_call RPC
type ContractCallRequest struct {
	Origin              string        `json:"origin"`
	Dest                string        `json:"dest"`
	Value               *big.Int      `json:"value"`
	GasLimit            *uint64       `json:"gasLimit"`
	StorageDepositLimit *big.Int      `json:"storageDepositLimit"`
	InputData           hexutil.Bytes `json:"inputData"`
}

// Weight is execution weight. Older nodes report a bare number, newer ones an
// object with refTime and proofSize.
type Weight struct {
	RefTime   uint64
	ProofSize uint64
}

func (w *Weight) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*w = Weight{}
		return nil
	}
	if data[0] != '{' {
		n, err := unmarshalNumberOrHex(data)
		if err != nil {
			return fmt.Errorf("invalid weight %s: %w", string(data), err)
		}
		*w = Weight{RefTime: n}
		return nil
	}

	var obj struct {
		RefTime    json.RawMessage `json:"refTime"`
		RefTimeS   json.RawMessage `json:"ref_time"`
		ProofSize  json.RawMessage `json:"proofSize"`
		ProofSizeS json.RawMessage `json:"proof_size"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	var err error
	if w.RefTime, err = firstNumber(obj.RefTime, obj.RefTimeS); err != nil {
		return fmt.Errorf("invalid refTime: %w", err)
	}
	if w.ProofSize, err = firstNumber(obj.ProofSize, obj.ProofSizeS); err != nil {
		return fmt.Errorf("invalid proofSize: %w", err)
	}
	return nil
}

func (w Weight) MarshalJSON() ([]byte, error) {
	if w.ProofSize == 0 {
		return json.Marshal(w.RefTime)
	}
	return json.Marshal(map[string]uint64{"refTime": w.RefTime, "proofSize": w.ProofSize})
}

// ReturnFlags is the ink! return flag word; bit 0 means the call reverted.
type ReturnFlags uint32

const FlagRevert ReturnFlags = 1

func (f ReturnFlags) Reverted() bool {
	return f&FlagRevert != 0
}

func (f *ReturnFlags) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Bits uint32 `json:"bits"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*f = ReturnFlags(obj.Bits)
		return nil
	}
	n, err := unmarshalNumberOrHex(data)
	if err != nil {
		return fmt.Errorf("invalid flags %s: %w", string(data), err)
	}
	*f = ReturnFlags(n)
	return nil
}

type ExecReturnValue struct {
	Flags ReturnFlags   `json:"flags"`
	Data  hexutil.Bytes `json:"data"`
}

// ExecResult holds exactly one of Ok or Err.
type ExecResult struct {
	Ok  *ExecReturnValue `json:"Ok,omitempty"`
	Err json.RawMessage  `json:"Err,omitempty"`
}

func (r *ExecResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ExecResult{}
	for key, value := range raw {
		switch key {
		case "Ok", "ok", "success":
			r.Ok = &ExecReturnValue{}
			if err := json.Unmarshal(value, r.Ok); err != nil {
				return fmt.Errorf("invalid Ok result: %w", err)
			}
		case "Err", "err", "error":
			r.Err = value
		}
	}
	if (r.Ok == nil) == (r.Err == nil) {
		return fmt.Errorf("exec result must hold exactly one of Ok or Err")
	}
	return nil
}

// DebugMessage is the node's debug buffer. It arrives either as text or as hex
// encoded bytes depending on the node version.
type DebugMessage string

func (m *DebugMessage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if raw, err := hexutil.Decode(s); err == nil && utf8.Valid(raw) {
		s = string(raw)
	}
	*m = DebugMessage(s)
	return nil
}

// ContractExecResult is the response of contracts_call
type ContractExecResult struct {
	GasConsumed    Weight          `json:"gasConsumed"`
	GasRequired    Weight          `json:"gasRequired"`
	StorageDeposit json.RawMessage `json:"storageDeposit,omitempty"`
	DebugMessage   DebugMessage    `json:"debugMessage"`
	Result         ExecResult      `json:"result"`
}

// NodeHealth is the system_health response
type NodeHealth struct {
	Peers           uint64 `json:"peers"`
	IsSyncing       bool   `json:"isSyncing"`
	ShouldHavePeers bool   `json:"shouldHavePeers"`
}

func firstNumber(candidates ...json.RawMessage) (uint64, error) {
	for _, c := range candidates {
		if len(c) > 0 && string(c) != "null" {
			return unmarshalNumberOrHex(c)
		}
	}
	return 0, nil
}

func unmarshalNumberOrHex(data []byte) (uint64, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return hexutil.DecodeUint64(s)
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, err
	}
	return n, nil
}
