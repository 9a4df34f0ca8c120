package types

import (
	"encoding/json"
	"time"
)

// NodeInfo identifies the node a session is attached to
type NodeInfo struct {
	Chain   string `json:"chain"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Outcome classifies how a query step ended
type Outcome string

const (
	OutcomeOk           Outcome = "ok"
	OutcomeRemoteFault  Outcome = "remote_fault"
	OutcomeDecodeFault  Outcome = "decode_fault"
	OutcomeNodeRejected Outcome = "node_rejected"
)

func (o Outcome) Failed() bool {
	return o != OutcomeOk
}

// PageSummary describes a paginated result and whether its length matches the
// window arithmetic.
type PageSummary struct {
	Total      uint64 `json:"total"`
	Pages      uint64 `json:"pages"`
	PageIndex  uint64 `json:"pageIndex"`
	PageSize   uint64 `json:"pageSize"`
	Returned   int    `json:"returned"`
	Expected   int    `json:"expected"`
	Consistent bool   `json:"consistent"`
}

// StepReport is the recorded result of one query step
type StepReport struct {
	Index       int             `json:"index"`
	Name        string          `json:"name"`
	Method      string          `json:"method"`
	Outcome     Outcome         `json:"outcome"`
	GasConsumed Weight          `json:"gasConsumed"`
	GasRequired Weight          `json:"gasRequired"`
	Output      json.RawMessage `json:"output,omitempty"`
	Fault       string          `json:"fault,omitempty"`
	Debug       string          `json:"debug,omitempty"`
	Page        *PageSummary    `json:"page,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	Duration    time.Duration   `json:"duration"`
}

// RunReport is the signed record of a complete verification run
type RunReport struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Endpoint   string        `json:"endpoint"`
	Contract   string        `json:"contract"`
	Signer     string        `json:"signer"`
	Algorithm  string        `json:"algorithm"`
	Node       NodeInfo      `json:"node"`
	Steps      []*StepReport `json:"steps"`
	Root       []byte        `json:"root"`
	Signature  []byte        `json:"signature"`
}

// Failed counts steps that did not end in OutcomeOk
func (r *RunReport) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome.Failed() {
			n++
		}
	}
	return n
}
