package testutil

import (
	"encoding/json"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/types"
	"github.com/google/uuid"
)

// SampleReport builds a two-step run report for persistence tests.
func SampleReport(startedAt time.Time) *types.RunReport {
	return &types.RunReport{
		RunID:      uuid.NewString(),
		StartedAt:  startedAt.UTC(),
		FinishedAt: startedAt.Add(1500 * time.Millisecond).UTC(),
		Endpoint:   "ws://127.0.0.1:9944",
		Contract:   ContractAddress,
		Signer:     "5FA9nQDVg267DEd8m1ZypXLBnvN7SFxYwV7ndqSYGiN9TTpu",
		Algorithm:  "ed25519",
		Node:       types.NodeInfo{Chain: "Development", Name: "Canvas Node", Version: "0.1.0-mock"},
		Steps: []*types.StepReport{
			{
				Index:       0,
				Name:        "check_sign",
				Method:      "check_sign",
				Outcome:     types.OutcomeOk,
				GasConsumed: types.Weight{RefTime: 1_000_000, ProofSize: 4096},
				GasRequired: types.Weight{RefTime: 1_250_000, ProofSize: 65536},
				Output:      json.RawMessage(`true`),
				StartedAt:   startedAt.UTC(),
				Duration:    12 * time.Millisecond,
			},
			{
				Index:       1,
				Name:        "missing agreement",
				Method:      "query_agreement_by_id",
				Outcome:     types.OutcomeRemoteFault,
				GasConsumed: types.Weight{RefTime: 900_000},
				GasRequired: types.Weight{RefTime: 1_250_000},
				Fault:       `dispatch_error: {"Module":{"index":8,"error":"ContractTrapped"}}`,
				StartedAt:   startedAt.Add(20 * time.Millisecond).UTC(),
				Duration:    9 * time.Millisecond,
			},
		},
		Root:      make([]byte, 32),
		Signature: make([]byte, 64),
	}
}
