package contract

import (
	"fmt"
	"strconv"
)

// GasLimit is the gas ceiling sent with a query: a fixed amount or unbounded.
// The zero value is unbounded.
type GasLimit struct {
	limit   uint64
	bounded bool
}

func FixedGas(limit uint64) GasLimit {
	return GasLimit{limit: limit, bounded: true}
}

func UnboundedGas() GasLimit {
	return GasLimit{}
}

// GasFromInt maps a signed amount to a ceiling; any negative value means unbounded.
func GasFromInt(n int64) GasLimit {
	if n < 0 {
		return UnboundedGas()
	}
	return FixedGas(uint64(n))
}

func (g GasLimit) Unbounded() bool {
	return !g.bounded
}

// Limit returns the fixed ceiling, or false when unbounded.
func (g GasLimit) Limit() (uint64, bool) {
	return g.limit, g.bounded
}

func (g GasLimit) String() string {
	if !g.bounded {
		return "unbounded"
	}
	return strconv.FormatUint(g.limit, 10)
}

func (g GasLimit) request() *uint64 {
	if !g.bounded {
		return nil
	}
	limit := g.limit
	return &limit
}

// Window selects a page of an enumerable query. The pair is passed to the
// contract as its trailing page argument; polkasign reads it as
// (page_index, page_size).
type Window struct {
	Offset uint64
	Limit  uint64
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d]", w.Offset, w.Limit)
}
