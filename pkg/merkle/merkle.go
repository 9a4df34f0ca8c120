package merkle

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Layr-Labs/ink-verifier/pkg/types"
)

// BuildTree builds a tree over precomputed leaf hashes. A level with an odd
// number of nodes pairs its last node with itself.
func BuildTree(leaves [][32]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree from empty leaf list")
	}

	current := make([][32]byte, len(leaves))
	copy(current, leaves)
	levels := [][][32]byte{current}

	for len(current) > 1 {
		next := make([][32]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			right := current[i]
			if i+1 < len(current) {
				right = current[i+1]
			}
			next = append(next, hashPair(current[i], right))
		}
		levels = append(levels, next)
		current = next
	}

	return &Tree{
		Leaves: levels[0],
		Root:   current[0],
		levels: levels,
	}, nil
}

// BuildStepTree hashes step reports in index order and builds a tree over them.
func BuildStepTree(steps []*types.StepReport) (*Tree, error) {
	sorted := SortSteps(steps)
	leaves := make([][32]byte, len(sorted))
	for i, s := range sorted {
		leaves[i] = HashStep(s)
	}
	return BuildTree(leaves)
}

func (t *Tree) GenerateProof(leafIndex int) (*Proof, error) {
	if leafIndex < 0 || leafIndex >= len(t.Leaves) {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves)", leafIndex, len(t.Leaves))
	}

	siblings := make([][32]byte, 0, len(t.levels)-1)
	index := leafIndex
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		siblings = append(siblings, level[sibling])
		index /= 2
	}

	return &Proof{
		LeafIndex: leafIndex,
		Leaf:      t.Leaves[leafIndex],
		Siblings:  siblings,
	}, nil
}

// VerifyProof recomputes the root from a proof and compares it with root.
func VerifyProof(proof *Proof, root [32]byte) bool {
	if proof == nil {
		return false
	}

	current := proof.Leaf
	index := proof.LeafIndex
	for _, sibling := range proof.Siblings {
		if index%2 == 0 {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
		index /= 2
	}
	return current == root
}

// HashStep is the leaf hash of a step report:
// keccak256(index || keccak(name) || keccak(method) || keccak(outcome) ||
// gasConsumed || gasRequired || keccak(output) || keccak(fault)), integers as
// 8-byte big endian. Timing fields are excluded.
func HashStep(s *types.StepReport) [32]byte {
	data := make([]byte, 0, 8+32*3+8*4+32*2)
	data = binary.BigEndian.AppendUint64(data, uint64(s.Index))
	data = append(data, crypto.Keccak256([]byte(s.Name))...)
	data = append(data, crypto.Keccak256([]byte(s.Method))...)
	data = append(data, crypto.Keccak256([]byte(s.Outcome))...)
	data = binary.BigEndian.AppendUint64(data, s.GasConsumed.RefTime)
	data = binary.BigEndian.AppendUint64(data, s.GasConsumed.ProofSize)
	data = binary.BigEndian.AppendUint64(data, s.GasRequired.RefTime)
	data = binary.BigEndian.AppendUint64(data, s.GasRequired.ProofSize)
	data = append(data, crypto.Keccak256(s.Output)...)
	data = append(data, crypto.Keccak256([]byte(s.Fault))...)

	return [32]byte(crypto.Keccak256Hash(data))
}

// SortSteps returns a copy of steps ordered by Index.
func SortSteps(steps []*types.StepReport) []*types.StepReport {
	sorted := make([]*types.StepReport, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})
	return sorted
}

func hashPair(left, right [32]byte) [32]byte {
	var data [64]byte
	copy(data[:32], left[:])
	copy(data[32:], right[:])
	return [32]byte(crypto.Keccak256Hash(data[:]))
}
