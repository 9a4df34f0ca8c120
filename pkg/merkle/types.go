package merkle

// Tree is a binary keccak256 merkle tree over run step leaves.
type Tree struct {
	// Leaves holds the leaf hashes in step order
	Leaves [][32]byte

	Root [32]byte

	// levels[0] = leaves, levels[len-1] = root
	levels [][][32]byte
}

// Proof shows that a leaf is included in a tree.
type Proof struct {
	LeafIndex int
	Leaf      [32]byte

	// Siblings runs from the leaf's sibling up to the child of the root
	Siblings [][32]byte
}
