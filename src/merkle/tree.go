// Package merkle implements the fingerprint of a ledger: a Merkle tree over the
// serialized entries, combined pairwise in sorted order.
//
// Two agents holding the same entries in the same order get the same root, so
// comparing roots is a cheap way to skip a full chain pull. A different root
// says nothing about which side is right.
package merkle

import (
	"encoding/hex"

	"github.com/mosaicnetworks/parley/src/crypto"
)

// Tree keeps every layer so that AddLeaf only recomputes the rightmost path.
// layers[0] holds the leaf hashes and the last layer holds the root.
type Tree struct {
	layers [][][]byte
}

// New builds a Tree from raw leaf data.
func New(leaves ...[]byte) *Tree {
	t := &Tree{}
	for _, l := range leaves {
		t.AddLeaf(l)
	}
	return t
}

// AddLeaf hashes data, appends it as a new leaf and updates the root.
func (t *Tree) AddLeaf(data []byte) {
	if len(t.layers) == 0 {
		t.layers = append(t.layers, [][]byte{})
	}
	t.layers[0] = append(t.layers[0], crypto.SHA256(data))

	for level := 0; len(t.layers[level]) > 1; level++ {
		layer := t.layers[level]
		idx := len(layer) - 1

		var parent []byte
		if idx%2 == 0 {
			// odd node out, promoted unchanged
			parent = layer[idx]
		} else {
			parent = crypto.SortedPairHash(layer[idx-1], layer[idx])
		}

		if level+1 == len(t.layers) {
			t.layers = append(t.layers, [][]byte{})
		}

		pIdx := idx / 2
		if pIdx == len(t.layers[level+1]) {
			t.layers[level+1] = append(t.layers[level+1], parent)
		} else {
			t.layers[level+1][pIdx] = parent
		}
	}
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	if len(t.layers) == 0 {
		return 0
	}
	return len(t.layers[0])
}

// Root returns the root digest, or nil for an empty tree.
func (t *Tree) Root() []byte {
	if len(t.layers) == 0 {
		return nil
	}
	return t.layers[len(t.layers)-1][0]
}

// Hex returns the hex encoding of the root, or "" for an empty tree.
func (t *Tree) Hex() string {
	return hex.EncodeToString(t.Root())
}
