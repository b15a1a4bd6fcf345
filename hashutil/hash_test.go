package hashutil

import (
	"bytes"
	"testing"
)

func TestSHA256Hex(t *testing.T) {
	got := SHA256Hex([]byte("eastsea"))
	if len(got) != 64 {
		t.Fatalf("expected 64 char hex digest, got %d chars: %s", len(got), got)
	}

	if got == SHA256Hex([]byte("different")) {
		t.Fatalf("hash collided unexpectedly")
	}
}

func TestMerkleRootEmpty(t *testing.T) {
	if _, err := MerkleRoot(nil); err != ErrEmptyLeaves {
		t.Fatalf("expected ErrEmptyLeaves, got %v", err)
	}
}

func TestMerkleRootSingleLeaf(t *testing.T) {
	root, err := MerkleRoot([][]byte{[]byte("leaf")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := SHA256([]byte("leaf"))
	if !bytes.Equal(root[:], want[:]) {
		t.Fatalf("single-leaf root should equal the hash of the leaf, with no pairing round")
	}
}

func TestMerkleRootDeterministic(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c")}

	root1, err := MerkleRoot(leaves)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root2, err := MerkleRoot(leaves)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if root1 != root2 {
		t.Fatalf("merkle root must be deterministic for the same input")
	}

	evenLeaves := [][]byte{[]byte("a"), []byte("b")}
	rootEven, err := MerkleRoot(evenLeaves)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root1 == rootEven {
		t.Fatalf("different leaf sets should not produce the same root")
	}
}
