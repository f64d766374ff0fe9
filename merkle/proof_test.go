package merkle

import "testing"

func buildTestTree(t *testing.T, pairs map[byte]string) *SparseMerkleTree {
	t.Helper()
	tree := New(newMemStore(), newSHA256Hasher, Zero)
	for b, v := range pairs {
		if _, err := tree.Update(keyFromByte(b), testValue(v)); err != nil {
			t.Fatalf("Update(%d): %v", b, err)
		}
	}
	return tree
}

func TestMerkleProofSingleLeafRoundTrip(t *testing.T) {
	tree := buildTestTree(t, map[byte]string{1: "a", 2: "b", 3: "c"})
	key := keyFromByte(2)

	proof, err := tree.MerkleProof([]H256{key})
	if err != nil {
		t.Fatalf("MerkleProof: %v", err)
	}

	ok, err := proof.Verify(tree.Root(), []KeyValue{{Key: key, Value: testValue("b")}}, newSHA256Hasher)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("proof did not verify against the actual root")
	}
}

func TestMerkleProofMultiLeafRoundTrip(t *testing.T) {
	pairs := map[byte]string{1: "a", 2: "b", 3: "c", 100: "d", 200: "e"}
	tree := buildTestTree(t, pairs)

	keys := []H256{keyFromByte(1), keyFromByte(100), keyFromByte(200)}
	proof, err := tree.MerkleProof(keys)
	if err != nil {
		t.Fatalf("MerkleProof: %v", err)
	}

	leaves := []KeyValue{
		{Key: keyFromByte(1), Value: testValue("a")},
		{Key: keyFromByte(100), Value: testValue("d")},
		{Key: keyFromByte(200), Value: testValue("e")},
	}
	ok, err := proof.Verify(tree.Root(), leaves, newSHA256Hasher)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("multi-leaf proof did not verify")
	}
}

func TestMerkleProofNonMembership(t *testing.T) {
	tree := buildTestTree(t, map[byte]string{1: "a", 2: "b"})
	absent := keyFromByte(50)

	proof, err := tree.MerkleProof([]H256{absent})
	if err != nil {
		t.Fatalf("MerkleProof: %v", err)
	}

	ok, err := proof.Verify(tree.Root(), []KeyValue{{Key: absent, Value: testValue(nil)}}, newSHA256Hasher)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("non-membership proof did not verify")
	}
}

func TestMerkleProofRejectsWrongValue(t *testing.T) {
	tree := buildTestTree(t, map[byte]string{1: "a", 2: "b"})
	key := keyFromByte(1)

	proof, err := tree.MerkleProof([]H256{key})
	if err != nil {
		t.Fatalf("MerkleProof: %v", err)
	}
	ok, err := proof.Verify(tree.Root(), []KeyValue{{Key: key, Value: testValue("wrong")}}, newSHA256Hasher)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("proof verified against a tampered value")
	}
}

func TestMerkleProofWrongLeafCountErrors(t *testing.T) {
	tree := buildTestTree(t, map[byte]string{1: "a", 2: "b"})
	proof, err := tree.MerkleProof([]H256{keyFromByte(1)})
	if err != nil {
		t.Fatalf("MerkleProof: %v", err)
	}
	_, err = proof.ComputeRoot([]KeyValue{{Key: keyFromByte(1), Value: testValue("a")}, {Key: keyFromByte(2), Value: testValue("b")}}, newSHA256Hasher)
	if _, ok := err.(*ErrIncorrectNumberOfLeaves); !ok {
		t.Fatalf("ComputeRoot error = %v, want *ErrIncorrectNumberOfLeaves", err)
	}
}

func TestCompiledMerkleProofRoundTrip(t *testing.T) {
	pairs := map[byte]string{1: "a", 2: "b", 3: "c", 100: "d", 200: "e"}
	tree := buildTestTree(t, pairs)

	keys := []H256{keyFromByte(2), keyFromByte(100)}
	proof, err := tree.MerkleProof(keys)
	if err != nil {
		t.Fatalf("MerkleProof: %v", err)
	}
	compiled, err := proof.Compile(keys)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	leaves := []KeyValue{
		{Key: keyFromByte(2), Value: testValue("b")},
		{Key: keyFromByte(100), Value: testValue("d")},
	}
	ok, err := compiled.Verify(tree.Root(), leaves, newSHA256Hasher)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("compiled proof did not verify")
	}

	uncompiledRoot, err := proof.ComputeRoot(leaves, newSHA256Hasher)
	if err != nil {
		t.Fatalf("ComputeRoot: %v", err)
	}
	compiledRoot, err := compiled.ComputeRoot(leaves, newSHA256Hasher)
	if err != nil {
		t.Fatalf("compiled ComputeRoot: %v", err)
	}
	if uncompiledRoot != compiledRoot {
		t.Fatalf("compiled and uncompiled roots differ: %x != %x", compiledRoot, uncompiledRoot)
	}
}

func TestCompiledMerkleProofInvalidOpcode(t *testing.T) {
	c := &CompiledMerkleProof{Bytecode: []byte{0xFF}}
	_, err := c.ComputeRoot([]KeyValue{{Key: keyFromByte(1), Value: testValue("a")}}, newSHA256Hasher)
	invalid, ok := err.(*ErrInvalidCode)
	if !ok {
		t.Fatalf("error = %v, want *ErrInvalidCode", err)
	}
	if invalid.Code != 0xFF {
		t.Fatalf("invalid.Code = %x, want 0xFF", invalid.Code)
	}
}

func TestCompiledMerkleProofEmptyBytecodeIsCorruptedStack(t *testing.T) {
	c := &CompiledMerkleProof{Bytecode: nil}
	_, err := c.ComputeRoot(nil, newSHA256Hasher)
	if err != ErrCorruptedStack {
		t.Fatalf("error = %v, want ErrCorruptedStack", err)
	}
}

func TestCompiledMerkleProofInvalidOpcodeZero(t *testing.T) {
	c := &CompiledMerkleProof{Bytecode: []byte{0x00}}
	_, err := c.ComputeRoot([]KeyValue{{Key: keyFromByte(1), Value: testValue("a")}}, newSHA256Hasher)
	invalid, ok := err.(*ErrInvalidCode)
	if !ok {
		t.Fatalf("error = %v, want *ErrInvalidCode", err)
	}
	if invalid.Code != 0x00 {
		t.Fatalf("invalid.Code = %x, want 0x00", invalid.Code)
	}
}

// TestCompiledMerkleProofTruncatedProofOperand exercises opProof with fewer
// than the 40 trailing operand bytes (8-byte height + 32-byte digest) it
// needs: one L to put something on the stack, then a bare P opcode with no
// operand at all.
func TestCompiledMerkleProofTruncatedProofOperand(t *testing.T) {
	c := &CompiledMerkleProof{Bytecode: []byte{opLeaf, opProof}}
	_, err := c.ComputeRoot([]KeyValue{{Key: keyFromByte(1), Value: testValue("a")}}, newSHA256Hasher)
	if err != ErrCorruptedProof {
		t.Fatalf("error = %v, want ErrCorruptedProof", err)
	}
}
