package data

import (
	"bytes"
	"testing"
)

func TestNewOwnedCopiesAndIsIndependent(t *testing.T) {
	raw := []byte("hello")
	d := NewOwned(raw, Text)
	raw[0] = 'H'
	if d.String() != "hello" {
		t.Errorf("owned Data should not see mutation of source slice, got %q", d.String())
	}
	if !d.Owning() {
		t.Error("NewOwned should produce an owning Data")
	}
}

func TestNewBorrowedSharesStorage(t *testing.T) {
	raw := []byte("hello")
	d := NewBorrowed(raw, Text)
	raw[0] = 'H'
	if d.String() != "Hello" {
		t.Errorf("borrowed Data should observe mutation of source slice, got %q", d.String())
	}
	if d.Owning() {
		t.Error("NewBorrowed should produce a non-owning Data")
	}
}

func TestNullData(t *testing.T) {
	n := Null(Text)
	if !n.IsNull() {
		t.Error("Null() should be null")
	}
	if n.Size() != 0 {
		t.Errorf("null Data size: got %d, want 0", n.Size())
	}
}

func TestSizeIsExact(t *testing.T) {
	d := NewText("abc")
	if d.Size() != 3 {
		t.Errorf("Size: got %d, want 3", d.Size())
	}
}

func TestByteaConversion(t *testing.T) {
	raw := []byte{0x01, 0xFF, 0xAB}
	d := NewBytea(raw)
	hexForm := d.Bytea()
	if hexForm != `\x01ffab` {
		t.Fatalf("Bytea: got %q", hexForm)
	}
	parsed, err := ParseBytea(hexForm)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(parsed.Bytes(), raw) {
		t.Errorf("ParseBytea round-trip: got %v, want %v", parsed.Bytes(), raw)
	}
}

func TestOwnedPromotesBorrowed(t *testing.T) {
	raw := []byte("x")
	d := NewBorrowed(raw, Text)
	owned := d.Owned()
	if !owned.Owning() {
		t.Error("Owned() should return an owning Data")
	}
	raw[0] = 'y'
	if owned.String() != "x" {
		t.Errorf("promoted Data should be independent of source, got %q", owned.String())
	}
}
