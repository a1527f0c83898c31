package wire

import (
	"bytes"
	"testing"
)

func TestBufferWriteRead(t *testing.T) {
	buf := NewBuffer(64)

	// Write values
	_ = buf.WriteByte(42)
	buf.WriteInt16(1234)
	buf.WriteInt32(567890)
	buf.WriteString("hello")
	buf.WriteBytes([]byte{1, 2, 3})

	// Read back
	buf.SetPosition(0)

	b, err := buf.ReadByte()
	if err != nil || b != 42 {
		t.Errorf("ReadByte: got %d, want 42", b)
	}

	i16, err := buf.ReadInt16()
	if err != nil || i16 != 1234 {
		t.Errorf("ReadInt16: got %d, want 1234", i16)
	}

	i32, err := buf.ReadInt32()
	if err != nil || i32 != 567890 {
		t.Errorf("ReadInt32: got %d, want 567890", i32)
	}

	s, err := buf.ReadString()
	if err != nil || s != "hello" {
		t.Errorf("ReadString: got %q, want 'hello'", s)
	}

	data, err := buf.ReadBytes(3)
	if err != nil || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("ReadBytes: got %v, want [1 2 3]", data)
	}
}

func TestBufferUnderflow(t *testing.T) {
	buf := NewBuffer(0)
	if _, err := buf.ReadInt32(); err == nil {
		t.Error("expected error reading from empty buffer")
	}
}

func TestByteaRoundTrip(t *testing.T) {
	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
	enc := EncodeBytea(raw)
	if enc != `\xdeadbeef0001` {
		t.Fatalf("EncodeBytea: got %q", enc)
	}
	dec, err := DecodeBytea(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, raw) {
		t.Errorf("DecodeBytea round-trip: got %v, want %v", dec, raw)
	}
}

func TestDecodeByteaInvalid(t *testing.T) {
	if _, err := DecodeBytea(`\xzz`); err == nil {
		t.Error("expected error for invalid hex")
	}
}
