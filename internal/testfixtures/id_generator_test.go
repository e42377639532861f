package testfixtures

import "testing"

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("booking")

	first := gen.Next()
	second := gen.Next()

	if first != "booking-001" || second != "booking-002" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Issued() != 2 {
		t.Fatalf("expected 2 issued identifiers, got %d", gen.Issued())
	}
}

func TestIDGeneratorCanReset(t *testing.T) {
	gen := NewIDGenerator("")
	_ = gen.Next()
	gen.Reset("evt")

	if next := gen.Next(); next != "evt-001" {
		t.Fatalf("expected evt-001 after reset, got %q", next)
	}

	gen.Reset("")
	if next := gen.Next(); next != "evt-001" {
		t.Fatalf("expected prefix to survive an empty reset, got %q", next)
	}
}

func TestIDGeneratorNilNextFunc(t *testing.T) {
	var gen *IDGenerator
	if id := gen.NextFunc()(); id != "" {
		t.Fatalf("expected empty identifier from nil generator, got %q", id)
	}
}
