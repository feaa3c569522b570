package ir

import (
	"slices"
	"testing"
)

func TestLookupTarget(t *testing.T) {
	for _, name := range []string{"armv4", "armv5", "armv6m", "armv7m"} {
		if !slices.Contains(TargetNames(), name) {
			t.Fatalf("target %s not registered", name)
		}
	}
	if _, err := LookupTarget("x86"); err == nil {
		t.Fatalf("expected error for unknown target")
	}

	a, err := LookupTarget("armv7m")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	b, _ := LookupTarget("armv7m")
	if a.Registers.MustLookup("R0") == b.Registers.MustLookup("R0") {
		t.Fatalf("each lookup must build its own register file")
	}
	if !a.HasFPU || a.WordSize != 4 {
		t.Fatalf("unexpected armv7m target %+v", a)
	}

	v4, _ := LookupTarget("armv4")
	if _, ok := v4.Registers.Lookup("S0"); ok {
		t.Fatalf("armv4 has no VFP registers")
	}
}

func TestRegisterTargetRejectsDuplicates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate target")
		}
	}()
	RegisterTarget("armv4", armTarget("armv4", false))
}

func TestAllocatableRegisters(t *testing.T) {
	target, _ := LookupTarget("armv7m")
	ints := target.Registers.Allocatable(ClassInteger)
	if len(ints) != 12 || ints[0].Name != "R0" || ints[11].Name != "R11" {
		t.Fatalf("integer allocation order %v", ints)
	}
	doubles := target.Registers.Allocatable(ClassDoublePrecision)
	if len(doubles) != 16 {
		t.Fatalf("expected 16 double registers, got %d", len(doubles))
	}
	if got := doubles[3].Interference(); len(got) != 2 || got[0].Name != "S6" || got[1].Name != "S7" {
		t.Fatalf("D3 interference = %v", got)
	}
}
