package ir

import "testing"

func newARMv7M(t *testing.T) (*TypeSystem, *Graph, *Target) {
	t.Helper()
	target, err := LookupTarget("armv7m")
	if err != nil {
		t.Fatalf("lookup target: %v", err)
	}
	ts := NewTypeSystem()
	return ts, NewGraph(ts, nil), target
}

func TestInterferingRegistersShareAggregate(t *testing.T) {
	ts, g, target := newARMv7M(t)
	regs := target.Registers

	d0 := g.AllocatePhysicalRegister(regs.MustLookup("D0"), ts.Float64, nil)
	s0 := g.AllocatePhysicalRegister(regs.MustLookup("S0"), ts.Float32, nil)
	s1 := g.AllocatePhysicalRegister(regs.MustLookup("S1"), ts.Float32, nil)
	s2 := g.AllocatePhysicalRegister(regs.MustLookup("S2"), ts.Float32, nil)

	for _, half := range []*PhysicalRegisterExpression{s0, s1} {
		if d0.IsTheSamePhysicalEntity(half) || half.IsTheSamePhysicalEntity(d0) {
			t.Fatalf("%s and %s are different registers", d0, half)
		}
		if !d0.IsTheSameAggregate(half) || !half.IsTheSameAggregate(d0) {
			t.Fatalf("%s and %s interfere and must share an aggregate", d0, half)
		}
	}
	if d0.IsTheSameAggregate(s2) {
		t.Fatalf("D0 does not overlap S2")
	}
	if s0.IsTheSameAggregate(s1) {
		t.Fatalf("S0 and S1 do not overlap")
	}
}

func TestSameRegisterIsSameEntity(t *testing.T) {
	ts, g, target := newARMv7M(t)
	r0 := target.Registers.MustLookup("R0")

	a := g.AllocatePhysicalRegister(r0, ts.Int32, nil)
	b := g.AllocatePhysicalRegister(r0, ts.UInt32, nil)
	if a == b {
		t.Fatalf("expected distinct nodes")
	}
	if !a.IsTheSamePhysicalEntity(b) || !a.IsTheSameAggregate(b) {
		t.Fatalf("two expressions for R0 must be the same entity")
	}
}

func TestStackLocationEquivalence(t *testing.T) {
	ts := NewTypeSystem()
	g := NewGraph(ts, nil)

	a := g.AllocateStackLocation(PlacementLocal, ts.Int32, nil)
	b := g.AllocateStackLocation(PlacementLocal, ts.Int32, nil)
	c := g.AllocateStackLocation(PlacementOut, ts.Int32, nil)

	if a.IsTheSamePhysicalEntity(b) {
		t.Fatalf("unassigned slots only match themselves")
	}
	a.SetAllocationOffset(8)
	b.SetAllocationOffset(8)
	c.SetAllocationOffset(8)
	if !a.IsTheSamePhysicalEntity(b) {
		t.Fatalf("slots at the same offset are the same entity")
	}
	if a.IsTheSamePhysicalEntity(c) {
		t.Fatalf("different placements never alias")
	}
	if off, ok := a.AllocationOffset(); !ok || off != 8 {
		t.Fatalf("allocation offset = %d, %v", off, ok)
	}
}

func TestConditionCodesAreOneEntity(t *testing.T) {
	g := NewGraph(NewTypeSystem(), nil)
	a := g.AllocateConditionCode(nil)
	b := g.AllocateConditionCode(nil)
	if !a.IsTheSamePhysicalEntity(b) || !a.IsTheSameAggregate(b) {
		t.Fatalf("condition codes share the flags register")
	}
}

func TestFragmentsResolveToAggregate(t *testing.T) {
	ts := NewTypeSystem()
	g := NewGraph(ts, nil)
	wide := g.AllocateLocal(ts.Int64, "wide", nil)

	lo := g.AllocatePseudoRegister(ts.UInt32, nil)
	hi := g.AllocatePseudoRegister(ts.UInt32, nil)
	lo.SetSource(wide, 0)
	hi.SetSource(wide, 4)

	if lo.AggregateVariable() != VariableExpression(wide) {
		t.Fatalf("aggregate of low half = %s", lo.AggregateVariable())
	}
	if lo.IsTheSamePhysicalEntity(hi) {
		t.Fatalf("halves are different entities")
	}
	if !lo.IsTheSameAggregate(hi) {
		t.Fatalf("halves of one variable share an aggregate")
	}
	if hi.SourceOffset() != 4 || hi.SourceVariable() != VariableExpression(wide) {
		t.Fatalf("unexpected source link %s+%d", hi.SourceVariable(), hi.SourceOffset())
	}
}

func TestVariableKindOrdering(t *testing.T) {
	ts, g, target := newARMv7M(t)

	local := g.AllocateLocal(ts.Int32, "l", nil)
	pseudo := g.AllocatePseudoRegister(ts.Int32, nil)
	phys := g.AllocatePhysicalRegister(target.Registers.MustLookup("R1"), ts.Int32, nil)
	cc := g.AllocateConditionCode(nil)
	in := g.AllocateStackLocation(PlacementIn, ts.Int32, nil)
	loc := g.AllocateStackLocation(PlacementLocal, ts.Int32, nil)
	out := g.AllocateStackLocation(PlacementOut, ts.Int32, nil)

	order := []VariableExpression{local, pseudo, phys, cc, in, loc, out}
	for i, v := range order {
		if v.VariableKind() != i {
			t.Fatalf("%s kind = %d, want %d", v, v.VariableKind(), i)
		}
	}

	phi := g.AllocatePhiVariable(pseudo)
	want := 100 + 1_000_000*pseudo.VariableKind() + pseudo.Number()
	if phi.VariableKind() != want {
		t.Fatalf("phi kind = %d, want %d", phi.VariableKind(), want)
	}
	if next := g.AllocatePhiVariable(pseudo); next.Version() != phi.Version()+1 {
		t.Fatalf("phi versions %d then %d", phi.Version(), next.Version())
	}
}

func TestExpressionLevels(t *testing.T) {
	ts, g, target := newARMv7M(t)
	big := ts.DefineStruct("Big", 16)

	tests := []struct {
		ex   Expression
		want OperatorLevel
	}{
		{g.AllocatePhysicalRegister(target.Registers.MustLookup("R2"), ts.Int32, nil), LevelRegisters},
		{g.AllocateConditionCode(nil), LevelRegisters},
		{g.AllocateStackLocation(PlacementLocal, ts.Int32, nil), LevelStackLocations},
		{g.AllocatePseudoRegister(ts.Int32, nil), LevelScalarValues},
		{g.AllocateLocal(ts.Int32, "small", nil), LevelScalarValues},
		{g.AllocateLocal(big, "big", nil), LevelConcreteTypesNoExceptions},
		{ts.CreateConstant(ts.Int32, 3), LevelRegisters},
		{ts.CreateConstant(ts.Int64, 3), LevelConcreteTypesNoExceptions},
	}
	for _, tt := range tests {
		if got := tt.ex.Level(target); got != tt.want {
			t.Fatalf("%s level = %s, want %s", tt.ex, got, tt.want)
		}
	}
}

func TestStorageProgression(t *testing.T) {
	tests := []struct {
		from, to StorageClass
		ok       bool
	}{
		{StorageVariable, StoragePseudo, true},
		{StorageVariable, StorageStack, true},
		{StoragePseudo, StoragePhysical, true},
		{StoragePseudo, StorageStack, true},
		{StoragePseudo, StoragePseudo, true},
		{StoragePhysical, StoragePseudo, false},
		{StorageStack, StorageVariable, false},
		{StoragePhysical, StorageStack, false},
		{StorageStack, StoragePhysical, false},
		{StoragePhi, StoragePhysical, true},
		{StorageConditionCode, StoragePseudo, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanBecome(tt.to); got != tt.ok {
			t.Fatalf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestSubstituteEnforcesStorageProgression(t *testing.T) {
	d := newDiamond(t)
	target, err := LookupTarget("armv4")
	if err != nil {
		t.Fatalf("lookup target: %v", err)
	}

	pseudo := d.g.AllocatePseudoRegister(d.ts.Int32, nil)
	d.g.Substitute(d.tmp, pseudo)
	for _, op := range d.g.Operators() {
		if op.base().Uses(d.tmp) || op.base().IsSourceOfExpression(d.tmp) {
			t.Fatalf("%s still references %s", op, d.tmp)
		}
	}

	reg := d.g.AllocatePhysicalRegister(target.Registers.MustLookup("R4"), d.ts.Int32, nil)
	d.g.Substitute(pseudo, reg)

	stack := d.g.AllocateStackLocation(PlacementLocal, d.ts.Int32, nil)
	expectInternalError(t, func() {
		d.g.Substitute(reg, stack)
	})
}

func TestConstantNormalization(t *testing.T) {
	ts := NewTypeSystem()

	tests := []struct {
		typ   *TypeRepresentation
		value any
		want  any
	}{
		{ts.Int8, 255, int64(-1)},
		{ts.UInt8, 256, uint64(0)},
		{ts.Int16, 0x18000, int64(-32768)},
		{ts.UInt32, -1, uint64(0xffffffff)},
		{ts.Int32, true, int64(1)},
		{ts.Float64, float32(1.5), float64(1.5)},
		{ts.Object, nil, nil},
	}
	for _, tt := range tests {
		c := NewConstant(tt.typ, tt.value)
		got, ok := c.Value()
		if !ok || got != tt.want {
			t.Fatalf("NewConstant(%s, %v) = %#v, want %#v", tt.typ, tt.value, got, tt.want)
		}
	}
}

func TestConstantInterning(t *testing.T) {
	ts := NewTypeSystem()

	a := ts.CreateConstant(ts.Int32, 42)
	b := ts.CreateConstant(ts.Int32, int64(42))
	c := ts.CreateConstant(ts.UInt32, 42)
	if a != b {
		t.Fatalf("equal constants must intern to one instance")
	}
	if a == c || a.Equal(c) {
		t.Fatalf("constants of different types are distinct")
	}
	if !NewConstant(ts.Int32, 42).Equal(a) || NewConstant(ts.Int32, 42).Hash() != a.Hash() {
		t.Fatalf("equal constants must compare and hash equal")
	}
	if null := ts.CreateNullPointer(ts.Object); !null.IsNull() || null.CanBeNull() != NullYes {
		t.Fatalf("null constant is not null")
	}
}

func TestConstantResultResolvesLate(t *testing.T) {
	ts := NewTypeSystem()
	left := NewPlaceholder("a")
	right := NewPlaceholder("b")

	c := NewConstant(ts.Boolean, &ConstantResult{Condition: UnsignedLowerThanOrSame, Left: left, Right: right})
	if !c.IsDelayed() {
		t.Fatalf("expected delayed constant")
	}
	if _, ok := c.Value(); ok {
		t.Fatalf("unresolved operands must not evaluate")
	}

	left.Set(0x1000)
	if _, ok := c.AsSignedInteger(); ok {
		t.Fatalf("one operand is still unresolved")
	}

	right.Set(0x2000)
	v, ok := c.AsSignedInteger()
	if !ok || v != 1 {
		t.Fatalf("resolved value = %d, %v", v, ok)
	}
}
