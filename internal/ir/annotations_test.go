package ir

import "testing"

func TestFixedLengthArrayInterning(t *testing.T) {
	ts := NewTypeSystem()

	a := &FixedLengthArrayAnnotation{Length: 16}
	b := &FixedLengthArrayAnnotation{Length: 16}
	if a == b {
		t.Fatalf("expected independent instances")
	}
	if !a.Equal(b) || a.Hash() != b.Hash() {
		t.Fatalf("equal payloads must compare and hash equal")
	}

	ua := ts.CreateUniqueAnnotation(a)
	ub := ts.CreateUniqueAnnotation(b)
	if ua != ub {
		t.Fatalf("interning must return one instance, got %p and %p", ua, ub)
	}
	if ua != Annotation(a) {
		t.Fatalf("first interned instance should be kept")
	}

	other := ts.CreateUniqueAnnotation(&FixedLengthArrayAnnotation{Length: 17})
	if other == ua {
		t.Fatalf("different lengths must not share an instance")
	}
}

func TestInterningIsScopedToTypeSystem(t *testing.T) {
	a := NewTypeSystem().CreateUniqueAnnotation(&FixedLengthArrayAnnotation{Length: 1})
	b := NewTypeSystem().CreateUniqueAnnotation(&FixedLengthArrayAnnotation{Length: 1})
	if a == b {
		t.Fatalf("separate sessions must not share interned annotations")
	}
}

func TestAnnotationKindsDoNotCollide(t *testing.T) {
	ts := NewTypeSystem()
	g := NewGraph(ts, nil)
	v := g.AllocateLocal(ts.Int32, "v", nil)

	pre := ts.CreateUniqueAnnotation(NewPreInvalidation(v))
	post := ts.CreateUniqueAnnotation(NewPostInvalidation(v))
	if pre == post || pre.Equal(post) {
		t.Fatalf("pre and post invalidation of the same target differ")
	}
	if ts.CreateUniqueAnnotation(NewPreInvalidation(v)) != pre {
		t.Fatalf("pre invalidation not interned")
	}
	if ts.CreateUniqueAnnotation(&NotNullAnnotation{}) != ts.CreateUniqueAnnotation(&NotNullAnnotation{}) {
		t.Fatalf("marker annotations intern to one instance")
	}
}

func TestAddAnnotationDeduplicates(t *testing.T) {
	d := newDiamond(t)
	op := d.left.Operators()[0]
	b := op.base()

	if !b.AddAnnotation(&FixedLengthArrayAnnotation{Length: 3}) {
		t.Fatalf("first annotation should be added")
	}
	if b.AddAnnotation(&FixedLengthArrayAnnotation{Length: 3}) {
		t.Fatalf("equal annotation should be ignored")
	}
	if !b.AddAnnotation(&DontRemoveAnnotation{}) {
		t.Fatalf("different annotation should be added")
	}
	if n := len(op.Annotations()); n != 2 {
		t.Fatalf("expected 2 annotations, got %d", n)
	}

	fl, ok := FindAnnotation[*FixedLengthArrayAnnotation](op)
	if !ok || fl.Length != 3 {
		t.Fatalf("find annotation = %v, %v", fl, ok)
	}
	if fl != d.ts.CreateUniqueAnnotation(&FixedLengthArrayAnnotation{Length: 3}) {
		t.Fatalf("annotations on graph operators are interned")
	}

	if !b.RemoveAnnotation(&FixedLengthArrayAnnotation{Length: 3}) {
		t.Fatalf("remove by value should succeed")
	}
	if _, ok := FindAnnotation[*FixedLengthArrayAnnotation](op); ok {
		t.Fatalf("annotation still present")
	}
}

func TestInliningPathExtend(t *testing.T) {
	ts := NewTypeSystem()
	outer := ts.DefineMethod(&MethodRepresentation{Name: "Outer", IsStatic: true})
	inner := ts.DefineMethod(&MethodRepresentation{Name: "Inner", IsStatic: true})

	base := &InliningPathAnnotation{Path: []*MethodRepresentation{outer}}
	ext := base.Extend(inner)
	if len(base.Path) != 1 || len(ext.Path) != 2 || ext.Path[1] != inner {
		t.Fatalf("extend modified the original or lost a method: %v / %v", base, ext)
	}
	if ts.CreateUniqueAnnotation(ext) != ts.CreateUniqueAnnotation(base.Extend(inner)) {
		t.Fatalf("equal paths intern to one instance")
	}
}

func TestInvalidationFollowsTargetLevel(t *testing.T) {
	ts, g, target := newARMv7M(t)
	reg := g.AllocatePhysicalRegister(target.Registers.MustLookup("R3"), ts.Int32, nil)
	local := g.AllocateLocal(ts.Int32, "l", nil)

	if got := NewPostInvalidation(reg).Level(target); got != LevelRegisters {
		t.Fatalf("register invalidation level = %s", got)
	}
	if got := NewPostInvalidation(local).Level(target); got != LevelScalarValues {
		t.Fatalf("local invalidation level = %s", got)
	}
}
