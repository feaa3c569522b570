package ir

import "testing"

func TestPushRefusesNodesOnStack(t *testing.T) {
	d := newDiamond(t)
	w := NewWalker(d.ts)

	if !w.Push(d.tmp) {
		t.Fatalf("first push must succeed")
	}
	if w.Push(d.tmp) {
		t.Fatalf("node already on the stack must not be re-entered")
	}
	if w.Top() != any(d.tmp) || w.Depth() != 1 {
		t.Fatalf("unexpected stack %v", w.Stack())
	}
	w.Pop()
	if !w.Push(d.tmp) {
		t.Fatalf("popped node may be visited again")
	}
	w.Pop()

	w.VisitOnce = true
	if w.Push(d.tmp) {
		t.Fatalf("visit-once walker must refuse a visited node")
	}
}

func TestFailCarriesNodeStack(t *testing.T) {
	d := newDiamond(t)
	w := NewWalker(d.ts)

	ie := expectInternalError(t, func() {
		w.Push(d.left)
		w.Push(d.tmp)
		w.Fail("bad node")
	})
	if len(ie.Stack) != 2 || ie.Stack[0] != d.left.String() {
		t.Fatalf("stack = %v", ie.Stack)
	}
}

func TestScannerVisitsEachNodeOnce(t *testing.T) {
	d := newDiamond(t)
	s := NewScanner(d.ts)
	s.ScanGraph(d.g)

	if len(s.Blocks) != 4 {
		t.Fatalf("scanned %d blocks, want 4", len(s.Blocks))
	}
	if len(s.Operators) != 7 {
		t.Fatalf("scanned %d operators, want 7", len(s.Operators))
	}
	seen := make(map[Expression]int)
	for _, ex := range s.Expressions {
		seen[ex]++
	}
	for ex, n := range seen {
		if n != 1 {
			t.Fatalf("%s visited %d times", ex, n)
		}
	}
	if seen[d.tmp] != 1 || seen[d.arg] != 1 || seen[d.one] != 1 {
		t.Fatalf("shared nodes missing from scan")
	}
	if got := len(s.Variables()); got != 3 {
		t.Fatalf("scanned %d variables, want 3", got)
	}
}

func TestWalkerTerminatesOnCycles(t *testing.T) {
	ts := NewTypeSystem()
	g := NewGraph(ts, nil)
	x := g.AllocatePseudoRegister(ts.Int32, nil)
	p := g.AllocatePhiVariable(x)
	x.SetSource(p, 0)

	visits := 0
	w := NewWalker(ts)
	w.OnVisit = func(any) { visits++ }
	p.ApplyTransformation(w)

	if visits != 2 {
		t.Fatalf("expected 2 visits, got %d", visits)
	}
	if w.Depth() != 0 {
		t.Fatalf("stack not unwound: %v", w.Stack())
	}
}

func TestSubstitutionRewritesAnnotations(t *testing.T) {
	d := newDiamond(t)
	op := d.left.Operators()[0]
	op.base().AddAnnotation(NewPostInvalidation(d.tmp))

	pseudo := d.g.AllocatePseudoRegister(d.ts.Int32, nil)
	d.g.Substitute(d.tmp, pseudo)

	inv, ok := FindAnnotation[*PostInvalidationAnnotation](op)
	if !ok || inv.Target != VariableExpression(pseudo) {
		t.Fatalf("annotation target not substituted: %v", op.Annotations())
	}
	if Annotation(inv) != d.ts.CreateUniqueAnnotation(NewPostInvalidation(pseudo)) {
		t.Fatalf("rewritten annotation must be interned")
	}
}

func TestSubstitutionCannotPutConstantInResult(t *testing.T) {
	d := newDiamond(t)
	expectInternalError(t, func() {
		d.g.SubstituteAll(map[Expression]Expression{d.tmp: d.one})
	})
}

func TestTransformGeneric(t *testing.T) {
	d := newDiamond(t)
	cc2 := d.g.AllocateConditionCode(nil)

	var values []any
	w := NewSubstitution(d.ts, map[Expression]Expression{d.cc: cc2, d.arg: d.one})
	w.OnValue = func(field any) { values = append(values, field) }

	n := 5
	TransformGeneric(w, &n)
	if len(values) != 1 || values[0] != any(&n) {
		t.Fatalf("plain field not routed to TransformValue")
	}

	var ex Expression = d.arg
	TransformGeneric(w, &ex)
	if ex != Expression(d.one) {
		t.Fatalf("expression field not rewritten: %s", ex)
	}

	cc := d.cc
	TransformGeneric(w, &cc)
	if cc != cc2 {
		t.Fatalf("concrete field not rewritten: %s", cc)
	}

	bad := NewSubstitution(d.ts, map[Expression]Expression{d.cc: d.one})
	cc = d.cc
	expectInternalError(t, func() { TransformGeneric(bad, &cc) })
}
