package ir

import "testing"

type signatureFixture struct {
	ts     *TypeSystem
	g      *Graph
	foo    *TypeRepresentation
	vec    *TypeRepresentation
	fooVar VariableExpression
	vecVar VariableExpression
	i8Var  VariableExpression
	null   *ConstantExpression
	result VariableExpression
}

func newSignatureFixture(t *testing.T) *signatureFixture {
	t.Helper()
	ts := NewTypeSystem()
	g := NewGraph(ts, nil)
	f := &signatureFixture{ts: ts, g: g}
	f.foo = ts.DefineClass("Foo", nil)
	f.vec = ts.DefineStruct("Vec", 8)
	f.fooVar = g.AllocateLocal(f.foo, "foo", nil)
	f.vecVar = g.AllocateLocal(f.vec, "vec", nil)
	f.i8Var = g.AllocateLocal(ts.Int8, "small", nil)
	f.null = ts.CreateNullPointer(ts.Object)
	f.result = g.AllocateTemporary(ts.Int32, nil)
	return f
}

func TestMatchSignatureNullArguments(t *testing.T) {
	f := newSignatureFixture(t)

	static := &MethodRepresentation{
		Name:              "Static",
		IsStatic:          true,
		ThisPlusArguments: []*TypeRepresentation{f.foo, f.vec},
		ReturnType:        f.ts.Void,
	}
	virtual := &MethodRepresentation{
		Name:              "Virtual",
		Owner:             f.foo,
		IsVirtual:         true,
		ThisPlusArguments: []*TypeRepresentation{f.foo, f.foo, f.vec},
		ReturnType:        f.ts.Void,
	}

	tests := []struct {
		name string
		kind CallKind
		md   *MethodRepresentation
		rhs  []Expression
		want bool
	}{
		{"direct null for reference", CallDirect, static, []Expression{f.null, f.vecVar}, true},
		{"direct null for value type", CallDirect, static, []Expression{f.fooVar, f.null}, false},
		{"overridden null for reference", CallOverridden, virtual, []Expression{f.fooVar, f.null, f.vecVar}, true},
		{"overridden null for value type", CallOverridden, virtual, []Expression{f.fooVar, f.fooVar, f.null}, false},
		{"overridden skips receiver", CallOverridden, virtual, []Expression{f.vecVar, f.fooVar, f.vecVar}, true},
		{"direct checks receiver slot", CallDirect, virtual, []Expression{f.vecVar, f.fooVar, f.vecVar}, false},
		{"virtual skips receiver", CallVirtual, virtual, []Expression{f.null, f.null, f.vecVar}, true},
		{"no check skips everything", CallOverriddenNoCheck, virtual, []Expression{f.vecVar, f.vecVar, f.fooVar}, true},
		{"no check still counts", CallOverriddenNoCheck, virtual, []Expression{f.vecVar, f.vecVar}, false},
		{"too few arguments", CallDirect, static, []Expression{f.fooVar}, false},
	}
	for _, tt := range tests {
		if got := MatchSignature(tt.kind, tt.md, nil, tt.rhs); got != tt.want {
			t.Fatalf("%s: MatchSignature = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMatchSignatureIndirect(t *testing.T) {
	f := newSignatureFixture(t)
	md := &MethodRepresentation{
		Name:              "Callback",
		ThisPlusArguments: []*TypeRepresentation{f.foo, f.vec},
		ReturnType:        f.ts.Void,
	}
	fnPtr := f.g.AllocateTemporary(f.ts.IntPtr, nil)

	if !MatchSignature(CallIndirect, md, nil, []Expression{fnPtr, f.vecVar, f.vecVar}) {
		t.Fatalf("indirect call skips the pointer and the receiver")
	}
	if MatchSignature(CallIndirect, md, nil, []Expression{fnPtr, f.fooVar, f.null}) {
		t.Fatalf("null cannot bind a value type")
	}
	if MatchSignature(CallIndirect, md, nil, []Expression{f.fooVar, f.vecVar}) {
		t.Fatalf("missing function pointer must not match")
	}

	op := NewIndirectCall(nil, md, nil, fnPtr, []Expression{f.fooVar, f.vecVar})
	if op.FunctionPointer() != Expression(fnPtr) || !op.MatchSignature() {
		t.Fatalf("indirect call operator %s", op)
	}
}

func TestMatchSignatureScalarsAndResults(t *testing.T) {
	f := newSignatureFixture(t)
	md := &MethodRepresentation{
		Name:              "Widen",
		IsStatic:          true,
		ThisPlusArguments: []*TypeRepresentation{f.ts.Int32},
		ReturnType:        f.ts.Int32,
	}

	if !MatchSignature(CallDirect, md, []VariableExpression{f.result}, []Expression{f.i8Var}) {
		t.Fatalf("scalars are interchangeable")
	}
	if MatchSignature(CallDirect, md, nil, []Expression{f.i8Var}) {
		t.Fatalf("value-returning method must bind one result")
	}
	if MatchSignature(CallDirect, md, []VariableExpression{f.result, f.result}, []Expression{f.i8Var}) {
		t.Fatalf("at most one result")
	}

	void := &MethodRepresentation{Name: "Void", IsStatic: true, ThisPlusArguments: []*TypeRepresentation{f.foo}, ReturnType: f.ts.Void}
	if MatchSignature(CallDirect, void, []VariableExpression{f.result}, []Expression{f.fooVar}) {
		t.Fatalf("void method binds no result")
	}

	derived := f.ts.DefineClass("Bar", f.foo)
	barVar := f.g.AllocateLocal(derived, "bar", nil)
	if !MatchSignature(CallDirect, void, nil, []Expression{barVar}) {
		t.Fatalf("derived class is assignable to its base")
	}
}
