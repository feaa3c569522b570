package ir

import (
	"errors"
	"testing"
)

func TestNegateIsInvolution(t *testing.T) {
	for c := Equal; c < Always; c++ {
		n, err := c.Negate()
		if err != nil {
			t.Fatalf("negate %s: %v", c, err)
		}
		if n == c {
			t.Fatalf("negate %s returned itself", c)
		}
		back, err := n.Negate()
		if err != nil {
			t.Fatalf("negate %s: %v", n, err)
		}
		if back != c {
			t.Fatalf("negate(negate(%s)) = %s", c, back)
		}
	}
}

func TestNegatePairs(t *testing.T) {
	pairs := []struct{ a, b Comparison }{
		{Equal, NotEqual},
		{CarrySet, CarryClear},
		{Negative, PositiveOrZero},
		{Overflow, NoOverflow},
		{UnsignedHigherThan, UnsignedLowerThanOrSame},
		{SignedGreaterThanOrEqual, SignedLessThan},
		{SignedGreaterThan, SignedLessThanOrEqual},
	}
	for _, p := range pairs {
		if got := p.a.MustNegate(); got != p.b {
			t.Fatalf("negate %s = %s, want %s", p.a, got, p.b)
		}
		if got := p.b.MustNegate(); got != p.a {
			t.Fatalf("negate %s = %s, want %s", p.b, got, p.a)
		}
	}
}

func TestNegateRejectsAlwaysAndNotValid(t *testing.T) {
	for _, c := range []Comparison{Always, NotValid} {
		if _, err := c.Negate(); !errors.Is(err, ErrNoNegation) {
			t.Fatalf("negate %s: expected ErrNoNegation, got %v", c, err)
		}
	}
	expectInternalError(t, func() { Always.MustNegate() })
}

func TestNegationIsLogicalComplement(t *testing.T) {
	operands := [][2]uint32{
		{0, 0},
		{1, 2},
		{2, 1},
		{0x80000000, 1},
		{0x7fffffff, 0xffffffff},
		{0xffffffff, 0},
	}
	for c := Equal; c < Always; c++ {
		n := c.MustNegate()
		for _, o := range operands {
			if c.Evaluate(o[0], o[1]) == n.Evaluate(o[0], o[1]) {
				t.Fatalf("%s and %s agree on (%#x, %#x)", c, n, o[0], o[1])
			}
		}
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		cond        Comparison
		left, right uint32
		want        bool
	}{
		{Equal, 5, 5, true},
		{NotEqual, 5, 5, false},
		{CarrySet, 5, 3, true},
		{CarryClear, 3, 5, true},
		{UnsignedHigherThan, 0xffffffff, 1, true},
		{SignedGreaterThan, 0xffffffff, 1, false},
		{SignedLessThan, 0xffffffff, 1, true},
		{SignedLessThanOrEqual, 7, 7, true},
		{Always, 1, 2, true},
		{NotValid, 1, 2, false},
	}
	for _, tt := range tests {
		if got := tt.cond.Evaluate(tt.left, tt.right); got != tt.want {
			t.Fatalf("%s(%#x, %#x) = %v, want %v", tt.cond, tt.left, tt.right, got, tt.want)
		}
	}
}

func TestInvertConditionalControl(t *testing.T) {
	d := newDiamond(t)
	ctrl := d.g.Entry().FlowControl().(*ConditionCodeConditionalControlOperator)

	if err := ctrl.Invert(); err != nil {
		t.Fatalf("invert: %v", err)
	}
	if ctrl.Condition != NotEqual || ctrl.TakenBranch() != d.right || ctrl.NotTakenBranch() != d.left {
		t.Fatalf("unexpected inverted branch: %s", ctrl)
	}
}
