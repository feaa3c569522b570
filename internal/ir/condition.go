package ir

import "fmt"

// Comparison is one of the sixteen ARM condition codes, in encoding order.
type Comparison uint8

const (
	Equal                    Comparison = iota // EQ
	NotEqual                                   // NE
	CarrySet                                   // HS, unsigned >=
	CarryClear                                 // LO, unsigned <
	Negative                                   // MI
	PositiveOrZero                             // PL
	Overflow                                   // VS
	NoOverflow                                 // VC
	UnsignedHigherThan                         // HI
	UnsignedLowerThanOrSame                    // LS
	SignedGreaterThanOrEqual                   // GE
	SignedLessThan                             // LT
	SignedGreaterThan                          // GT
	SignedLessThanOrEqual                      // LE
	Always                                     // AL
	NotValid                                   // NV
)

var comparisonSuffix = [...]string{
	"EQ", "NE", "HS", "LO", "MI", "PL", "VS", "VC",
	"HI", "LS", "GE", "LT", "GT", "LE", "AL", "NV",
}

// Suffix returns the assembler mnemonic suffix.
func (c Comparison) Suffix() string {
	if int(c) < len(comparisonSuffix) {
		return comparisonSuffix[c]
	}
	return fmt.Sprintf("cond%d", uint8(c))
}

func (c Comparison) String() string { return c.Suffix() }

// Negate returns the comparison that holds exactly when c does not.
// Always and NotValid have no inverse.
func (c Comparison) Negate() (Comparison, error) {
	if c >= Always {
		return c, fmt.Errorf("%w: %s", ErrNoNegation, c)
	}
	// Each pair differs only in the low bit of the encoding.
	return c ^ 1, nil
}

// MustNegate is Negate for callers that already know c is negatable.
func (c Comparison) MustNegate() Comparison {
	n, err := c.Negate()
	Assert(err == nil, "cannot negate condition %s", c)
	return n
}

// Flags is the NZCV state a comparison is evaluated against.
type Flags struct {
	N, Z, C, V bool
}

// FlagsFor computes the flags of the 32-bit subtraction left - right.
func FlagsFor(left, right uint32) Flags {
	res := left - right
	return Flags{
		N: int32(res) < 0,
		Z: res == 0,
		C: left >= right,
		V: ((left^right)&(left^res))>>31 != 0,
	}
}

// Holds evaluates c against f.
func (c Comparison) Holds(f Flags) bool {
	switch c {
	case Equal:
		return f.Z
	case NotEqual:
		return !f.Z
	case CarrySet:
		return f.C
	case CarryClear:
		return !f.C
	case Negative:
		return f.N
	case PositiveOrZero:
		return !f.N
	case Overflow:
		return f.V
	case NoOverflow:
		return !f.V
	case UnsignedHigherThan:
		return f.C && !f.Z
	case UnsignedLowerThanOrSame:
		return !f.C || f.Z
	case SignedGreaterThanOrEqual:
		return f.N == f.V
	case SignedLessThan:
		return f.N != f.V
	case SignedGreaterThan:
		return !f.Z && f.N == f.V
	case SignedLessThanOrEqual:
		return f.Z || f.N != f.V
	case Always:
		return true
	default:
		return false
	}
}

// Evaluate compares two 32-bit words.
func (c Comparison) Evaluate(left, right uint32) bool {
	return c.Holds(FlagsFor(left, right))
}
