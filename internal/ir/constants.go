package ir

import (
	"fmt"
	"math"
)

// DelayedValue is a constant whose value is only known after layout, such
// as the address of a placed routine. Implementations must be comparable,
// typically pointers.
type DelayedValue interface {
	Resolve() (int64, bool)
}

// Placeholder is a DelayedValue filled in once by its producer.
type Placeholder struct {
	Name     string
	value    int64
	resolved bool
}

func NewPlaceholder(name string) *Placeholder { return &Placeholder{Name: name} }

func (p *Placeholder) Set(v int64) {
	p.value = v
	p.resolved = true
}

func (p *Placeholder) Resolve() (int64, bool) { return p.value, p.resolved }

func (p *Placeholder) String() string {
	if p.resolved {
		return fmt.Sprintf("%s=%#x", p.Name, p.value)
	}
	return p.Name + "=?"
}

// ConstantResult compares two delayed operands once both can be resolved.
// It evaluates to 1 when Condition holds and 0 otherwise.
type ConstantResult struct {
	Condition   Comparison
	Left, Right DelayedValue
}

func (r *ConstantResult) Resolve() (int64, bool) {
	l, ok := r.Left.Resolve()
	if !ok {
		return 0, false
	}
	rv, ok := r.Right.Resolve()
	if !ok {
		return 0, false
	}
	if r.Condition.Evaluate(uint32(l), uint32(rv)) {
		return 1, true
	}
	return 0, true
}

func (r *ConstantResult) String() string {
	return fmt.Sprintf("(%v %s %v)", r.Left, r.Condition, r.Right)
}

// ConstantExpression is an immutable literal. Integer payloads are stored
// as int64 or uint64 truncated to the width of the type, floats as float64.
// A nil value is the null reference.
type ConstantExpression struct {
	typ   *TypeRepresentation
	value any
}

// NewConstant builds a constant, normalizing value to the representation of
// t. It panics on payloads it cannot represent.
func NewConstant(t *TypeRepresentation, value any) *ConstantExpression {
	return &ConstantExpression{typ: t, value: normalizeConstant(t, value)}
}

func normalizeConstant(t *TypeRepresentation, value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case DelayedValue:
		return v
	case bool:
		if v {
			return truncate(t, 1)
		}
		return truncate(t, 0)
	case float32:
		return float64(v)
	case float64:
		if t != nil && t.BuiltIn.floating() {
			return v
		}
		return truncate(t, int64(v))
	case int:
		return truncate(t, int64(v))
	case int8:
		return truncate(t, int64(v))
	case int16:
		return truncate(t, int64(v))
	case int32:
		return truncate(t, int64(v))
	case int64:
		return truncate(t, v)
	case uint:
		return truncate(t, int64(v))
	case uint8:
		return truncate(t, int64(v))
	case uint16:
		return truncate(t, int64(v))
	case uint32:
		return truncate(t, int64(v))
	case uint64:
		return truncate(t, int64(v))
	case uintptr:
		return truncate(t, int64(v))
	default:
		Fail("unsupported constant payload %T", value)
		return nil
	}
}

func truncate(t *TypeRepresentation, v int64) any {
	size := 8
	signed := true
	if t != nil {
		if t.IsPointer() || t.IsReference() {
			return uint64(uint32(v))
		}
		if t.BuiltIn.floating() {
			return float64(v)
		}
		if t.Size > 0 && t.Size < 8 {
			size = t.Size
		}
		signed = t.BuiltIn.signed()
	}
	bits := uint(size * 8)
	if bits == 64 {
		if signed {
			return v
		}
		return uint64(v)
	}
	mask := uint64(1)<<bits - 1
	u := uint64(v) & mask
	if !signed {
		return u
	}
	sign := uint64(1) << (bits - 1)
	return int64(u^sign) - int64(sign)
}

func (c *ConstantExpression) ID() NodeID                { return InvalidNode }
func (c *ConstantExpression) Type() *TypeRepresentation { return c.typ }
func (c *ConstantExpression) CanTakeAddress() bool      { return false }
func (c *ConstantExpression) IsNull() bool              { return c.value == nil }

func (c *ConstantExpression) CanBeNull() CanBeNull {
	switch c.value.(type) {
	case nil:
		return NullYes
	case DelayedValue:
		return NullUnknown
	}
	return NullNo
}

// IsDelayed reports whether the value depends on a DelayedValue.
func (c *ConstantExpression) IsDelayed() bool {
	_, ok := c.value.(DelayedValue)
	return ok
}

// Value returns the payload. Delayed values are evaluated when possible;
// otherwise the DelayedValue itself is returned with ok false.
func (c *ConstantExpression) Value() (any, bool) {
	if d, ok := c.value.(DelayedValue); ok {
		v, ok := d.Resolve()
		if !ok {
			return d, false
		}
		return v, true
	}
	return c.value, true
}

func (c *ConstantExpression) AsSignedInteger() (int64, bool) {
	v, ok := c.Value()
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case nil:
		return 0, true
	}
	return 0, false
}

func (c *ConstantExpression) AsUnsignedInteger() (uint64, bool) {
	v, ok := c.AsSignedInteger()
	return uint64(v), ok
}

// IsZero is true for null, integer zero and floating zero.
func (c *ConstantExpression) IsZero() bool {
	switch x := c.value.(type) {
	case nil:
		return true
	case int64:
		return x == 0
	case uint64:
		return x == 0
	case float64:
		return x == 0
	}
	return false
}

func (c *ConstantExpression) Level(h LevelHelper) OperatorLevel {
	if h.FitsInPhysicalRegister(c.typ) {
		return LevelRegisters
	}
	return LevelConcreteTypesNoExceptions
}

// Clone returns c itself unless the cloning context maps its type.
func (c *ConstantExpression) Clone(ctx *CloningContext) Expression {
	t := ctx.ConvertType(c.typ)
	if t == c.typ {
		return c
	}
	return ctx.TypeSystem().constants.intern(&ConstantExpression{typ: t, value: c.value})
}

// ApplyTransformation visits the constant without modifying it; constants
// are shared between graphs and are replaced, never rewritten.
func (c *ConstantExpression) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(c) {
		return
	}
	defer ctx.Pop()
	t := c.typ
	ctx.TransformType(&t)
	v := c.value
	ctx.TransformValue(&v)
}

func (c *ConstantExpression) Hash() uint64 {
	h := newHasher("const")
	if c.typ != nil {
		h.writeString(c.typ.Name)
	}
	switch x := c.value.(type) {
	case nil:
		h.writeString("null")
	case int64:
		h.writeInt(x)
	case uint64:
		h.writeUint(x)
	case float64:
		h.writeUint(math.Float64bits(x))
	default:
		h.writeString("delayed")
	}
	return h.sum()
}

func (c *ConstantExpression) Equal(other *ConstantExpression) bool {
	if other == nil {
		return false
	}
	if c == other {
		return true
	}
	return c.typ == other.typ && c.value == other.value
}

func (c *ConstantExpression) String() string {
	switch x := c.value.(type) {
	case nil:
		return "<null>"
	case float64:
		return fmt.Sprintf("$Const(%s %g)", c.typ, x)
	case int64, uint64:
		return fmt.Sprintf("$Const(%s %d)", c.typ, x)
	default:
		return fmt.Sprintf("$Const(%s %v)", c.typ, x)
	}
}

var _ Expression = (*ConstantExpression)(nil)
