package ir

import "fmt"

// TypeKind classifies a TypeRepresentation.
type TypeKind int

const (
	KindVoid TypeKind = iota
	KindScalar
	KindValueType
	KindReference
	KindPointer
	KindEnum
)

func (k TypeKind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindScalar:
		return "scalar"
	case KindValueType:
		return "valuetype"
	case KindReference:
		return "reference"
	case KindPointer:
		return "pointer"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("TypeKind(%d)", int(k))
	}
}

// BuiltInType identifies the primitive behind a scalar type.
type BuiltInType int

const (
	BuiltInNone BuiltInType = iota
	BuiltInI1
	BuiltInU1
	BuiltInI2
	BuiltInU2
	BuiltInI4
	BuiltInU4
	BuiltInI8
	BuiltInU8
	BuiltInR4
	BuiltInR8
	BuiltInBoolean
	BuiltInChar
	BuiltInI
	BuiltInU
)

func (b BuiltInType) signed() bool {
	switch b {
	case BuiltInI1, BuiltInI2, BuiltInI4, BuiltInI8, BuiltInI:
		return true
	}
	return false
}

func (b BuiltInType) floating() bool {
	return b == BuiltInR4 || b == BuiltInR8
}

// TypeRepresentation is the minimal view of a managed type the IR needs.
type TypeRepresentation struct {
	Name       string
	Kind       TypeKind
	BuiltIn    BuiltInType
	Size       int
	Base       *TypeRepresentation
	Interfaces []*TypeRepresentation
}

func (t *TypeRepresentation) String() string {
	if t == nil {
		return "<nil type>"
	}
	return t.Name
}

func (t *TypeRepresentation) IsVoid() bool      { return t == nil || t.Kind == KindVoid }
func (t *TypeRepresentation) IsScalar() bool    { return t != nil && (t.Kind == KindScalar || t.Kind == KindEnum) }
func (t *TypeRepresentation) IsPointer() bool   { return t != nil && t.Kind == KindPointer }
func (t *TypeRepresentation) IsReference() bool { return t != nil && t.Kind == KindReference }

// IsValueType reports whether values of t are stored inline. Scalars, enums
// and structs are value types.
func (t *TypeRepresentation) IsValueType() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindScalar, KindValueType, KindEnum:
		return true
	}
	return false
}

// CanBeAssignedFrom reports whether a value of type src can be stored in a
// location of type t without conversion.
func (t *TypeRepresentation) CanBeAssignedFrom(src *TypeRepresentation) bool {
	if t == nil || src == nil {
		return t == src
	}
	if t == src {
		return true
	}
	if t.Kind != KindReference {
		return false
	}
	for cur := src; cur != nil; cur = cur.Base {
		if cur == t {
			return true
		}
		for _, itf := range cur.Interfaces {
			if itf == t {
				return true
			}
		}
	}
	return false
}

// MethodRepresentation is the minimal view of a managed method.
type MethodRepresentation struct {
	Name       string
	Owner      *TypeRepresentation
	IsStatic   bool
	IsVirtual  bool
	IsExported bool
	Inline     bool

	// ThisPlusArguments lists the parameter types. For instance methods the
	// first entry is the type of the receiver.
	ThisPlusArguments []*TypeRepresentation
	ReturnType        *TypeRepresentation

	// Graph holds the code body once the front end has produced one.
	Graph *Graph
}

func (m *MethodRepresentation) String() string {
	if m == nil {
		return "<nil method>"
	}
	if m.Owner != nil {
		return m.Owner.Name + "::" + m.Name
	}
	return m.Name
}

// TypeSystem is the registry of types and methods for one compilation. It
// also scopes the interning tables for annotations and constants.
type TypeSystem struct {
	types   map[string]*TypeRepresentation
	methods []*MethodRepresentation

	annotations *internTable[Annotation]
	constants   *internTable[*ConstantExpression]

	Void    *TypeRepresentation
	Boolean *TypeRepresentation
	Char    *TypeRepresentation
	Int8    *TypeRepresentation
	UInt8   *TypeRepresentation
	Int16   *TypeRepresentation
	UInt16  *TypeRepresentation
	Int32   *TypeRepresentation
	UInt32  *TypeRepresentation
	Int64   *TypeRepresentation
	UInt64  *TypeRepresentation
	Float32 *TypeRepresentation
	Float64 *TypeRepresentation
	IntPtr  *TypeRepresentation
	UIntPtr *TypeRepresentation
	Object  *TypeRepresentation
}

// NewTypeSystem returns a type system preloaded with the built-in types for
// a 32-bit target.
func NewTypeSystem() *TypeSystem {
	ts := &TypeSystem{
		types:       make(map[string]*TypeRepresentation),
		annotations: newInternTable[Annotation](),
		constants:   newInternTable[*ConstantExpression](),
	}

	scalar := func(name string, b BuiltInType, size int) *TypeRepresentation {
		return ts.MustDefine(&TypeRepresentation{Name: name, Kind: KindScalar, BuiltIn: b, Size: size})
	}

	ts.Void = ts.MustDefine(&TypeRepresentation{Name: "System.Void", Kind: KindVoid})
	ts.Boolean = scalar("System.Boolean", BuiltInBoolean, 1)
	ts.Char = scalar("System.Char", BuiltInChar, 2)
	ts.Int8 = scalar("System.SByte", BuiltInI1, 1)
	ts.UInt8 = scalar("System.Byte", BuiltInU1, 1)
	ts.Int16 = scalar("System.Int16", BuiltInI2, 2)
	ts.UInt16 = scalar("System.UInt16", BuiltInU2, 2)
	ts.Int32 = scalar("System.Int32", BuiltInI4, 4)
	ts.UInt32 = scalar("System.UInt32", BuiltInU4, 4)
	ts.Int64 = scalar("System.Int64", BuiltInI8, 8)
	ts.UInt64 = scalar("System.UInt64", BuiltInU8, 8)
	ts.Float32 = scalar("System.Single", BuiltInR4, 4)
	ts.Float64 = scalar("System.Double", BuiltInR8, 8)
	ts.IntPtr = scalar("System.IntPtr", BuiltInI, 4)
	ts.UIntPtr = scalar("System.UIntPtr", BuiltInU, 4)
	ts.Object = ts.MustDefine(&TypeRepresentation{Name: "System.Object", Kind: KindReference, Size: 4})
	return ts
}

// Define registers a type under its name.
func (ts *TypeSystem) Define(t *TypeRepresentation) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("ir: type must have a name")
	}
	if _, exists := ts.types[t.Name]; exists {
		return fmt.Errorf("ir: type %q already defined", t.Name)
	}
	ts.types[t.Name] = t
	return nil
}

// MustDefine is Define for built-in setup; it panics on a duplicate name.
func (ts *TypeSystem) MustDefine(t *TypeRepresentation) *TypeRepresentation {
	if err := ts.Define(t); err != nil {
		panic(err)
	}
	return t
}

// Lookup finds a type by name.
func (ts *TypeSystem) Lookup(name string) (*TypeRepresentation, bool) {
	t, ok := ts.types[name]
	return t, ok
}

// DefineClass registers a reference type deriving from base (Object when nil).
func (ts *TypeSystem) DefineClass(name string, base *TypeRepresentation) *TypeRepresentation {
	if base == nil {
		base = ts.Object
	}
	return ts.MustDefine(&TypeRepresentation{Name: name, Kind: KindReference, Size: 4, Base: base})
}

// DefineStruct registers a value type of the given size.
func (ts *TypeSystem) DefineStruct(name string, size int) *TypeRepresentation {
	return ts.MustDefine(&TypeRepresentation{Name: name, Kind: KindValueType, Size: size})
}

// PointerTo returns the unmanaged pointer type for elem, defining it on
// first use.
func (ts *TypeSystem) PointerTo(elem *TypeRepresentation) *TypeRepresentation {
	name := elem.Name + "*"
	if t, ok := ts.types[name]; ok {
		return t
	}
	return ts.MustDefine(&TypeRepresentation{Name: name, Kind: KindPointer, Size: 4, Base: elem})
}

// DefineMethod registers md with the type system.
func (ts *TypeSystem) DefineMethod(md *MethodRepresentation) *MethodRepresentation {
	if md.ReturnType == nil {
		md.ReturnType = ts.Void
	}
	ts.methods = append(ts.methods, md)
	return md
}

// Methods returns every registered method in definition order.
func (ts *TypeSystem) Methods() []*MethodRepresentation {
	return append([]*MethodRepresentation(nil), ts.methods...)
}

// ExportedMethods returns the methods whose names are visible to external
// object code.
func (ts *TypeSystem) ExportedMethods() []*MethodRepresentation {
	var out []*MethodRepresentation
	for _, md := range ts.methods {
		if md.IsExported {
			out = append(out, md)
		}
	}
	return out
}

// CreateUniqueAnnotation returns the canonical instance of an annotation
// equal to a.
func (ts *TypeSystem) CreateUniqueAnnotation(a Annotation) Annotation {
	return ts.annotations.intern(a)
}

// CreateConstant returns the canonical constant of type t holding value.
func (ts *TypeSystem) CreateConstant(t *TypeRepresentation, value any) *ConstantExpression {
	return ts.constants.intern(NewConstant(t, value))
}

// CreateNullPointer returns the interned null constant of type t.
func (ts *TypeSystem) CreateNullPointer(t *TypeRepresentation) *ConstantExpression {
	return ts.CreateConstant(t, nil)
}
