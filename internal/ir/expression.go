package ir

import "fmt"

// NodeID addresses a node inside the arena of its owning Graph.
type NodeID int32

// InvalidNode is the handle of nodes that live outside any graph, such as
// interned constants.
const InvalidNode NodeID = 0

// CanBeNull is a tri-state nullability fact.
type CanBeNull int

const (
	NullUnknown CanBeNull = iota
	NullYes
	NullNo
)

// Expression is a value-producing node.
type Expression interface {
	ID() NodeID
	Type() *TypeRepresentation
	CanBeNull() CanBeNull
	CanTakeAddress() bool
	Level(h LevelHelper) OperatorLevel

	// Clone returns the counterpart of the expression in ctx's destination
	// graph. Use CloningContext.CloneExpression instead of calling it
	// directly, so shared nodes keep their identity.
	Clone(ctx *CloningContext) Expression
	ApplyTransformation(ctx TransformationContext)
	String() string
}

// StorageClass tracks how far a variable has been lowered.
type StorageClass int

const (
	StorageVariable StorageClass = iota
	StoragePseudo
	StoragePhysical
	StorageStack
	StorageConditionCode
	StoragePhi
)

func (s StorageClass) String() string {
	switch s {
	case StorageVariable:
		return "variable"
	case StoragePseudo:
		return "pseudo"
	case StoragePhysical:
		return "physical"
	case StorageStack:
		return "stack"
	case StorageConditionCode:
		return "condition"
	case StoragePhi:
		return "phi"
	default:
		return fmt.Sprintf("StorageClass(%d)", int(s))
	}
}

func (s StorageClass) rank() int {
	switch s {
	case StorageVariable:
		return 0
	case StoragePseudo:
		return 1
	case StoragePhysical, StorageStack:
		return 2
	}
	return -1
}

// CanBecome reports whether a variable of class s may be replaced by one of
// class next. The progression is Variable, Pseudo, then Physical or Stack,
// never backwards and never from Physical to Stack. Phi and condition code
// variables are tags outside the progression and are not constrained.
func (s StorageClass) CanBecome(next StorageClass) bool {
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return true
	}
	if from == to {
		return s == next
	}
	return to > from
}

// VariableExpression is a named storage location.
type VariableExpression interface {
	Expression

	Graph() *Graph
	Number() int
	DebugInfo() *DebugInfo
	VariableKind() int
	StorageClass() StorageClass

	// AggregateVariable follows SourceVariable links to the variable that
	// owns the storage this one is a fragment of.
	AggregateVariable() VariableExpression
	IsTheSamePhysicalEntity(other VariableExpression) bool
	IsTheSameAggregate(other VariableExpression) bool

	variable() *variableBase
}

const (
	kindHighLevel     = 0
	kindPseudo        = 1
	kindPhysical      = 2
	kindConditionCode = 3
	kindStackIn       = 4
	kindStackLocal    = 5
	kindStackOut      = 6
)

type variableBase struct {
	id       NodeID
	graph    *Graph
	number   int
	typ      *TypeRepresentation
	debug    *DebugInfo
	nullable CanBeNull
	name     string

	self VariableExpression
}

func (v *variableBase) ID() NodeID                            { return v.id }
func (v *variableBase) Graph() *Graph                         { return v.graph }
func (v *variableBase) Number() int                           { return v.number }
func (v *variableBase) Type() *TypeRepresentation             { return v.typ }
func (v *variableBase) DebugInfo() *DebugInfo                 { return v.debug }
func (v *variableBase) CanBeNull() CanBeNull                  { return v.nullable }
func (v *variableBase) SetCanBeNull(n CanBeNull)              { v.nullable = n }
func (v *variableBase) Name() string                          { return v.name }
func (v *variableBase) variable() *variableBase               { return v }
func (v *variableBase) AggregateVariable() VariableExpression { return v.self }

func (v *variableBase) IsTheSamePhysicalEntity(other VariableExpression) bool {
	return other != nil && other.variable() == v
}

func (v *variableBase) IsTheSameAggregate(other VariableExpression) bool {
	return v.IsTheSamePhysicalEntity(other)
}

func (v *variableBase) transformCommon(ctx TransformationContext) {
	ctx.TransformType(&v.typ)
	ctx.TransformDebugInfo(&v.debug)
}

func (v *variableBase) label(prefix string) string {
	if v.name != "" {
		return fmt.Sprintf("%s%d(%s)", prefix, v.number, v.name)
	}
	return fmt.Sprintf("%s%d", prefix, v.number)
}

// highLevelVariable is shared by locals, arguments and temporaries.
type highLevelVariable struct {
	variableBase
}

func (v *highLevelVariable) VariableKind() int          { return kindHighLevel }
func (v *highLevelVariable) StorageClass() StorageClass { return StorageVariable }
func (v *highLevelVariable) CanTakeAddress() bool       { return true }

func (v *highLevelVariable) Level(h LevelHelper) OperatorLevel {
	if h.FitsInPhysicalRegister(v.typ) {
		return LevelScalarValues
	}
	return LevelConcreteTypesNoExceptions
}

func (v *highLevelVariable) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(v.self) {
		return
	}
	defer ctx.Pop()
	v.transformCommon(ctx)
}

// LocalVariableExpression is a local declared by the source method.
type LocalVariableExpression struct {
	highLevelVariable
}

func (v *LocalVariableExpression) String() string { return v.label("Local_") }

func (v *LocalVariableExpression) Clone(ctx *CloningContext) Expression {
	nv := ctx.Destination().AllocateLocal(ctx.ConvertType(v.typ), v.name, v.debug)
	ctx.Register(v, nv)
	nv.nullable = v.nullable
	return nv
}

// ArgumentVariableExpression is a method parameter. Index 0 is the
// receiver of instance methods.
type ArgumentVariableExpression struct {
	highLevelVariable
	Index int
}

func (v *ArgumentVariableExpression) String() string { return v.label("Arg_") }

func (v *ArgumentVariableExpression) Clone(ctx *CloningContext) Expression {
	nv := ctx.Destination().AllocateArgument(ctx.ConvertType(v.typ), v.Index, v.name, v.debug)
	ctx.Register(v, nv)
	nv.nullable = v.nullable
	return nv
}

// TemporaryVariableExpression is a compiler-introduced value.
type TemporaryVariableExpression struct {
	highLevelVariable
}

func (v *TemporaryVariableExpression) String() string { return v.label("Temp_") }

func (v *TemporaryVariableExpression) Clone(ctx *CloningContext) Expression {
	nv := ctx.Destination().AllocateTemporary(ctx.ConvertType(v.typ), v.debug)
	ctx.Register(v, nv)
	nv.nullable = v.nullable
	return nv
}

// lowLevelVariable can be a fragment of a larger aggregate.
type lowLevelVariable struct {
	variableBase
	sourceVar    VariableExpression
	sourceOffset int
}

func (v *lowLevelVariable) SourceVariable() VariableExpression { return v.sourceVar }
func (v *lowLevelVariable) SourceOffset() int                  { return v.sourceOffset }

// SetSource marks v as the fragment at offset of source.
func (v *lowLevelVariable) SetSource(source VariableExpression, offset int) {
	v.sourceVar = source
	v.sourceOffset = offset
}

func (v *lowLevelVariable) AggregateVariable() VariableExpression {
	if v.sourceVar != nil {
		return v.sourceVar.AggregateVariable()
	}
	return v.self
}

func (v *lowLevelVariable) IsTheSameAggregate(other VariableExpression) bool {
	if other == nil {
		return false
	}
	if v.self.IsTheSamePhysicalEntity(other) {
		return true
	}
	return v.AggregateVariable().variable() == other.AggregateVariable().variable()
}

func (v *lowLevelVariable) transformLowLevel(ctx TransformationContext) {
	v.transformCommon(ctx)
	ctx.TransformVariable(&v.sourceVar)
}

// cloneSource runs after the clone is registered so a fragment chain that
// loops back to the clone terminates.
func (v *lowLevelVariable) cloneSource(ctx *CloningContext, dst *lowLevelVariable) {
	dst.nullable = v.nullable
	if v.sourceVar != nil {
		dst.sourceVar = ctx.CloneVariable(v.sourceVar)
		dst.sourceOffset = v.sourceOffset
	}
}

// PseudoRegisterExpression is a virtual register not yet assigned.
type PseudoRegisterExpression struct {
	lowLevelVariable
}

func (v *PseudoRegisterExpression) VariableKind() int               { return kindPseudo }
func (v *PseudoRegisterExpression) StorageClass() StorageClass      { return StoragePseudo }
func (v *PseudoRegisterExpression) CanTakeAddress() bool            { return false }
func (v *PseudoRegisterExpression) Level(LevelHelper) OperatorLevel { return LevelScalarValues }
func (v *PseudoRegisterExpression) String() string                  { return v.label("$Temp_") }

func (v *PseudoRegisterExpression) Clone(ctx *CloningContext) Expression {
	nv := ctx.Destination().AllocatePseudoRegister(ctx.ConvertType(v.typ), v.debug)
	ctx.Register(v, nv)
	v.cloneSource(ctx, &nv.lowLevelVariable)
	return nv
}

func (v *PseudoRegisterExpression) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(v) {
		return
	}
	defer ctx.Pop()
	v.transformLowLevel(ctx)
}

// PhysicalRegisterExpression is bound to an architectural register.
type PhysicalRegisterExpression struct {
	lowLevelVariable
	reg *RegisterDescriptor
}

func (v *PhysicalRegisterExpression) Register() *RegisterDescriptor   { return v.reg }
func (v *PhysicalRegisterExpression) VariableKind() int               { return kindPhysical }
func (v *PhysicalRegisterExpression) StorageClass() StorageClass      { return StoragePhysical }
func (v *PhysicalRegisterExpression) CanTakeAddress() bool            { return false }
func (v *PhysicalRegisterExpression) Level(LevelHelper) OperatorLevel { return LevelRegisters }
func (v *PhysicalRegisterExpression) String() string                  { return "$" + v.reg.Name }

// IsTheSamePhysicalEntity is true for any expression bound to the same
// register descriptor.
func (v *PhysicalRegisterExpression) IsTheSamePhysicalEntity(other VariableExpression) bool {
	o, ok := other.(*PhysicalRegisterExpression)
	return ok && o.reg == v.reg
}

// IsTheSameAggregate additionally treats interfering registers, such as a
// double register and its two single halves, as one aggregate.
func (v *PhysicalRegisterExpression) IsTheSameAggregate(other VariableExpression) bool {
	if o, ok := other.(*PhysicalRegisterExpression); ok && v.reg.InterfersWith(o.reg) {
		return true
	}
	return v.lowLevelVariable.IsTheSameAggregate(other)
}

func (v *PhysicalRegisterExpression) Clone(ctx *CloningContext) Expression {
	nv := ctx.Destination().AllocatePhysicalRegister(v.reg, ctx.ConvertType(v.typ), v.debug)
	ctx.Register(v, nv)
	v.cloneSource(ctx, &nv.lowLevelVariable)
	return nv
}

func (v *PhysicalRegisterExpression) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(v) {
		return
	}
	defer ctx.Pop()
	v.transformLowLevel(ctx)
}

// StackPlacement says which frame area a stack slot lives in.
type StackPlacement int

const (
	PlacementIn StackPlacement = iota
	PlacementLocal
	PlacementOut
)

func (p StackPlacement) String() string {
	switch p {
	case PlacementIn:
		return "In"
	case PlacementLocal:
		return "Local"
	case PlacementOut:
		return "Out"
	default:
		return fmt.Sprintf("StackPlacement(%d)", int(p))
	}
}

// StackLocationExpression is a slot in the activation record.
type StackLocationExpression struct {
	lowLevelVariable
	placement StackPlacement
	offset    int
	allocated bool
}

func (v *StackLocationExpression) Placement() StackPlacement       { return v.placement }
func (v *StackLocationExpression) StorageClass() StorageClass      { return StorageStack }
func (v *StackLocationExpression) CanTakeAddress() bool            { return true }
func (v *StackLocationExpression) Level(LevelHelper) OperatorLevel { return LevelStackLocations }

// AllocationOffset reports the frame offset once one has been assigned.
func (v *StackLocationExpression) AllocationOffset() (int, bool) { return v.offset, v.allocated }

func (v *StackLocationExpression) SetAllocationOffset(offset int) {
	v.offset = offset
	v.allocated = true
}

func (v *StackLocationExpression) VariableKind() int {
	switch v.placement {
	case PlacementIn:
		return kindStackIn
	case PlacementOut:
		return kindStackOut
	default:
		return kindStackLocal
	}
}

func (v *StackLocationExpression) String() string {
	if v.allocated {
		return fmt.Sprintf("$Stack%s[%d]", v.placement, v.offset)
	}
	return v.label("$Stack" + v.placement.String() + "_")
}

// IsTheSamePhysicalEntity compares assigned frame slots. Unassigned slots
// only match themselves.
func (v *StackLocationExpression) IsTheSamePhysicalEntity(other VariableExpression) bool {
	o, ok := other.(*StackLocationExpression)
	if !ok {
		return false
	}
	if o == v {
		return true
	}
	return v.allocated && o.allocated && v.placement == o.placement && v.offset == o.offset
}

func (v *StackLocationExpression) Clone(ctx *CloningContext) Expression {
	nv := ctx.Destination().AllocateStackLocation(v.placement, ctx.ConvertType(v.typ), v.debug)
	ctx.Register(v, nv)
	nv.offset, nv.allocated = v.offset, v.allocated
	v.cloneSource(ctx, &nv.lowLevelVariable)
	return nv
}

func (v *StackLocationExpression) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(v) {
		return
	}
	defer ctx.Pop()
	v.transformLowLevel(ctx)
	ctx.TransformValue(&v.offset)
}

// ConditionCodeExpression holds the NZCV flags produced by a compare. There
// is a single flags register, so every instance is the same entity.
type ConditionCodeExpression struct {
	lowLevelVariable
}

func (v *ConditionCodeExpression) VariableKind() int               { return kindConditionCode }
func (v *ConditionCodeExpression) StorageClass() StorageClass      { return StorageConditionCode }
func (v *ConditionCodeExpression) CanTakeAddress() bool            { return false }
func (v *ConditionCodeExpression) Level(LevelHelper) OperatorLevel { return LevelRegisters }
func (v *ConditionCodeExpression) String() string                  { return "$CC" }

func (v *ConditionCodeExpression) IsTheSamePhysicalEntity(other VariableExpression) bool {
	_, ok := other.(*ConditionCodeExpression)
	return ok
}

func (v *ConditionCodeExpression) IsTheSameAggregate(other VariableExpression) bool {
	return v.IsTheSamePhysicalEntity(other)
}

func (v *ConditionCodeExpression) Clone(ctx *CloningContext) Expression {
	nv := ctx.Destination().AllocateConditionCode(v.debug)
	ctx.Register(v, nv)
	v.cloneSource(ctx, &nv.lowLevelVariable)
	return nv
}

func (v *ConditionCodeExpression) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(v) {
		return
	}
	defer ctx.Pop()
	v.transformLowLevel(ctx)
}

// PhiVariableExpression is one SSA version of Target.
type PhiVariableExpression struct {
	variableBase
	target  VariableExpression
	version int
}

func (v *PhiVariableExpression) Target() VariableExpression      { return v.target }
func (v *PhiVariableExpression) Version() int                    { return v.version }
func (v *PhiVariableExpression) StorageClass() StorageClass      { return StoragePhi }
func (v *PhiVariableExpression) CanTakeAddress() bool            { return false }
func (v *PhiVariableExpression) Level(LevelHelper) OperatorLevel { return LevelScalarValues }

// VariableKind groups phi versions next to each other by the variable they
// stand for. Distinct targets may collide; callers only use it as a sort key.
func (v *PhiVariableExpression) VariableKind() int {
	if v.target == nil {
		return 100
	}
	kind := 100
	if _, ok := v.target.(*PhiVariableExpression); !ok {
		kind = v.target.VariableKind()
	}
	return 100 + 1_000_000*kind + v.target.Number()
}

func (v *PhiVariableExpression) String() string {
	switch t := v.target.(type) {
	case nil:
		return fmt.Sprintf("Phi_%d", v.number)
	case *PhiVariableExpression:
		return fmt.Sprintf("Phi_%d_v%d", t.number, v.version)
	default:
		return fmt.Sprintf("%s_v%d", t, v.version)
	}
}

func (v *PhiVariableExpression) Clone(ctx *CloningContext) Expression {
	nv := ctx.Destination().allocatePhi(ctx.ConvertType(v.typ), v.version, v.debug)
	ctx.Register(v, nv)
	nv.nullable = v.nullable
	if v.target != nil {
		nv.target = ctx.CloneVariable(v.target)
	}
	return nv
}

func (v *PhiVariableExpression) ApplyTransformation(ctx TransformationContext) {
	if !ctx.Push(v) {
		return
	}
	defer ctx.Pop()
	v.transformCommon(ctx)
	ctx.TransformVariable(&v.target)
	ctx.TransformValue(&v.version)
}

// SetTarget rebinds v to target. Front ends use it to build phi chains.
func (v *PhiVariableExpression) SetTarget(target VariableExpression) {
	v.target = target
}

var (
	_ VariableExpression = (*LocalVariableExpression)(nil)
	_ VariableExpression = (*ArgumentVariableExpression)(nil)
	_ VariableExpression = (*TemporaryVariableExpression)(nil)
	_ VariableExpression = (*PseudoRegisterExpression)(nil)
	_ VariableExpression = (*PhysicalRegisterExpression)(nil)
	_ VariableExpression = (*StackLocationExpression)(nil)
	_ VariableExpression = (*ConditionCodeExpression)(nil)
	_ VariableExpression = (*PhiVariableExpression)(nil)
)
