package ir

import (
	"fmt"
	"strings"
)

// Annotation is value-equality metadata attached to an operator. Instances
// are interned through TypeSystem.CreateUniqueAnnotation, so equal
// annotations share one object.
type Annotation interface {
	Hash() uint64
	Equal(other Annotation) bool
	Level(h LevelHelper) OperatorLevel

	Clone(ctx *CloningContext) Annotation
	// ApplyTransformation returns the annotation to keep on the operator.
	// Annotations are immutable; a rewrite yields a new interned instance.
	ApplyTransformation(ctx TransformationContext) Annotation
	String() string
}

// FixedLengthArrayAnnotation records a statically known array length.
type FixedLengthArrayAnnotation struct {
	Length int
}

func (a *FixedLengthArrayAnnotation) Hash() uint64 {
	return newHasher("fixed-length").writeInt(int64(a.Length)).sum()
}

func (a *FixedLengthArrayAnnotation) Equal(other Annotation) bool {
	o, ok := other.(*FixedLengthArrayAnnotation)
	return ok && o.Length == a.Length
}

func (a *FixedLengthArrayAnnotation) Level(LevelHelper) OperatorLevel { return LevelRegisters }

func (a *FixedLengthArrayAnnotation) Clone(ctx *CloningContext) Annotation {
	return ctx.UniqueAnnotation(a)
}

func (a *FixedLengthArrayAnnotation) ApplyTransformation(ctx TransformationContext) Annotation {
	n := a.Length
	ctx.TransformValue(&n)
	if n == a.Length {
		return a
	}
	return ctx.Unique(&FixedLengthArrayAnnotation{Length: n})
}

func (a *FixedLengthArrayAnnotation) String() string {
	return fmt.Sprintf("<FixedLength: %d>", a.Length)
}

type invalidation struct {
	Target VariableExpression
}

func (a *invalidation) hash(tag string) uint64 {
	h := newHasher(tag)
	if a.Target != nil {
		h.writeInt(int64(a.Target.ID()))
	}
	return h.sum()
}

func (a *invalidation) Level(h LevelHelper) OperatorLevel {
	if a.Target == nil {
		return LevelRegisters
	}
	return a.Target.Level(h)
}

// PreInvalidationAnnotation marks Target as clobbered before the operator
// executes.
type PreInvalidationAnnotation struct {
	invalidation
}

func NewPreInvalidation(target VariableExpression) *PreInvalidationAnnotation {
	return &PreInvalidationAnnotation{invalidation{Target: target}}
}

func (a *PreInvalidationAnnotation) Hash() uint64 { return a.hash("pre-invalidation") }

func (a *PreInvalidationAnnotation) Equal(other Annotation) bool {
	o, ok := other.(*PreInvalidationAnnotation)
	return ok && o.Target == a.Target
}

func (a *PreInvalidationAnnotation) Clone(ctx *CloningContext) Annotation {
	return ctx.UniqueAnnotation(NewPreInvalidation(ctx.CloneVariable(a.Target)))
}

func (a *PreInvalidationAnnotation) ApplyTransformation(ctx TransformationContext) Annotation {
	t := a.Target
	ctx.TransformVariable(&t)
	if t == a.Target {
		return a
	}
	return ctx.Unique(NewPreInvalidation(t))
}

func (a *PreInvalidationAnnotation) String() string {
	return fmt.Sprintf("<PreInvalidation: %s>", a.Target)
}

// PostInvalidationAnnotation marks Target as clobbered after the operator
// executes.
type PostInvalidationAnnotation struct {
	invalidation
}

func NewPostInvalidation(target VariableExpression) *PostInvalidationAnnotation {
	return &PostInvalidationAnnotation{invalidation{Target: target}}
}

func (a *PostInvalidationAnnotation) Hash() uint64 { return a.hash("post-invalidation") }

func (a *PostInvalidationAnnotation) Equal(other Annotation) bool {
	o, ok := other.(*PostInvalidationAnnotation)
	return ok && o.Target == a.Target
}

func (a *PostInvalidationAnnotation) Clone(ctx *CloningContext) Annotation {
	return ctx.UniqueAnnotation(NewPostInvalidation(ctx.CloneVariable(a.Target)))
}

func (a *PostInvalidationAnnotation) ApplyTransformation(ctx TransformationContext) Annotation {
	t := a.Target
	ctx.TransformVariable(&t)
	if t == a.Target {
		return a
	}
	return ctx.Unique(NewPostInvalidation(t))
}

func (a *PostInvalidationAnnotation) String() string {
	return fmt.Sprintf("<PostInvalidation: %s>", a.Target)
}

// MemoryMappedPeripheralAnnotation tags an access to a device register
// block described by Peripheral.
type MemoryMappedPeripheralAnnotation struct {
	Peripheral *TypeRepresentation
}

func (a *MemoryMappedPeripheralAnnotation) Hash() uint64 {
	h := newHasher("peripheral")
	if a.Peripheral != nil {
		h.writeString(a.Peripheral.Name)
	}
	return h.sum()
}

func (a *MemoryMappedPeripheralAnnotation) Equal(other Annotation) bool {
	o, ok := other.(*MemoryMappedPeripheralAnnotation)
	return ok && o.Peripheral == a.Peripheral
}

func (a *MemoryMappedPeripheralAnnotation) Level(LevelHelper) OperatorLevel { return LevelRegisters }

func (a *MemoryMappedPeripheralAnnotation) Clone(ctx *CloningContext) Annotation {
	return ctx.UniqueAnnotation(&MemoryMappedPeripheralAnnotation{Peripheral: ctx.ConvertType(a.Peripheral)})
}

func (a *MemoryMappedPeripheralAnnotation) ApplyTransformation(ctx TransformationContext) Annotation {
	t := a.Peripheral
	ctx.TransformType(&t)
	if t == a.Peripheral {
		return a
	}
	return ctx.Unique(&MemoryMappedPeripheralAnnotation{Peripheral: t})
}

func (a *MemoryMappedPeripheralAnnotation) String() string {
	return fmt.Sprintf("<MemoryMappedPeripheral: %s>", a.Peripheral)
}

// InliningPathAnnotation lists the methods inlined to produce an operator,
// outermost first.
type InliningPathAnnotation struct {
	Path []*MethodRepresentation
}

func (a *InliningPathAnnotation) Hash() uint64 {
	h := newHasher("inlining-path")
	for _, md := range a.Path {
		h.writeString(md.String())
	}
	return h.sum()
}

func (a *InliningPathAnnotation) Equal(other Annotation) bool {
	o, ok := other.(*InliningPathAnnotation)
	if !ok || len(o.Path) != len(a.Path) {
		return false
	}
	for i := range a.Path {
		if a.Path[i] != o.Path[i] {
			return false
		}
	}
	return true
}

func (a *InliningPathAnnotation) Level(LevelHelper) OperatorLevel { return LevelRegisters }

// Extend returns the path with md appended.
func (a *InliningPathAnnotation) Extend(md *MethodRepresentation) *InliningPathAnnotation {
	path := make([]*MethodRepresentation, 0, len(a.Path)+1)
	path = append(path, a.Path...)
	return &InliningPathAnnotation{Path: append(path, md)}
}

func (a *InliningPathAnnotation) Clone(ctx *CloningContext) Annotation {
	path := make([]*MethodRepresentation, len(a.Path))
	for i, md := range a.Path {
		path[i] = ctx.ConvertMethod(md)
	}
	return ctx.UniqueAnnotation(&InliningPathAnnotation{Path: path})
}

func (a *InliningPathAnnotation) ApplyTransformation(ctx TransformationContext) Annotation {
	path := append([]*MethodRepresentation(nil), a.Path...)
	changed := false
	for i := range path {
		old := path[i]
		ctx.TransformMethod(&path[i])
		changed = changed || path[i] != old
	}
	if !changed {
		return a
	}
	return ctx.Unique(&InliningPathAnnotation{Path: path})
}

func (a *InliningPathAnnotation) String() string {
	names := make([]string, len(a.Path))
	for i, md := range a.Path {
		names[i] = md.String()
	}
	return "<InliningPath: " + strings.Join(names, " > ") + ">"
}

// NotNullAnnotation asserts that the operator's result is never null.
type NotNullAnnotation struct{}

func (a *NotNullAnnotation) Hash() uint64                    { return newHasher("not-null").sum() }
func (a *NotNullAnnotation) Level(LevelHelper) OperatorLevel { return LevelRegisters }
func (a *NotNullAnnotation) String() string                  { return "<NotNull>" }

func (a *NotNullAnnotation) Equal(other Annotation) bool {
	_, ok := other.(*NotNullAnnotation)
	return ok
}

func (a *NotNullAnnotation) Clone(ctx *CloningContext) Annotation { return ctx.UniqueAnnotation(a) }

func (a *NotNullAnnotation) ApplyTransformation(TransformationContext) Annotation { return a }

// DontRemoveAnnotation keeps an operator alive through dead code removal.
type DontRemoveAnnotation struct{}

func (a *DontRemoveAnnotation) Hash() uint64                    { return newHasher("dont-remove").sum() }
func (a *DontRemoveAnnotation) Level(LevelHelper) OperatorLevel { return LevelRegisters }
func (a *DontRemoveAnnotation) String() string                  { return "<DontRemove>" }

func (a *DontRemoveAnnotation) Equal(other Annotation) bool {
	_, ok := other.(*DontRemoveAnnotation)
	return ok
}

func (a *DontRemoveAnnotation) Clone(ctx *CloningContext) Annotation { return ctx.UniqueAnnotation(a) }

func (a *DontRemoveAnnotation) ApplyTransformation(TransformationContext) Annotation { return a }

var (
	_ Annotation = (*FixedLengthArrayAnnotation)(nil)
	_ Annotation = (*PreInvalidationAnnotation)(nil)
	_ Annotation = (*PostInvalidationAnnotation)(nil)
	_ Annotation = (*MemoryMappedPeripheralAnnotation)(nil)
	_ Annotation = (*InliningPathAnnotation)(nil)
	_ Annotation = (*NotNullAnnotation)(nil)
	_ Annotation = (*DontRemoveAnnotation)(nil)
)
