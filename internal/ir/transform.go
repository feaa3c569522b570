package ir

import "fmt"

// TransformationContext rewrites a graph in place. Nodes call Push on
// entry to ApplyTransformation and skip their body when it returns false,
// which happens when the node is already being transformed further up the
// stack (or, for walkers that visit once, was already visited).
type TransformationContext interface {
	Push(node any) bool
	Pop()
	Top() any
	Stack() []any
	TypeSystem() *TypeSystem
	Unique(an Annotation) Annotation
	Fail(format string, args ...any)

	TransformExpression(field *Expression)
	TransformVariable(field *VariableExpression)
	TransformExpressions(field *[]Expression)
	TransformVariables(field *[]VariableExpression)
	TransformOperator(field *Operator)
	TransformOperators(field *[]Operator)
	TransformBlock(field **BasicBlock)
	TransformBlocks(field *[]*BasicBlock)
	TransformAnnotations(field *[]Annotation)
	TransformDebugInfo(field **DebugInfo)
	TransformType(field **TypeRepresentation)
	TransformMethod(field **MethodRepresentation)
	// TransformValue receives a pointer to a plain field (integer, enum,
	// string, bool) for contexts that want to observe or rewrite it.
	TransformValue(field any)
}

// TransformGeneric rewrites *field through the Transform method matching
// its type. IR references recurse; anything else is passed to
// TransformValue.
func TransformGeneric[T any](ctx TransformationContext, field *T) {
	switch f := any(field).(type) {
	case *Expression:
		ctx.TransformExpression(f)
	case *VariableExpression:
		ctx.TransformVariable(f)
	case *[]Expression:
		ctx.TransformExpressions(f)
	case *[]VariableExpression:
		ctx.TransformVariables(f)
	case *Operator:
		ctx.TransformOperator(f)
	case *[]Operator:
		ctx.TransformOperators(f)
	case **BasicBlock:
		ctx.TransformBlock(f)
	case *[]*BasicBlock:
		ctx.TransformBlocks(f)
	case *[]Annotation:
		ctx.TransformAnnotations(f)
	case **DebugInfo:
		ctx.TransformDebugInfo(f)
	case **TypeRepresentation:
		ctx.TransformType(f)
	case **MethodRepresentation:
		ctx.TransformMethod(f)
	default:
		transformConcrete(ctx, field)
	}
}

// transformConcrete handles fields declared with a concrete node type, such
// as *ConditionCodeExpression. The rewritten value must keep that type.
func transformConcrete[T any](ctx TransformationContext, field *T) {
	switch v := any(*field).(type) {
	case VariableExpression:
		if isNilNode(*field) {
			return
		}
		var ve VariableExpression = v
		ctx.TransformVariable(&ve)
		t, ok := ve.(T)
		if !ok {
			ctx.Fail("cannot store %s in a field of type %T", ve, *field)
		}
		*field = t
	case Expression:
		if isNilNode(*field) {
			return
		}
		var ex Expression = v
		ctx.TransformExpression(&ex)
		t, ok := ex.(T)
		if !ok {
			ctx.Fail("cannot store %s in a field of type %T", ex, *field)
		}
		*field = t
	case Operator:
		if isNilNode(*field) {
			return
		}
		var op Operator = v
		ctx.TransformOperator(&op)
		t, ok := op.(T)
		if !ok {
			ctx.Fail("cannot store %s in a field of type %T", op, *field)
		}
		*field = t
	default:
		ctx.TransformValue(field)
	}
}

func isNilNode[T any](v T) bool {
	var zero T
	return any(v) == any(zero)
}

// Walker is the general TransformationContext. Without hooks it visits
// every reachable node and changes nothing.
type Walker struct {
	ts      *TypeSystem
	stack   []any
	active  map[any]bool
	visited map[any]bool

	// VisitOnce makes Push refuse nodes seen earlier in the walk, not only
	// nodes currently on the stack.
	VisitOnce bool

	// Rewrite, when it returns true, replaces an expression field with the
	// returned value. The replacement is not visited.
	Rewrite func(ex Expression) (Expression, bool)
	// OnVisit is called for every node the first time it is pushed.
	OnVisit func(node any)
	// OnValue observes plain fields.
	OnValue func(field any)
	// OnType and OnMethod may rewrite type and method references.
	OnType   func(t *TypeRepresentation) *TypeRepresentation
	OnMethod func(md *MethodRepresentation) *MethodRepresentation
}

func NewWalker(ts *TypeSystem) *Walker {
	return &Walker{
		ts:      ts,
		active:  make(map[any]bool),
		visited: make(map[any]bool),
	}
}

func (w *Walker) TypeSystem() *TypeSystem { return w.ts }

func (w *Walker) Push(node any) bool {
	if w.active[node] {
		return false
	}
	if w.VisitOnce && w.visited[node] {
		return false
	}
	first := !w.visited[node]
	w.active[node] = true
	w.visited[node] = true
	w.stack = append(w.stack, node)
	if first && w.OnVisit != nil {
		w.OnVisit(node)
	}
	return true
}

func (w *Walker) Pop() {
	Assert(len(w.stack) > 0, "transformation stack underflow")
	top := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	delete(w.active, top)
}

func (w *Walker) Top() any {
	if len(w.stack) == 0 {
		return nil
	}
	return w.stack[len(w.stack)-1]
}

func (w *Walker) Stack() []any { return append([]any(nil), w.stack...) }

// Depth is the number of nodes currently being transformed.
func (w *Walker) Depth() int { return len(w.stack) }

func (w *Walker) Unique(an Annotation) Annotation {
	if w.ts == nil {
		return an
	}
	return w.ts.CreateUniqueAnnotation(an)
}

// Fail raises an InternalError carrying the current node stack.
func (w *Walker) Fail(format string, args ...any) {
	stack := make([]string, len(w.stack))
	for i, n := range w.stack {
		stack[i] = fmt.Sprint(n)
	}
	panic(&InternalError{Message: fmt.Sprintf(format, args...), Stack: stack})
}

func (w *Walker) TransformExpression(field *Expression) {
	ex := *field
	if ex == nil {
		return
	}
	if w.Rewrite != nil {
		if repl, ok := w.Rewrite(ex); ok {
			*field = repl
			return
		}
	}
	ex.ApplyTransformation(w)
}

func (w *Walker) TransformVariable(field *VariableExpression) {
	v := *field
	if v == nil {
		return
	}
	if w.Rewrite != nil {
		if repl, ok := w.Rewrite(v); ok {
			rv, isVar := repl.(VariableExpression)
			if !isVar {
				w.Fail("cannot replace variable %s with %s", v, repl)
			}
			*field = rv
			return
		}
	}
	v.ApplyTransformation(w)
}

// TransformExpressions copies the slice before the first change so slices
// shared with other operators are left alone.
func (w *Walker) TransformExpressions(field *[]Expression) {
	in := *field
	var out []Expression
	for i, ex := range in {
		e := ex
		w.TransformExpression(&e)
		if e != ex {
			if out == nil {
				out = append([]Expression(nil), in...)
			}
			out[i] = e
		}
	}
	if out != nil {
		*field = out
	}
}

func (w *Walker) TransformVariables(field *[]VariableExpression) {
	in := *field
	var out []VariableExpression
	for i, v := range in {
		nv := v
		w.TransformVariable(&nv)
		if nv != v {
			if out == nil {
				out = append([]VariableExpression(nil), in...)
			}
			out[i] = nv
		}
	}
	if out != nil {
		*field = out
	}
}

func (w *Walker) TransformOperator(field *Operator) {
	if *field != nil {
		(*field).ApplyTransformation(w)
	}
}

func (w *Walker) TransformOperators(field *[]Operator) {
	for _, op := range append([]Operator(nil), *field...) {
		w.TransformOperator(&op)
	}
}

func (w *Walker) TransformBlock(field **BasicBlock) {
	if *field != nil {
		(*field).ApplyTransformation(w)
	}
}

func (w *Walker) TransformBlocks(field *[]*BasicBlock) {
	for _, bb := range *field {
		w.TransformBlock(&bb)
	}
}

func (w *Walker) TransformAnnotations(field *[]Annotation) {
	in := *field
	var out []Annotation
	changed := false
	for _, an := range in {
		na := an.ApplyTransformation(w)
		if na != an {
			changed = true
		}
		dup := false
		for _, o := range out {
			if o == na {
				dup = true
				changed = true
				break
			}
		}
		if !dup {
			out = append(out, na)
		}
	}
	if changed {
		*field = out
	}
}

func (w *Walker) TransformDebugInfo(field **DebugInfo) {
	if w.OnValue != nil {
		w.OnValue(field)
	}
}

func (w *Walker) TransformType(field **TypeRepresentation) {
	if w.OnType != nil && *field != nil {
		*field = w.OnType(*field)
	}
}

func (w *Walker) TransformMethod(field **MethodRepresentation) {
	if w.OnMethod != nil && *field != nil {
		*field = w.OnMethod(*field)
	}
}

func (w *Walker) TransformValue(field any) {
	if w.OnValue != nil {
		w.OnValue(field)
	}
}

// Scanner collects every node reachable from a starting point, each once,
// in visit order.
type Scanner struct {
	*Walker

	Expressions []Expression
	Operators   []Operator
	Blocks      []*BasicBlock
}

func NewScanner(ts *TypeSystem) *Scanner {
	s := &Scanner{Walker: NewWalker(ts)}
	s.VisitOnce = true
	s.OnVisit = func(node any) {
		switch n := node.(type) {
		case *BasicBlock:
			s.Blocks = append(s.Blocks, n)
		case Operator:
			s.Operators = append(s.Operators, n)
		case Expression:
			s.Expressions = append(s.Expressions, n)
		}
	}
	return s
}

// ScanGraph walks g from its entry block.
func (s *Scanner) ScanGraph(g *Graph) {
	entry := g.Entry()
	s.TransformBlock(&entry)
}

// Variables filters the collected expressions.
func (s *Scanner) Variables() []VariableExpression {
	var out []VariableExpression
	for _, ex := range s.Expressions {
		if v, ok := ex.(VariableExpression); ok {
			out = append(out, v)
		}
	}
	return out
}

// NewSubstitution returns a walker that replaces every expression that is
// a key of mapping by its value.
func NewSubstitution(ts *TypeSystem, mapping map[Expression]Expression) *Walker {
	w := NewWalker(ts)
	w.VisitOnce = true
	w.Rewrite = func(ex Expression) (Expression, bool) {
		repl, ok := mapping[ex]
		return repl, ok
	}
	return w
}

var (
	_ TransformationContext = (*Walker)(nil)
	_ TransformationContext = (*Scanner)(nil)
)
