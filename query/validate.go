package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teranos/artificer/artifact"
)

// Known function names
const (
	FuncClassifiedByAnyOf        = "s-ramp:classifiedByAnyOf"
	FuncClassifiedByAllOf        = "s-ramp:classifiedByAllOf"
	FuncExactlyClassifiedByAnyOf = "s-ramp:exactlyClassifiedByAnyOf"
	FuncExactlyClassifiedByAllOf = "s-ramp:exactlyClassifiedByAllOf"
	FuncGetRelationshipAttribute = "s-ramp:getRelationshipAttribute"
	FuncGetTargetAttribute       = "s-ramp:getTargetAttribute"
	FuncMatches                  = "xp2:matches"
	FuncDerivedArtifacts         = "s-ramp:derivedArtifacts"
)

type funcPosition int

const (
	positionPredicate funcPosition = iota // boolean test
	positionValue                         // compared or tested for existence
	positionSubartifact                   // selects artifacts after '/'
)

type funcSpec struct {
	position funcPosition
	minArgs  int
	maxArgs  int // -1 for variadic
	// relationshipOnly functions need an enclosing relationship predicate
	relationshipOnly bool
}

var functions = map[string]funcSpec{
	FuncClassifiedByAnyOf:        {positionPredicate, 2, -1, false},
	FuncClassifiedByAllOf:        {positionPredicate, 2, -1, false},
	FuncExactlyClassifiedByAnyOf: {positionPredicate, 2, -1, false},
	FuncExactlyClassifiedByAllOf: {positionPredicate, 2, -1, false},
	FuncGetRelationshipAttribute: {positionValue, 2, 2, true},
	FuncGetTargetAttribute:       {positionValue, 2, 2, true},
	FuncMatches:                  {positionPredicate, 2, 2, false},
	FuncDerivedArtifacts:         {positionSubartifact, 0, 1, false},
}

// IsClassificationFunction reports whether name is one of the classifiedBy family
func IsClassificationFunction(name string) bool {
	switch name {
	case FuncClassifiedByAnyOf, FuncClassifiedByAllOf, FuncExactlyClassifiedByAnyOf, FuncExactlyClassifiedByAllOf:
		return true
	}
	return false
}

// Validate checks model and type names, function names and arity, and the
// positions functions may appear in. It resolves the LocationPath in place:
// //Type gets its model, and unknown ext types are marked Extended.
func Validate(q *Query) error {
	v := &validator{}
	if err := q.Accept(v); err != nil {
		return err
	}
	return nil
}

type validator struct {
	// depth of enclosing relationship predicates
	relationships int
}

func validationError(format string, args ...interface{}) *ParseError {
	return NewParseError(ErrorKindValidation, fmt.Sprintf(format, args...))
}

func (v *validator) VisitQuery(q *Query) error {
	if err := q.Path.Accept(v); err != nil {
		return err
	}
	if q.Predicate != nil {
		if err := q.Predicate.Accept(v); err != nil {
			return err
		}
	}
	if q.Sub != nil {
		return v.visitHop(q.Sub)
	}
	return nil
}

func (v *validator) VisitLocationPath(lp *LocationPath) error {
	if lp.AnyModel {
		if t, ok := artifact.LookupType(lp.Type); ok {
			lp.Model = t.Model
			return nil
		}
		if !artifact.IsValidExtendedName(lp.Type) {
			return validationError("invalid artifact type %q", lp.Type)
		}
		lp.Model = artifact.ModelExt
		lp.Extended = true
		return nil
	}

	if lp.Model == "" {
		return nil
	}
	if !artifact.IsModel(lp.Model) {
		return validationError("unknown artifact model %q", lp.Model).
			WithSuggestion("known models: " + strings.Join(artifact.Models(), ", "))
	}
	if lp.Type == "" {
		return nil
	}
	if _, ok := artifact.LookupTypeInModel(lp.Model, lp.Type); ok {
		return nil
	}
	if lp.Model == artifact.ModelExt {
		if _, builtin := artifact.LookupType(lp.Type); builtin || !artifact.IsValidExtendedName(lp.Type) {
			return validationError("invalid extended type %q", lp.Type)
		}
		lp.Extended = true
		return nil
	}
	err := validationError("artifact type %q is not in model %q", lp.Type, lp.Model)
	if t, ok := artifact.LookupType(lp.Type); ok {
		err.WithSuggestion(fmt.Sprintf("/%s/%s/%s", RootSegment, t.Model, t.Type))
	} else {
		err.WithSuggestion("types in " + lp.Model + ": " + typeNames(lp.Model))
	}
	return err
}

func typeNames(model string) string {
	types := artifact.TypesInModel(model)
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Type
	}
	return strings.Join(names, ", ")
}

// visitHop validates a '/' hop; its predicate filters relationship targets
func (v *validator) visitHop(s *SubartifactSet) error {
	if s.Function != nil {
		if err := v.checkFunction(s.Function, positionSubartifact); err != nil {
			return err
		}
		return nil
	}
	return s.Accept(v)
}

func (v *validator) VisitSubartifactSet(s *SubartifactSet) error {
	if s.Function != nil {
		return v.checkFunction(s.Function, positionSubartifact)
	}
	if strings.Contains(s.Relationship, ":") {
		return validationError("relationship name %q must not be prefixed", s.Relationship)
	}
	if s.Predicate != nil {
		v.relationships++
		err := s.Predicate.Accept(v)
		v.relationships--
		if err != nil {
			return err
		}
	}
	if s.Next != nil {
		return v.visitHop(s.Next)
	}
	return nil
}

func (v *validator) VisitOr(e *OrExpr) error {
	if err := e.Left.Accept(v); err != nil {
		return err
	}
	return e.Right.Accept(v)
}

func (v *validator) VisitAnd(e *AndExpr) error {
	if err := e.Left.Accept(v); err != nil {
		return err
	}
	return e.Right.Accept(v)
}

func (v *validator) VisitNot(e *NotExpr) error {
	return e.Inner.Accept(v)
}

func (v *validator) VisitComparison(c *Comparison) error {
	switch left := c.Left.(type) {
	case *PropertyRef:
		if err := left.Accept(v); err != nil {
			return err
		}
		if f, ok := artifact.LookupField(left.Name); ok && f.Kind == artifact.ValueBool && c.Op.Ordered() {
			return validationError("property %q is boolean and cannot be compared with %s", left.Name, c.Op)
		}
	case *FunctionCall:
		spec, err := v.lookupFunction(left)
		if err != nil {
			return err
		}
		if c.Op != "" && spec.position != positionValue {
			return validationError("%s is a boolean test and cannot be compared", left.QName())
		}
		position := positionPredicate
		if c.Op != "" || spec.position == positionValue {
			position = positionValue
		}
		if err := v.checkFunction(left, position); err != nil {
			return err
		}
	default:
		return validationError("comparison must start with a property or function")
	}

	if lit, ok := c.Right.(*Literal); ok {
		if lit.Kind == LiteralBool && c.Op.Ordered() {
			return validationError("boolean value cannot be compared with %s", c.Op)
		}
		if ref, ok := c.Left.(*PropertyRef); ok {
			if msg := fieldMismatch(ref.Name, lit); msg != "" {
				return validationError("%s", msg)
			}
		}
	}
	return nil
}

// fieldLiteral is the literal kind each core field kind compares against.
// Times are written as strings.
var fieldLiteral = map[artifact.ValueKind]LiteralKind{
	artifact.ValueString: LiteralString,
	artifact.ValueNumber: LiteralNumber,
	artifact.ValueBool:   LiteralBool,
	artifact.ValueTime:   LiteralString,
}

// fieldMismatch describes why lit cannot be compared with the core field name,
// or returns "". Custom properties take any kind.
func fieldMismatch(name string, lit *Literal) string {
	f, ok := artifact.LookupField(name)
	if !ok {
		return ""
	}
	if want := fieldLiteral[f.Kind]; lit.Kind != want {
		return fmt.Sprintf("property %q compares with %s values, got %s", name, want, lit.Kind)
	}
	return ""
}

func (v *validator) VisitRelationshipExpr(r *RelationshipExpr) error {
	return r.Set.Accept(v)
}

func (v *validator) VisitFunctionCall(f *FunctionCall) error {
	return v.checkFunction(f, positionValue)
}

func (v *validator) lookupFunction(f *FunctionCall) (funcSpec, *ParseError) {
	spec, ok := functions[f.QName()]
	if !ok {
		err := validationError("unknown function %s", f.QName())
		for _, s := range suggestFunctions(f.Name) {
			err.WithSuggestion(s)
		}
		return funcSpec{}, err
	}
	return spec, nil
}

func (v *validator) checkFunction(f *FunctionCall, position funcPosition) error {
	spec, err := v.lookupFunction(f)
	if err != nil {
		return err
	}
	name := f.QName()

	switch {
	case position == positionSubartifact && spec.position != positionSubartifact:
		return validationError("%s cannot select artifacts after '/'", name)
	case position != positionSubartifact && spec.position == positionSubartifact:
		return validationError("%s can only appear after '/'", name)
	}
	if spec.relationshipOnly && v.relationships == 0 {
		return validationError("%s is only valid inside a relationship predicate", name).
			WithSuggestion("relationshipName[" + name + "(., 'key') = 'value']")
	}
	if len(f.Args) < spec.minArgs || (spec.maxArgs >= 0 && len(f.Args) > spec.maxArgs) {
		return validationError("%s takes %s, got %d", name, arity(spec), len(f.Args))
	}

	switch {
	case IsClassificationFunction(name):
		if _, ok := f.Args[0].(*ContextItem); !ok {
			return validationError("first argument of %s must be '.'", name)
		}
		for _, a := range f.Args[1:] {
			if err := requireStringArg(name, a); err != nil {
				return err
			}
		}
	case name == FuncGetRelationshipAttribute || name == FuncGetTargetAttribute:
		if _, ok := f.Args[0].(*ContextItem); !ok {
			return validationError("first argument of %s must be '.'", name)
		}
		if err := requireStringArg(name, f.Args[1]); err != nil {
			return err
		}
	case name == FuncMatches:
		switch subject := f.Args[0].(type) {
		case *ContextItem:
		case *PropertyRef:
			if err := subject.Accept(v); err != nil {
				return err
			}
		default:
			return validationError("first argument of %s must be '.' or @property", name)
		}
		if err := requireStringArg(name, f.Args[1]); err != nil {
			return err
		}
	case name == FuncDerivedArtifacts:
		if len(f.Args) == 1 {
			if _, ok := f.Args[0].(*ContextItem); !ok {
				return validationError("argument of %s must be '.'", name)
			}
		}
	}
	return nil
}

func requireStringArg(fn string, n Node) error {
	switch a := n.(type) {
	case *Param, *Variable:
		return nil
	case *Literal:
		if a.Kind == LiteralString {
			return nil
		}
		return validationError("%s expects a string argument, got %s", fn, a.Kind)
	}
	return validationError("%s expects a string argument", fn)
}

func arity(s funcSpec) string {
	switch {
	case s.maxArgs < 0:
		return fmt.Sprintf("at least %d arguments", s.minArgs)
	case s.minArgs == s.maxArgs:
		return fmt.Sprintf("%d arguments", s.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", s.minArgs, s.maxArgs)
}

// suggestFunctions returns known functions whose local name shares a prefix with local
func suggestFunctions(local string) []string {
	var out []string
	lower := strings.ToLower(local)
	for name := range functions {
		l := strings.ToLower(name[strings.IndexByte(name, ':')+1:])
		if lower != "" && (strings.HasPrefix(l, lower) || strings.HasPrefix(lower, l) || strings.Contains(l, lower)) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (v *validator) VisitPropertyRef(r *PropertyRef) error {
	if strings.Contains(r.Name, ":") {
		return validationError("property name %q must not be prefixed", r.Name)
	}
	return nil
}

func (v *validator) VisitLiteral(*Literal) error         { return nil }
func (v *validator) VisitParam(*Param) error             { return nil }
func (v *validator) VisitVariable(*Variable) error       { return nil }
func (v *validator) VisitContextItem(*ContextItem) error { return nil }
