package signature

import "strings"

// GrammarFlags selects the optional constructs a signature dialect exposes.
// Both dialects share one parser; the flags are fixed for the whole parse.
type GrammarFlags uint8

const (
	// ReturnType: a return type precedes the method name or argument list.
	ReturnType GrammarFlags = 1 << iota
	// MethodName: the method name is read from the input.
	MethodName
	// ParameterNames: every argument type is followed by whitespace and a name.
	ParameterNames
	// GenericArity: `N arity markers follow generic type names.
	GenericArity
	// GenericTypes: <T1, T2> argument lists follow generic type names.
	GenericTypes
	// AtPrefix: the input may start with an "at" marker (or a localised one).
	AtPrefix
	// ExplicitUnsigned is accepted for parity with map tooling; the
	// "unsigned" keyword is resolved in every dialect.
	ExplicitUnsigned
)

// Dialect presets.
const (
	MapFile    = ReturnType | GenericArity | GenericTypes
	StackTrace = AtPrefix | MethodName | GenericArity | ParameterNames
)

var flagNames = []struct {
	flag GrammarFlags
	name string
}{
	{ReturnType, "ReturnType"},
	{MethodName, "MethodName"},
	{ParameterNames, "ParameterNames"},
	{GenericArity, "GenericArity"},
	{GenericTypes, "GenericTypes"},
	{AtPrefix, "AtPrefix"},
	{ExplicitUnsigned, "ExplicitUnsigned"},
}

// Has reports whether every bit of flag is set in f.
func (f GrammarFlags) Has(flag GrammarFlags) bool {
	return f&flag == flag
}

func (f GrammarFlags) String() string {
	if f == 0 {
		return "None"
	}
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}
