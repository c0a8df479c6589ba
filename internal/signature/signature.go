// Package signature parses .NET method signatures from stack trace lines and
// from the type-signature dialect of Dotfuscator map files, normalising both
// into one canonical text form used as an exact lookup key.
//
// The canonical form is MethodName(Arg1, Arg2): the method name stays fully
// qualified while argument types keep only their last segment, primitive
// keywords are resolved (int32 -> Int32, unsigned int8 -> Byte), generic types
// carry their `N arity, nested types are joined with '+', and bounded array
// suffixes collapse to [,].
package signature

import (
	"slices"
	"strings"
)

// Signature is a method name and its ordered argument types.
type Signature struct {
	MethodName string   `json:"method_name" xml:"MethodName" yaml:"method_name"`
	Args       []string `json:"args" xml:"Args>Arg" yaml:"args"`
}

// String returns the canonical text, e.g. "System.Decimal.op_Division(Decimal, Decimal)".
func (s Signature) String() string {
	return s.MethodName + "(" + strings.Join(s.Args, ", ") + ")"
}

// WithMethodName returns a signature with the same arguments under a
// different method name.
func (s Signature) WithMethodName(name string) Signature {
	return Signature{MethodName: name, Args: slices.Clone(s.Args)}
}
