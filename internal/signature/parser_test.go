package signature

import (
	"errors"
	"strings"
	"testing"
)

func TestParseMapSignature(t *testing.T) {
	tests := []struct {
		sig  string
		want string
	}{
		{"string(string)", "X(string)"},
		{"void()", "X()"},
		{"string(int[])", "X(int[])"},
		{"string(int[][])", "X(int[][])"},
		{"string(int[0...,0...])", "X(int[,])"},
		{"string(int[,])", "X(int[,])"},
		{"string(string, System.Collections.Generic.ICollection`1<string>)", "X(string, ICollection`1)"},
		{"string(System.Collections.Generic.ICollection`1<string>)", "X(ICollection`1)"},
		{"string(System.Collections.Generic.Dictionary`2<string, int32>)", "X(Dictionary`2)"},
		{"bool(unsigned int64)", "X(UInt64)"},
		{"bool(unsigned int32)", "X(UInt32)"},
		{"bool(unsigned int16)", "X(UInt16)"},
		{"bool(unsigned int8)", "X(Byte)"},
		{"bool(int64)", "X(Int64)"},
		{"bool(int32)", "X(Int32)"},
		{"bool(int16)", "X(Int16)"},
		{"bool(int8)", "X(SByte)"},
		{"bool(float32, float64)", "X(float, double)"},
		{"int32(bool)", "X(Boolean)"},
		{"void(int32&)", "X(Int32&)"},
		{"void(System.String[]&)", "X(String[]&)"},
		{"void(Outer/Inner)", "X(Inner)"},
		{"void(System.Collections.Generic.List`1<string>/Enumerator)", "X(List`1+Enumerator)"},
		{"System.Collections.Generic.List`1<int32>(object)", "X(object)"},
	}

	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			sig, err := ParseMapSignature(tt.sig, "X")
			if err != nil {
				t.Fatalf("ParseMapSignature(%q) error = %v", tt.sig, err)
			}
			if got := sig.String(); got != tt.want {
				t.Errorf("ParseMapSignature(%q) = %q, want %q", tt.sig, got, tt.want)
			}
		})
	}
}

func TestParseMapSignatureKeepsMethodQualification(t *testing.T) {
	sig, err := ParseMapSignature("string(System.Collections.Generic.ICollection`1<string>)", "Acme.Orders.OrderService.a")
	if err != nil {
		t.Fatalf("ParseMapSignature() error = %v", err)
	}
	if sig.MethodName != "Acme.Orders.OrderService.a" {
		t.Errorf("MethodName = %q, want fully qualified name", sig.MethodName)
	}
	if got, want := sig.String(), "Acme.Orders.OrderService.a(ICollection`1)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseStackTraceLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"at System.Decimal.op_Division(Decimal d1, Decimal d2)", "System.Decimal.op_Division(Decimal, Decimal)"},
		{"at System.Decimal.FCallDivide(Decimal& result, Decimal d1, Decimal d2)", "System.Decimal.FCallDivide(Decimal&, Decimal, Decimal)"},
		{"   at a.b.c()", "a.b.c()"},
		{"at A.B(System.String[] args)", "A.B(String[])"},
		{"at A.B(Int32[,] grid)", "A.B(Int32[,])"},
		{"at A.B(List`1 items, IDictionary`2 map)", "A.B(List`1, IDictionary`2)"},
		{"at A.B(Outer/Inner x)", "A.B(Inner)"},
		{"at A.B(String s) in C:\\src\\A.cs:line 42", "A.B(String)"},
		{"A.B(String s)", "A.B(String)"},
		{"at\tA.B(String s)", "A.B(String)"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			sig, err := ParseStackTraceLine(tt.line)
			if err != nil {
				t.Fatalf("ParseStackTraceLine(%q) error = %v", tt.line, err)
			}
			if got := sig.String(); got != tt.want {
				t.Errorf("ParseStackTraceLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseStackTraceLineLocalisedAt(t *testing.T) {
	english, err := ParseStackTraceLine("at System.Decimal.op_Division(Decimal d1, Decimal d2)")
	if err != nil {
		t.Fatalf("english line: %v", err)
	}

	for _, prefix := range []string{"в", "bei", "à", "於", "場所", "@", "→"} {
		t.Run(prefix, func(t *testing.T) {
			line := prefix + " System.Decimal.op_Division(Decimal d1, Decimal d2)"
			sig, err := ParseStackTraceLine(line)
			if err != nil {
				t.Fatalf("ParseStackTraceLine(%q) error = %v", line, err)
			}
			if sig.String() != english.String() {
				t.Errorf("got %q, want %q", sig.String(), english.String())
			}
		})
	}
}

func TestParseStackTraceLineDropsParameterNames(t *testing.T) {
	sig, err := ParseStackTraceLine("at Foo.Bar(String secretName, Int32 count)")
	if err != nil {
		t.Fatalf("ParseStackTraceLine() error = %v", err)
	}
	for _, arg := range sig.Args {
		if strings.Contains(arg, "secretName") || strings.Contains(arg, "count") {
			t.Errorf("parameter name leaked into args: %v", sig.Args)
		}
	}
}

func TestPrimitiveResolution(t *testing.T) {
	tests := map[string]string{
		"int8":           "SByte",
		"unsigned int8":  "Byte",
		"int16":          "Int16",
		"unsigned int16": "UInt16",
		"int32":          "Int32",
		"unsigned int32": "UInt32",
		"int64":          "Int64",
		"unsigned int64": "UInt64",
		"float32":        "float",
		"float64":        "double",
		"bool":           "Boolean",
		"string":         "string",
		"ICollection":    "ICollection",
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			sig, err := ParseMapSignature("void("+in+")", "X")
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if len(sig.Args) != 1 || sig.Args[0] != want {
				t.Errorf("args = %v, want [%s]", sig.Args, want)
			}
		})
	}
}

func TestArraySuffixes(t *testing.T) {
	for _, base := range []string{"int32", "string", "System.Object", "System.Collections.Generic.List`1<string>"} {
		sig, err := ParseMapSignature("void("+base+")", "X")
		if err != nil {
			t.Fatalf("base %q: %v", base, err)
		}
		want := sig.Args[0]

		cases := map[string]string{
			base + "[]":           want + "[]",
			base + "[][]":         want + "[][]",
			base + "[0...,0...]":  want + "[,]",
			base + "[,][]":        want + "[,][]",
			base + "[0...,0...]&": want + "[,]&",
		}
		for in, expect := range cases {
			sig, err := ParseMapSignature("void("+in+")", "X")
			if err != nil {
				t.Errorf("%q: error = %v", in, err)
				continue
			}
			if sig.Args[0] != expect {
				t.Errorf("%q: got %q, want %q", in, sig.Args[0], expect)
			}
		}
	}
}

func TestSynthesisedArity(t *testing.T) {
	flags := ReturnType | GenericTypes
	sig, err := Parse("void(System.Collections.Generic.Dictionary<string, int32>, List<int32>)", flags, "X")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got, want := sig.String(), "X(Dictionary`2, List`1)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExplicitArityIsNotDuplicated(t *testing.T) {
	sig, err := ParseMapSignature("void(Dictionary`2<string, int32>)", "X")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if got, want := sig.Args[0], "Dictionary`2"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDialectsInIsolation(t *testing.T) {
	// The stack trace dialect has no generic argument lists.
	if _, err := ParseStackTraceLine("at A.B(List`1<String> xs)"); err == nil {
		t.Error("stack trace dialect accepted a generic argument list")
	}
	// The map dialect has no parameter names.
	if _, err := ParseMapSignature("void(string name)", "X"); err == nil {
		t.Error("map dialect accepted a parameter name")
	}
	// Without GenericArity a backtick is not part of a type.
	if _, err := Parse("void(List`1)", ReturnType, "X"); err == nil {
		t.Error("parser accepted arity marker without GenericArity")
	}
	if _, err := Parse("at A.B()", StackTrace, "A.B"); err == nil {
		t.Error("Parse accepted a supplied method name for a dialect that reads it")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		parse   func() (Signature, error)
		wantErr error
	}{
		{"unbalanced parens", func() (Signature, error) { return ParseMapSignature("string(int32", "X") }, ErrUnexpectedEndOfInput},
		{"missing comma", func() (Signature, error) { return ParseMapSignature("string(int32 int32)", "X") }, ErrUnexpectedToken},
		{"missing comma in trace", func() (Signature, error) { return ParseStackTraceLine("at A.B(Int32 a Int32 b)") }, ErrUnexpectedToken},
		{"missing parameter name", func() (Signature, error) { return ParseStackTraceLine("at A.B(Int32)") }, ErrUnexpectedToken},
		{"empty input", func() (Signature, error) { return ParseStackTraceLine("") }, ErrUnexpectedEndOfInput},
		{"no argument list", func() (Signature, error) { return ParseStackTraceLine("at A.B") }, ErrUnexpectedEndOfInput},
		{"native int", func() (Signature, error) { return ParseMapSignature("void(native int)", "X") }, ErrUnsupportedConstruct},
		{"native unsigned int", func() (Signature, error) { return ParseMapSignature("void(native unsigned int)", "X") }, ErrUnsupportedConstruct},
		{"unsigned native int", func() (Signature, error) { return ParseMapSignature("void(unsigned native int)", "X") }, ErrUnsupportedConstruct},
		{"unsigned float", func() (Signature, error) { return ParseMapSignature("void(unsigned float32)", "X") }, ErrUnsupportedConstruct},
		{"native return type", func() (Signature, error) { return ParseMapSignature("native int(int32)", "X") }, ErrUnsupportedConstruct},
		{"bad array suffix", func() (Signature, error) { return ParseMapSignature("void(int32[abc])", "X") }, ErrBadArraySuffix},
		{"truncated array suffix", func() (Signature, error) { return ParseMapSignature("void(int32[", "X") }, ErrUnexpectedEndOfInput},
		{"three dimensional array", func() (Signature, error) { return ParseMapSignature("void(int32[,,])", "X") }, ErrUnexpectedToken},
		{"arity without number", func() (Signature, error) { return ParseMapSignature("void(List`<string>)", "X") }, ErrUnexpectedToken},
		{"type starts with punctuation", func() (Signature, error) { return ParseMapSignature("void(<T>)", "X") }, ErrUnexpectedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := tt.parse()
			if err == nil {
				t.Fatalf("expected error, got signature %q", sig.String())
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not a *ParseError", err)
			}
			if sig.MethodName != "" || sig.Args != nil {
				t.Errorf("partial signature returned alongside error: %+v", sig)
			}
		})
	}
}

func TestBadArraySuffixDiagnostic(t *testing.T) {
	_, err := ParseMapSignature("void(int32[abc])", "X")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Kind != BadArraySuffix {
		t.Fatalf("Kind = %v, want BadArraySuffix", perr.Kind)
	}
	if perr.Offset != 11 {
		t.Errorf("Offset = %d, want 11", perr.Offset)
	}
	if !strings.Contains(perr.Error(), `"abc"`) {
		t.Errorf("message should name the offending token: %s", perr.Error())
	}
	want := "void(int32[abc])\n           ^"
	if perr.Caret() != want {
		t.Errorf("Caret() = %q, want %q", perr.Caret(), want)
	}
}

func TestUnexpectedTokenDetails(t *testing.T) {
	_, err := ParseMapSignature("string(int32 int32)", "X")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Expected != Comma.String() {
		t.Errorf("Expected = %q, want %q", perr.Expected, Comma.String())
	}
	if perr.Offset != 12 {
		t.Errorf("Offset = %d, want 12", perr.Offset)
	}
	if !strings.HasPrefix(perr.Found, "whitespace") {
		t.Errorf("Found = %q, want whitespace", perr.Found)
	}
}

func TestWithMethodName(t *testing.T) {
	obf, err := ParseMapSignature("void(string, int32)", "Acme.a.b")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	orig := obf.WithMethodName("Acme.Orders.Submit")
	if got, want := orig.String(), "Acme.Orders.Submit(string, Int32)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if obf.String() != "Acme.a.b(string, Int32)" {
		t.Errorf("original signature changed: %q", obf.String())
	}
	orig.Args[0] = "mutated"
	if obf.Args[0] != "string" {
		t.Error("WithMethodName shares the argument slice")
	}
}
