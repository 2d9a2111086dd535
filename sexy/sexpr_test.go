package sexy

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"test_var", "test_var"},
		{"func-name", "func-name"},
		{"asgadd", "asgadd"},
		{"x", "x"},
		{"-", "-"},
	}

	for _, test := range tests {
		result, err := Parse(test.input)
		be.Err(t, err, nil)

		be.Equal(t, result.Type, NodeSymbol)
		be.Equal(t, result.Text, test.expected)
		be.Equal(t, result.String(), test.expected)
	}
}

func TestParseString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		output   string
	}{
		{`"hello"`, "hello", `"hello"`},
		{`"hello world"`, "hello world", `"hello world"`},
		{`""`, "", `""`},
		{`"test\"quote"`, `test"quote`, `"test\"quote"`},
		{`"test\\backslash"`, `test\backslash`, `"test\\backslash"`},
		{`"a\nb\tc"`, "a\nb\tc", `"a\nb\tc"`},
	}

	for _, test := range tests {
		result, err := Parse(test.input)
		be.Err(t, err, nil)

		be.Equal(t, result.Type, NodeString)
		be.Equal(t, result.Text, test.expected)
		be.Equal(t, result.String(), test.output)
	}
}

func TestParseInteger(t *testing.T) {
	tests := []struct {
		input    string
		expected uint64
	}{
		{"42", 42},
		{"0", 0},
		{"-1", 0xFFFFFFFFFFFFFFFF},
		{"+456", 456},
		{"0x401000", 0x401000},
		{"0XFF", 0xFF},
		{"0o17", 15},
		{"0xFFFFFFFFFFFFFFFF", 0xFFFFFFFFFFFFFFFF},
	}

	for _, test := range tests {
		result, err := Parse(test.input)
		be.Err(t, err, nil)

		be.Equal(t, result.Type, NodeInteger)
		be.Equal(t, result.Text, test.input)
		be.Equal(t, result.String(), test.input)
		v, err := result.Uint()
		be.Err(t, err, nil)
		be.Equal(t, v, test.expected)
	}
}

func TestIntegerHelpers(t *testing.T) {
	be.Equal(t, Int(-3).String(), "-3")
	be.Equal(t, Hex(0x401000).String(), "0x401000")

	_, err := NewSymbol("x").Uint()
	be.Err(t, err)
}

func TestParseEllipsis(t *testing.T) {
	result, err := Parse("...")
	be.Err(t, err, nil)

	be.Equal(t, result.Type, NodeEllipsis)
	be.Equal(t, result.String(), "...")
}

func TestParseList(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"()", "()"},
		{"(hello)", "(hello)"},
		{"(1 2 3)", "(1 2 3)"},
		{"(add x 1)", "(add x 1)"},
		{"(if (eq x 0) (return))", "(if (eq x 0) (return))"},
	}

	for _, test := range tests {
		result, err := Parse(test.input)
		be.Err(t, err, nil)

		be.Equal(t, result.Type, NodeList)
		be.Equal(t, result.String(), test.expected)
	}
}

func TestParseMap(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"{}", "{}"},
		{"{ea: 0x10}", "{ea: 0x10}"},
		{"{ea: 0x10, label: 3}", "{ea: 0x10, label: 3}"},
		{"{name: \"x\",}", "{name: \"x\"}"},
	}

	for _, test := range tests {
		result, err := Parse(test.input)
		be.Err(t, err, nil)

		be.Equal(t, result.Type, NodeMap)
		be.Equal(t, result.String(), test.expected)
	}
}

func TestParseMeta(t *testing.T) {
	result, err := Parse("(goto ^{ea: 0x1004} 2)")
	be.Err(t, err, nil)

	be.Equal(t, result.Head(), "goto")
	be.Equal(t, len(result.Args()), 1)
	ea, ok := result.Meta("ea")
	be.True(t, ok)
	be.Equal(t, ea.String(), "0x1004")
	_, ok = result.Meta("label")
	be.True(t, !ok)
	be.Equal(t, result.String(), "(^{ea: 0x1004} goto 2)")
}

func TestParseMetaMerging(t *testing.T) {
	result, err := Parse("(^{ea: 1, label: 2} break ^{ea: 3})")
	be.Err(t, err, nil)

	be.Equal(t, result.MetaKeys, []string{"ea", "label"})
	ea, _ := result.Meta("ea")
	be.Equal(t, ea.Text, "3")
}

func TestSetMeta(t *testing.T) {
	n := NewList(NewSymbol("break"))
	n.SetMeta("ea", Hex(0x10)).SetMeta("label", Int(1)).SetMeta("ea", Hex(0x20))
	be.Equal(t, n.String(), "(^{ea: 0x20, label: 1} break)")
}

func TestRoundTripParsing(t *testing.T) {
	tests := []string{
		`(block (asg x 1) (if y (return x)) (asg z (add x y)))`,
		`(^{ea: 0x401000} func (lvars (x "int" "stk(8)" arg)) (block))`,
		`(switch x (case (1 2) (break)) (default (break)))`,
		`(call (helper "memcpy") (ref a) "text" (num 0xFF 1))`,
		`(block ... (return ...))`,
	}

	for _, input := range tests {
		first, err := Parse(input)
		be.Err(t, err, nil)
		second, err := Parse(first.String())
		be.Err(t, err, nil)
		be.Equal(t, second.String(), first.String())
	}
}

func TestParseAll(t *testing.T) {
	nodes, err := ParseAll("(a) b ; c\n 1")
	be.Err(t, err, nil)
	be.Equal(t, len(nodes), 3)
	be.Equal(t, nodes[1].Text, "b")

	nodes, err = ParseAll("  ; nothing\n")
	be.Err(t, err, nil)
	be.Equal(t, len(nodes), 0)
}

func TestParseComments(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"; comment\nhello", "hello"},
		{"hello ; trailing comment", "hello"},
		{"; tree of a statement\n(add 1 2)", "(add 1 2)"},
		{"(test ; inline comment\n world)", "(test world)"},
	}

	for _, test := range tests {
		result, err := Parse(test.input)
		be.Err(t, err, nil)
		be.Equal(t, result.String(), test.expected)
	}
}

func TestParserErrors(t *testing.T) {
	tests := []string{
		"(",           // unclosed list
		"{",           // unclosed map
		"(hello",      // unclosed list with content
		"(^ hello)",   // meta without map
		"{1: 2}",      // map key is not a symbol
		"{a 2}",       // missing colon
		"{a: 1 b: 2}", // missing comma
		"hello world", // two data
		"",            // no data
		")",           // stray paren
	}

	for _, test := range tests {
		_, err := Parse(test)
		be.Err(t, err)
	}
}

func TestSyntaxErrorHandling(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single dot", ".", "unexpected character '.'"},
		{"unknown character", "@", "unexpected character '@'"},
		{"dot within list", "(1 2 3 . 4)", "unexpected character '.'"},
		{"unterminated string", `"abc`, "unterminated string"},
		{"bad escape", `"a\qb"`, `invalid escape sequence: \q`},
		{"array brackets", "[1 2]", "unexpected character '['"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result, err := Parse(test.input)
			be.Err(t, err)
			be.Equal(t, err.Error(), test.expected)
			be.True(t, result == nil)
		})
	}
}

func TestNodeTypeHelpers(t *testing.T) {
	be.True(t, NewSymbol("test").IsAtom())
	be.True(t, NewString("hello").IsAtom())
	be.True(t, NewInteger("42").IsAtom())
	be.True(t, NewEllipsis().IsAtom())
	be.True(t, !NewList(NewSymbol("x")).IsAtom())
	be.True(t, !NewMap([]string{"key"}, []*Node{NewString("value")}).IsAtom())

	be.Equal(t, NewList().Head(), "")
	be.Equal(t, NewList(Int(1)).Head(), "")
	be.Equal(t, len(NewSymbol("x").Args()), 0)
}
