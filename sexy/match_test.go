package sexy

import (
	"testing"

	"github.com/nalgeon/be"
)

func mustParse(t *testing.T, s string) *Node {
	t.Helper()
	n, err := Parse(s)
	be.Err(t, err, nil)
	return n
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		actual  string
	}{
		{"x", "x"},
		{"...", "(anything (at all))"},
		{"(add x 1)", "(add x 1)"},
		{"(add x 0x1)", "(add x 1)"},
		{"(block ...)", "(block)"},
		{"(block ...)", "(block a b c)"},
		{"(block ... (return))", "(block a b (return))"},
		{"(block (asg ...) ... (return ...))", "(block (asg x 1) (if y z) (return x))"},
		{"(goto ^{ea: 0x10} 1)", "(goto ^{ea: 0x10, label: 4} 1)"},
		{"(goto 1)", "(goto ^{ea: 0x10} 1)"},
		{`(helper "memcpy")`, `(helper "memcpy")`},
	}

	for _, test := range tests {
		t.Run(test.pattern, func(t *testing.T) {
			be.Err(t, Match(mustParse(t, test.pattern), mustParse(t, test.actual)), nil)
		})
	}
}

func TestMatchMismatch(t *testing.T) {
	tests := []struct {
		pattern string
		actual  string
		want    string
	}{
		{"x", "y", "at root: expected x, got y"},
		{"(add x 1)", "(add x 2)", "at root[2]: expected 1, got 2"},
		{"(add x 1)", "(add x)", "at root[2]: expected 1, got nothing"},
		{"(add x)", "(add x 1)", "at root: expected (add x), got (add x 1)"},
		{`"a"`, "a", "at root: expected"},
		{"(goto ^{ea: 0x10} 1)", "(goto 1)", "at root^: missing key ea"},
		{"(goto ^{ea: 0x10} 1)", "(goto ^{ea: 0x14} 1)", "at root^.ea: expected 0x10, got 0x14"},
		{"(block ... (return))", "(block (return) (break))", "at root"},
	}

	for _, test := range tests {
		t.Run(test.pattern, func(t *testing.T) {
			err := Match(mustParse(t, test.pattern), mustParse(t, test.actual))
			be.Err(t, err, test.want)
		})
	}
}
