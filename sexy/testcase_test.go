package sexy

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

const fence = "```"

func TestExtractTestCases_BasicTest(t *testing.T) {
	markdown := `# Assignments

## Test: plain
` + fence + `ctree
(asg x 1)
` + fence + `
` + fence + `sexpr
(asg x 1)
` + fence + `

## Test: compound
` + fence + `ctree
(asgadd x 1)
` + fence + `
` + fence + `text
x += 1;
` + fence

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 2)

	tc1 := testCases[0]
	be.Equal(t, tc1.Name, "plain")
	be.Equal(t, tc1.Input, "(asg x 1)")
	be.Equal(t, tc1.InputType, InputTypeCtree)
	be.Equal(t, len(tc1.Assertions), 1)
	be.Equal(t, tc1.Assertions[0].Type, AssertionTypeSexpr)
	be.Equal(t, tc1.Assertions[0].ParsedSexy.String(), "(asg x 1)")

	tc2 := testCases[1]
	be.Equal(t, tc2.Name, "compound")
	be.Equal(t, len(tc2.Assertions), 1)
	be.Equal(t, tc2.Assertions[0].Type, AssertionTypeText)
	be.Equal(t, tc2.Assertions[0].Content, "x += 1;")
	be.True(t, tc2.Assertions[0].ParsedSexy == nil)
}

func TestExtractTestCases_MultipleAssertions(t *testing.T) {
	markdown := `## Test: orders
` + fence + `ctree
(add x y)
` + fence + `
` + fence + `preorder
(add var var)
` + fence + `
` + fence + `postorder
(var var add)
` + fence + `
` + fence + `verify
ok
` + fence

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 1)

	tc := testCases[0]
	be.Equal(t, len(tc.Assertions), 3)
	be.Equal(t, tc.Assertions[0].Type, AssertionTypePreorder)
	be.Equal(t, tc.Assertions[0].ParsedSexy.String(), "(add var var)")
	be.Equal(t, tc.Assertions[1].Type, AssertionTypePostorder)
	be.Equal(t, tc.Assertions[2].Type, AssertionTypeVerify)
	be.Equal(t, tc.Assertions[2].Content, "ok")
}

func TestExtractTestCases_MultilineText(t *testing.T) {
	markdown := `## Test: lines
` + fence + `ctree
(if x (return))
` + fence + `
` + fence + `text
if ( x )
  return;
` + fence

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, testCases[0].Assertions[0].Content, "if ( x )\n  return;")
}

func TestExtractTestCases_EmptyFile(t *testing.T) {
	testCases, err := ExtractTestCases("")
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 0)
}

func TestExtractTestCases_NoTestCases(t *testing.T) {
	markdown := `# Notes

Some prose.

` + fence + `
plain block
` + fence

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 0)
}

func TestExtractTestCases_InvalidSexyAssertion(t *testing.T) {
	markdown := `## Test: broken
` + fence + `ctree
x
` + fence + `
` + fence + `sexpr
(unclosed
` + fence

	_, err := ExtractTestCases(markdown)
	be.Err(t, err, "failed to parse Sexy assertion")
}

func TestExtractTestCases_FenceOutsideTestCase(t *testing.T) {
	markdown := `# Intro
` + fence + `ctree
x
` + fence

	_, err := ExtractTestCases(markdown)
	be.Err(t, err, "fence found outside of test case")
}

func TestExtractTestCases_UnknownFenceLanguageInTest(t *testing.T) {
	markdown := `## Test: unknown
` + fence + `ctree
x
` + fence + `
` + fence + `ast
(x)
` + fence

	_, err := ExtractTestCases(markdown)
	be.Err(t, err, "unknown fence language 'ast'")
}

func TestExtractTestCases_TestMissingInputFence(t *testing.T) {
	markdown := `## Test: no input
` + fence + `text
x;
` + fence

	_, err := ExtractTestCases(markdown)
	be.Err(t, err, "has no input fence")
}

func TestExtractTestCases_TestMissingAssertionFence(t *testing.T) {
	markdown := `## Test: no assertion
` + fence + `ctree
x
` + fence

	_, err := ExtractTestCases(markdown)
	be.Err(t, err, "has no assertion fences")
}

func TestExtractTestCases_MultipleInputFences(t *testing.T) {
	markdown := `## Test: twice
` + fence + `ctree
x
` + fence + `
` + fence + `ctree
y
` + fence + `
` + fence + `verify
ok
` + fence

	_, err := ExtractTestCases(markdown)
	be.Err(t, err, "multiple input fences")
}

func TestExtractTestCases_AllowFencesWithoutLanguage(t *testing.T) {
	markdown := `## Test: prose fences
` + fence + `
commentary
` + fence + `
` + fence + `ctree
x
` + fence + `
` + fence + `verify
ok
` + fence

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, testCases[0].Input, "x")
}

func TestExtractTestCases_LineNumberAccuracy(t *testing.T) {
	markdown := `## Test: lines
` + fence + `ctree
x
` + fence + `

` + fence + `sexpr
(oops
` + fence

	// The reported line is the first content line of the fence.
	_, err := ExtractTestCases(markdown)
	be.Err(t, err, "line 7:")
}

func TestExtractTestCases_ErrorInSecondTest(t *testing.T) {
	markdown := `## Test: good
` + fence + `ctree
x
` + fence + `
` + fence + `verify
ok
` + fence + `

## Test: bad
` + fence + `ctree
y
` + fence

	_, err := ExtractTestCases(markdown)
	be.Err(t, err)
	be.True(t, strings.Contains(err.Error(), "'bad'"))
}

func TestExtractTestCases_NonTestHeadingsIgnored(t *testing.T) {
	markdown := `# Loops

## Background

## Test: while
` + fence + `ctree
(while x (break))
` + fence + `
` + fence + `preorder
(while var break)
` + fence

	testCases, err := ExtractTestCases(markdown)
	be.Err(t, err, nil)
	be.Equal(t, len(testCases), 1)
	be.Equal(t, testCases[0].Name, "while")
}
