package ctree

import (
	"testing"
	"time"

	"github.com/nalgeon/be"
)

const smallFunc = `(func ^{ea: 0x1000, name: "f"}
  (lvars (n "int" "stk(8)"))
  (block ^{ea: 0x1000}
    (asg ^{ea: 0x1004} n 1)
    (return ^{ea: 0x1008} n)))`

func mustFunc(t *testing.T, src string) *Cfunc {
	t.Helper()
	cf, err := ParseFunc(src, &FlatTypes{PtrSize: 8})
	be.Err(t, err, nil)
	return cf
}

func TestFromTreeWrapsBody(t *testing.T) {
	cf := FromTree(0x10, NewReturn(nil), nil, nil)
	be.Equal(t, cf.Body.Op(), InsnBlock)
	be.Equal(t, cf.Body.EA, uint64(0x10))
	be.Equal(t, cf.Body.Block().Len(), 1)
	be.Equal(t, cf.Maturity, CmatBuilt)
	be.Equal(t, cf.Refs(), 1)
	be.Equal(t, cf.String(), "cfunc 0x10 (built, 0 vars)")

	vars := Lvars{
		NewLvar("a", RegLoc(0), BadAddr, IntType(4, Signed), 4, 0),
		NewLvar("v", RegLoc(4), 0x10, IntType(4, Signed), 4, 1),
		NewLvar("b", RegLoc(8), BadAddr, IntType(4, Signed), 4, 0),
	}
	vars[0].Flags |= CvarArg
	vars[2].Flags |= CvarArg
	cf = FromTree(0x10, nil, vars, nil)
	be.Equal(t, cf.ArgIdx, []int{0, 2})
	be.True(t, cf.Body.Block().Empty())
}

func TestReferenceCounting(t *testing.T) {
	cf := mustFunc(t, smallFunc)
	released := 0
	cf.onRelease = func(*Cfunc) { released++ }

	cf.Retain()
	be.Equal(t, cf.Refs(), 2)
	cf.Release()
	be.True(t, cf.Body != nil)
	be.Equal(t, released, 0)

	cf.Release()
	be.True(t, cf.Body == nil)
	be.Equal(t, released, 1)

	defer func() {
		f, ok := recover().(*Failure)
		be.True(t, ok)
		be.Err(t, f, "released too many times")
	}()
	cf.Release()
}

func TestPseudocodeLayout(t *testing.T) {
	cf := mustFunc(t, smallFunc)
	be.Equal(t, cf.Pseudocode(), []string{
		"void f()",
		"{",
		"  int n; // stk(8)",
		"",
		"  n = 1;",
		"  return n;",
		"}",
	})
	be.Equal(t, cf.HeaderLines(), 4)

	first := cf.Body.Block().Front()
	line, ok := cf.FindItemCoords(first)
	be.True(t, ok)
	be.Equal(t, line, 4)
	line, _ = cf.FindItemCoords(cf.Body.Block().Back())
	be.Equal(t, line, 5)
	_, ok = cf.FindItemCoords(NewBreak())
	be.True(t, !ok)

	cf.HideLvars(true)
	be.Equal(t, cf.HeaderLines(), 2)
	be.Equal(t, len(cf.Pseudocode()), 5)
	be.True(t, cf.State()&CfsLvarsHidden != 0)
}

func TestPseudocodeIsCachedUntilChanged(t *testing.T) {
	cf := mustFunc(t, smallFunc)
	cf.bus = NewBus()
	var events []Event
	cf.bus.Subscribe(HandlerFunc(func(ev Event, args ...any) int {
		events = append(events, ev)
		be.True(t, args[0] == any(cf))
		return 0
	}))

	cf.Pseudocode()
	cf.Pseudocode()
	be.Equal(t, events, []Event{EvPrintFunc, EvFuncPrinted})
	be.True(t, cf.State()&CfsText != 0)

	cf.SetUserCmt(TreeLoc{EA: 0x1004, Itp: ItpSemi}, "start")
	be.True(t, cf.State()&CfsText == 0)
	be.Equal(t, cf.Pseudocode()[4], "  n = 1; // start")
	be.Equal(t, len(events), 4)

	err := cf.Mutate(func(cf *Cfunc) error {
		cf.Body.Block().Back().Expr().ReplaceBy(NewNum(0, 4))
		return nil
	})
	be.Err(t, err, nil)
	be.True(t, cf.State()&(CfsText|CfsBounds) == 0)
	be.Equal(t, cf.Pseudocode()[5], "  return 0;")
}

func TestReadHoldsTheTree(t *testing.T) {
	cf := mustFunc(t, smallFunc)
	n := 0
	err := cf.Read(func(cf *Cfunc) error {
		n = CountItems(cf.Body)
		return nil
	})
	be.Err(t, err, nil)
	be.Equal(t, n, 7)
}

func TestEAMapAndBoundaries(t *testing.T) {
	cf := mustFunc(t, smallFunc)
	stmt := cf.Body.Block().Front()

	items := cf.FindByEA(0x1004)
	be.Equal(t, len(items), 2)
	be.True(t, items[0] == Item(stmt))
	be.True(t, items[1] == Item(stmt.Expr()))
	be.Equal(t, len(cf.FindByEA(0x1000)), 1)
	be.Equal(t, len(cf.FindByEA(0x2000)), 0)

	bounds := cf.Boundaries()
	be.Equal(t, bounds[stmt], []AddrRange{{0x1004, 0x1005}})
	be.Equal(t, bounds[cf.Body.Block().Back()], []AddrRange{{0x1008, 0x1009}})
	_, ok := bounds[cf.Body]
	be.True(t, !ok)
	be.True(t, cf.State()&CfsBounds != 0)
}

func TestMergeRanges(t *testing.T) {
	got := mergeRanges([]AddrRange{{5, 6}, {1, 2}, {2, 3}, {10, 11}, {1, 3}})
	be.Equal(t, got, []AddrRange{{1, 3}, {5, 6}, {10, 11}})
}

func TestOrphanComments(t *testing.T) {
	cf := mustFunc(t, smallFunc)
	cf.SetUserCmt(TreeLoc{EA: 0x1004, Itp: ItpSemi}, "kept")
	cf.SetUserCmt(TreeLoc{EA: 0x1000, Itp: ItpCurly1}, "entry")
	be.True(t, !cf.HasOrphanCmts())

	cf.SetUserCmt(TreeLoc{EA: 0x2000, Itp: ItpSemi}, "stale")
	be.True(t, cf.HasOrphanCmts())
	be.Equal(t, cf.DelOrphanCmts(), 1)
	be.True(t, !cf.HasOrphanCmts())
	be.Equal(t, cf.UserCmts.Len(), 2)
	be.Equal(t, cf.GetUserCmt(TreeLoc{EA: 0x1004, Itp: ItpSemi}, RetrieveAlways), "kept")
}

func TestLabels(t *testing.T) {
	cf := mustFunc(t, `(block
		(expr ^{label: 1} (asg n 1))
		(expr ^{label: 2} (asg n 2))
		(goto 1))`)
	be.True(t, cf.FindLabel(2) == Item(cf.Body.Block().Front().Next()))
	be.True(t, cf.FindLabel(3) == nil)
	be.True(t, cf.FindLabel(NoLabel) == nil)

	be.Err(t, cf.Verify(false), "unused label 2")
	be.Err(t, cf.Verify(true), nil)
	be.Equal(t, cf.RemoveUnusedLabels(), 1)
	be.Err(t, cf.Verify(false), nil)
	be.True(t, cf.FindLabel(2) == nil)
}

func TestVerifyReportsFailures(t *testing.T) {
	cf := FromTree(0x10, NewExprInsn(NewBinary(ExprAsg, NewVar(5, IntType(4, Signed)), NewNum(1, 4))), nil, nil)
	err := cf.Verify(false)
	be.Err(t, err, "variable index 5 out of range")
	be.Equal(t, CodeOf(err), MerrInterr)

	var vars Lvars
	e := mustExpr(t, "(asg x (insn (block (return x))))", &vars)
	cf = FromTree(0x10, NewExprInsn(e), vars, nil)
	be.Err(t, cf.Verify(false), nil)
	cf.Maturity = CmatFinal
	be.Err(t, cf.Verify(false), "statement embedded in an expression")

	cf.Body = NewBreak()
	be.Err(t, cf.Verify(false), "function body is not a block")
}

func TestUserAnnotationAccessors(t *testing.T) {
	cf := mustFunc(t, smallFunc)
	loc := ItemLocator{EA: 0x1000, Op: InsnBlock}
	cf.SetUserIflags(loc, CitCollapsed)
	be.Equal(t, cf.GetUserIflags(loc), CitCollapsed)
	cf.SetUserIflags(loc, 0)
	be.Equal(t, cf.UserIflags.Len(), 0)

	path := []int{2, 1}
	cf.SetUserUnionSelection(0x1004, path)
	path[0] = 9
	got := cf.GetUserUnionSelection(0x1004)
	be.Equal(t, got, []int{2, 1})
	got[1] = 9
	be.Equal(t, cf.GetUserUnionSelection(0x1004), []int{2, 1})

	cf.SetUserLabel(1, "retry")
	name, _ := cf.UserLabels.Get(1)
	be.Equal(t, name, "retry")
}

func TestPrintEventsMayCallBack(t *testing.T) {
	cf := mustFunc(t, smallFunc)
	cf.bus = NewBus()
	var found, header, line int
	var placed bool
	cf.bus.Subscribe(HandlerFunc(func(ev Event, args ...any) int {
		fn := args[0].(*Cfunc)
		switch ev {
		case EvPrintFunc:
			found = len(fn.FindByEA(0x1004))
			fn.State()
		case EvFuncPrinted:
			header = fn.HeaderLines()
			line, placed = fn.FindItemCoords(fn.Body.Block().Front())
		}
		return 0
	}))

	done := make(chan []string)
	go func() { done <- cf.Pseudocode() }()
	select {
	case lines := <-done:
		be.Equal(t, lines, cf.Pseudocode())
	case <-time.After(5 * time.Second):
		t.Fatal("Pseudocode did not return")
	}
	be.Equal(t, found, 2)
	be.Equal(t, header, 4)
	be.True(t, placed)
	be.Equal(t, line, 4)
}
