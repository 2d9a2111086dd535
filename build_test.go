package ctree

import (
	"context"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func ctrl(kind CtrlKind, ea uint64, children ...*CtrlNode) *CtrlNode {
	return &CtrlNode{Kind: kind, EA: ea, Label: -1, Children: children}
}

func blockNode(serial int, ea uint64) *CtrlNode {
	n := ctrl(CtrlBlock, ea)
	n.Block = serial
	return n
}

func lvOp(idx int) Mop          { return Mop{Kind: MopLvar, Size: 4, Lvar: idx} }
func numOp(v uint64, n int) Mop { return Mop{Kind: MopNum, Size: 4, Value: v, OpNum: n} }

// loopMba is
//
//	v1 = 0;
//	while ( v1 < a1 ) v1 = v1 + 16;
//	<two unknown instructions>
//	return v1;
func loopMba() *Mba {
	a1 := NewLvar("a1", RegLoc(8), BadAddr, IntType(4, Signed), 4, 0)
	a1.Flags |= CvarArg
	v1 := NewLvar("v1", StackLoc(8), 0x401000, IntType(4, Signed), 4, 1)

	loop := ctrl(CtrlWhile, 0x401004, blockNode(2, 0x401008))
	loop.Cond = &Mop{Kind: MopInsn, Insn: &Minsn{Op: MSetl, EA: 0x401004, L: lvOp(1), R: lvOp(0)}}
	ret := ctrl(CtrlReturn, 0x401018)
	ret.Value = &Mop{Kind: MopLvar, Size: 4, Lvar: 1}

	return &Mba{
		EntryEA: 0x401000,
		Blocks: []*Mblock{
			{Serial: 1, Start: 0x401000, End: 0x401004, Insns: []*Minsn{
				{Op: MMov, EA: 0x401000, L: numOp(0, 1), D: lvOp(1)},
			}},
			{Serial: 2, Start: 0x401008, End: 0x401010, Insns: []*Minsn{
				{Op: MAdd, EA: 0x401008, L: lvOp(1), R: numOp(16, 1), D: lvOp(1)},
			}},
			{Serial: 3, Start: 0x401010, End: 0x401018, Insns: []*Minsn{
				{Op: MExt, EA: 0x401010},
				{Op: MExt, EA: 0x401014},
			}},
		},
		Vars:      Lvars{a1, v1},
		ArgIdx:    []int{0},
		RetType:   IntType(4, Signed),
		Structure: ctrl(CtrlSeq, 0x401000, blockNode(1, 0x401000), loop, blockNode(3, 0x401010), ret),
	}
}

func buildFunc(t *testing.T, mba *Mba, prepare func(cf *Cfunc)) *Cfunc {
	t.Helper()
	cf := newCfunc(mba.EntryEA, &FlatTypes{PtrSize: 8})
	if prepare != nil {
		prepare(cf)
	}
	be.Err(t, cf.BuildCtree(context.Background(), mba, nil), nil)
	return cf
}

func TestBuildCtree(t *testing.T) {
	cf := buildFunc(t, loopMba(), nil)
	be.Equal(t, cf.Maturity, CmatFinal)
	be.Equal(t, strings.Join(cf.Pseudocode(), "\n"), strings.Join([]string{
		"int sub_401000(int a1)",
		"{",
		"  int v1; // stk(8)",
		"",
		"  v1 = 0;",
		"  while ( v1 < a1 )",
		"  {",
		"    v1 += 16;",
		"  }",
		"  __asm { 0x401010 0x401014 }",
		"  return v1;",
		"}",
	}, "\n"))
	be.Equal(t, len(cf.Warnings()), 0)
	be.Err(t, cf.Verify(false), nil)

	// the builder works on copies of the variables
	mba := loopMba()
	cf = buildFunc(t, mba, nil)
	cf.Vars[1].SetUserName("count")
	be.Equal(t, mba.Vars[1].Name, "v1")
}

func TestBuildCtreeKeepsAddresses(t *testing.T) {
	cf := buildFunc(t, loopMba(), nil)
	items := cf.FindByEA(0x401004)
	be.Equal(t, len(items), 4)
	be.Equal(t, items[0].Op(), InsnWhile)
	be.Equal(t, items[1].Op(), ExprSlt)
	be.Equal(t, items[2].Op(), ExprVar)

	asm := cf.FindByEA(0x401010)
	be.Equal(t, len(asm), 1)
	be.Equal(t, asm[0].(*Insn).AsmAddrs(), []uint64{0x401010, 0x401014})
}

func TestBuildCtreeAppliesNumforms(t *testing.T) {
	cf := buildFunc(t, loopMba(), func(cf *Cfunc) {
		cf.Numforms.Set(OperandLocator{EA: 0x401008, OpNum: 1}, NumberFormat{Flags: NumHex, OpNum: 1, Props: NfFixed})
	})
	be.Equal(t, cf.Pseudocode()[7], "    v1 += 0x10;")
	be.Equal(t, cf.Pseudocode()[4], "  v1 = 0;")
}

func TestBuildCtreeAppliesLvarSettings(t *testing.T) {
	mba := loopMba()
	lu := NewLvarUserVec()
	lu.SetInfo(LvarSavedInfo{LL: mba.Vars[1].LvarLocator, Name: "count", Cmt: "iterations"}, 4)
	lu.SetInfo(LvarSavedInfo{LL: mba.Vars[0].LvarLocator, Type: VoidType()}, 4)

	cf := newCfunc(mba.EntryEA, nil)
	be.Err(t, cf.BuildCtree(context.Background(), mba, lu), nil)
	lines := cf.Pseudocode()
	be.Equal(t, lines[2], "  int count; // stk(8); iterations")
	be.Equal(t, lines[len(lines)-2], "  return count;")

	ws := cf.Warnings()
	be.Equal(t, len(ws), 1)
	be.Equal(t, ws[0].ID, WarnBadVarsize)
	be.Equal(t, ws[0].EA, BadAddr)
}

func TestBuildCtreeMarksOverlappingVariables(t *testing.T) {
	mba := loopMba()
	mba.Vars = append(mba.Vars,
		NewLvar("v2", StackLoc(10), 0x401000, IntType(4, Signed), 4, 1),
		NewLvar("v3", StackLoc(16), 0x401000, IntType(4, Signed), 4, 1))
	cf := buildFunc(t, mba, nil)
	be.True(t, !cf.Vars[0].IsOverlappedVar())
	be.True(t, cf.Vars[1].IsOverlappedVar())
	be.True(t, cf.Vars[2].IsOverlappedVar())
	be.True(t, !cf.Vars[3].IsOverlappedVar())

	// the engine's variables are left alone
	be.True(t, !mba.Vars[1].IsOverlappedVar())
}

func TestBuildCtreeWarnsAboutUnknownLocations(t *testing.T) {
	mba := loopMba()
	mba.Blocks[0].Insns = []*Minsn{
		{Op: MMov, EA: 0x401000, L: Mop{Kind: MopReg, Reg: 0, Size: 4}, D: lvOp(1)},
		{Op: MMov, EA: 0x401002, L: numOp(1, 1), D: Mop{Kind: MopReg, Reg: 16, Size: 4}},
		{Op: MMov, EA: 0x401003, L: Mop{Kind: MopStack, Off: 32, Size: 4}, D: lvOp(1)},
	}
	cf := buildFunc(t, mba, nil)
	lines := cf.Pseudocode()
	be.Equal(t, lines[4], "  v1 = r0;")
	be.Equal(t, lines[5], "  r16 = 1;")
	be.Equal(t, lines[6], "  v1 = stk_20;")

	var ids []WarnID
	for _, w := range cf.Warnings() {
		ids = append(ids, w.ID)
	}
	be.Equal(t, ids, []WarnID{WarnUninitedReg, WarnOddInputReg, WarnFragLvar})
}

func TestBuildCtreeSelectsUnionMembers(t *testing.T) {
	types := &FlatTypes{
		PtrSize: 8,
		Objects: map[uint64]Type{0x403000: UnionType("value", 8)},
		Members: map[string]map[uint64]Type{"value": {
			0: FloatType(8),
			1: IntType(4, Unsigned),
		}},
	}
	mba := loopMba()
	mba.Blocks[0].Insns = []*Minsn{
		{Op: MMov, EA: 0x401000, L: Mop{Kind: MopGlobal, EA: 0x403000, Size: 4}, D: lvOp(1)},
	}

	cf := newCfunc(mba.EntryEA, types)
	cf.SetUserUnionSelection(0x401000, []int{1})
	be.Err(t, cf.BuildCtree(context.Background(), mba, nil), nil)
	be.Equal(t, cf.Pseudocode()[4], "  v1 = qword_403000.u1;")

	cf = newCfunc(mba.EntryEA, types)
	be.Err(t, cf.BuildCtree(context.Background(), mba, nil), nil)
	be.Equal(t, cf.Pseudocode()[4], "  v1 = (int)qword_403000.u0;")
}

func TestBuildCtreeReportsMaturity(t *testing.T) {
	bus := NewBus()
	var seen []Maturity
	bus.Subscribe(HandlerFunc(func(ev Event, args ...any) int {
		if ev == EvMaturity {
			seen = append(seen, args[1].(Maturity))
		}
		return 0
	}))
	buildFunc(t, loopMba(), func(cf *Cfunc) { cf.bus = bus })
	be.Equal(t, seen, []Maturity{
		CmatBuilt, CmatTrans1, CmatNice, CmatTrans2, CmatCPA, CmatTrans3, CmatCasted, CmatFinal,
	})
}

func TestBuildCtreeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus()
	var seen []Maturity
	bus.Subscribe(HandlerFunc(func(ev Event, args ...any) int {
		seen = append(seen, args[1].(Maturity))
		cancel()
		return 0
	}))
	cf := newCfunc(0x401000, nil)
	cf.bus = bus
	err := cf.BuildCtree(ctx, loopMba(), nil)
	be.Equal(t, CodeOf(err), MerrCanceled)
	be.Equal(t, seen, []Maturity{CmatBuilt})

	cf = newCfunc(0x401000, nil)
	err = cf.BuildCtree(ctx, loopMba(), nil)
	be.Equal(t, CodeOf(err), MerrCanceled)
	be.Equal(t, cf.Maturity, CmatZero)
}

func TestBuildCtreeRejectsBrokenStructure(t *testing.T) {
	mba := loopMba()
	mba.Structure.Children[1].Cond = nil

	defer func() {
		f, ok := recover().(*Failure)
		be.True(t, ok)
		be.Equal(t, f.Code, MerrInterr)
		be.Err(t, f, "while without a condition")
	}()
	newCfunc(mba.EntryEA, nil).BuildCtree(context.Background(), mba, nil)
}

func TestBuildCtreeSimplifies(t *testing.T) {
	mba := loopMba()
	// if ( a1 < v1 ) {} else return v1; goto 3; LABEL_3: return v1;
	test := ctrl(CtrlIf, 0x401004, ctrl(CtrlSeq, 0x401004), ctrl(CtrlReturn, 0x401006))
	test.Cond = &Mop{Kind: MopInsn, Insn: &Minsn{Op: MSetl, EA: 0x401004, L: lvOp(0), R: lvOp(1)}}
	test.Children[1].Value = &Mop{Kind: MopLvar, Size: 4, Lvar: 1}
	jump := ctrl(CtrlGoto, 0x40100c)
	jump.Target = 3
	tail := ctrl(CtrlReturn, 0x401010)
	tail.Value = &Mop{Kind: MopLvar, Size: 4, Lvar: 1}
	tail.Label = 3
	mba.Structure = ctrl(CtrlSeq, 0x401000, test, jump, tail)

	cf := buildFunc(t, mba, nil)
	be.Equal(t, cf.Pseudocode()[4:], []string{
		"  if ( a1 >= v1 )",
		"  {",
		"    return v1;",
		"  }",
		"  return v1;",
		"}",
	})
}

func TestSwitchMaxValue(t *testing.T) {
	be.Equal(t, switchMaxValue(NewNum(0, 1)), uint64(0x100))
	be.Equal(t, switchMaxValue(NewNum(0, 4)), uint64(0x100000000))
	be.Equal(t, switchMaxValue(NewNum(0, 8)), ^uint64(0))
}
