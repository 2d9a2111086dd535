package ctree

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// WarnID identifies a non-fatal degradation noticed while building a
// function. Warnings never abort the build.
type WarnID int

const (
	WarnVarargRegs   WarnID = iota // can not handle register arguments in vararg function, discarded them
	WarnIllPurged                  // odd caller purged bytes %d, correcting
	WarnIllFuncType                // invalid function type has been ignored
	WarnVarargTcal                 // can not handle tail call to vararg
	WarnVarargNostk                // call vararg without local stack
	WarnVarargMany                 // too many varargs, some ignored
	WarnAddrOutargs                // can not handle address arithmetics in outgoing argument area of stack frame
	WarnDepUnkCalls                // found interdependent unknown calls
	WarnIllEllipsis                // erroneously detected ellipsis type has been ignored
	WarnGuessedType                // using guessed type %s;
	WarnExpLinvar                  // failed to expand a linear variable
	WarnWidenChains                // failed to widen chains
	WarnBadPurged                  // inconsistent function type and number of purged bytes
	WarnCbuildLoops                // too many cbuild loops
	WarnNoSaveRest                 // could not find valid save-restore pair for %s
	WarnOddInputReg                // odd input register %s
	WarnOddAddrUse                 // odd use of a variable address
	WarnMustRetFP                  // function return type is incorrect (must be floating point)
	WarnIllFPUStack                // inconsistent fpu stack
	WarnSelfrefProp                // self-referencing variable has been detected
	WarnWouldOverlap               // variables would overlap: %s
	WarnArrayInarg                 // array has been used for an input argument
	WarnMaxArgs                    // too many input arguments, some ignored
	WarnBadFieldType               // incorrect structure member type for %s::%s, ignored
	WarnWriteConst                 // write access to const memory at %a has been detected
	WarnBadRetvar                  // wrong return variable
	WarnFragLvar                   // fragmented variable at %s may be wrong
	WarnHugeStkoff                 // exceedingly huge offset into the stack frame
	WarnUninitedReg                // reference to an uninitialized register has been removed: %s
	WarnFixedMacro                 // fixed broken macro-insn
	WarnWrongVaOff                 // wrong offset of va_list variable
	WarnCrNofield                  // CONTAINING_RECORD: no field '%s' in struct '%s' at %d
	WarnCrBadoff                   // CONTAINING_RECORD: too small offset %d for struct '%s'
	WarnBadStroff                  // user specified stroff has not been processed: %s
	WarnBadVarsize                 // inconsistent variable size for '%s'
	WarnUnsuppReg                  // unsupported processor register '%s'
	WarnUnalignedArg               // unaligned function argument '%s'
	WarnMax
)

var warnFormats = [WarnMax]string{
	"can not handle register arguments in vararg function, discarded them",
	"odd caller purged bytes %d, correcting",
	"invalid function type has been ignored",
	"can not handle tail call to vararg",
	"call vararg without local stack",
	"too many varargs, some ignored",
	"can not handle address arithmetics in outgoing argument area of stack frame",
	"found interdependent unknown calls",
	"erroneously detected ellipsis type has been ignored",
	"using guessed type %s;",
	"failed to expand a linear variable",
	"failed to widen chains",
	"inconsistent function type and number of purged bytes",
	"too many cbuild loops",
	"could not find valid save-restore pair for %s",
	"odd input register %s",
	"odd use of a variable address",
	"function return type is incorrect (must be floating point)",
	"inconsistent fpu stack",
	"self-referencing variable has been detected",
	"variables would overlap: %s",
	"array has been used for an input argument",
	"too many input arguments, some ignored",
	"incorrect structure member type for %s::%s, ignored",
	"write access to const memory at %#x has been detected",
	"wrong return variable",
	"fragmented variable at %s may be wrong",
	"exceedingly huge offset into the stack frame",
	"reference to an uninitialized register has been removed: %s",
	"fixed broken macro-insn",
	"wrong offset of va_list variable",
	"CONTAINING_RECORD: no field '%s' in struct '%s' at %d",
	"CONTAINING_RECORD: too small offset %d for struct '%s'",
	"user specified stroff has not been processed: %s",
	"inconsistent variable size for '%s'",
	"unsupported processor register '%s'",
	"unaligned function argument '%s'",
}

// Format renders the message of id with args.
func (id WarnID) Format(args ...any) string {
	if id < 0 || id >= WarnMax {
		return fmt.Sprintf("warning %d", int(id))
	}
	if len(args) == 0 {
		return warnFormats[id]
	}
	return fmt.Sprintf(warnFormats[id], args...)
}

// Warning is one accumulated degradation.
type Warning struct {
	EA   uint64
	ID   WarnID
	Text string
}

func (w Warning) String() string {
	return fmt.Sprintf("%#x: %s", w.EA, w.Text)
}

// CompareWarnings orders warnings by address, then id, then text.
func CompareWarnings(a, b Warning) int {
	if c := cmp.Compare(a.EA, b.EA); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return strings.Compare(a.Text, b.Text)
}

// Warnings is an ordered, duplicate-free warning list.
type Warnings struct {
	list []Warning
}

// Add records a warning; adding the same warning twice keeps one copy.
func (ws *Warnings) Add(ea uint64, id WarnID, args ...any) {
	w := Warning{EA: ea, ID: id, Text: id.Format(args...)}
	i, found := slices.BinarySearchFunc(ws.list, w, CompareWarnings)
	if found {
		return
	}
	ws.list = slices.Insert(ws.list, i, w)
}

// Merge adds every warning of other.
func (ws *Warnings) Merge(other []Warning) {
	for _, w := range other {
		i, found := slices.BinarySearchFunc(ws.list, w, CompareWarnings)
		if !found {
			ws.list = slices.Insert(ws.list, i, w)
		}
	}
}

func (ws *Warnings) Len() int { return len(ws.list) }

// List returns a copy of the warnings in order.
func (ws *Warnings) List() []Warning { return slices.Clone(ws.list) }

func (ws *Warnings) Clear() { ws.list = nil }
