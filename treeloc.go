package ctree

import (
	"cmp"
	"fmt"
)

// ItemPreciser tells apart commentable positions sharing one address.
// For example
//
//	if ( ... )    // cmt1
//	{             // cmt2
//	}             // cmt3
//	else          // cmt4
//
// puts four comments at the address of the if statement.
type ItemPreciser int32

const (
	ItpEmpty     ItemPreciser = 0
	ItpArg1      ItemPreciser = 1  // 64 slots, one per call argument
	ItpArg64     ItemPreciser = 64 // last call argument slot
	ItpBrace1    ItemPreciser = 65 // (
	ItpInnerLast              = ItpBrace1

	ItpAsm    ItemPreciser = 66 // __asm line
	ItpElse   ItemPreciser = 67 // else line
	ItpDo     ItemPreciser = 68 // do line
	ItpSemi   ItemPreciser = 69 // semicolon
	ItpCurly1 ItemPreciser = 70 // {
	ItpCurly2 ItemPreciser = 71 // }
	ItpBrace2 ItemPreciser = 72 // )
	ItpColon  ItemPreciser = 73 // label colon
	ItpBlock1 ItemPreciser = 74 // printed before the item
	ItpBlock2 ItemPreciser = 75 // printed after the item

	ItpCase ItemPreciser = 0x40000000 // switch case, low bits hold the value
	ItpSign ItemPreciser = 0x20000000 // with ItpCase: the case value is negative
)

// ArgItp returns the preciser of call argument n (0-based).
func ArgItp(n int) ItemPreciser {
	if n < 0 || n >= int(ItpArg64) {
		return ItpEmpty
	}
	return ItpArg1 + ItemPreciser(n)
}

// CaseItp returns the preciser of the switch case labeled v.
func CaseItp(v int64) ItemPreciser {
	if v < 0 {
		return ItpCase | ItpSign | ItemPreciser(-v&0x1fffffff)
	}
	return ItpCase | ItemPreciser(v&0x1fffffff)
}

// IsInner reports whether p designates a position inside an expression.
func (p ItemPreciser) IsInner() bool { return p <= ItpInnerLast }

func (p ItemPreciser) String() string {
	switch {
	case p&ItpCase != 0:
		v := int64(p &^ (ItpCase | ItpSign))
		if p&ItpSign != 0 {
			v = -v
		}
		return fmt.Sprintf("case(%d)", v)
	case p == ItpEmpty:
		return "empty"
	case p >= ItpArg1 && p <= ItpArg64:
		return fmt.Sprintf("arg%d", p-ItpArg1+1)
	}
	switch p {
	case ItpBrace1:
		return "brace1"
	case ItpAsm:
		return "asm"
	case ItpElse:
		return "else"
	case ItpDo:
		return "do"
	case ItpSemi:
		return "semi"
	case ItpCurly1:
		return "curly1"
	case ItpCurly2:
		return "curly2"
	case ItpBrace2:
		return "brace2"
	case ItpColon:
		return "colon"
	case ItpBlock1:
		return "block1"
	case ItpBlock2:
		return "block2"
	}
	return fmt.Sprintf("itp(%d)", int32(p))
}

// ParseItemPreciser is the inverse of ItemPreciser.String.
func ParseItemPreciser(s string) (ItemPreciser, error) {
	for p := ItpEmpty; p <= ItpBlock2; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	var v int64
	if _, err := fmt.Sscanf(s, "case(%d)", &v); err == nil {
		return CaseItp(v), nil
	}
	return 0, fmt.Errorf("unknown item preciser %q", s)
}

// TreeLoc is the key of a user comment.
type TreeLoc struct {
	EA  uint64       `json:"ea"`
	Itp ItemPreciser `json:"itp"`
}

func (l TreeLoc) Compare(o TreeLoc) int {
	if c := cmp.Compare(l.EA, o.EA); c != 0 {
		return c
	}
	return cmp.Compare(l.Itp, o.Itp)
}

func (l TreeLoc) String() string { return fmt.Sprintf("%#x/%s", l.EA, l.Itp) }

// OperandLocator is the key of a user number format: an instruction
// operand.
type OperandLocator struct {
	EA    uint64 `json:"ea"`
	OpNum int    `json:"opnum"`
}

func (l OperandLocator) Compare(o OperandLocator) int {
	if c := cmp.Compare(l.EA, o.EA); c != 0 {
		return c
	}
	return cmp.Compare(l.OpNum, o.OpNum)
}

// ItemLocator is the key of user item flags. Two items of the same kind at
// one address share a locator.
type ItemLocator struct {
	EA uint64 `json:"ea"`
	Op Ctype  `json:"op"`
}

// LocatorOf returns the locator of it.
func LocatorOf(it Item) ItemLocator {
	return ItemLocator{EA: it.header().EA, Op: it.Op()}
}

func (l ItemLocator) Compare(o ItemLocator) int {
	if c := cmp.Compare(l.EA, o.EA); c != 0 {
		return c
	}
	return cmp.Compare(l.Op, o.Op)
}

// Item flags stored in the user iflags table.
const (
	CitCollapsed int32 = 0x0001 // display the item in collapsed form
)

// CmtRetrieval selects whether an already emitted comment is returned
// again.
type CmtRetrieval uint8

const (
	RetrieveOnce   CmtRetrieval = iota // only if it has not been used yet
	RetrieveAlways                     // even if it has been used
)
