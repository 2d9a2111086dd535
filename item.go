// Package ctree models a decompiled function body as a typed, mutable
// tree of C-like expressions and statements, together with the traversal
// engine used to rewrite it, the location-keyed tables that let user
// annotations survive regeneration of the tree, the local variable model,
// and the reference-counted function object with its cache.
package ctree

import "fmt"

// BadAddr marks a missing address.
const BadAddr = ^uint64(0)

// NoLabel is the Label of an unlabeled item.
const NoLabel = -1

// Maturity is a monotonically increasing marker of how much rewriting a
// tree has undergone.
type Maturity uint8

const (
	CmatZero   Maturity = iota // does not exist
	CmatBuilt                  // just generated
	CmatTrans1                 // applied first wave of transformations
	CmatNice                   // nicefied expressions
	CmatTrans2                 // applied second wave of transformations
	CmatCPA                    // corrected pointer arithmetic
	CmatTrans3                 // applied third wave of transformations
	CmatCasted                 // added necessary casts
	CmatFinal                  // ready-to-use
)

var maturityNames = [...]string{"zero", "built", "trans1", "nice", "trans2", "cpa", "trans3", "casted", "final"}

func (m Maturity) String() string {
	if int(m) < len(maturityNames) {
		return maturityNames[m]
	}
	return fmt.Sprintf("maturity(%d)", int(m))
}

// ItemHeader is shared by expressions and statements.
type ItemHeader struct {
	EA    uint64 // address of the originating instruction
	Label int    // label number, NoLabel if absent; unique within a tree
	Index int    // display index, assigned during rendering only
	op    Ctype
}

func newHeader(op Ctype) ItemHeader {
	return ItemHeader{EA: BadAddr, Label: NoLabel, Index: -1, op: op}
}

// Op returns the item's discriminant.
func (h *ItemHeader) Op() Ctype { return h.op }

// IsExpr reports whether the item is an expression.
func (h *ItemHeader) IsExpr() bool { return IsExpr(h.op) }

// HasLabel reports whether the item carries a label.
func (h *ItemHeader) HasLabel() bool { return h.Label >= 0 }

func (h *ItemHeader) header() *ItemHeader { return h }

func (h *ItemHeader) reset(op Ctype) { *h = newHeader(op) }

// Item is a tree node: either an *Expr or an *Insn.
type Item interface {
	Op() Ctype
	IsExpr() bool
	header() *ItemHeader
}

// HeaderOf exposes the shared fields of any item.
func HeaderOf(it Item) *ItemHeader { return it.header() }

// AsExpr returns it as an expression, or nil.
func AsExpr(it Item) *Expr {
	e, _ := it.(*Expr)
	return e
}

// AsInsn returns it as a statement, or nil.
func AsInsn(it Item) *Insn {
	i, _ := it.(*Insn)
	return i
}
