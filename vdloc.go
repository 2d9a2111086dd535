package ctree

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// LocKind classifies a VdLoc.
type LocKind uint8

const (
	LocNone      LocKind = iota
	LocReg1              // single register
	LocReg2              // register pair, low half in Reg1
	LocStack             // stack offset from the minimal sp value
	LocScattered         // union of sub-locations
)

// VdLoc is where a variable lives. Registers are numbered per byte: a
// register of width w numbered r occupies register bytes [r, r+w).
type VdLoc struct {
	Kind  LocKind         `json:"kind"`
	Reg1  int             `json:"reg1,omitempty"`
	Reg2  int             `json:"reg2,omitempty"`
	Off   int64           `json:"off,omitempty"`
	Parts []ScatteredPart `json:"parts,omitempty"`
}

// ScatteredPart is one piece of a scattered location: Size bytes at Off
// inside the variable, stored at Loc.
type ScatteredPart struct {
	Loc  VdLoc `json:"loc"`
	Off  int   `json:"off"`
	Size int   `json:"size"`
}

func RegLoc(r int) VdLoc       { return VdLoc{Kind: LocReg1, Reg1: r} }
func Reg2Loc(lo, hi int) VdLoc { return VdLoc{Kind: LocReg2, Reg1: lo, Reg2: hi} }
func StackLoc(off int64) VdLoc { return VdLoc{Kind: LocStack, Off: off} }

func ScatteredLoc(parts ...ScatteredPart) VdLoc {
	return VdLoc{Kind: LocScattered, Parts: parts}
}

func (l VdLoc) IsReg() bool     { return l.Kind == LocReg1 || l.Kind == LocReg2 }
func (l VdLoc) IsStack() bool   { return l.Kind == LocStack }
func (l VdLoc) IsDefined() bool { return l.Kind != LocNone }

// Compare orders locations by kind, then by their payload.
func (l VdLoc) Compare(o VdLoc) int {
	if c := cmp.Compare(l.Kind, o.Kind); c != 0 {
		return c
	}
	switch l.Kind {
	case LocReg1:
		return cmp.Compare(l.Reg1, o.Reg1)
	case LocReg2:
		if c := cmp.Compare(l.Reg1, o.Reg1); c != 0 {
			return c
		}
		return cmp.Compare(l.Reg2, o.Reg2)
	case LocStack:
		return cmp.Compare(l.Off, o.Off)
	case LocScattered:
		return slices.CompareFunc(l.Parts, o.Parts, func(a, b ScatteredPart) int {
			if c := cmp.Compare(a.Off, b.Off); c != 0 {
				return c
			}
			if c := cmp.Compare(a.Size, b.Size); c != 0 {
				return c
			}
			return a.Loc.Compare(b.Loc)
		})
	}
	return 0
}

func (l VdLoc) Equal(o VdLoc) bool { return l.Compare(o) == 0 }

func (l VdLoc) String() string {
	switch l.Kind {
	case LocReg1:
		return "r" + strconv.Itoa(l.Reg1)
	case LocReg2:
		return fmt.Sprintf("r%d:r%d", l.Reg1, l.Reg2)
	case LocStack:
		return fmt.Sprintf("stk(%d)", l.Off)
	case LocScattered:
		parts := make([]string, len(l.Parts))
		for i, p := range l.Parts {
			parts[i] = fmt.Sprintf("%d.%d=%s", p.Off, p.Size, p.Loc)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "none"
}

// ParseVdLoc reads the String form of a non-scattered location.
func ParseVdLoc(s string) (VdLoc, error) {
	switch {
	case s == "none" || s == "":
		return VdLoc{}, nil
	case strings.HasPrefix(s, "stk(") && strings.HasSuffix(s, ")"):
		off, err := strconv.ParseInt(s[4:len(s)-1], 0, 64)
		if err != nil {
			return VdLoc{}, fmt.Errorf("bad stack offset in %q: %w", s, err)
		}
		return StackLoc(off), nil
	case strings.HasPrefix(s, "r"):
		lo, hi, pair := strings.Cut(s, ":")
		r1, err := strconv.Atoi(strings.TrimPrefix(lo, "r"))
		if err != nil {
			return VdLoc{}, fmt.Errorf("bad register in %q: %w", s, err)
		}
		if !pair {
			return RegLoc(r1), nil
		}
		r2, err := strconv.Atoi(strings.TrimPrefix(hi, "r"))
		if err != nil {
			return VdLoc{}, fmt.Errorf("bad register in %q: %w", s, err)
		}
		return Reg2Loc(r1, r2), nil
	}
	return VdLoc{}, fmt.Errorf("unknown location %q", s)
}

// span is the half-open byte range [start, end).
type span struct{ start, end int64 }

// storage is the bytes used by a located value: register bytes and stack
// bytes kept apart.
type storage struct {
	regs, stack []span
}

// occupied adds the register and stack bytes used by a value of width w
// stored at l.
func (l VdLoc) occupied(w int, st *storage) {
	switch l.Kind {
	case LocReg1:
		st.regs = addSpan(st.regs, int64(l.Reg1), w)
	case LocReg2:
		half := (w + 1) / 2
		st.regs = addSpan(st.regs, int64(l.Reg1), half)
		st.regs = addSpan(st.regs, int64(l.Reg2), w-half)
	case LocStack:
		st.stack = addSpan(st.stack, l.Off, w)
	case LocScattered:
		for _, p := range l.Parts {
			p.Loc.occupied(p.Size, st)
		}
	}
}

func addSpan(spans []span, start int64, n int) []span {
	if n <= 0 {
		return spans
	}
	return append(spans, span{start, start + int64(n)})
}

func storageOf(l VdLoc, w int) storage {
	var st storage
	l.occupied(w, &st)
	sortSpans(st.regs)
	sortSpans(st.stack)
	return st
}

func sortSpans(spans []span) {
	slices.SortFunc(spans, func(a, b span) int { return cmp.Compare(a.start, b.start) })
}

func (st *storage) intersects(o *storage) bool {
	return spansIntersect(st.regs, o.regs) || spansIntersect(st.stack, o.stack)
}

// spansIntersect reports whether two lists of spans sorted by start share
// a byte.
func spansIntersect(a, b []span) bool {
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i].end <= b[j].start:
			i++
		case b[j].end <= a[i].start:
			j++
		default:
			return true
		}
	}
	return false
}

// Overlap reports whether a value of width w1 at l1 and one of width w2 at
// l2 share any storage byte.
func Overlap(l1 VdLoc, w1 int, l2 VdLoc, w2 int) bool {
	s1, s2 := storageOf(l1, w1), storageOf(l2, w2)
	return s1.intersects(&s2)
}
