package ctree

import (
	"errors"
	"fmt"
	"strings"
)

// Merror is a decompilation result code. Zero means success.
type Merror int

const (
	MerrOK        Merror = 0   // ok
	MerrBlock     Merror = 1   // no error, switch to new block
	MerrInterr    Merror = -1  // internal error
	MerrInsn      Merror = -2  // can not convert to microcode
	MerrMem       Merror = -3  // not enough memory
	MerrBadBlk    Merror = -4  // bad block found
	MerrBadSP     Merror = -5  // positive sp value has been found
	MerrProlog    Merror = -6  // prolog analysis failed
	MerrSwitch    Merror = -7  // wrong switch idiom
	MerrException Merror = -8  // exception analysis failed
	MerrHugeStack Merror = -9  // stack frame is too big
	MerrLvars     Merror = -10 // local variable allocation failed
	MerrBitness   Merror = -11 // only 16/32/64bit functions can be decompiled
	MerrBadCall   Merror = -12 // could not determine call arguments
	MerrBadFrame  Merror = -13 // function frame is wrong
	MerrUnkType   Merror = -14 // undefined type
	MerrBadIDB    Merror = -15 // inconsistent database information
	MerrSizeof    Merror = -16 // wrong basic type sizes in compiler settings
	MerrRedo      Merror = -17 // redecompilation has been requested
	MerrCanceled  Merror = -18 // decompilation has been cancelled
	MerrRecDepth  Merror = -19 // max recursion depth reached during lvar allocation
	MerrOverlap   Merror = -20 // variables would overlap
	MerrPartInit  Merror = -21 // partially initialized variable
	MerrComplex   Merror = -22 // too complex function
	MerrLicense   Merror = -23 // no license available
	MerrOnly32    Merror = -24 // only 32-bit functions can be decompiled
	MerrOnly64    Merror = -25 // only 64-bit functions can be decompiled
	MerrBusy      Merror = -26 // already decompiling a function
	MerrFarPtr    Merror = -27 // far memory model is supported only for pc
	MerrExtern    Merror = -28 // special segments can not be decompiled
	MerrFuncSize  Merror = -29 // too big function
	MerrLoop      Merror = -30 // redo last loop, never reported
)

var merrorTexts = map[Merror]string{
	MerrOK:        "ok",
	MerrBlock:     "switch to new block",
	MerrInterr:    "internal error",
	MerrInsn:      "can not convert to microcode",
	MerrMem:       "not enough memory",
	MerrBadBlk:    "bad block found",
	MerrBadSP:     "positive sp value has been found",
	MerrProlog:    "prolog analysis failed",
	MerrSwitch:    "wrong switch idiom",
	MerrException: "exception analysis failed",
	MerrHugeStack: "stack frame is too big",
	MerrLvars:     "local variable allocation failed",
	MerrBitness:   "only 16/32/64bit functions can be decompiled",
	MerrBadCall:   "could not determine call arguments",
	MerrBadFrame:  "function frame is wrong",
	MerrUnkType:   "undefined type %s",
	MerrBadIDB:    "inconsistent database information",
	MerrSizeof:    "wrong basic type sizes in compiler settings",
	MerrRedo:      "redecompilation has been requested",
	MerrCanceled:  "decompilation has been cancelled",
	MerrRecDepth:  "max recursion depth reached during lvar allocation",
	MerrOverlap:   "variables would overlap: %s",
	MerrPartInit:  "partially initialized variable %s",
	MerrComplex:   "too complex function",
	MerrLicense:   "no license available",
	MerrOnly32:    "only 32-bit functions can be decompiled for the current database",
	MerrOnly64:    "only 64-bit functions can be decompiled for the current database",
	MerrBusy:      "already decompiling a function",
	MerrFarPtr:    "far memory model is supported only for pc",
	MerrExtern:    "special segments can not be decompiled",
	MerrFuncSize:  "too big function",
	MerrLoop:      "redo last loop",
}

func (c Merror) String() string {
	if s, ok := merrorTexts[c]; ok {
		return s
	}
	return fmt.Sprintf("merror(%d)", int(c))
}

// ErrorClass groups result codes by how they must be handled.
type ErrorClass int

const (
	// ClassNone is the class of MerrOK.
	ClassNone ErrorClass = iota
	// ClassFatal codes are internal invariant violations. They always
	// reach the top of Decompile.
	ClassFatal
	// ClassRejection codes are the terminal outcome of a decompilation
	// that could not be performed for this input or environment.
	ClassRejection
	// ClassControl codes steer the pipeline and are never surfaced.
	ClassControl
)

// Class returns the handling class of c.
func (c Merror) Class() ErrorClass {
	switch c {
	case MerrOK:
		return ClassNone
	case MerrInterr, MerrMem, MerrException:
		return ClassFatal
	case MerrBlock, MerrRedo, MerrLoop:
		return ClassControl
	}
	return ClassRejection
}

// Failure is a decompilation failure: a result code, the address where it
// was detected, and an optional detail string substituted into the message.
type Failure struct {
	Code Merror
	EA   uint64
	Str  string
}

// NewFailure returns a failure for code at ea.
func NewFailure(code Merror, ea uint64, str string) *Failure {
	return &Failure{Code: code, EA: ea, Str: str}
}

func (f *Failure) Error() string {
	msg := f.Code.String()
	if f.Str != "" {
		if text, ok := merrorTexts[f.Code]; ok && strings.Contains(text, "%s") {
			msg = fmt.Sprintf(text, f.Str)
		} else {
			msg += ": " + f.Str
		}
	}
	if f.EA != BadAddr {
		return fmt.Sprintf("%#x: %s", f.EA, msg)
	}
	return msg
}

// Is lets errors.Is match failures by code.
func (f *Failure) Is(target error) bool {
	var t *Failure
	if errors.As(target, &t) {
		return t.Code == f.Code
	}
	return false
}

// ErrCanceled matches any cancellation failure via errors.Is.
var ErrCanceled error = &Failure{Code: MerrCanceled, EA: BadAddr}

// ErrInterr matches any internal error via errors.Is.
var ErrInterr error = &Failure{Code: MerrInterr, EA: BadAddr}

// CodeOf extracts the result code carried by err, MerrOK for nil, and
// MerrInterr for errors that carry no code.
func CodeOf(err error) Merror {
	if err == nil {
		return MerrOK
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return MerrInterr
}

// interr builds the value panicked with when an internal invariant breaks.
// Decompile recovers exactly this type at the top of the pipeline.
func interr(msg string) *Failure {
	return &Failure{Code: MerrInterr, EA: BadAddr, Str: msg}
}

func interrAt(ea uint64, format string, args ...any) *Failure {
	return &Failure{Code: MerrInterr, EA: ea, Str: fmt.Sprintf(format, args...)}
}
