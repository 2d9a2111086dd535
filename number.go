package ctree

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Radix and representation flags of a NumberFormat.
const (
	NumHex    uint32 = 1 << iota // hexadecimal
	NumDec                       // decimal
	NumOct                       // octal
	NumBin                       // binary
	NumChar                      // character constant
	NumEnum                      // symbolic constant, TypeName names the enum
	NumStroff                    // structure offset, TypeName names the structure
	NumSigned                    // print as signed
)

// Number format property bits.
const (
	NfFixed    uint8 = 0x01 // format has been defined by the user
	NfNegDone  uint8 = 0x02 // negation has been performed
	NfBinvDone uint8 = 0x04 // inverting bits is done
	NfNegate   uint8 = 0x08 // the user asked to negate the constant
	NfBitnot   uint8 = 0x10 // the user asked to invert bits of the constant
	NfStroff   uint8 = 0x20 // used as stroff
)

// NumberFormat is how a numeric literal should be displayed. It is the
// value type of the user number format table.
type NumberFormat struct {
	Flags     uint32 `json:"flags"`
	OpNum     int    `json:"opnum"`
	Props     uint8  `json:"props"`
	Serial    uint8  `json:"serial,omitempty"`
	OrgNBytes int    `json:"org_nbytes,omitempty"`
	TypeName  string `json:"type_name,omitempty"`
}

// Radix returns 2, 8, 10 or 16.
func (nf NumberFormat) Radix() int {
	switch {
	case nf.Flags&NumHex != 0:
		return 16
	case nf.Flags&NumOct != 0:
		return 8
	case nf.Flags&NumBin != 0:
		return 2
	}
	return 10
}

// IsFixed reports whether the representation may not be changed by the
// decompiler.
func (nf NumberFormat) IsFixed() bool { return nf.Props != 0 }

func (nf NumberFormat) IsHex() bool    { return nf.Flags&NumHex != 0 }
func (nf NumberFormat) IsDec() bool    { return nf.Flags&NumDec != 0 }
func (nf NumberFormat) IsOct() bool    { return nf.Flags&NumOct != 0 }
func (nf NumberFormat) IsEnum() bool   { return nf.Flags&NumEnum != 0 }
func (nf NumberFormat) IsChar() bool   { return nf.Flags&NumChar != 0 }
func (nf NumberFormat) IsStroff() bool { return nf.Flags&NumStroff != 0 }

// NeedsToNegate reports whether the user asked for the negated constant and
// the negation has not been applied yet.
func (nf NumberFormat) NeedsToNegate() bool { return nf.Props&(NfNegate|NfNegDone) == NfNegate }

// NeedsToInvert is the bitwise-not counterpart of NeedsToNegate.
func (nf NumberFormat) NeedsToInvert() bool { return nf.Props&(NfBitnot|NfBinvDone) == NfBitnot }

// Number is a numeric literal: a 64-bit value and its display format.
type Number struct {
	Value  uint64
	Format NumberFormat
}

// Masked returns the value truncated to nbytes, sign-extended when signed.
func (n Number) Masked(nbytes int, sign Sign) uint64 {
	if nbytes <= 0 || nbytes >= 8 {
		return n.Value
	}
	bits := uint(nbytes * 8)
	v := n.Value & (1<<bits - 1)
	if sign == Signed && v&(1<<(bits-1)) != 0 {
		v |= ^uint64(0) << bits
	}
	return v
}

// Text renders the value for a type of the given size and signedness.
func (n Number) Text(size int, sign Sign) string {
	v := n.Masked(size, sign)
	nf := n.Format
	if nf.NeedsToNegate() {
		v = -v
	}
	if nf.NeedsToInvert() {
		v = ^v
	}
	if nf.NeedsToNegate() || nf.NeedsToInvert() {
		v = Number{Value: v}.Masked(size, Unsigned)
	}
	prefix := ""
	if nf.NeedsToNegate() {
		prefix = "-"
	} else if nf.NeedsToInvert() {
		prefix = "~"
	}
	if nf.IsChar() && v < 0x7f && v >= 0x20 {
		return prefix + strconv.QuoteRune(rune(v))
	}
	switch nf.Radix() {
	case 16:
		return prefix + fmt.Sprintf("0x%X", v)
	case 8:
		return prefix + fmt.Sprintf("0%o", v)
	case 2:
		return prefix + fmt.Sprintf("0b%b", v)
	}
	if sign == Signed || nf.Flags&NumSigned != 0 {
		return prefix + strconv.FormatInt(int64(v), 10)
	}
	return prefix + strconv.FormatUint(v, 10)
}

// FNumber is a floating literal kept in the 10-byte internal format of the
// target together with its original byte width.
type FNumber struct {
	Bits   [10]byte
	NBytes int
}

// NewFNumber encodes f for a literal of nbytes (4, 8 or 10) bytes.
func NewFNumber(f float64, nbytes int) FNumber {
	var fn FNumber
	binary.LittleEndian.PutUint64(fn.Bits[:8], math.Float64bits(f))
	fn.NBytes = nbytes
	return fn
}

// Float64 decodes the literal.
func (fn FNumber) Float64() float64 {
	f := math.Float64frombits(binary.LittleEndian.Uint64(fn.Bits[:8]))
	if fn.NBytes == 4 {
		return float64(float32(f))
	}
	return f
}

func (fn FNumber) String() string {
	bits := 64
	if fn.NBytes == 4 {
		bits = 32
	}
	return strconv.FormatFloat(fn.Float64(), 'g', -1, bits)
}
