package ctree

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

type mnemFilter struct {
	mnem    string
	handled bool
}

func (f *mnemFilter) Match(cg *Codegen) bool { return cg.Insn.Mnem == f.mnem }

func (f *mnemFilter) Apply(cg *Codegen) error {
	cg.Emit(MNop, Mop{}, Mop{}, Mop{})
	if !f.handled {
		return ErrNotHandled
	}
	return nil
}

func TestFilterRegistry(t *testing.T) {
	var fr FilterRegistry
	a := &mnemFilter{mnem: "rol", handled: true}
	b := &mnemFilter{mnem: "rol"}
	fr.Install(a)
	fr.Install(a)
	fr.Install(b)
	be.Equal(t, fr.Len(), 2)
	be.True(t, fr.Uninstall(a))
	be.True(t, !fr.Uninstall(a))
	be.Equal(t, fr.Len(), 1)

	var nilReg *FilterRegistry
	be.Equal(t, nilReg.Len(), 0)
}

func TestFilterLowering(t *testing.T) {
	standard := 0
	lower := func(cg *Codegen) error {
		standard++
		return lowerUnknown(cg)
	}

	var fr FilterRegistry
	declined := &mnemFilter{mnem: "rol"}
	fr.Install(declined)

	// a declined instruction loses what the filter emitted
	cg := &Codegen{Insn: MachineInsn{EA: 0x10, Mnem: "rol"}}
	be.Err(t, fr.Lower(cg, lower), nil)
	be.Equal(t, standard, 1)
	be.Equal(t, len(cg.Emitted), 1)
	be.Equal(t, cg.Emitted[0].Op, MExt)
	be.Equal(t, cg.Emitted[0].EA, uint64(0x10))

	fr.Install(&mnemFilter{mnem: "rol", handled: true})
	cg = &Codegen{Insn: MachineInsn{EA: 0x14, Mnem: "rol"}}
	be.Err(t, fr.Lower(cg, lower), nil)
	be.Equal(t, standard, 1)
	be.Equal(t, cg.Emitted[0].Op, MNop)

	cg = &Codegen{Insn: MachineInsn{EA: 0x18, Mnem: "ror"}}
	be.Err(t, fr.Lower(cg, lower), nil)
	be.Equal(t, standard, 2)

	var nilReg *FilterRegistry
	be.Err(t, nilReg.Lower(&Codegen{}, lower), nil)
	be.Equal(t, standard, 3)
}

func TestParseUdCall(t *testing.T) {
	udc, err := ParseUdCall("unsigned int __rol4(unsigned int, char)", 8)
	be.Err(t, err, nil)
	be.Equal(t, udc.Name, "__rol4")
	ret, _ := udc.Type.Result()
	be.True(t, ret.IsUnsigned())
	be.Equal(t, len(udc.Type.Args), 2)
	be.Equal(t, udc.Type.Args[1].Size, 1)

	udc, err = ParseUdCall("void *alloc(void)", 8)
	be.Err(t, err, nil)
	be.Equal(t, udc.Name, "alloc")
	ret, _ = udc.Type.Result()
	be.True(t, ret.IsPtr())
	be.Equal(t, len(udc.Type.Args), 0)

	tests := []struct {
		decl string
		want string
	}{
		{"int rotl", "malformed declaration"},
		{"rotl(int)", "missing return type"},
		{"int *(int)", "missing name"},
		{"widget f(int)", "return type of"},
		{"int f(int, gadget)", "argument of"},
	}
	for _, test := range tests {
		_, err := ParseUdCall(test.decl, 8)
		be.Err(t, err, test.want)
	}
}

func TestUdcFilterEmitsCall(t *testing.T) {
	udc, err := ParseUdCall("int rotl(int, char)", 8)
	be.Err(t, err, nil)
	f := &UdcFilter{UdCall: udc, Matcher: func(cg *Codegen) bool { return cg.Insn.Mnem == "rol" }}

	cg := &Codegen{Insn: MachineInsn{EA: 0x20, Mnem: "rol", Ops: []Mop{
		{Kind: MopReg, Reg: 0, Size: 8},
		{Kind: MopReg, Reg: 0, Size: 8},
		{Kind: MopNum, Value: 3, Size: 8},
	}}}
	be.True(t, f.Match(cg))
	be.Err(t, f.Apply(cg), nil)
	be.Equal(t, len(cg.Emitted), 1)
	m := cg.Emitted[0]
	be.Equal(t, m.Op, MCall)
	be.Equal(t, m.L.Kind, MopHelper)
	be.Equal(t, m.L.Str, "rotl")
	be.Equal(t, m.D.Size, 4)
	be.Equal(t, len(m.R.Args), 2)
	be.Equal(t, m.R.Args[1].Size, 1)
	// the machine operands are not modified
	be.Equal(t, cg.Insn.Ops[0].Size, 8)

	cg = &Codegen{Insn: MachineInsn{EA: 0x24, Mnem: "rol", Ops: []Mop{{Kind: MopReg, Size: 4}}}}
	err = f.Apply(cg)
	be.Equal(t, CodeOf(err), MerrBadCall)
	be.True(t, !f.Match(&Codegen{Insn: MachineInsn{Mnem: "ror"}}))
	be.True(t, !(&UdcFilter{UdCall: udc}).Match(cg))
}

func TestUdcallsFilter(t *testing.T) {
	udc, err := ParseUdCall("void pause(void)", 8)
	be.Err(t, err, nil)
	calls := NewUserUdcalls()
	calls.Set(0x30, udc)
	f := UdcallsFilter{Calls: calls}

	cg := &Codegen{Insn: MachineInsn{EA: 0x30, Mnem: "pause"}}
	be.True(t, f.Match(cg))
	be.Err(t, f.Apply(cg), nil)
	be.Equal(t, cg.Emitted[0].D.Kind, MopNone)
	be.Equal(t, len(cg.Emitted[0].R.Args), 0)

	other := &Codegen{Insn: MachineInsn{EA: 0x34}}
	be.True(t, !f.Match(other))
	be.True(t, errors.Is(f.Apply(other), ErrNotHandled))
}

func TestBus(t *testing.T) {
	var nilBus *Bus
	be.Equal(t, nilBus.Fire(EvInterr), 0)

	bus := NewBus()
	var order []string
	first := bus.Subscribe(HandlerFunc(func(ev Event, args ...any) int {
		order = append(order, "first "+ev.String())
		return 0
	}))
	bus.Subscribe(HandlerFunc(func(ev Event, args ...any) int {
		order = append(order, "second "+ev.String())
		if ev == EvKeyboard {
			return 1
		}
		return 0
	}))
	bus.Subscribe(HandlerFunc(func(ev Event, args ...any) int {
		order = append(order, "third "+ev.String())
		return 0
	}))

	be.Equal(t, bus.Fire(EvKeyboard), 1)
	be.Equal(t, order, []string{"first keyboard", "second keyboard"})

	order = nil
	be.True(t, bus.Unsubscribe(first))
	be.True(t, !bus.Unsubscribe(first))
	be.Equal(t, bus.Fire(EvCurpos), 0)
	be.Equal(t, order, []string{"second curpos", "third curpos"})
}

func TestBusSubscribeDuringDelivery(t *testing.T) {
	bus := NewBus()
	late := 0
	bus.Subscribe(HandlerFunc(func(ev Event, args ...any) int {
		bus.Subscribe(HandlerFunc(func(Event, ...any) int {
			late++
			return 0
		}))
		return 0
	}))
	bus.Fire(EvTextReady)
	be.Equal(t, late, 0)
	bus.Fire(EvTextReady)
	be.Equal(t, late, 1)
}

func TestEventNames(t *testing.T) {
	be.Equal(t, EvMaturity.String(), "maturity")
	be.Equal(t, EvPopulatingPopup.String(), "populating_popup")
	be.Equal(t, Event(99).String(), "event(99)")
}
