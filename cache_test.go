package ctree

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"golang.org/x/sync/errgroup"
)

// fakeEngine lowers a fixed function. The unknown instructions of its
// last block go through the filters.
type fakeEngine struct {
	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	gate      chan struct{}
	err       error
	hook      func(call int)
	mba       func() *Mba
}

func (e *fakeEngine) Generate(ctx context.Context, fn Func, filters *FilterRegistry, bus *Bus) (*Mba, error) {
	e.mu.Lock()
	e.calls++
	n := e.calls
	e.active++
	e.maxActive = max(e.maxActive, e.active)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()
	if e.gate != nil {
		<-e.gate
	}
	if e.hook != nil {
		e.hook(n)
	}
	if e.err != nil {
		return nil, e.err
	}
	mba := loopMba()
	if e.mba != nil {
		mba = e.mba()
	}
	mba.EntryEA = fn.EA

	var lowered []*Minsn
	for _, mi := range []MachineInsn{
		{EA: 0x401010, Mnem: "rol", Ops: []Mop{lvOp(1), lvOp(1), {Kind: MopNum, Size: 1, Value: 3}}, Bytes: 4},
		{EA: 0x401014, Mnem: "cpuid", Bytes: 2},
	} {
		cg := &Codegen{Mba: mba, Insn: mi}
		if err := filters.Lower(cg, lowerUnknown); err != nil {
			return nil, err
		}
		lowered = append(lowered, cg.Emitted...)
	}
	mba.Blocks[2].Insns = lowered
	return mba, nil
}

func (e *fakeEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeEngine) MaxActive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxActive
}

func lowerUnknown(cg *Codegen) error {
	cg.Emit(MExt, Mop{}, Mop{}, Mop{})
	return nil
}

var testFunc = Func{EA: 0x401000, Size: 0x20, Bitness: 64}

func TestDecompileCaches(t *testing.T) {
	eng := &fakeEngine{}
	d := New(Options{Engine: eng})
	ctx := context.Background()

	cf, err := d.Decompile(ctx, testFunc)
	be.Err(t, err, nil)
	be.Equal(t, cf.Refs(), 2)
	be.Equal(t, cf.Maturity, CmatFinal)
	be.True(t, d.HasCached(testFunc.EA))

	again, err := d.Decompile(ctx, testFunc)
	be.Err(t, err, nil)
	be.True(t, again == cf)
	be.Equal(t, eng.Calls(), 1)
	be.Equal(t, cf.Refs(), 3)
	again.Release()
	cf.Release()

	be.True(t, d.MarkDirty(testFunc.EA))
	be.True(t, !d.MarkDirty(testFunc.EA))
	be.True(t, !d.HasCached(testFunc.EA))
	be.True(t, cf.Body == nil)

	fresh, err := d.Decompile(ctx, testFunc)
	be.Err(t, err, nil)
	defer fresh.Release()
	be.True(t, fresh != cf)
	be.Equal(t, eng.Calls(), 2)
}

func TestDecompileSharesConcurrentBuilds(t *testing.T) {
	eng := &fakeEngine{gate: make(chan struct{})}
	d := New(Options{Engine: eng})

	var g errgroup.Group
	results := make([]*Cfunc, 8)
	for i := range results {
		g.Go(func() error {
			cf, err := d.Decompile(context.Background(), testFunc)
			results[i] = cf
			return err
		})
	}
	close(eng.gate)
	be.Err(t, g.Wait(), nil)

	be.Equal(t, eng.Calls(), 1)
	for _, cf := range results {
		be.True(t, cf == results[0])
	}
	be.Equal(t, results[0].Refs(), len(results)+1)
}

func TestDecompileAfterConcurrentBuildFinished(t *testing.T) {
	eng := &fakeEngine{}
	d := New(Options{Engine: eng})

	// the other caller builds and caches the function between this
	// caller's cache miss and the start of its own flight
	var other *Cfunc
	var otherErr error
	d.lookedUp = func(ea uint64) {
		if other == nil && otherErr == nil {
			d.lookedUp = nil
			other, otherErr = d.Decompile(context.Background(), testFunc)
		}
	}
	cf, err := d.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	be.Err(t, otherErr, nil)
	defer cf.Release()
	defer other.Release()

	be.Equal(t, eng.Calls(), 1)
	be.True(t, cf == other)
	be.Equal(t, cf.Refs(), 3)
	be.True(t, d.HasCached(testFunc.EA))
}

func TestBuildKeepsCachedEntry(t *testing.T) {
	eng := &fakeEngine{}
	d := New(Options{Engine: eng})
	cf, err := d.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	defer cf.Release()

	be.Err(t, d.buildAndCache(context.Background(), testFunc, 0), nil)
	be.Equal(t, eng.Calls(), 2)
	again, err := d.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	defer again.Release()
	be.True(t, again == cf)
	be.Equal(t, cf.Refs(), 3)
}

func TestDecompileRejectsUnsupportedFunctions(t *testing.T) {
	eng := &fakeEngine{}
	d := New(Options{Engine: eng, MaxFuncSize: 0x10})

	_, err := d.Decompile(context.Background(), Func{EA: 0x401000, Size: 8, Bitness: 8})
	be.Equal(t, CodeOf(err), MerrBitness)
	_, err = d.Decompile(context.Background(), testFunc)
	be.Equal(t, CodeOf(err), MerrFuncSize)
	be.Equal(t, eng.Calls(), 0)
}

func TestDecompileReportsEngineFailures(t *testing.T) {
	eng := &fakeEngine{err: NewFailure(MerrInsn, 0x401002, "")}
	var buf bytes.Buffer
	d := New(Options{Engine: eng, Logger: log.New(&buf, "", 0)})

	_, err := d.Decompile(context.Background(), testFunc)
	be.Equal(t, CodeOf(err), MerrInsn)
	be.Err(t, err, "0x401002")
	be.True(t, !d.HasCached(testFunc.EA))
	be.True(t, strings.Contains(buf.String(), "microcode generation failed"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng.err = nil
	_, err = d.Decompile(ctx, testFunc)
	be.Equal(t, CodeOf(err), MerrCanceled)
}

func TestDecompileRetriesChangedFunctions(t *testing.T) {
	eng := &fakeEngine{}
	d := New(Options{Engine: eng})
	eng.hook = func(call int) {
		if call == 1 {
			d.MarkDirty(testFunc.EA)
		}
	}
	cf, err := d.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	defer cf.Release()
	be.Equal(t, eng.Calls(), 2)
	be.True(t, d.HasCached(testFunc.EA))

	other := Func{EA: 0x402000, Size: 0x20, Bitness: 32}
	eng.hook = func(int) { d.MarkDirty(other.EA) }
	_, err = d.Decompile(context.Background(), other)
	be.Equal(t, CodeOf(err), MerrBusy)
	be.Equal(t, eng.Calls(), 2+4)
}

func TestDecompileRecoversInternalErrors(t *testing.T) {
	eng := &fakeEngine{mba: func() *Mba {
		mba := loopMba()
		mba.Structure.Children[1].Cond = nil
		return mba
	}}
	bus := NewBus()
	var fired []*Failure
	bus.Subscribe(HandlerFunc(func(ev Event, args ...any) int {
		if ev == EvInterr {
			fired = append(fired, args[0].(*Failure))
		}
		return 0
	}))
	var hooked *Failure
	var buf bytes.Buffer
	d := New(Options{
		Engine:          eng,
		Bus:             bus,
		Logger:          log.New(&buf, "", 0),
		OnInternalError: func(f *Failure) { hooked = f },
	})

	_, err := d.Decompile(context.Background(), testFunc)
	be.Equal(t, CodeOf(err), MerrInterr)
	be.Err(t, err, "while without a condition")
	be.Equal(t, len(fired), 1)
	be.True(t, hooked == fired[0])
	be.True(t, !d.HasCached(testFunc.EA))
	be.True(t, strings.Contains(buf.String(), "internal error"))
}

func TestDecompileRestoresAnnotations(t *testing.T) {
	store := NewMemStore()
	eng := &fakeEngine{}
	d := New(Options{Engine: eng, Store: store})
	ctx := context.Background()

	cf, err := d.Decompile(ctx, testFunc)
	be.Err(t, err, nil)
	cf.SetUserCmt(TreeLoc{EA: 0x401018, Itp: ItpSemi}, "result")
	cf.Numforms.Set(OperandLocator{EA: 0x401008, OpNum: 1}, NumberFormat{Flags: NumHex, OpNum: 1, Props: NfFixed})
	be.Err(t, cf.SaveAnnotations(store), nil)
	ll := cf.Vars[1].LvarLocator
	cf.Release()

	_, err = ModifyUserLvars(store, testFunc.EA, func(lu *LvarUserVec) bool {
		lu.SetInfo(LvarSavedInfo{LL: ll, Name: "count"}, 4)
		return true
	})
	be.Err(t, err, nil)
	d.MarkDirty(testFunc.EA)

	cf, err = d.Decompile(ctx, testFunc)
	be.Err(t, err, nil)
	defer cf.Release()
	text := strings.Join(cf.Pseudocode(), "\n")
	be.True(t, strings.Contains(text, "    count += 0x10;"))
	be.True(t, strings.Contains(text, "  return count; // result"))
}

func TestDecompileInstallsUserCalls(t *testing.T) {
	store := NewMemStore()
	udc, err := ParseUdCall("int rotl(int, char)", 8)
	be.Err(t, err, nil)
	calls := NewUserUdcalls()
	calls.Set(0x401010, udc)
	be.Err(t, SaveUserUdcalls(store, testFunc.EA, calls), nil)

	d := New(Options{Engine: &fakeEngine{}, Store: store})
	cf, err := d.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	defer cf.Release()
	lines := cf.Pseudocode()
	be.Equal(t, lines[len(lines)-4], "  v1 = rotl(v1, 3);")
	be.Equal(t, lines[len(lines)-3], "  __asm { 0x401014 }")

	// without the table the instruction stays opaque
	plain := New(Options{Engine: &fakeEngine{}})
	cf2, err := plain.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	defer cf2.Release()
	be.True(t, strings.Contains(strings.Join(cf2.Pseudocode(), "\n"), "__asm { 0x401010 0x401014 }"))
}

func TestRefreshRebuildsInPlace(t *testing.T) {
	eng := &fakeEngine{}
	d := New(Options{Engine: eng})
	cf, err := d.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	defer cf.Release()
	be.Equal(t, cf.Pseudocode()[7], "    v1 += 16;")

	cf.Numforms.Set(OperandLocator{EA: 0x401008, OpNum: 1}, NumberFormat{Flags: NumHex, OpNum: 1, Props: NfFixed})
	be.Err(t, d.Refresh(context.Background(), cf, testFunc), nil)
	be.Equal(t, eng.Calls(), 2)
	be.Equal(t, cf.Pseudocode()[7], "    v1 += 0x10;")

	eng.err = NewFailure(MerrInsn, 0x401000, "")
	be.Equal(t, CodeOf(d.Refresh(context.Background(), cf, testFunc)), MerrInsn)
}

func TestRefreshWaitsForBuild(t *testing.T) {
	eng := &fakeEngine{}
	d := New(Options{Engine: eng})
	cf, err := d.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	defer cf.Release()
	d.MarkDirty(testFunc.EA)

	// the refresh starts while the rebuild is generating
	refreshed := make(chan error, 1)
	eng.hook = func(call int) {
		if call == 2 {
			go func() { refreshed <- d.Refresh(context.Background(), cf, testFunc) }()
			time.Sleep(20 * time.Millisecond)
		}
	}
	fresh, err := d.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	defer fresh.Release()
	be.Err(t, <-refreshed, nil)

	be.Equal(t, eng.Calls(), 3)
	be.Equal(t, eng.MaxActive(), 1)
	be.True(t, cf.Body != nil)
}

func TestClearAll(t *testing.T) {
	d := New(Options{Engine: &fakeEngine{}})
	first, err := d.Decompile(context.Background(), testFunc)
	be.Err(t, err, nil)
	second, err := d.Decompile(context.Background(), Func{EA: 0x402000, Size: 0x20, Bitness: 32})
	be.Err(t, err, nil)
	be.Equal(t, second.EntryEA, uint64(0x402000))

	d.ClearAll()
	be.True(t, !d.HasCached(testFunc.EA))
	be.True(t, !d.HasCached(0x402000))

	// callers keep their references
	be.Equal(t, first.Refs(), 1)
	be.True(t, first.Body != nil)
	first.Release()
	second.Release()
	be.True(t, first.Body == nil)
}
