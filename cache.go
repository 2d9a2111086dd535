package ctree

import (
	"context"
	"io"
	"log"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Engine produces the microcode of a function. The filters must be
// consulted for every machine instruction being lowered, and pipeline
// events are fired on bus.
type Engine interface {
	Generate(ctx context.Context, fn Func, filters *FilterRegistry, bus *Bus) (*Mba, error)
}

// Options configure a Decompiler. Only Engine is required.
type Options struct {
	Engine  Engine
	Store   Store
	Bus     *Bus
	Types   TypeOracle
	Filters *FilterRegistry
	Logger  *log.Logger

	// MaxFuncSize rejects bigger functions with MerrFuncSize; 0 means no
	// limit.
	MaxFuncSize uint64
	// MaxRedo bounds how many times one request restarts because the
	// engine asked for it or the function changed meanwhile.
	MaxRedo int
	// OnInternalError is told about every internal error before it is
	// returned.
	OnInternalError func(*Failure)
}

// Decompiler caches decompiled functions by entry address. Concurrent
// requests for one function share a single build.
type Decompiler struct {
	opts  Options
	group singleflight.Group

	mu    sync.Mutex
	cache map[uint64]*Cfunc
	gens  map[uint64]uint64

	// lookedUp runs after a cache miss, before the build is started.
	lookedUp func(ea uint64)
}

func New(opts Options) *Decompiler {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.MaxRedo == 0 {
		opts.MaxRedo = 3
	}
	return &Decompiler{
		opts:  opts,
		cache: make(map[uint64]*Cfunc),
		gens:  make(map[uint64]uint64),
	}
}

// Decompile returns the decompiled function fn, from the cache if
// possible. The result carries a reference the caller must Release. On
// failure the error is a *Failure.
func (d *Decompiler) Decompile(ctx context.Context, fn Func) (*Cfunc, error) {
	switch fn.Bitness {
	case 16, 32, 64:
	default:
		return nil, NewFailure(MerrBitness, fn.EA, "")
	}
	if d.opts.MaxFuncSize > 0 && fn.Size > d.opts.MaxFuncSize {
		return nil, NewFailure(MerrFuncSize, fn.EA, "")
	}
	key := flightKey(fn.EA)
	for attempt := 0; ; attempt++ {
		d.mu.Lock()
		if cf := d.cache[fn.EA]; cf != nil {
			cf.Retain()
			d.mu.Unlock()
			return cf, nil
		}
		gen := d.gens[fn.EA]
		d.mu.Unlock()

		if attempt > d.opts.MaxRedo {
			return nil, NewFailure(MerrBusy, fn.EA, "function kept changing while being decompiled")
		}
		if d.lookedUp != nil {
			d.lookedUp(fn.EA)
		}
		_, err, _ := d.group.Do(key, func() (any, error) {
			// another flight may have finished since the lookup
			if d.HasCached(fn.EA) {
				return nil, nil
			}
			return nil, d.buildAndCache(ctx, fn, gen)
		})
		if err != nil && CodeOf(err).Class() != ClassControl {
			return nil, err
		}
		if err != nil {
			d.opts.Logger.Printf("%#x: %v, retrying", fn.EA, err)
		}
	}
}

func flightKey(ea uint64) string { return strconv.FormatUint(ea, 16) }

// buildAndCache builds fn and caches it unless the function was marked
// dirty after generation gen was observed. An entry cached meanwhile is
// kept and the new build dropped.
func (d *Decompiler) buildAndCache(ctx context.Context, fn Func, gen uint64) error {
	cf, err := d.build(ctx, fn)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gens[fn.EA] != gen {
		cf.Release()
		return NewFailure(MerrRedo, fn.EA, "function changed while being decompiled")
	}
	if d.cache[fn.EA] != nil {
		cf.Release()
		return nil
	}
	d.cache[fn.EA] = cf
	return nil
}

func (d *Decompiler) build(ctx context.Context, fn Func) (cf *Cfunc, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f, ok := r.(*Failure)
		if !ok {
			panic(r)
		}
		d.internalError(f)
		if cf != nil {
			cf.Release()
		}
		cf, err = nil, f
	}()
	if err := ctx.Err(); err != nil {
		return nil, NewFailure(MerrCanceled, fn.EA, err.Error())
	}
	filters, err := d.filtersFor(fn.EA)
	if err != nil {
		return nil, err
	}
	mba, err := d.opts.Engine.Generate(ctx, fn, filters, d.opts.Bus)
	if err != nil {
		d.opts.Logger.Printf("%#x: microcode generation failed: %v", fn.EA, err)
		return nil, err
	}
	cf = newCfunc(fn.EA, d.opts.Types)
	cf.Name = fn.Name
	cf.bus = d.opts.Bus
	lvinf := NewLvarUserVec()
	if d.opts.Store != nil {
		if err := cf.RestoreAnnotations(d.opts.Store); err != nil {
			d.opts.Logger.Printf("%#x: annotations ignored: %v", fn.EA, err)
		}
		if lu, err := RestoreLvarSettings(d.opts.Store, fn.EA); err != nil {
			d.opts.Logger.Printf("%#x: variable settings ignored: %v", fn.EA, err)
		} else {
			lvinf = lu
		}
	}
	if err := cf.BuildCtree(ctx, mba, lvinf); err != nil {
		cf.Release()
		return nil, err
	}
	d.opts.Logger.Printf("%#x: decompiled, %d items, %d warnings", fn.EA, CountItems(cf.Body), cf.warnings.Len())
	return cf, nil
}

// filtersFor returns the installed filters plus the user-defined calls
// stored for the function at ea.
func (d *Decompiler) filtersFor(ea uint64) (*FilterRegistry, error) {
	reg := &FilterRegistry{}
	if fr := d.opts.Filters; fr != nil {
		fr.mu.RLock()
		reg.filters = slices.Clone(fr.filters)
		fr.mu.RUnlock()
	}
	if d.opts.Store == nil {
		return reg, nil
	}
	calls, err := RestoreUserUdcalls(d.opts.Store, ea)
	if err != nil {
		return nil, err
	}
	if calls.Len() > 0 {
		reg.Install(UdcallsFilter{Calls: calls})
	}
	return reg, nil
}

func (d *Decompiler) internalError(f *Failure) {
	d.opts.Logger.Printf("internal error: %v", f)
	d.opts.Bus.Fire(EvInterr, f)
	if d.opts.OnInternalError != nil {
		d.opts.OnInternalError(f)
	}
}

// MarkDirty drops the cached function at ea and reports whether there was
// one. A build in progress for ea will not be cached.
func (d *Decompiler) MarkDirty(ea uint64) bool {
	d.mu.Lock()
	d.gens[ea]++
	cf := d.cache[ea]
	delete(d.cache, ea)
	d.mu.Unlock()
	if cf == nil {
		return false
	}
	cf.Release()
	return true
}

// ClearAll drops every cached function.
func (d *Decompiler) ClearAll() {
	d.mu.Lock()
	old := d.cache
	d.cache = make(map[uint64]*Cfunc)
	for ea := range old {
		d.gens[ea]++
	}
	d.mu.Unlock()
	for _, cf := range old {
		cf.Release()
	}
}

func (d *Decompiler) HasCached(ea uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache[ea] != nil
}

// Refresh rebuilds cf in place from fresh microcode, keeping its
// annotations. It never runs alongside a build of the same function.
func (d *Decompiler) Refresh(ctx context.Context, cf *Cfunc, fn Func) error {
	key := flightKey(cf.EntryEA)
	for attempt := 0; ; attempt++ {
		if attempt > d.opts.MaxRedo {
			return NewFailure(MerrBusy, cf.EntryEA, "function kept being decompiled")
		}
		ran := false
		_, err, _ := d.group.Do(key, func() (any, error) {
			ran = true
			return nil, d.refresh(ctx, cf, fn)
		})
		if ran {
			return err
		}
	}
}

func (d *Decompiler) refresh(ctx context.Context, cf *Cfunc, fn Func) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f, ok := r.(*Failure)
		if !ok {
			panic(r)
		}
		d.internalError(f)
		err = f
	}()
	filters, err := d.filtersFor(cf.EntryEA)
	if err != nil {
		return err
	}
	return cf.Mutate(func(cf *Cfunc) error {
		mba, err := d.opts.Engine.Generate(ctx, fn, filters, d.opts.Bus)
		if err != nil {
			return err
		}
		lvinf := NewLvarUserVec()
		if d.opts.Store != nil {
			if lvinf, err = RestoreLvarSettings(d.opts.Store, cf.EntryEA); err != nil {
				return err
			}
		}
		return cf.BuildCtree(ctx, mba, lvinf)
	})
}
