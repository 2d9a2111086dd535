package ctree

import (
	"errors"
	"slices"
	"sync"
)

// MachineInsn is the machine instruction being lowered to microcode.
type MachineInsn struct {
	EA    uint64
	Mnem  string
	Ops   []Mop
	Bytes int
}

// Codegen is the lowering context handed to filters: the instruction to
// lower and the sink for the microcode that replaces it.
type Codegen struct {
	Mba     *Mba
	Insn    MachineInsn
	Emitted []*Minsn
}

// Emit appends a microcode instruction at the current address.
func (cg *Codegen) Emit(op Mcode, l, r, d Mop) *Minsn {
	m := &Minsn{Op: op, EA: cg.Insn.EA, L: l, R: r, D: d}
	cg.Emitted = append(cg.Emitted, m)
	return m
}

// ErrNotHandled is returned by MicrocodeFilter.Apply to ask for the
// standard lowering of the instruction.
var ErrNotHandled error = &Failure{Code: MerrInsn, EA: BadAddr}

// MicrocodeFilter replaces the standard lowering of selected
// instructions. Apply is only called when Match returned true.
type MicrocodeFilter interface {
	Match(cg *Codegen) bool
	Apply(cg *Codegen) error
}

// FilterRegistry holds the installed filters in installation order.
type FilterRegistry struct {
	mu      sync.RWMutex
	filters []MicrocodeFilter
}

// Install adds f. Installing the same filter twice has no effect.
func (fr *FilterRegistry) Install(f MicrocodeFilter) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if !slices.Contains(fr.filters, f) {
		fr.filters = append(fr.filters, f)
	}
}

// Uninstall removes f and reports whether it was installed.
func (fr *FilterRegistry) Uninstall(f MicrocodeFilter) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	i := slices.Index(fr.filters, f)
	if i < 0 {
		return false
	}
	fr.filters = slices.Delete(fr.filters, i, i+1)
	return true
}

func (fr *FilterRegistry) Len() int {
	if fr == nil {
		return 0
	}
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	return len(fr.filters)
}

// Lower lowers cg.Insn. The first matching filter whose Apply does not
// return ErrNotHandled decides the outcome; if there is none, standard
// does the work.
func (fr *FilterRegistry) Lower(cg *Codegen, standard func(*Codegen) error) error {
	var filters []MicrocodeFilter
	if fr != nil {
		fr.mu.RLock()
		filters = slices.Clone(fr.filters)
		fr.mu.RUnlock()
	}
	for _, f := range filters {
		if !f.Match(cg) {
			continue
		}
		mark := len(cg.Emitted)
		err := f.Apply(cg)
		if errors.Is(err, ErrNotHandled) {
			cg.Emitted = cg.Emitted[:mark]
			continue
		}
		return err
	}
	return standard(cg)
}
