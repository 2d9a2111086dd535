package ctree

import "slices"

// LvinfKeep keeps saved settings even if their variable is gone.
const LvinfKeep = 0x0001

// LvarSavedInfo is what the user set on one variable.
type LvarSavedInfo struct {
	LL    LvarLocator `json:"ll"`
	Name  string      `json:"name,omitempty"`
	Type  Type        `json:"type"`
	Cmt   string      `json:"cmt,omitempty"`
	Flags int         `json:"flags,omitempty"`
}

// HasInfo reports whether any user setting is present.
func (si *LvarSavedInfo) HasInfo() bool {
	return si.Name != "" || si.Type.IsDefined() || si.Cmt != ""
}

func (si *LvarSavedInfo) IsKept() bool { return si.Flags&LvinfKeep != 0 }
func (si *LvarSavedInfo) SetKeep()     { si.Flags |= LvinfKeep }
func (si *LvarSavedInfo) ClearKeep()   { si.Flags &^= LvinfKeep }

// LvarMapping records that variable From was merged into To.
type LvarMapping struct {
	From LvarLocator `json:"from"`
	To   LvarLocator `json:"to"`
}

// UlvPreciseDefea makes saved settings match variables by location and
// definition address; without it the location alone is compared.
const UlvPreciseDefea = 0x0001

// LvarUserVec holds the durable variable overrides of one function. Only
// variables with user settings appear in Infos.
type LvarUserVec struct {
	Infos       []LvarSavedInfo `json:"lvvec"`
	Sizes       []int           `json:"sizes"` // parallel to Infos
	Mapping     []LvarMapping   `json:"lmaps,omitempty"`
	StkoffDelta uint64          `json:"stkoff_delta"`
	Flags       int             `json:"ulv_flags"`
}

func NewLvarUserVec() *LvarUserVec { return &LvarUserVec{Flags: UlvPreciseDefea} }

func (lu *LvarUserVec) matches(a, b LvarLocator) bool {
	if lu.Flags&UlvPreciseDefea != 0 {
		return a.Equal(b)
	}
	return a.Loc.Equal(b.Loc)
}

// FindInfo returns the saved settings for ll, or nil.
func (lu *LvarUserVec) FindInfo(ll LvarLocator) *LvarSavedInfo {
	for i := range lu.Infos {
		if lu.matches(lu.Infos[i].LL, ll) {
			return &lu.Infos[i]
		}
	}
	return nil
}

// KeepInfo marks the settings of v as kept.
func (lu *LvarUserVec) KeepInfo(v *Lvar) {
	if si := lu.FindInfo(v.LvarLocator); si != nil {
		si.SetKeep()
	}
}

// SetInfo adds or replaces the settings for si.LL. Settings without any
// information are removed.
func (lu *LvarUserVec) SetInfo(si LvarSavedInfo, size int) {
	for i := range lu.Infos {
		if lu.matches(lu.Infos[i].LL, si.LL) {
			if !si.HasInfo() {
				lu.Infos = slices.Delete(lu.Infos, i, i+1)
				lu.Sizes = slices.Delete(lu.Sizes, i, i+1)
				return
			}
			lu.Infos[i] = si
			lu.Sizes[i] = size
			return
		}
	}
	if si.HasInfo() {
		lu.Infos = append(lu.Infos, si)
		lu.Sizes = append(lu.Sizes, size)
	}
}

// SetMapping records that from is merged into to. Mapping a locator to
// itself removes the record.
func (lu *LvarUserVec) SetMapping(from, to LvarLocator) {
	i := slices.IndexFunc(lu.Mapping, func(m LvarMapping) bool { return m.From.Equal(from) })
	switch {
	case from.Equal(to):
		if i >= 0 {
			lu.Mapping = slices.Delete(lu.Mapping, i, i+1)
		}
	case i >= 0:
		lu.Mapping[i].To = to
	default:
		lu.Mapping = append(lu.Mapping, LvarMapping{From: from, To: to})
	}
}

// Resolve follows the merge records starting at ll. A cycle stops the
// chain at the locator where it was detected.
func (lu *LvarUserVec) Resolve(ll LvarLocator) LvarLocator {
	cur := ll
	for range len(lu.Mapping) {
		i := slices.IndexFunc(lu.Mapping, func(m LvarMapping) bool { return m.From.Equal(cur) })
		if i < 0 {
			break
		}
		next := lu.Mapping[i].To
		if next.Equal(ll) {
			break
		}
		cur = next
	}
	return cur
}

// Apply applies the overrides to vars. It returns, for each variable
// index, the index references to it must use: merged variables map to
// their target, which gets CvarMapdst, and lose CvarUsed. Settings whose
// type is rejected by the variable are skipped and reported by locator.
func (lu *LvarUserVec) Apply(vars Lvars) (remap []int, rejected []LvarLocator) {
	remap = make([]int, len(vars))
	for i, v := range vars {
		remap[i] = i
		target := lu.Resolve(v.LvarLocator)
		if target.Equal(v.LvarLocator) {
			continue
		}
		j := slices.IndexFunc(vars, func(o *Lvar) bool { return lu.matches(o.LvarLocator, target) })
		if j < 0 || j == i {
			continue
		}
		remap[i] = j
		vars[j].Flags |= CvarMapdst
		v.Flags &^= CvarUsed
	}
	for i := range lu.Infos {
		si := &lu.Infos[i]
		j := slices.IndexFunc(vars, func(o *Lvar) bool { return lu.matches(o.LvarLocator, si.LL) })
		if j < 0 {
			continue
		}
		v := vars[j]
		if si.Name != "" {
			v.SetUserName(si.Name)
		}
		if si.Type.IsDefined() && !v.SetUserType(si.Type) {
			rejected = append(rejected, si.LL)
		}
		if si.Cmt != "" {
			v.Cmt = si.Cmt
		}
	}
	return remap, rejected
}

// Capture refreshes the overrides from vars. Variables with user settings
// are recorded; settings whose variable no longer exists are marked kept
// so a later rebuild can reapply them.
func (lu *LvarUserVec) Capture(vars Lvars) {
	seen := make([]bool, len(lu.Infos))
	for _, v := range vars {
		i := slices.IndexFunc(lu.Infos, func(si LvarSavedInfo) bool { return lu.matches(si.LL, v.LvarLocator) })
		if i >= 0 {
			seen[i] = true
		}
		if !v.HasUserInfo() {
			if i >= 0 && !lu.Infos[i].IsKept() {
				// the user cleared everything on this variable
				lu.Infos[i] = LvarSavedInfo{LL: v.LvarLocator}
			}
			continue
		}
		si := LvarSavedInfo{LL: v.LvarLocator, Cmt: v.Cmt}
		if v.HasUserName() {
			si.Name = v.Name
		}
		if v.HasUserType() {
			si.Type = v.Type
		}
		if i >= 0 {
			lu.Infos[i] = si
			lu.Sizes[i] = v.Width
		} else {
			lu.Infos = append(lu.Infos, si)
			lu.Sizes = append(lu.Sizes, v.Width)
		}
	}
	for i := range seen {
		if !seen[i] {
			lu.Infos[i].SetKeep()
		}
	}
	lu.compact()
}

// compact drops entries left without information.
func (lu *LvarUserVec) compact() {
	n := 0
	for i, si := range lu.Infos {
		if si.HasInfo() {
			lu.Infos[n] = si
			lu.Sizes[n] = lu.Sizes[i]
			n++
		}
	}
	lu.Infos = lu.Infos[:n]
	lu.Sizes = lu.Sizes[:n]
}
