package ctree

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Store keeps the user annotation tables of functions between sessions.
// Data is opaque to the store and keyed by function address and table
// name.
type Store interface {
	Put(ea uint64, table string, data []byte) error
	// Get returns false when nothing is stored under the key.
	Get(ea uint64, table string) ([]byte, bool, error)
	Delete(ea uint64, table string) error
}

// Table names used with Store.
const (
	TableLabels   = "labels"
	TableCmts     = "cmts"
	TableNumforms = "numforms"
	TableIflags   = "iflags"
	TableUnions   = "unions"
	TableLvars    = "lvars"
	TableUdcalls  = "udcalls"
)

type storeKey struct {
	ea    uint64
	table string
}

// MemStore is a Store in memory.
type MemStore struct {
	mu sync.RWMutex
	m  map[storeKey][]byte
}

func NewMemStore() *MemStore { return &MemStore{m: make(map[storeKey][]byte)} }

func (s *MemStore) Put(ea uint64, table string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[storeKey{ea, table}] = append([]byte(nil), data...)
	return nil
}

func (s *MemStore) Get(ea uint64, table string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.m[storeKey{ea, table}]
	return append([]byte(nil), data...), ok, nil
}

func (s *MemStore) Delete(ea uint64, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, storeKey{ea, table})
	return nil
}

// Len returns the number of stored blobs.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// DirStore is a Store on disk: one JSON file per function and table under
// Dir, named <ea in hex>/<table>.json. Files are replaced atomically.
type DirStore struct {
	Dir string
}

func (s DirStore) path(ea uint64, table string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%x", ea), table+".json")
}

func (s DirStore) Put(ea uint64, table string, data []byte) error {
	path := s.path(ea, table)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), table+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s DirStore) Get(ea uint64, table string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(ea, table))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s DirStore) Delete(ea uint64, table string) error {
	err := os.Remove(s.path(ea, table))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

type lener interface{ Len() int }

// save stores v, or deletes the entry when v holds nothing.
func save(s Store, ea uint64, table string, v lener) error {
	if v.Len() == 0 {
		return s.Delete(ea, table)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s of %#x: %w", table, ea, err)
	}
	return s.Put(ea, table, data)
}

// restore decodes the entry into v and reports whether it existed.
func restore(s Store, ea uint64, table string, v any) (bool, error) {
	data, ok, err := s.Get(ea, table)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s of %#x: %w", table, ea, err)
	}
	return true, nil
}

func SaveUserLabels(s Store, ea uint64, t *UserLabels) error { return save(s, ea, TableLabels, t) }
func SaveUserCmts(s Store, ea uint64, t *UserCmts) error     { return save(s, ea, TableCmts, t) }
func SaveUserNumforms(s Store, ea uint64, t *UserNumforms) error {
	return save(s, ea, TableNumforms, t)
}
func SaveUserIflags(s Store, ea uint64, t *UserIflags) error   { return save(s, ea, TableIflags, t) }
func SaveUserUnions(s Store, ea uint64, t *UserUnions) error   { return save(s, ea, TableUnions, t) }
func SaveUserUdcalls(s Store, ea uint64, t *UserUdcalls) error { return save(s, ea, TableUdcalls, t) }

// RestoreUserLabels returns the stored labels of ea; an empty table when
// there are none.
func RestoreUserLabels(s Store, ea uint64) (*UserLabels, error) {
	t := NewUserLabels()
	_, err := restore(s, ea, TableLabels, t)
	return t, err
}

func RestoreUserCmts(s Store, ea uint64) (*UserCmts, error) {
	t := NewUserCmts()
	_, err := restore(s, ea, TableCmts, t)
	return t, err
}

func RestoreUserNumforms(s Store, ea uint64) (*UserNumforms, error) {
	t := NewUserNumforms()
	_, err := restore(s, ea, TableNumforms, t)
	return t, err
}

func RestoreUserIflags(s Store, ea uint64) (*UserIflags, error) {
	t := NewUserIflags()
	_, err := restore(s, ea, TableIflags, t)
	return t, err
}

func RestoreUserUnions(s Store, ea uint64) (*UserUnions, error) {
	t := NewUserUnions()
	_, err := restore(s, ea, TableUnions, t)
	return t, err
}

func RestoreUserUdcalls(s Store, ea uint64) (*UserUdcalls, error) {
	t := NewUserUdcalls()
	_, err := restore(s, ea, TableUdcalls, t)
	return t, err
}

// SaveLvarSettings stores the variable overrides of ea.
func SaveLvarSettings(s Store, ea uint64, lu *LvarUserVec) error {
	if len(lu.Infos) == 0 && len(lu.Mapping) == 0 {
		return s.Delete(ea, TableLvars)
	}
	data, err := json.Marshal(lu)
	if err != nil {
		return fmt.Errorf("encode %s of %#x: %w", TableLvars, ea, err)
	}
	return s.Put(ea, TableLvars, data)
}

// RestoreLvarSettings returns the variable overrides of ea, or an empty set.
func RestoreLvarSettings(s Store, ea uint64) (*LvarUserVec, error) {
	lu := NewLvarUserVec()
	if _, err := restore(s, ea, TableLvars, lu); err != nil {
		return nil, err
	}
	if len(lu.Sizes) != len(lu.Infos) {
		return nil, fmt.Errorf("decode %s of %#x: %d sizes for %d entries", TableLvars, ea, len(lu.Sizes), len(lu.Infos))
	}
	return lu, nil
}

// ModifyUserLvars loads the variable overrides of ea, lets fn edit them
// and stores them back if fn returns true. It reports whether they were
// stored.
func ModifyUserLvars(s Store, ea uint64, fn func(lu *LvarUserVec) bool) (bool, error) {
	lu, err := RestoreLvarSettings(s, ea)
	if err != nil {
		return false, err
	}
	if !fn(lu) {
		return false, nil
	}
	if err := SaveLvarSettings(s, ea, lu); err != nil {
		return false, err
	}
	return true, nil
}

func (cf *Cfunc) SaveUserLabels(s Store) error   { return SaveUserLabels(s, cf.EntryEA, cf.UserLabels) }
func (cf *Cfunc) SaveUserCmts(s Store) error     { return SaveUserCmts(s, cf.EntryEA, cf.UserCmts) }
func (cf *Cfunc) SaveUserNumforms(s Store) error { return SaveUserNumforms(s, cf.EntryEA, cf.Numforms) }
func (cf *Cfunc) SaveUserIflags(s Store) error   { return SaveUserIflags(s, cf.EntryEA, cf.UserIflags) }
func (cf *Cfunc) SaveUserUnions(s Store) error   { return SaveUserUnions(s, cf.EntryEA, cf.UserUnions) }

// SaveUserLvars captures the current variable settings into the stored
// overrides.
func (cf *Cfunc) SaveUserLvars(s Store) error {
	_, err := ModifyUserLvars(s, cf.EntryEA, func(lu *LvarUserVec) bool {
		lu.StkoffDelta = cf.stkoffDelta
		lu.Capture(cf.Vars)
		return true
	})
	return err
}

// SaveAnnotations stores all five annotation tables.
func (cf *Cfunc) SaveAnnotations(s Store) error {
	return errors.Join(
		cf.SaveUserLabels(s),
		cf.SaveUserCmts(s),
		cf.SaveUserNumforms(s),
		cf.SaveUserIflags(s),
		cf.SaveUserUnions(s),
	)
}

// RestoreAnnotations loads the five annotation tables of cf.
func (cf *Cfunc) RestoreAnnotations(s Store) error {
	cf.invalidate()
	var errs [5]error
	cf.UserLabels, errs[0] = RestoreUserLabels(s, cf.EntryEA)
	cf.UserCmts, errs[1] = RestoreUserCmts(s, cf.EntryEA)
	cf.Numforms, errs[2] = RestoreUserNumforms(s, cf.EntryEA)
	cf.UserIflags, errs[3] = RestoreUserIflags(s, cf.EntryEA)
	cf.UserUnions, errs[4] = RestoreUserUnions(s, cf.EntryEA)
	return errors.Join(errs[:]...)
}
