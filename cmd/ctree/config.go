package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/strager/ctree"
	"gopkg.in/yaml.v3"
)

// config is read from ctree.yaml. Every field is optional.
type config struct {
	// StoreDir holds the saved annotations, one directory per function.
	StoreDir string `yaml:"store_dir"`
	// PtrSize is the pointer size of the target in bytes.
	PtrSize int `yaml:"ptr_size"`
	// History is the shell history file.
	History string `yaml:"history"`
	// Objects gives the types of global objects by address.
	Objects map[uint64]string `yaml:"objects"`
}

func defaultConfig() config {
	c := config{PtrSize: 8}
	if home, err := os.UserHomeDir(); err == nil {
		c.History = filepath.Join(home, ".ctree_history")
	}
	return c
}

// loadConfig reads path on top of the defaults. A missing file is not an
// error.
func loadConfig(path string) (config, error) {
	c := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	switch c.PtrSize {
	case 2, 4, 8:
	default:
		return c, fmt.Errorf("%s: unsupported ptr_size %d", path, c.PtrSize)
	}
	return c, nil
}

func (c config) store() ctree.Store {
	if c.StoreDir == "" {
		return nil
	}
	return ctree.DirStore{Dir: c.StoreDir}
}

func (c config) types() (*ctree.FlatTypes, error) {
	ft := &ctree.FlatTypes{PtrSize: c.PtrSize, Objects: make(map[uint64]ctree.Type)}
	for ea, name := range c.Objects {
		t, err := ctree.ParseType(name, c.PtrSize)
		if err != nil {
			return nil, fmt.Errorf("object %#x: %w", ea, err)
		}
		ft.Objects[ea] = t
	}
	return ft, nil
}
