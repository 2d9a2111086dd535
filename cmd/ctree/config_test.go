package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"
	"github.com/strager/ctree"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctree.yaml")
	err := os.WriteFile(path, []byte(text), 0o644)
	be.Err(t, err, nil)
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
store_dir: /tmp/annotations
ptr_size: 4
history: /tmp/history
objects:
  0x403000: union value:8
  0x404000: unsigned int
`)
	cfg, err := loadConfig(path)
	be.Err(t, err, nil)
	be.Equal(t, cfg.StoreDir, "/tmp/annotations")
	be.Equal(t, cfg.PtrSize, 4)
	be.Equal(t, cfg.History, "/tmp/history")
	be.Equal(t, len(cfg.Objects), 2)

	ft, err := cfg.types()
	be.Err(t, err, nil)
	be.Equal(t, ft.PointerSize(), 4)
	obj, ok := ft.ObjectType(0x403000)
	be.True(t, ok)
	be.True(t, obj.IsUnion())
	obj, ok = ft.ObjectType(0x404000)
	be.True(t, ok)
	be.True(t, obj.IsUnsigned())

	be.Equal(t, cfg.store(), ctree.Store(ctree.DirStore{Dir: "/tmp/annotations"}))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	be.Err(t, err, nil)
	be.Equal(t, cfg.PtrSize, 8)
	be.Equal(t, cfg.store(), nil)

	// fields left out keep their defaults
	cfg, err = loadConfig(writeConfig(t, "store_dir: work\n"))
	be.Err(t, err, nil)
	be.Equal(t, cfg.PtrSize, 8)
	be.Equal(t, cfg.StoreDir, "work")
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "ptr_size: 3\n"))
	be.Err(t, err, "unsupported ptr_size 3")

	_, err = loadConfig(writeConfig(t, "ptr_size: [8]\n"))
	be.Err(t, err)

	cfg, err := loadConfig(writeConfig(t, "objects:\n  0x10: widget\n"))
	be.Err(t, err, nil)
	_, err = cfg.types()
	be.Err(t, err, "object 0x10")
}
