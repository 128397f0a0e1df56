package uio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileExists(t *testing.T) {
	tmpD := t.TempDir()
	f := filepath.Join(tmpD, "exists.txt")
	if FileExists(f) {
		t.Fatalf("%s should not exist yet", f)
	}
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %s", err)
	}
	if !FileExists(f) {
		t.Fatalf("%s should exist now", f)
	}
}

func TestSortByModTime(t *testing.T) {
	tmpD := t.TempDir()
	names := []string{"c.log", "a.log", "b.log"}
	now := time.Now()
	for i, n := range names {
		f := filepath.Join(tmpD, n)
		if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile: %s", err)
		}
		mt := now.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(f, mt, mt); err != nil {
			t.Fatalf("Chtimes: %s", err)
		}
	}
	dirF, err := os.Open(tmpD)
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	defer dirF.Close()
	infos, err := dirF.Readdir(0)
	if err != nil {
		t.Fatalf("Readdir: %s", err)
	}
	SortByModTime(infos)
	for i := 1; i < len(infos); i++ {
		if infos[i-1].ModTime().After(infos[i].ModTime()) {
			t.Fatalf("not sorted: %s after %s", infos[i-1].Name(), infos[i].Name())
		}
	}
}
