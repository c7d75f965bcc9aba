package fsutil

import (
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fsys := OSFileSystem{}

	if !fsys.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}
	if fsys.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_WriteTo(t *testing.T) {
	fsys := OSFileSystem{}
	name := filepath.Join(t.TempDir(), "zg", "jetR0.4", "Rmax0.25", "plot.svg")

	if err := WriteTo(fsys, name, bytes.NewBufferString("<svg/>")); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	data, err := fsys.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "<svg/>" {
		t.Errorf("expected %q, got %q", "<svg/>", data)
	}
	info, err := fsys.Stat(filepath.Dir(name))
	if err != nil || !info.IsDir() {
		t.Errorf("expected parent directory, got %v, %v", info, err)
	}
	if err := fsys.RemoveAll(filepath.Dir(name)); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if fsys.Exists(name) {
		t.Error("expected file removed")
	}
}

func TestMemoryFileSystem_CreateNeedsParent(t *testing.T) {
	mfs := NewMemoryFileSystem()

	_, err := mfs.Create("out/zg/plot.pdf")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}

	w, err := CreateAll(mfs, "out/zg/plot.pdf")
	if err != nil {
		t.Fatalf("CreateAll failed: %v", err)
	}
	if _, err := w.Write([]byte("%PDF")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := mfs.ReadFile("out/zg/plot.pdf")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "%PDF" {
		t.Errorf("expected %%PDF, got %q", data)
	}
	for _, dir := range []string{"out", "out/zg"} {
		info, err := mfs.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}
}

func TestMemoryFileSystem_ReadIsolation(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := WriteTo(mfs, "a/b.txt", bytes.NewBufferString("abc")); err != nil {
		t.Fatal(err)
	}
	data, _ := mfs.ReadFile("a/b.txt")
	data[0] = 'X'
	again, _ := mfs.ReadFile("a/b.txt")
	if string(again) != "abc" {
		t.Errorf("stored data modified through returned slice: %q", again)
	}
}

func TestMemoryFileSystem_StatAndMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := WriteTo(mfs, "d/file.html", bytes.NewBufferString("12345")); err != nil {
		t.Fatal(err)
	}

	info, err := mfs.Stat("d/file.html")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != "file.html" || info.Size() != 5 || info.IsDir() {
		t.Errorf("unexpected info: name=%s size=%d dir=%v", info.Name(), info.Size(), info.IsDir())
	}
	if _, err := mfs.Stat("d/none"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	if _, err := mfs.ReadFile("d/none"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_MkdirOverFile(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := WriteTo(mfs, "a/b", bytes.NewBufferString("x")); err != nil {
		t.Fatal(err)
	}
	if err := mfs.MkdirAll("a/b/c", 0o755); err == nil {
		t.Error("expected error creating a directory below a file")
	}
}

func TestMemoryFileSystem_FilesAndRemoveAll(t *testing.T) {
	mfs := NewMemoryFileSystem()
	for _, name := range []string{"out/zg/b.pdf", "out/zg/a.pdf", "out/kappa/c.pdf", "outside.txt"} {
		if err := WriteTo(mfs, name, bytes.NewBufferString(name)); err != nil {
			t.Fatal(err)
		}
	}

	got := mfs.Files("out/zg")
	want := []string{"out/zg/a.pdf", "out/zg/b.pdf"}
	if len(got) != len(want) {
		t.Fatalf("Files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Files[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if n := len(mfs.Files(".")); n != 4 {
		t.Errorf("expected 4 files in total, got %d", n)
	}

	if err := mfs.RemoveAll("out"); err != nil {
		t.Fatal(err)
	}
	if mfs.Exists("out/zg/a.pdf") || mfs.Exists("out") {
		t.Error("expected out tree removed")
	}
	if !mfs.Exists("outside.txt") {
		t.Error("RemoveAll removed a sibling with a shared prefix")
	}
}
