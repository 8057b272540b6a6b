package fs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/docsync/pkg/fs"
)

func Test_Chaos_Fails_Only_Matching_Paths_When_Rate_Is_One(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{
		WriteFailRate: 1,
		Match: func(_, path string) bool {
			return strings.HasSuffix(path, "bad.mdx")
		},
	})

	good := filepath.Join(dir, "good.mdx")
	bad := filepath.Join(dir, "bad.mdx")

	if err := chaos.WriteFileAtomic(good, []byte("ok"), 0o644); err != nil {
		t.Fatalf("write good: %v", err)
	}

	err := chaos.WriteFileAtomic(bad, []byte("nope"), 0o644)
	if err == nil {
		t.Fatal("write bad: want error")
	}

	if !fs.IsChaosErr(err) {
		t.Fatalf("err = %v, want injected", err)
	}

	if _, statErr := os.Stat(bad); !os.IsNotExist(statErr) {
		t.Fatalf("bad file should not exist, stat err = %v", statErr)
	}

	if got := chaos.Stats().WriteFails; got != 1 {
		t.Fatalf("WriteFails = %d, want 1", got)
	}
}

func Test_Chaos_Passes_Through_When_NoOp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{
		ReadFailRate:   1,
		WriteFailRate:  1,
		RemoveFailRate: 1,
	})
	chaos.SetMode(fs.ChaosModeNoOp)

	path := filepath.Join(dir, "x.mdx")

	if err := chaos.WriteFileAtomic(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := chaos.ReadFile(path); err != nil {
		t.Fatalf("read: %v", err)
	}

	if err := chaos.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if total := chaos.Stats().Total(); total != 0 {
		t.Fatalf("faults = %d, want 0", total)
	}
}

func Test_Chaos_Never_Injects_NotExist(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 7, fs.ChaosConfig{ReadFailRate: 1})

	_, err := chaos.ReadFile(filepath.Join(t.TempDir(), "x"))
	if err == nil {
		t.Fatal("want error")
	}

	if os.IsNotExist(err) {
		t.Fatalf("injected error must not look like not-exist: %v", err)
	}
}
