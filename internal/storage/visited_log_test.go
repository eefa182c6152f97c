package storage

import (
	"os"
	"strings"
	"testing"
)

func TestVisitedLogMarksAndReloads(t *testing.T) {
	path := t.TempDir() + "/visited.log"

	store, err := openVisitedLog(path)
	if err != nil {
		t.Fatalf("openVisitedLog: %v", err)
	}

	seen, err := store.Seen("car-1")
	if err != nil || seen {
		t.Fatalf("expected unseen id, seen=%v err=%v", seen, err)
	}

	if err := store.MarkBatch([]string{"car-1", "car-2"}); err != nil {
		t.Fatalf("MarkBatch: %v", err)
	}
	if seen, _ := store.Seen("car-1"); !seen {
		t.Fatal("car-1 should be seen after MarkBatch")
	}
	store.Close()

	reopened, err := openVisitedLog(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if seen, _ := reopened.Seen("car-2"); !seen {
		t.Fatal("ids must survive a restart")
	}
	if reopened.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reopened.Len())
	}
}

func TestVisitedLogAppendsOneIDPerLine(t *testing.T) {
	path := t.TempDir() + "/visited.log"

	store, err := openVisitedLog(path)
	if err != nil {
		t.Fatalf("openVisitedLog: %v", err)
	}
	if err := store.MarkBatch([]string{"a", "b"}); err != nil {
		t.Fatalf("MarkBatch: %v", err)
	}
	if err := store.MarkBatch([]string{"c"}); err != nil {
		t.Fatalf("MarkBatch: %v", err)
	}
	store.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(raw) != "a\nb\nc\n" {
		t.Fatalf("unexpected log content %q", raw)
	}
}

func TestVisitedLogIgnoresBlankLines(t *testing.T) {
	path := t.TempDir() + "/visited.log"
	if err := os.WriteFile(path, []byte("x\n\n  \ny\n"), 0o644); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	store, err := openVisitedLog(path)
	if err != nil {
		t.Fatalf("openVisitedLog: %v", err)
	}
	defer store.Close()

	if store.Len() != 2 {
		t.Fatalf("Len = %d, want 2", store.Len())
	}
	for _, id := range strings.Fields("x y") {
		if seen, _ := store.Seen(id); !seen {
			t.Fatalf("%s should be seen", id)
		}
	}
}
