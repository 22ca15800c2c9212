package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/chunker"
	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/storage"
)

// watcherTestEnv sets up a corpus dir, storage, DB, and ingestor for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB, *Ingestor) {
	t.Helper()
	corpusDir := t.TempDir()
	store, err := storage.NewFS(corpusDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	ing := NewIngestor(embed.NewLocal(testDims), chunker.New(200, 40))
	return corpusDir, store, db, ing
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) record(kind, path string) {
	l.mu.Lock()
	l.events = append(l.events, kind+":"+path)
	l.mu.Unlock()
}

func (l *eventLog) has(want string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == want {
			return true
		}
	}
	return false
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	corpusDir, store, db, ing := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var log eventLog
	go Watch(ctx, db, store, ing, corpusDir, quietLogger(), log.record)

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(corpusDir, "new.md"), []byte("# New\n\nContent."), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("new.md")
		return cs != ""
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has("indexed:new.md")
	}, "no indexed event for new.md")
}

func TestWatcher_ModifiedFileReindexed(t *testing.T) {
	corpusDir, store, db, ing := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = os.WriteFile(filepath.Join(corpusDir, "doc.md"), []byte("# V1"), 0o644)
	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatal(err)
	}
	v1, _ := db.GetChecksum("doc.md")

	go Watch(ctx, db, store, ing, corpusDir, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(corpusDir, "doc.md"), []byte("# V2 changed"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("doc.md")
		return cs != "" && cs != v1
	}, "modified file not re-indexed")
}

func TestWatcher_RemovedFileDeleted(t *testing.T) {
	corpusDir, store, db, ing := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = os.WriteFile(filepath.Join(corpusDir, "doomed.md"), []byte("# Doomed"), 0o644)
	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatal(err)
	}

	var log eventLog
	go Watch(ctx, db, store, ing, corpusDir, quietLogger(), log.record)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(corpusDir, "doomed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("doomed.md")
		return cs == ""
	}, "removed file still in registry")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has("removed:doomed.md")
	}, "no removed event for doomed.md")
}

func TestWatcher_NewDirectoryPickedUp(t *testing.T) {
	corpusDir, store, db, ing := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, ing, corpusDir, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(corpusDir, "guides")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "setup.md"), []byte("# Setup"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(filepath.Join("guides", "setup.md"))
		return cs != ""
	}, "file in new directory not indexed")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	corpusDir, store, db, ing := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = os.WriteFile(filepath.Join(corpusDir, "old.md"), []byte("# Old"), 0o644)
	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatal(err)
	}

	go Watch(ctx, db, store, ing, corpusDir, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	if err := os.Rename(filepath.Join(corpusDir, "old.md"), filepath.Join(corpusDir, "new.md")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("old.md")
		newCS, _ := db.GetChecksum("new.md")
		return oldCS == "" && newCS != ""
	}, "rename not reconciled into new path")
}
