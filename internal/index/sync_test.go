package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/chunker"
	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func syncTestEnv(t *testing.T) (string, storage.Provider, *DB, *Ingestor) {
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

func writeCorpusFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestChanged_FreshRegistryReportsAll(t *testing.T) {
	dir, store, db, _ := syncTestEnv(t)
	writeCorpusFile(t, dir, "b.md", "# B")
	writeCorpusFile(t, dir, "a.md", "# A")

	changed, skipped, err := Changed(db, store)
	if err != nil {
		t.Fatalf("Changed: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped = %v", skipped)
	}
	if len(changed) != 2 || changed[0] != "a.md" || changed[1] != "b.md" {
		t.Errorf("changed = %v, want sorted [a.md b.md]", changed)
	}
}

func TestSync_Idempotent(t *testing.T) {
	dir, store, db, ing := syncTestEnv(t)
	ctx := context.Background()
	writeCorpusFile(t, dir, "a.md", "# A\n\nAlpha body.")

	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	changed, _, err := Changed(db, store)
	if err != nil {
		t.Fatalf("Changed: %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("changed after sync = %v, want none", changed)
	}
}

func TestChanged_DetectsNewAndModified(t *testing.T) {
	dir, store, db, ing := syncTestEnv(t)
	ctx := context.Background()
	writeCorpusFile(t, dir, "a.md", "# A")
	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatal(err)
	}

	// a.md untouched, b.md added.
	writeCorpusFile(t, dir, "b.md", "# B")
	changed, _, err := Changed(db, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed[0] != "b.md" {
		t.Errorf("changed = %v, want [b.md]", changed)
	}

	// Content edit to a.md shows up too.
	writeCorpusFile(t, dir, "a.md", "# A edited")
	changed, _, err = Changed(db, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 2 || changed[0] != "a.md" || changed[1] != "b.md" {
		t.Errorf("changed = %v, want [a.md b.md]", changed)
	}
}

func TestChanged_IgnoresTimestampOnlyTouch(t *testing.T) {
	dir, store, db, ing := syncTestEnv(t)
	ctx := context.Background()
	writeCorpusFile(t, dir, "a.md", "# A")
	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatal(err)
	}

	// Rewrite identical bytes: mtime moves, fingerprint does not.
	writeCorpusFile(t, dir, "a.md", "# A")
	changed, _, err := Changed(db, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 {
		t.Errorf("changed = %v, want none for identical content", changed)
	}
}

func TestSync_RemovesStaleEntries(t *testing.T) {
	dir, store, db, ing := syncTestEnv(t)
	ctx := context.Background()
	writeCorpusFile(t, dir, "keep.md", "# Keep")
	writeCorpusFile(t, dir, "drop.md", "# Drop")
	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(dir, "drop.md")); err != nil {
		t.Fatal(err)
	}
	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatal(err)
	}

	registry, err := db.AllChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := registry["drop.md"]; ok {
		t.Error("drop.md still in registry after removal from disk")
	}
	if _, ok := registry["keep.md"]; !ok {
		t.Error("keep.md missing from registry")
	}
}

// flakyEmbedder fails for any batch containing the trigger substring.
type flakyEmbedder struct {
	inner   embed.Embedder
	trigger string
}

func (f *flakyEmbedder) Dimensions() int { return f.inner.Dimensions() }

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, txt := range texts {
		if strings.Contains(txt, f.trigger) {
			return nil, fmt.Errorf("embedder unavailable")
		}
	}
	return f.inner.Embed(ctx, texts)
}

func TestSync_FailureIsolatedPerPath(t *testing.T) {
	dir, store, db, _ := syncTestEnv(t)
	ctx := context.Background()
	ing := NewIngestor(&flakyEmbedder{inner: embed.NewLocal(testDims), trigger: "POISON"}, chunker.New(200, 40))

	writeCorpusFile(t, dir, "good.md", "# Good\n\nHealthy content.")
	writeCorpusFile(t, dir, "bad.md", "# Bad\n\nPOISON content.")

	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatalf("Sync should not fail on per-path errors: %v", err)
	}

	// The healthy path was reconciled; the failing one keeps no fingerprint
	// and stays detectable for the next run.
	registry, err := db.AllChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := registry["good.md"]; !ok {
		t.Error("good.md not reconciled")
	}
	if _, ok := registry["bad.md"]; ok {
		t.Error("bad.md fingerprint advanced despite embed failure")
	}

	changed, _, err := Changed(db, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 1 || changed[0] != "bad.md" {
		t.Errorf("changed = %v, want [bad.md] re-detected", changed)
	}

	// Once the embedder recovers the path reconciles normally.
	ing2 := NewIngestor(embed.NewLocal(testDims), chunker.New(200, 40))
	if err := Sync(ctx, db, store, ing2, quietLogger()); err != nil {
		t.Fatal(err)
	}
	changed, _, err = Changed(db, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 {
		t.Errorf("changed = %v after recovery, want none", changed)
	}
}

func TestSync_FailedReingestKeepsOldRecords(t *testing.T) {
	dir, store, db, _ := syncTestEnv(t)
	ctx := context.Background()

	writeCorpusFile(t, dir, "doc.md", "# Doc\n\nOriginal content.")
	ing := NewIngestor(embed.NewLocal(testDims), chunker.New(200, 40))
	if err := Sync(ctx, db, store, ing, quietLogger()); err != nil {
		t.Fatal(err)
	}
	before, _ := db.ChunkCount("doc.md")
	if before == 0 {
		t.Fatal("no chunks after initial sync")
	}
	csBefore, _ := db.GetChecksum("doc.md")

	// The rewritten file trips the embedder; the old generation must survive.
	writeCorpusFile(t, dir, "doc.md", "# Doc\n\nPOISON rewrite.")
	flaky := NewIngestor(&flakyEmbedder{inner: embed.NewLocal(testDims), trigger: "POISON"}, chunker.New(200, 40))
	if err := Sync(ctx, db, store, flaky, quietLogger()); err != nil {
		t.Fatal(err)
	}

	after, _ := db.ChunkCount("doc.md")
	if after != before {
		t.Errorf("chunk count = %d after failed re-ingest, want %d", after, before)
	}
	csAfter, _ := db.GetChecksum("doc.md")
	if csAfter != csBefore {
		t.Errorf("checksum advanced on failed re-ingest: %q -> %q", csBefore, csAfter)
	}
}

func TestIngestFile_ChunkAndVectorCountsMatch(t *testing.T) {
	_, _, db, ing := syncTestEnv(t)
	ctx := context.Background()

	body := strings.Repeat("Some paragraph of meaningful length here.\n\n", 20)
	if err := ing.IngestFile(ctx, db, "big.md", []byte("# Big\n\n"+body)); err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	chunkN, _ := db.ChunkCount("big.md")
	if chunkN < 2 {
		t.Fatalf("expected multiple chunks, got %d", chunkN)
	}
	var vecN int
	if err := db.conn.QueryRow(`SELECT count(*) FROM chunk_vectors`).Scan(&vecN); err != nil {
		t.Fatal(err)
	}
	if vecN != chunkN {
		t.Errorf("vector count %d != chunk count %d", vecN, chunkN)
	}
}
