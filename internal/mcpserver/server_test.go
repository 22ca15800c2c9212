package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/answer"
	"github.com/starford/ansuz/internal/chunker"
	"github.com/starford/ansuz/internal/docservice"
	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/storage"
)

const testDims = 64

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	corpusDir := t.TempDir()
	store, err := storage.NewFS(corpusDir, nil)
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "ansuz-mcp-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name(), testDims)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	emb := embed.NewLocal(testDims)
	ing := index.NewIngestor(emb, chunker.New(200, 40))
	ans := answer.New(db, emb, answer.NewExtractive(), 4)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	svc := docservice.NewService(store, db, ing, emb, ans, logger)
	return New(svc), corpusDir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct call-tool test helper, so the handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_corpus":
		result, err = srv.searchCorpus(ctx, req)
	case "ask_corpus":
		result, err = srv.askCorpus(ctx, req)
	case "read_document":
		result, err = srv.readDocument(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "sync_corpus":
		result, err = srv.syncCorpus(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func seedCorpus(t *testing.T, srv *Server, dir string) {
	t.Helper()
	docs := map[string]string{
		"db.md":   "---\ntags:\n  - storage\n---\n# Storage\n\ndatabase storage engine internals",
		"cats.md": "# Cats\n\nkittens playing with yarn outside",
	}
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	res := callTool(t, srv, "sync_corpus", nil)
	if res.IsError {
		t.Fatalf("sync_corpus failed: %s", resultText(res))
	}
}

func TestSyncCorpusReportsChanged(t *testing.T) {
	srv, dir := testServer(t)
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := callTool(t, srv, "sync_corpus", nil)
	text := resultText(res)
	if !strings.Contains(text, "reconciled 1 changed path(s)") {
		t.Errorf("summary = %q", text)
	}
	if !strings.Contains(text, "a.md") {
		t.Errorf("changed path missing from summary: %q", text)
	}

	// Second pass finds nothing to do.
	res = callTool(t, srv, "sync_corpus", nil)
	if got := resultText(res); !strings.Contains(got, "reconciled 0 changed path(s)") {
		t.Errorf("idempotent summary = %q", got)
	}
}

func TestSearchCorpus(t *testing.T) {
	srv, dir := testServer(t)
	seedCorpus(t, srv, dir)

	res := callTool(t, srv, "search_corpus", map[string]interface{}{
		"query": "database storage internals",
		"k":     float64(2),
	})
	if res.IsError {
		t.Fatalf("search_corpus error: %s", resultText(res))
	}

	var hits []docservice.SearchHit
	if err := json.Unmarshal([]byte(resultText(res)), &hits); err != nil {
		t.Fatalf("unmarshal hits: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].Path != "db.md" {
		t.Errorf("top hit = %s, want db.md", hits[0].Path)
	}
}

func TestSearchCorpus_MissingQuery(t *testing.T) {
	srv, _ := testServer(t)
	res := callTool(t, srv, "search_corpus", nil)
	if !res.IsError {
		t.Error("expected error result for missing query")
	}
}

func TestAskCorpus(t *testing.T) {
	srv, dir := testServer(t)
	seedCorpus(t, srv, dir)

	res := callTool(t, srv, "ask_corpus", map[string]interface{}{
		"question": "what do kittens play with?",
	})
	if res.IsError {
		t.Fatalf("ask_corpus error: %s", resultText(res))
	}
	var ans answer.Answer
	if err := json.Unmarshal([]byte(resultText(res)), &ans); err != nil {
		t.Fatalf("unmarshal answer: %v", err)
	}
	if ans.Text == "" || len(ans.Sources) == 0 {
		t.Errorf("answer = %+v", ans)
	}
}

func TestReadDocument(t *testing.T) {
	srv, dir := testServer(t)
	seedCorpus(t, srv, dir)

	res := callTool(t, srv, "read_document", map[string]interface{}{"path": "cats.md"})
	if res.IsError {
		t.Fatalf("read_document error: %s", resultText(res))
	}
	if !strings.Contains(resultText(res), "kittens") {
		t.Errorf("content = %q", resultText(res))
	}

	res = callTool(t, srv, "read_document", map[string]interface{}{"path": "nope.md"})
	if !res.IsError {
		t.Error("expected error result for missing document")
	}
}

func TestListDocuments(t *testing.T) {
	srv, dir := testServer(t)

	res := callTool(t, srv, "list_documents", nil)
	if got := resultText(res); got != "no documents indexed" {
		t.Errorf("empty list = %q", got)
	}

	seedCorpus(t, srv, dir)

	res = callTool(t, srv, "list_documents", nil)
	text := resultText(res)
	if !strings.Contains(text, "db.md") || !strings.Contains(text, "cats.md") {
		t.Errorf("list = %q", text)
	}

	res = callTool(t, srv, "list_documents", map[string]interface{}{"tag": "storage"})
	text = resultText(res)
	if !strings.Contains(text, "db.md") || strings.Contains(text, "cats.md") {
		t.Errorf("tag-filtered list = %q", text)
	}
}
