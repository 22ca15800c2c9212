// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz retrieval tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/docservice"
)

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all Ansuz tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_corpus",
		mcp.WithDescription("Similarity search over corpus document chunks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query text")),
		mcp.WithNumber("k", mcp.Description("Number of results (default 5)")),
	), s.searchCorpus)

	s.mcp.AddTool(mcp.NewTool("ask_corpus",
		mcp.WithDescription("Answer a question grounded in the corpus, with source citations."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
	), s.askCorpus)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the full content of a corpus document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. guides/setup.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List indexed corpus documents, optionally filtered by tag."),
		mcp.WithString("tag", mcp.Description("Optional tag filter")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("sync_corpus",
		mcp.WithDescription("Run one reconciliation pass: detect changed files and rebuild their index records."),
	), s.syncCorpus)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchCorpus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k := req.GetInt("k", 5)

	hits, err := s.svc.Search(ctx, query, k)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) askCorpus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ans, err := s.svc.Ask(ctx, question)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(ans, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(doc.Content), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := req.GetString("tag", "")

	items, _, err := s.svc.ListDocuments(ctx, 0, 0, tag, "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, item := range items {
		paths = append(paths, item.Path)
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no documents indexed"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) syncCorpus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	changed, skipped, err := s.svc.Changed(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Sync(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary := fmt.Sprintf("reconciled %d changed path(s)", len(changed))
	if len(changed) > 0 {
		summary += ":\n" + strings.Join(changed, "\n")
	}
	if len(skipped) > 0 {
		summary += fmt.Sprintf("\nskipped %d unreadable file(s): %s", len(skipped), strings.Join(skipped, ", "))
	}
	return mcp.NewToolResultText(summary), nil
}
