package api

import (
	"github.com/starford/ansuz/internal/answer"
	"github.com/starford/ansuz/internal/docservice"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path    string `json:"path" example:"guides/setup.md"`
	Content string `json:"content" example:"# Setup\nInstall the binary."`
}

// UpdateDocumentRequest is the request body for updating a document.
type UpdateDocumentRequest struct {
	Content string `json:"content" example:"# Setup\nUpdated steps."`
}

// AskRequest is the request body for question answering.
type AskRequest struct {
	Question string `json:"question" example:"How do I configure the corpus path?"`
}

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = docservice.DocumentDetail

// DocumentListItem is a lightweight item in a list response (aliased from the domain layer).
type DocumentListItem = docservice.DocumentListItem

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []DocumentListItem `json:"documents"`
	Total     int                `json:"total" example:"42"`
}

// SearchHit is a single similarity hit (aliased from the domain layer).
type SearchHit = docservice.SearchHit

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

// AskResponse is the QA response (aliased from the answer layer).
type AskResponse = answer.Answer

// SyncResponse reports the outcome of a manual reconciliation run.
type SyncResponse struct {
	Status string `json:"status" example:"ok"`
}
