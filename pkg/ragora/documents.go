package ragora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Document processing states reported by the API.
const (
	DocumentPending    = "pending"
	DocumentProcessing = "processing"
	DocumentCompleted  = "completed"
	DocumentFailed     = "failed"
)

// Document is an uploaded file inside a collection.
type Document struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collection_id"`
	Filename     string         `json:"filename"`
	MimeType     string         `json:"mime_type,omitempty"`
	Size         int64          `json:"size,omitempty"`
	Status       string         `json:"status"`
	ChunkCount   int            `json:"chunk_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DocumentStatus is the ingestion progress of a document.
type DocumentStatus struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
	ChunkCount int     `json:"chunk_count"`
	Error      string  `json:"error,omitempty"`
}

// Done reports whether ingestion has finished, successfully or not.
func (s DocumentStatus) Done() bool {
	return s.Status == DocumentCompleted || s.Status == DocumentFailed
}

// UploadDocumentRequest describes a file to ingest.
type UploadDocumentRequest struct {
	CollectionID string
	Filename     string
	Content      io.Reader
	Metadata     map[string]any
}

// UploadDocument sends a file as multipart/form-data. Ingestion continues
// asynchronously on the server; poll GetDocumentStatus to follow it.
func (c *Client) UploadDocument(ctx context.Context, req UploadDocumentRequest) (*Document, error) {
	if req.CollectionID == "" {
		return nil, errors.New("collection ID is required")
	}
	if req.Filename == "" || req.Content == nil {
		return nil, errors.New("filename and content are required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("collection_id", req.CollectionID); err != nil {
		return nil, fmt.Errorf("writing form: %w", err)
	}
	if len(req.Metadata) > 0 {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata: %w", err)
		}
		if err := mw.WriteField("metadata", string(meta)); err != nil {
			return nil, fmt.Errorf("writing form: %w", err)
		}
	}

	part, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("writing form: %w", err)
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.Filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("writing form: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.timeout, ErrTimeout)
		defer cancel()
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/documents", nil, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var doc Document
	if err := c.send(httpReq, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentStatus reports the ingestion progress of a document.
func (c *Client) GetDocumentStatus(ctx context.Context, id string) (*DocumentStatus, error) {
	var status DocumentStatus
	if err := c.do(ctx, http.MethodGet, "/v1/documents/"+escape(id)+"/status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListDocuments returns one page of the documents in a collection.
func (c *Client) ListDocuments(ctx context.Context, collectionID string, opts ListOptions) (*Page[Document], error) {
	var page Page[Document]
	path := "/v1/collections/" + escape(collectionID) + "/documents"
	if err := c.do(ctx, http.MethodGet, path, listQuery(opts), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// DeleteDocument removes a document and its chunks.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/documents/"+escape(id), nil, nil, nil)
}

// WaitForDocument polls GetDocumentStatus every interval until ingestion
// finishes or ctx is done.
func (c *Client) WaitForDocument(ctx context.Context, id string, interval time.Duration) (*DocumentStatus, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.GetDocumentStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if status.Done() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
