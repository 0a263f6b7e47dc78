package ragora

import (
	"context"
	"net/http"
	"time"
)

// Collection groups documents that are searched together.
type Collection struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug,omitempty"`
	Description   string    `json:"description,omitempty"`
	DocumentCount int       `json:"document_count"`
	ChunkCount    int       `json:"chunk_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateCollectionRequest is the body of CreateCollection.
type CreateCollectionRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateCollectionRequest is the body of UpdateCollection. Nil fields are
// left unchanged.
type UpdateCollectionRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ListCollections returns one page of the caller's collections.
func (c *Client) ListCollections(ctx context.Context, opts ListOptions) (*Page[Collection], error) {
	var page Page[Collection]
	if err := c.do(ctx, http.MethodGet, "/v1/collections", listQuery(opts), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetCollection fetches a collection by ID or slug.
func (c *Client) GetCollection(ctx context.Context, id string) (*Collection, error) {
	var col Collection
	if err := c.do(ctx, http.MethodGet, "/v1/collections/"+escape(id), nil, nil, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// CreateCollection creates an empty collection.
func (c *Client) CreateCollection(ctx context.Context, req CreateCollectionRequest) (*Collection, error) {
	var col Collection
	if err := c.do(ctx, http.MethodPost, "/v1/collections", nil, req, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// UpdateCollection changes a collection's name or description.
func (c *Client) UpdateCollection(ctx context.Context, id string, req UpdateCollectionRequest) (*Collection, error) {
	var col Collection
	if err := c.do(ctx, http.MethodPatch, "/v1/collections/"+escape(id), nil, req, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// DeleteCollection deletes a collection and all of its documents.
func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/collections/"+escape(id), nil, nil, nil)
}
