package ragora

import (
	"context"
	"net/http"
	"time"
)

// MarketplaceSeller is the publisher of a marketplace product.
type MarketplaceSeller struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MarketplaceProduct is a knowledge base offered on the marketplace.
type MarketplaceProduct struct {
	ID            string            `json:"id"`
	Slug          string            `json:"slug"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Category      string            `json:"category,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	PriceUSD      float64           `json:"price_usd"`
	Rating        float64           `json:"rating"`
	ReviewCount   int               `json:"review_count"`
	DocumentCount int               `json:"document_count"`
	CollectionID  string            `json:"collection_id,omitempty"`
	Seller        MarketplaceSeller `json:"seller"`
	CreatedAt     time.Time         `json:"created_at"`
}

// MarketplaceListOptions filters ListMarketplace.
type MarketplaceListOptions struct {
	ListOptions
	Search   string
	Category string
	Sort     string
}

// ListMarketplace browses published products.
func (c *Client) ListMarketplace(ctx context.Context, opts MarketplaceListOptions) (*Page[MarketplaceProduct], error) {
	q := listQuery(opts.ListOptions)
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.Category != "" {
		q.Set("category", opts.Category)
	}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}

	var page Page[MarketplaceProduct]
	if err := c.do(ctx, http.MethodGet, "/v1/marketplace", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetMarketplaceProduct fetches a product by ID or slug.
func (c *Client) GetMarketplaceProduct(ctx context.Context, idOrSlug string) (*MarketplaceProduct, error) {
	var p MarketplaceProduct
	if err := c.do(ctx, http.MethodGet, "/v1/marketplace/"+escape(idOrSlug), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
