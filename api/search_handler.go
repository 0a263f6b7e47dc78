package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	apisearch "github.com/papercomputeco/ragora/api/search"
	"github.com/papercomputeco/ragora/pkg/ragora"
	"github.com/papercomputeco/ragora/pkg/utils"
)

// handleSearchEndpoint handles GET /v1/search requests.
// Query parameters:
//   - query (required): the search query text
//   - top_k (optional, default 5): number of results to return
//   - collection (optional): comma separated collection IDs
func (s *Server) handleSearchEndpoint(c *fiber.Ctx) error {
	if s.config.Searcher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "search is not configured: a Ragora API key is required",
		})
	}

	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query parameter is required",
		})
	}

	topK := 5
	if topKStr := c.Query("top_k"); topKStr != "" {
		parsed, err := strconv.Atoi(topKStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "top_k must be a positive integer",
			})
		}
		topK = parsed
	}

	output, err := apisearch.Search(
		c.Context(),
		apisearch.SearchInput{
			Query:         query,
			TopK:          topK,
			CollectionIDs: utils.SplitCSV(c.Query("collection")),
		},
		s.config.Collections,
		s.config.Searcher,
		s.logger,
	)
	if err != nil {
		status := fiber.StatusBadGateway
		var apiErr *ragora.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode < fiber.StatusInternalServerError {
			status = apiErr.StatusCode
		}
		return c.Status(status).JSON(ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(output)
}
