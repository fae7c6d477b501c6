package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/catalog"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/Sternrassler/flowzz-client/pkg/rank"
	"github.com/gin-gonic/gin"
)

// Handler holds the HTTP handlers.
type Handler struct {
	server *Server
}

// NewHandler creates the handlers for s.
func NewHandler(s *Server) *Handler {
	return &Handler{server: s}
}

type catalogResponse struct {
	Source      string                 `json:"source"`
	FetchedAt   time.Time              `json:"fetched_at"`
	Outcome     model.Outcome          `json:"outcome"`
	Pages       int                    `json:"pages"`
	Truncated   bool                   `json:"truncated"`
	Total       int                    `json:"total"`
	Matched     int                    `json:"matched"`
	Rank        rank.Key               `json:"rank"`
	Order       rank.Direction         `json:"order"`
	Records     []model.EnrichedRecord `json:"records"`
	Diagnostics []model.Diagnostic     `json:"diagnostics"`
}

type vendorsResponse struct {
	Items       []model.ItemID              `json:"items"`
	Names       []string                    `json:"names"`
	Outcome     model.Outcome               `json:"outcome"`
	Rows        []model.VendorComparisonRow `json:"rows"`
	Diagnostics []model.Diagnostic          `json:"diagnostics"`
}

// HealthCheck reports that the process is up.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "flowzz-server",
	})
}

// Ready reports whether backing services answer. A missing catalog does
// not make the server unready; the first request builds it.
func (h *Handler) Ready(c *gin.Context) {
	if ping := h.server.config.Ping; ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"catalog": h.server.Current() != nil,
	})
}

// GetCatalog returns the stored catalog ranked by the rank and order
// query parameters, limited to top records when top > 0. Filter query
// parameters (name, min_thc, max_price, ...) narrow it before ranking.
func (h *Handler) GetCatalog(c *gin.Context) {
	key, err := rank.ParseKey(c.DefaultQuery("rank", string(rank.KeyRating)))
	if err != nil {
		abortWithError(c, err)
		return
	}
	dir, err := rank.ParseDirection(c.Query("order"), key)
	if err != nil {
		abortWithError(c, err)
		return
	}
	top, err := strconv.Atoi(c.DefaultQuery("top", "0"))
	if err != nil || top < 0 {
		abortWithError(c, fmt.Errorf("%w: top must be a number >= 0", model.ErrInvalidRequest))
		return
	}
	filter, err := catalog.ParseFilter(c.GetQuery)
	if err != nil {
		abortWithError(c, err)
		return
	}

	result, err := h.server.Catalog()
	if err != nil {
		abortWithError(c, err)
		return
	}

	matched := filter.Apply(result.Records)
	ranked, err := h.server.engine.Rank(matched, key, dir)
	if err != nil {
		abortWithError(c, err)
		return
	}
	records := ranked.Records
	if top > 0 && top < len(records) {
		records = records[:top]
	}

	c.JSON(http.StatusOK, catalogResponse{
		Source:      result.Source,
		FetchedAt:   result.FetchedAt,
		Outcome:     result.Outcome(),
		Pages:       result.Pages,
		Truncated:   result.Truncated,
		Total:       len(result.Records),
		Matched:     len(matched),
		Rank:        key,
		Order:       dir,
		Records:     nonNil(records),
		Diagnostics: nonNil(result.Diagnostics),
	})
}

// RefreshCatalog rebuilds the catalog and returns its summary.
func (h *Handler) RefreshCatalog(c *gin.Context) {
	result, err := h.server.Refresh()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source":      result.Source,
		"fetched_at":  result.FetchedAt,
		"outcome":     result.Outcome(),
		"records":     len(result.Records),
		"pages":       result.Pages,
		"diagnostics": len(result.Diagnostics),
	})
}

// GetVendors compares the vendors of the items named by the repeated item
// query parameter. Only id lookups skip the catalog.
func (h *Handler) GetVendors(c *gin.Context) {
	refs := c.QueryArray("item")
	if len(refs) == 0 || len(refs) > 3 {
		abortWithError(c, fmt.Errorf("%w: 1 to 3 item parameters required, got %d", model.ErrInvalidRequest, len(refs)))
		return
	}

	ids, names, err := h.resolve(refs)
	if err != nil {
		abortWithError(c, err)
		return
	}

	res, err := h.server.engine.FindCommonVendors(c.Request.Context(), ids)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, vendorsResponse{
		Items:       ids,
		Names:       names,
		Outcome:     res.Outcome(),
		Rows:        nonNil(res.Rows),
		Diagnostics: nonNil(res.Diagnostics),
	})
}

func (h *Handler) resolve(refs []string) ([]model.ItemID, []string, error) {
	ids := make([]model.ItemID, 0, len(refs))
	for _, ref := range refs {
		n, err := strconv.ParseInt(strings.TrimSpace(ref), 10, 64)
		if err != nil {
			ids = nil
			break
		}
		ids = append(ids, model.ItemID(n))
	}

	var records []model.EnrichedRecord
	if ids == nil {
		result, err := h.server.Catalog()
		if err != nil {
			return nil, nil, err
		}
		records = result.Records
		if ids, err = catalog.ResolveRefs(records, refs); err != nil {
			return nil, nil, err
		}
	} else if current := h.server.Current(); current != nil {
		records = current.Records
	}

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = fmt.Sprintf("item_%d", id)
		for _, r := range records {
			if r.ID == id && r.Name != "" {
				names[i] = r.Name
				break
			}
		}
	}
	return ids, names, nil
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDataInvariant):
		return http.StatusConflict
	case errors.Is(err, model.ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	var nf *catalog.NotFoundError
	if errors.As(err, &nf) && len(nf.Suggestions) > 0 {
		body["suggestions"] = nf.Suggestions
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
