package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/trendtags/internal/tag"
)

// TagService is the subset of tag.Service used by the handlers.
type TagService interface {
	TopTrendingTagNames(ctx context.Context) ([]string, error)
	TrendingTags(ctx context.Context, startTag string, limit int) ([]tag.Summary, error)
}

// TagHandlers serves the trending tag endpoints.
type TagHandlers struct {
	service TagService
	logger  *slog.Logger
}

// NewTagHandlers creates tag handlers backed by service.
func NewTagHandlers(service TagService, logger *slog.Logger) *TagHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &TagHandlers{service: service, logger: logger}
}

// TopTagsResponse is the body of GET /tags/top.
type TopTagsResponse struct {
	Tags []string `json:"tags"`
}

// TrendingTagsResponse is the body of GET /tags/trending.
type TrendingTagsResponse struct {
	Tags  []tag.Summary `json:"tags"`
	Count int           `json:"count"`
}

// Top handles GET /tags/top.
func (h *TagHandlers) Top(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	names, err := h.service.TopTrendingTagNames(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}

	WriteJSON(w, r.Context(), http.StatusOK, TopTagsResponse{Tags: names})
}

// Trending handles GET /tags/trending?start_tag=&limit=.
func (h *TagHandlers) Trending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	limit := tag.DefaultTrendingLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "limit must be an integer")
			return
		}
		limit = n
	}

	tags, err := h.service.TrendingTags(r.Context(), query.Get("start_tag"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if tags == nil {
		tags = []tag.Summary{}
	}

	WriteJSON(w, r.Context(), http.StatusOK, TrendingTagsResponse{Tags: tags, Count: len(tags)})
}

func (h *TagHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorCodeFor(err)
	switch code {
	case ErrCodeValidation:
		WriteError(w, r.Context(), StatusCodeMapping(code), code, err.Error())
	case ErrCodeStoreUnavailable:
		h.logger.WarnContext(r.Context(), "post store unavailable", "path", r.URL.Path, "error", err)
		WriteError(w, r.Context(), StatusCodeMapping(code), code, "Post store unavailable")
	case ErrCodeCanceled, ErrCodeTimeout:
		h.logger.InfoContext(r.Context(), "tag request ended early", "path", r.URL.Path, "error", err)
		WriteError(w, r.Context(), StatusCodeMapping(code), code, "Request canceled or timed out")
	default:
		h.logger.ErrorContext(r.Context(), "tag request failed", "path", r.URL.Path, "error", err)
		WriteError(w, r.Context(), StatusCodeMapping(code), code, "Internal server error")
	}
}
