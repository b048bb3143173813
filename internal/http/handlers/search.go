package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docbridge-backend/internal/http/response"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

type SearchHandler struct {
	log  *logger.Logger
	docs DocumentService
}

func NewSearchHandler(log *logger.Logger, docs DocumentService) *SearchHandler {
	return &SearchHandler{
		log:  log.With("handler", "SearchHandler"),
		docs: docs,
	}
}

// GET /api/search?q=...&limit=...
func (h *SearchHandler) Search(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}

	results, err := h.docs.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.log.Warn("search failed", "error", err)
		response.RespondServiceError(c, "search_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"results": results, "count": len(results)})
}
