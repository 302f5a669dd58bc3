package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListHistory は、新しい順に並んだ生成履歴を返します
func (h *Handler) ListHistory(c *gin.Context) {
	entries, err := h.history.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// DeleteHistory は、指定IDの履歴を削除します
func (h *Handler) DeleteHistory(c *gin.Context) {
	if err := h.history.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearHistory は、履歴をすべて削除します
func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.history.Clear(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
