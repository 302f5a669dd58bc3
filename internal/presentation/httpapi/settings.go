package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type setKeyRequest struct {
	APIKey string `json:"api_key"`
}

// GetKeyStatus は、APIキーが設定済みかを返します。キー自体は返しません
func (h *Handler) GetKeyStatus(c *gin.Context) {
	configured, err := h.keys.HasCredential(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": configured})
}

// SetKey は、APIキーを保存します。空文字列は削除として扱います
func (h *Handler) SetKey(c *gin.Context) {
	var req setKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が不正です"})
		return
	}

	if err := h.keys.Set(c.Request.Context(), req.APIKey); err != nil {
		h.respondError(c, err)
		return
	}

	configured, err := h.keys.HasCredential(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"configured": configured,
		"detection":  h.models.State(),
	})
}

// ClearKey は、APIキーを削除します
func (h *Handler) ClearKey(c *gin.Context) {
	if err := h.keys.Clear(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
