package httpapi

import (
	"net/http"

	"sillydream/internal/domain"

	"github.com/gin-gonic/gin"
)

type modelsResponse struct {
	Models    []domain.ModelDescriptor `json:"models"`
	Detection domain.DetectionState    `json:"detection"`
	Selection domain.ModelSelection    `json:"selection"`
	ModelUsed string                   `json:"model_used,omitempty"`
}

type selectModelRequest struct {
	Auto  bool   `json:"auto"`
	Model string `json:"model"`
}

func (h *Handler) modelsState() modelsResponse {
	models := h.models.Models()
	if models == nil {
		models = []domain.ModelDescriptor{}
	}
	return modelsResponse{
		Models:    models,
		Detection: h.models.State(),
		Selection: h.models.Selection(),
		ModelUsed: h.models.CurrentModelUsed(),
	}
}

// ListModels は、検出済みのモデル一覧と選択状態を返します
func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, h.modelsState())
}

// RefreshModels は、保存済みのAPIキーでモデル一覧を再取得します
func (h *Handler) RefreshModels(c *gin.Context) {
	credential, err := h.keys.Get(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.models.ListModels(c.Request.Context(), credential)
	c.JSON(http.StatusOK, h.modelsState())
}

// SelectModel は、自動モードまたは特定モデルを選択します
func (h *Handler) SelectModel(c *gin.Context) {
	var req selectModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が不正です"})
		return
	}

	if req.Auto || req.Model == "" {
		h.models.EnableAutoMode()
	} else {
		h.models.SelectModel(req.Model)
	}
	c.JSON(http.StatusOK, h.modelsState())
}
