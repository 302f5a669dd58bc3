package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"sillydream/internal/application"
	"sillydream/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type generateRequest struct {
	Count        int      `json:"count"`
	Prompt       string   `json:"prompt"`
	Denoising    *float64 `json:"denoising"`
	Seed         *uint32  `json:"seed"`
	PromptWeight *float64 `json:"prompt_weight"`
	Enhanced     bool     `json:"enhanced"`
}

// params は、リクエストと現在の取り込み画像・モデル選択から生成パラメータを組み立てます
func (h *Handler) params(req generateRequest) domain.GenerationParams {
	denoising := domain.DefaultDenoising
	if req.Denoising != nil {
		denoising = *req.Denoising
	}
	weight := domain.DefaultPromptWeight
	if req.PromptWeight != nil {
		weight = *req.PromptWeight
	}

	selection := h.models.Selection()
	return domain.GenerationParams{
		Images:        h.intake.Images(),
		Prompt:        req.Prompt,
		Denoising:     denoising,
		Seed:          req.Seed,
		ModelSelector: selection.ModelSelector(),
		AutoMode:      selection.AutoMode,
		EnhancedMode:  req.Enhanced,
		PromptWeight:  weight,
	}
}

// Generate は、count 件の生成を並行に実行し、すべての完了後にバッチの状態を返します
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が不正です"})
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	results, err := h.orchestrator.RunBatch(c.Request.Context(), req.Count, h.params(req))

	var batchErr *domain.BatchError
	switch {
	case errors.As(err, &batchErr):
		c.JSON(http.StatusBadGateway, batchResponse(results, batchErr))
	case err != nil:
		h.respondError(c, err)
	default:
		c.JSON(http.StatusOK, batchResponse(results, nil))
	}
}

// batchResponse は、RunBatch が返したこのリクエスト自身の結果から応答を組み立てます
func batchResponse(results []domain.GenerationResult, batchErr *domain.BatchError) application.BatchSnapshot {
	snapshot := application.BatchSnapshot{
		Results:      results,
		SuccessCount: lo.CountBy(results, func(r domain.GenerationResult) bool { return r.State == domain.ResultStateSuccess }),
	}
	if batchErr != nil {
		snapshot.Error = batchErr.Error()
	}
	return snapshot
}

// GetResults は、現在のバッチの状態を返します
func (h *Handler) GetResults(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Results())
}

// ClearResults は、現在のバッチの結果を破棄します
func (h *Handler) ClearResults(c *gin.Context) {
	h.orchestrator.ClearResults()
	c.Status(http.StatusNoContent)
}

// RetryResult は、エラー状態のスロットを1件だけ再実行します
func (h *Handler) RetryResult(c *gin.Context) {
	index, ok := h.slotIndex(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.Retry(c.Request.Context(), index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DownloadResult は、成功したスロットの画像を添付ファイルとして返します
func (h *Handler) DownloadResult(c *gin.Context) {
	index, ok := h.slotIndex(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.Result(index)
	if err != nil {
		h.respondError(c, err)
		return
	}

	file, err := h.downloads.Download(c.Request.Context(), result)
	if err != nil {
		h.logger.Warn("画像のダウンロードに失敗しました", zap.Int("index", index), zap.Error(err))
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.MediaType, file.Data)
}

func (h *Handler) slotIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.respondError(c, domain.ErrSlotOutOfRange)
		return 0, false
	}
	return index, true
}
