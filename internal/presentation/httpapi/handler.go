package httpapi

import (
	"errors"
	"net/http"
	"time"

	"sillydream/internal/application"
	"sillydream/internal/domain"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler は、ワークベンチの操作をJSON APIとして公開するハンドラーです
type Handler struct {
	keys         *application.KeyStoreService
	intake       *application.ImageIntakeService
	models       *application.ModelDirectoryService
	orchestrator *application.GenerationOrchestrator
	history      *application.HistoryService
	downloads    *application.DownloadService
	logger       *zap.Logger
}

// Services は、ハンドラーが利用するアプリケーションサービスの組です
type Services struct {
	Keys         *application.KeyStoreService
	Intake       *application.ImageIntakeService
	Models       *application.ModelDirectoryService
	Orchestrator *application.GenerationOrchestrator
	History      *application.HistoryService
	Downloads    *application.DownloadService
}

// NewHandler は新しいHandlerインスタンスを作成します
func NewHandler(services Services, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		keys:         services.Keys,
		intake:       services.Intake,
		models:       services.Models,
		orchestrator: services.Orchestrator,
		history:      services.History,
		downloads:    services.Downloads,
		logger:       logger,
	}
}

// Router は、ルーティングを設定したginエンジンを返します
func (h *Handler) Router(allowOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		api.GET("/health", h.Health)

		api.GET("/settings/key", h.GetKeyStatus)
		api.PUT("/settings/key", h.SetKey)
		api.DELETE("/settings/key", h.ClearKey)

		api.GET("/models", h.ListModels)
		api.POST("/models/refresh", h.RefreshModels)
		api.PUT("/models/selection", h.SelectModel)

		api.GET("/images", h.ListImages)
		api.POST("/images", h.UploadImage)
		api.DELETE("/images/:id", h.RemoveImage)

		api.POST("/generate", h.Generate)
		api.GET("/results", h.GetResults)
		api.DELETE("/results", h.ClearResults)
		api.POST("/results/:index/retry", h.RetryResult)
		api.GET("/results/:index/download", h.DownloadResult)

		api.GET("/history", h.ListHistory)
		api.DELETE("/history", h.ClearHistory)
		api.DELETE("/history/:id", h.DeleteHistory)
	}

	return router
}

// Health は、稼働確認用のエンドポイントです
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		h.logger.Debug("HTTPリクエストを処理しました",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// errorStatus は、アプリケーションのエラーをHTTPステータスに対応付けます
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrImageNotFound),
		errors.Is(err, domain.ErrHistoryNotFound),
		errors.Is(err, domain.ErrSlotOutOfRange),
		errors.Is(err, domain.ErrImageUnavailable):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSlotNotRetryable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBatchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("リクエストの処理に失敗しました",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
