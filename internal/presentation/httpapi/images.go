package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"sillydream/internal/domain"

	"github.com/gin-gonic/gin"
)

// multipart のヘッダー等を見込んだ上乗せ分
const uploadOverhead = 1 << 20

type imagesResponse struct {
	Images    []domain.SourceImage `json:"images"`
	MaxImages int                  `json:"max_images"`
	Error     string               `json:"error,omitempty"`
}

func (h *Handler) imagesState() imagesResponse {
	resp := imagesResponse{
		Images:    h.intake.Images(),
		MaxImages: h.intake.Config().MaxImages,
	}
	if err := h.intake.LastError(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// ListImages は、取り込み済みの参照画像と表示中の検証エラーを返します
func (h *Handler) ListImages(c *gin.Context) {
	c.JSON(http.StatusOK, h.imagesState())
}

// UploadImage は、multipart の file フィールドの画像を参照画像として追加します
func (h *Handler) UploadImage(c *gin.Context) {
	limit := h.intake.Config().MaxSizeBytes + uploadOverhead
	if c.Request.ContentLength > limit {
		h.respondError(c, h.intake.Reject(domain.ErrImageTooLarge))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, h.intake.Reject(domain.ErrImageTooLarge))
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルを取得できませんでした"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(c, h.intake.Reject(domain.ErrImageTooLarge))
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
	}

	image, err := h.intake.AddImage(domain.UploadedFile{
		Filename:  header.Filename,
		MediaType: mediaType,
		Data:      data,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, image)
}

// RemoveImage は、指定IDの参照画像を削除します
func (h *Handler) RemoveImage(c *gin.Context) {
	if err := h.intake.RemoveImage(c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.imagesState())
}
