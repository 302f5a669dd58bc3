package sillydream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sillydream/internal/domain"

	"go.uber.org/zap"
)

const (
	modelsPath   = "/api/models"
	genImagePath = "/api/gen_image"
	imagePath    = "/api/image/"

	// エラーメッセージに含めるボディの最大長
	maxErrorBodyLength = 200
)

// Client は、画像生成APIとHTTPで通信するクライアントです
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient は新しいClientインスタンスを作成します
// 生成リクエストは数分かかることがあるため、timeout には十分な長さを指定してください
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type modelsEnvelope struct {
	Data []modelItem `json:"data"`
}

type modelItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsFlash bool   `json:"is_flash"`
}

// ListModels は、APIキーで利用可能な画像生成モデルの一覧を取得します
func (c *Client) ListModels(ctx context.Context, credential domain.Credential) ([]domain.ModelDescriptor, error) {
	endpoint := c.baseURL + modelsPath + "?api_key=" + url.QueryEscape(credential.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("モデル一覧の取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("モデル一覧の読み込みに失敗: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("モデル一覧の取得に失敗 (HTTP %d): %s", resp.StatusCode, truncate(string(body)))
	}

	var envelope modelsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("モデル一覧の解析に失敗: %w", err)
	}

	models := make([]domain.ModelDescriptor, 0, len(envelope.Data))
	for _, m := range envelope.Data {
		if m.ID == "" {
			continue
		}
		models = append(models, domain.ModelDescriptor{
			ID:      m.ID,
			Name:    m.Name,
			IsFlash: m.IsFlash,
		})
	}

	c.logger.Debug("モデル一覧を取得しました",
		zap.Int("count", len(models)),
		zap.String("credential", credential.Masked()),
	)
	return models, nil
}

// GenerateImage は、生成リクエストを送信してレスポンスエンベロープを返します
// 非2xxでもエンベロープとして解析できればエラーにはしません
func (c *Client) GenerateImage(ctx context.Context, request domain.GenerateImageRequest) (*domain.GenerateImageReply, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+genImagePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("画像生成リクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("画像生成レスポンスの読み込みに失敗: %w", err)
	}

	var reply domain.GenerateImageReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("画像生成レスポンスの解析に失敗 (HTTP %d): %s", resp.StatusCode, truncate(string(body)))
	}
	reply.HTTPStatus = resp.StatusCode

	c.logger.Info("画像生成レスポンスを受信しました",
		zap.Int("status", resp.StatusCode),
		zap.Int("code", reply.Code),
		zap.String("model_used", reply.ModelUsed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &reply, nil
}

// FetchImage は、ファイル名で指定された生成画像を取得します
func (c *Client) FetchImage(ctx context.Context, filename string) (*domain.ImageFile, error) {
	if filename == "" {
		return nil, errors.New("ファイル名が指定されていません")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ImageURL(filename), nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("画像の取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("画像の読み込みに失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("画像の取得に失敗 (HTTP %d): %s", resp.StatusCode, truncate(string(data)))
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" || !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
	}

	return &domain.ImageFile{
		Filename:  filename,
		MediaType: mediaType,
		Data:      data,
	}, nil
}

// ImageURL は、ファイル名を画像取得パスに解決したURLを返します
func (c *Client) ImageURL(filename string) string {
	return c.baseURL + imagePath + url.PathEscape(filename)
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBodyLength {
		return s[:maxErrorBodyLength] + "..."
	}
	return s
}
