package gemini

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"sillydream/internal/domain"
	"sillydream/internal/infrastructure/config"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// modelNamePrefix は、Gemini APIが返すモデル名の接頭辞です
const modelNamePrefix = "models/"

// modelsService は、genai.Models のうちゲートウェイが利用するメソッドです
type modelsService interface {
	List(ctx context.Context, config *genai.ListModelsConfig) (genai.Page[genai.Model], error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// clientFactory は、APIキーごとにGemini APIクライアントを作成します
type clientFactory func(ctx context.Context, apiKey string) (modelsService, error)

// Gateway は、Gemini APIに直接接続して画像を生成するゲートウェイです
// 生成画像は data URL としてレスポンスに埋め込まれ、ファイル名では返しません
type Gateway struct {
	newClient clientFactory
	config    config.GeminiConfig
	logger    *zap.Logger
}

// NewGateway は新しいGatewayインスタンスを作成します
func NewGateway(geminiConfig config.GeminiConfig, logger *zap.Logger) *Gateway {
	factory := func(ctx context.Context, apiKey string) (modelsService, error) {
		clientConfig := &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if geminiConfig.BaseURL != "" {
			clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: geminiConfig.BaseURL}
		}

		client, err := genai.NewClient(ctx, clientConfig)
		if err != nil {
			return nil, fmt.Errorf("Gemini APIクライアントの作成に失敗: %w", err)
		}
		return client.Models, nil
	}
	return newGateway(factory, geminiConfig, logger)
}

func newGateway(factory clientFactory, geminiConfig config.GeminiConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		newClient: factory,
		config:    geminiConfig,
		logger:    logger,
	}
}

// ListModels は、名前に image を含むモデルを flash 系を先頭にして返します
func (g *Gateway) ListModels(ctx context.Context, credential domain.Credential) ([]domain.ModelDescriptor, error) {
	client, err := g.newClient(ctx, credential.String())
	if err != nil {
		return nil, err
	}

	page, err := client.List(ctx, &genai.ListModelsConfig{})
	if err != nil {
		return nil, fmt.Errorf("モデル一覧の取得に失敗: %w", err)
	}

	var all []*genai.Model
	for {
		all = append(all, page.Items...)
		if page.NextPageToken == "" {
			break
		}
		page, err = page.Next(ctx)
		if errors.Is(err, genai.ErrPageDone) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("モデル一覧の取得に失敗: %w", err)
		}
	}

	models := lo.FilterMap(all, func(m *genai.Model, _ int) (domain.ModelDescriptor, bool) {
		if m == nil {
			return domain.ModelDescriptor{}, false
		}
		id := strings.TrimPrefix(m.Name, modelNamePrefix)
		if !strings.Contains(strings.ToLower(id), "image") {
			return domain.ModelDescriptor{}, false
		}
		name := m.DisplayName
		if name == "" {
			name = id
		}
		return domain.ModelDescriptor{
			ID:      id,
			Name:    name,
			IsFlash: domain.IsFlashModel(id),
		}, true
	})

	sort.SliceStable(models, func(i, j int) bool {
		if models[i].IsFlash != models[j].IsFlash {
			return models[i].IsFlash
		}
		return models[i].ID < models[j].ID
	})

	g.logger.Debug("Geminiのモデル一覧を取得しました",
		zap.Int("total", len(all)),
		zap.Int("image_models", len(models)),
		zap.String("credential", credential.Masked()),
	)
	return models, nil
}

// FetchImage は、直接接続ではファイル名による取得ができないためエラーを返します
func (g *Gateway) FetchImage(_ context.Context, filename string) (*domain.ImageFile, error) {
	return nil, fmt.Errorf("Gemini直接接続ではファイル名による画像取得はできません: %s", filename)
}

// ImageURL は、直接接続ではファイル名を解決できないため、そのまま返します
func (g *Gateway) ImageURL(filename string) string {
	return filename
}

// createGenerateConfig は、画像生成用の設定を作成します
func (g *Gateway) createGenerateConfig(seed *uint32) *genai.GenerateContentConfig {
	temperature := g.config.Temperature
	topP := g.config.TopP
	topK := g.config.TopK

	generateConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		MaxOutputTokens:    g.config.MaxOutputTokens,
		Temperature:        &temperature,
		TopP:               &topP,
		TopK:               &topK,
		SafetySettings:     createSafetySettings(),
	}
	if seed != nil {
		s := int32(*seed)
		generateConfig.Seed = &s
	}
	return generateConfig
}

// createSafetySettings は、中程度の制限の安全フィルター設定を返します
func createSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	return lo.Map(categories, func(c genai.HarmCategory, _ int) *genai.SafetySetting {
		return &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		}
	})
}
