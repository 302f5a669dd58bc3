package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"sillydream/internal/domain"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// 直接接続で返すエンベロープのメッセージ
const (
	msgCredentialMissing = "APIキーが設定されていません"
	msgIncompleteRequest = "パラメータが不完全です"
	msgNoModels          = "利用可能な画像生成モデルが見つかりません"
	msgAllUnavailable    = "すべてのモデルが利用できません"
)

// GenerateImage は、候補モデルを順に試して最初に成功した画像を返します
// 失敗はエラーではなく、元のAPIと同じ形のエンベロープで返します
func (g *Gateway) GenerateImage(ctx context.Context, request domain.GenerateImageRequest) (*domain.GenerateImageReply, error) {
	if request.APIKey == "" {
		return rejected(http.StatusUnauthorized, msgCredentialMissing), nil
	}
	if len(request.Images) == 0 || strings.TrimSpace(request.Prompt) == "" {
		return rejected(http.StatusBadRequest, msgIncompleteRequest), nil
	}

	contents, err := buildContents(request.Images, request.Prompt, request.PromptWeight, request.Is4K)
	if err != nil {
		reply := rejected(http.StatusBadRequest, msgIncompleteRequest)
		reply.Detail = err.Error()
		return reply, nil
	}

	client, err := g.newClient(ctx, request.APIKey)
	if err != nil {
		return nil, err
	}

	candidates, err := g.modelsToTry(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return rejected(http.StatusNotFound, msgNoModels), nil
	}

	generateConfig := g.createGenerateConfig(request.Seed)
	tried := make([]string, 0, len(candidates))
	var lastErr error

	for _, model := range candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		tried = append(tried, model)

		g.logger.Info("Geminiで画像生成を試行します",
			zap.String("model", model),
			zap.Int("attempt", len(tried)),
			zap.Int("candidates", len(candidates)),
			zap.Int("images", len(request.Images)),
			zap.Bool("enhanced", request.Is4K),
		)

		image, err := g.generateWith(ctx, client, model, contents, generateConfig)
		if err == nil {
			return succeeded(model, image, tried, fmt.Sprintf("生成成功 (使用 %s)", model)), nil
		}

		// 高画質指定が受け付けられない場合は品質指定なしで1度だけ再試行する
		if request.Is4K && isInvalidRequest(err) {
			g.logger.Warn("高画質指定なしで再試行します", zap.String("model", model), zap.Error(err))
			plain, buildErr := buildContents(request.Images, request.Prompt, request.PromptWeight, false)
			if buildErr == nil {
				image, err = g.generateWith(ctx, client, model, plain, generateConfig)
				if err == nil {
					return succeeded(model, image, tried, "生成成功 (高画質指定なしで生成しました)"), nil
				}
			}
		}

		lastErr = err
		g.logger.Warn("モデルでの生成に失敗したため次のモデルを試します",
			zap.String("model", model),
			zap.Error(err),
		)
	}

	lines := make([]string, len(tried))
	for i, m := range tried {
		lines[i] = "  - " + m
	}
	reply := rejected(http.StatusServiceUnavailable, msgAllUnavailable)
	reply.Detail = fmt.Sprintf("%d 個のモデルを試行しました:\n%s", len(tried), strings.Join(lines, "\n"))
	reply.TriedModels = tried
	if lastErr != nil {
		g.logger.Error("すべてのモデルで生成に失敗しました",
			zap.Strings("tried_models", tried),
			zap.Error(lastErr),
		)
	}
	return reply, nil
}

// modelsToTry は、試行するモデルの順序を決定します
// 自動モードでは指定モデルを先頭に、残りの画像生成モデルを続けます
func (g *Gateway) modelsToTry(ctx context.Context, request domain.GenerateImageRequest) ([]string, error) {
	var ordered []string
	if request.Model != "" {
		ordered = append(ordered, request.Model)
		if !request.Auto {
			return ordered, nil
		}
	} else if !request.Auto {
		return nil, nil
	}

	models, err := g.ListModels(ctx, domain.Credential(request.APIKey))
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if m.ID != request.Model {
			ordered = append(ordered, m.ID)
		}
	}
	return ordered, nil
}

// generateWith は、1モデルで生成して最初の画像を data URL で返します
func (g *Gateway) generateWith(ctx context.Context, client modelsService, model string, contents []*genai.Content, generateConfig *genai.GenerateContentConfig) (string, error) {
	resp, err := client.GenerateContent(ctx, model, contents, generateConfig)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("Gemini APIへのリクエストがタイムアウトしました: %w", err)
		}
		return "", fmt.Errorf("Gemini APIからの応答取得に失敗: %w", err)
	}
	return extractImage(resp)
}

// extractImage は、レスポンスから最初の画像パートを取り出します
func extractImage(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("Gemini APIから有効な画像生成応答が得られませんでした")
	}

	candidate := resp.Candidates[0]

	switch candidate.FinishReason {
	case genai.FinishReasonSafety:
		return "", fmt.Errorf("Gemini APIの安全フィルターによって画像生成がブロックされました")
	case genai.FinishReasonRecitation:
		return "", fmt.Errorf("Gemini APIが著作権保護された内容を検出しました")
	}

	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini APIの画像生成応答にコンテンツが含まれていません。FinishReason: %s", candidate.FinishReason)
	}

	for _, part := range candidate.Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		subtype := strings.TrimPrefix(part.InlineData.MIMEType, "image/")
		if subtype == "" || subtype == part.InlineData.MIMEType {
			subtype = "png"
		}
		return domain.EncodeDataURL(subtype, part.InlineData.Data), nil
	}

	return "", fmt.Errorf("Gemini APIから画像データが取得できませんでした")
}

// isInvalidRequest は、リクエスト内容が原因で拒否されたかを判定します
func isInvalidRequest(err error) bool {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	return code == http.StatusBadRequest || code == http.StatusRequestEntityTooLarge
}

func rejected(code int, msg string) *domain.GenerateImageReply {
	return &domain.GenerateImageReply{
		HTTPStatus: code,
		Code:       code,
		Msg:        msg,
	}
}

func succeeded(model, image string, tried []string, msg string) *domain.GenerateImageReply {
	return &domain.GenerateImageReply{
		HTTPStatus:  http.StatusOK,
		Code:        domain.ReplyCodeOK,
		Msg:         msg,
		Data:        &domain.ReplyData{Image: image},
		ModelUsed:   model,
		TriedModels: tried,
	}
}
