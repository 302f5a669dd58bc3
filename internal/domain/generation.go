package domain

import (
	"fmt"
	"strings"
)

// バッチとパラメータの範囲
const (
	MaxBatchSize = 4

	MinDenoising = 0.0
	MaxDenoising = 1.0

	MinPromptWeight     = 0.5
	MaxPromptWeight     = 2.0
	DefaultPromptWeight = 1.0
	DefaultDenoising    = 0.8
)

// ReplyCodeOK は、リモートAPIのエンベロープにおける唯一の成功コードです
const ReplyCodeOK = 200

// ReplyCodeServiceUnavailable は、全モデルが利用不可だった場合のコードです
const ReplyCodeServiceUnavailable = 503

// ResultState は、1スロットのライフサイクル状態です
type ResultState int

const (
	ResultStatePending ResultState = iota
	ResultStateLoading
	ResultStateSuccess
	ResultStateError
)

var resultStateNames = []string{"pending", "loading", "success", "error"}

// String は状態の名前を返します
func (s ResultState) String() string {
	if int(s) >= 0 && int(s) < len(resultStateNames) {
		return resultStateNames[s]
	}
	return "unknown"
}

// IsTerminal は、成功または失敗の終端状態かを返します
func (s ResultState) IsTerminal() bool {
	return s == ResultStateSuccess || s == ResultStateError
}

// MarshalText は状態を小文字の名前で出力します
func (s ResultState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText は小文字の名前から状態を復元します
func (s *ResultState) UnmarshalText(text []byte) error {
	for i, name := range resultStateNames {
		if name == string(text) {
			*s = ResultState(i)
			return nil
		}
	}
	return fmt.Errorf("不明な状態です: %s", text)
}

// GenerationParams は、1回の生成操作のパラメータです
// 生成開始時に作成され、発行後は変更されません
type GenerationParams struct {
	Images        []SourceImage
	Prompt        string
	Denoising     float64
	Seed          *uint32
	ModelSelector string
	AutoMode      bool
	EnhancedMode  bool
	PromptWeight  float64
}

// Validate は、資格情報以外の前提条件を検証します
func (p GenerationParams) Validate() error {
	if len(p.Images) == 0 {
		return ErrNoSourceImages
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return ErrPromptEmpty
	}
	if p.Denoising < MinDenoising || p.Denoising > MaxDenoising {
		return ErrInvalidDenoising
	}
	if p.PromptWeight < MinPromptWeight || p.PromptWeight > MaxPromptWeight {
		return ErrInvalidPromptWeight
	}
	return nil
}

// EffectiveModel は、自動モードなら空文字列、そうでなければ選択されたモデルIDを返します
func (p GenerationParams) EffectiveModel() string {
	if p.AutoMode {
		return ""
	}
	return p.ModelSelector
}

// GenerateImageRequest は、リモートAPIへ送る生成リクエストのボディです
type GenerateImageRequest struct {
	APIKey       string   `json:"api_key"`
	Images       []string `json:"images"`
	Prompt       string   `json:"prompt"`
	Denoising    float64  `json:"denoising"`
	Seed         *uint32  `json:"seed,omitempty"`
	Model        string   `json:"model"`
	Auto         bool     `json:"auto"`
	Is4K         bool     `json:"is_4k"`
	PromptWeight float64  `json:"prompt_weight"`
}

// NewGenerateImageRequest は、パラメータとAPIキーから生成リクエストを組み立てます
// 画像は data URL の接頭辞を取り除いたBase64で送信されます
func NewGenerateImageRequest(credential Credential, params GenerationParams) GenerateImageRequest {
	images := make([]string, len(params.Images))
	for i, img := range params.Images {
		images[i] = img.Payload()
	}

	return GenerateImageRequest{
		APIKey:       credential.String(),
		Images:       images,
		Prompt:       strings.TrimSpace(params.Prompt),
		Denoising:    params.Denoising,
		Seed:         params.Seed,
		Model:        params.EffectiveModel(),
		Auto:         params.AutoMode,
		Is4K:         params.EnhancedMode,
		PromptWeight: params.PromptWeight,
	}
}

// ReplyData は、生成成功時の画像情報です
type ReplyData struct {
	Filename string `json:"filename,omitempty"`
	Image    string `json:"image,omitempty"`
}

// GenerateImageReply は、リモートAPIのレスポンスエンベロープです
type GenerateImageReply struct {
	HTTPStatus  int        `json:"-"`
	Code        int        `json:"code"`
	Msg         string     `json:"msg"`
	Detail      string     `json:"detail,omitempty"`
	Data        *ReplyData `json:"data,omitempty"`
	ModelUsed   string     `json:"model_used,omitempty"`
	TriedModels []string   `json:"tried_models,omitempty"`
}

// IsOK は、HTTPステータスとエンベロープのコードがともに成功を示しているかを返します
func (r *GenerateImageReply) IsOK() bool {
	httpOK := r.HTTPStatus == 0 || (r.HTTPStatus >= 200 && r.HTTPStatus < 300)
	return httpOK && r.Code == ReplyCodeOK
}

// GenerationResult は、バッチ内の1スロットの結果です
type GenerationResult struct {
	ID             string      `json:"id"`
	Index          int         `json:"index"`
	ImageReference string      `json:"image_reference,omitempty"`
	Filename       string      `json:"filename,omitempty"`
	State          ResultState `json:"state"`
	ErrorMessage   string      `json:"error,omitempty"`
	ModelUsed      string      `json:"model_used,omitempty"`
}
