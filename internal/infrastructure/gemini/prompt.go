package gemini

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// 参照画像の直前に置くラベル
const referenceLabelFormat = "[参考画像%d]"

// ignoreInstruction は、元画像よりテキスト指示を優先させる前置きです
const ignoreInstruction = "元画像の細部の一部は無視し、以下のテキストの指示に厳密に従ってください。"

// QualitySuffix は、高画質モードでプロンプトの末尾に付与する品質指定です
const QualitySuffix = ", 4k resolution, UHD, highly detailed, photorealistic, 8k wallpaper, sharp focus, intricate textures, masterpiece, professional photography, cinema lighting, ultra HD, crystal clear"

// weightedPrompt は、重みに応じてプロンプトを強調または弱めたテキストを返します
// 1より大きい重みは整数部の回数だけ指示を繰り返し、0.5以上1未満は括弧で囲みます
func weightedPrompt(prompt string, weight float64, enhanced bool) string {
	var b strings.Builder
	b.WriteString(ignoreInstruction)

	switch {
	case weight > 1:
		b.WriteString(prompt)
		for range int(weight) {
			b.WriteString(" ")
			b.WriteString(prompt)
		}
	case weight >= 0.5 && weight < 1:
		b.WriteString("(")
		b.WriteString(prompt)
		b.WriteString(")")
	default:
		b.WriteString(prompt)
	}

	if enhanced {
		b.WriteString(QualitySuffix)
	}
	return b.String()
}

// buildContents は、ラベル付きの参照画像と指示テキストからなるリクエスト内容を作成します
// images は data URL の接頭辞を含まないBase64です
func buildContents(images []string, prompt string, weight float64, enhanced bool) ([]*genai.Content, error) {
	parts := make([]*genai.Part, 0, len(images)*2+1)

	for i, encoded := range images {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("参考画像%d のデコードに失敗: %w", i+1, err)
		}

		parts = append(parts,
			genai.NewPartFromText(fmt.Sprintf(referenceLabelFormat, i+1)),
			&genai.Part{InlineData: &genai.Blob{
				MIMEType: http.DetectContentType(data),
				Data:     data,
			}},
		)
	}

	parts = append(parts, genai.NewPartFromText(weightedPrompt(prompt, weight, enhanced)))

	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}
