package domain

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// 対応するメディアタイプ
const (
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
	MediaTypeJPG  = "image/jpg"
	MediaTypeWEBP = "image/webp"
)

// allowedMediaTypes は取り込みを許可するメディアタイプの一覧です
var allowedMediaTypes = map[string]struct{}{
	MediaTypePNG:  {},
	MediaTypeJPEG: {},
	MediaTypeJPG:  {},
	MediaTypeWEBP: {},
}

// dataURLPrefix は data:image/<subtype>;base64, の接頭辞にマッチします
var dataURLPrefix = regexp.MustCompile(`^data:image/(png|jpeg|jpg|webp);base64,`)

// IsAllowedMediaType は、取り込み可能なメディアタイプかを返します
func IsAllowedMediaType(mediaType string) bool {
	_, ok := allowedMediaTypes[strings.ToLower(strings.TrimSpace(mediaType))]
	return ok
}

// UploadedFile は、ユーザーが選択したファイルそのものを表します
type UploadedFile struct {
	Filename  string
	MediaType string
	Data      []byte
}

// Size はファイルのバイト数を返します
func (f UploadedFile) Size() int64 {
	return int64(len(f.Data))
}

// Subtype は、メディアタイプのサブタイプ部分（png, jpeg など）を返します
func (f UploadedFile) Subtype() string {
	mediaType := strings.ToLower(strings.TrimSpace(f.MediaType))
	if i := strings.IndexByte(mediaType, '/'); i >= 0 {
		return mediaType[i+1:]
	}
	return mediaType
}

// SourceImage は、生成の参照に使う取り込み済みの画像です
// EncodedContent は data:image/<subtype>;base64,<payload> 形式です
type SourceImage struct {
	ID             string `json:"id"`
	EncodedContent string `json:"encoded_content"`
	Filename       string `json:"filename"`
}

// EncodeDataURL は、バイト列を指定サブタイプのdata URLに変換します
func EncodeDataURL(subtype string, data []byte) string {
	return fmt.Sprintf("data:image/%s;base64,%s", subtype, base64.StdEncoding.EncodeToString(data))
}

// StripDataURLPrefix は、data URLからメディアタイプの接頭辞を取り除いたBase64文字列を返します
func StripDataURLPrefix(encoded string) string {
	return dataURLPrefix.ReplaceAllString(encoded, "")
}

// Payload は、接頭辞を除いたBase64文字列を返します
func (s SourceImage) Payload() string {
	return StripDataURLPrefix(s.EncodedContent)
}

// ImageFile は、ダウンロード対象となる画像の実体です
type ImageFile struct {
	Filename  string
	MediaType string
	Data      []byte
}

// DecodeDataURL は、data:<mediatype>;base64,<payload> を画像ファイルに変換します
func DecodeDataURL(dataURL string) (*ImageFile, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, fmt.Errorf("data URL ではありません")
	}

	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, fmt.Errorf("data URL の形式が不正です")
	}

	mediaType := strings.TrimPrefix(header, "data:")
	mediaType = strings.TrimSuffix(mediaType, ";base64")
	if mediaType == "" {
		mediaType = MediaTypePNG
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("Base64 のデコードに失敗: %w", err)
	}

	return &ImageFile{
		MediaType: mediaType,
		Data:      data,
	}, nil
}
