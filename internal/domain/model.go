package domain

import (
	"fmt"
	"strings"
)

// ModelDescriptor は、リモートAPIから取得した生成モデルの情報です
type ModelDescriptor struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	SupportsImageToImage bool   `json:"supports_image_to_image"`
	IsFlash              bool   `json:"is_flash"`
}

// IsFlashModel は、モデルIDが高速なflash系かを判定します
func IsFlashModel(id string) bool {
	return strings.Contains(strings.ToLower(id), "flash")
}

// DetectionState は、モデル一覧の取得状態です
type DetectionState int

const (
	DetectionStateIdle DetectionState = iota
	DetectionStateLoading
	DetectionStateSuccess
	DetectionStateError
)

var detectionStateNames = []string{"idle", "loading", "success", "error"}

// String は状態の名前を返します
func (s DetectionState) String() string {
	if int(s) >= 0 && int(s) < len(detectionStateNames) {
		return detectionStateNames[s]
	}
	return "unknown"
}

// MarshalText は状態を小文字の名前で出力します
func (s DetectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText は小文字の名前から状態を復元します
func (s *DetectionState) UnmarshalText(text []byte) error {
	for i, name := range detectionStateNames {
		if name == string(text) {
			*s = DetectionState(i)
			return nil
		}
	}
	return fmt.Errorf("不明な状態です: %s", text)
}

// ModelSelection は、自動モードと手動選択の排他的な組です
type ModelSelection struct {
	AutoMode      bool   `json:"auto"`
	SelectedModel string `json:"selected_model"`
}

// DefaultModelSelection は自動モードの選択を返します
func DefaultModelSelection() ModelSelection {
	return ModelSelection{AutoMode: true}
}

// ModelSelector は、リモートAPIへ送るモデル指定を返します
// 自動モードでは選択中のモデルに関わらず空文字列です
func (s ModelSelection) ModelSelector() string {
	if s.AutoMode {
		return ""
	}
	return s.SelectedModel
}
