package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HistoryStorageKey は、履歴を永続化する際のキー名です
const HistoryStorageKey = "nano_banana_history"

// MaxHistoryEntries は、保持する履歴の最大件数です
const MaxHistoryEntries = 50

// HistoryEntry は、1件以上成功したバッチの記録です。作成後は変更されません
type HistoryEntry struct {
	ID                    string    `json:"id"`
	SourceImageReferences []string  `json:"source_images"`
	ResultImageReferences []string  `json:"result_images"`
	Prompt                string    `json:"prompt"`
	Denoising             float64   `json:"denoising"`
	Seed                  *uint32   `json:"seed,omitempty"`
	ModelUsed             string    `json:"model_used,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// NewHistoryEntry は、バッチのパラメータと成功結果から履歴を作成します
// modelUsed には最初に成功したスロットのモデルを渡します
func NewHistoryEntry(params GenerationParams, successes []GenerationResult, modelUsed string, now time.Time) HistoryEntry {
	sources := make([]string, len(params.Images))
	for i, img := range params.Images {
		sources[i] = img.EncodedContent
	}

	results := make([]string, len(successes))
	for i, r := range successes {
		results[i] = r.ImageReference
	}

	return HistoryEntry{
		ID:                    uuid.NewString(),
		SourceImageReferences: sources,
		ResultImageReferences: results,
		Prompt:                strings.TrimSpace(params.Prompt),
		Denoising:             params.Denoising,
		Seed:                  params.Seed,
		ModelUsed:             modelUsed,
		CreatedAt:             now,
	}
}

// PrependHistory は、履歴の先頭にエントリを追加し、最大件数を超えた古いものを切り捨てます
func PrependHistory(entries []HistoryEntry, entry HistoryEntry) []HistoryEntry {
	next := make([]HistoryEntry, 0, min(len(entries)+1, MaxHistoryEntries))
	next = append(next, entry)
	for _, e := range entries {
		if len(next) >= MaxHistoryEntries {
			break
		}
		next = append(next, e)
	}
	return next
}

// HistoryRepository は、生成履歴の永続化を行うインターフェースです
type HistoryRepository interface {
	// LoadHistory は、新しい順に並んだ履歴を取得します
	LoadHistory(ctx context.Context) ([]HistoryEntry, error)

	// SaveHistory は、履歴全体を保存します
	SaveHistory(ctx context.Context, entries []HistoryEntry) error

	// ClearHistory は、履歴をすべて削除します
	ClearHistory(ctx context.Context) error
}
