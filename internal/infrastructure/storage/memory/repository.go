package memory

import (
	"context"
	"sync"

	"sillydream/internal/domain"
)

// Repository は、APIキーと生成履歴をプロセス内に保持するリポジトリの実装です
// 再起動すると内容は失われます
type Repository struct {
	credential domain.Credential
	history    []domain.HistoryEntry
	mutex      sync.RWMutex
}

// NewRepository は新しいRepositoryインスタンスを作成します
func NewRepository() *Repository {
	return &Repository{}
}

// GetCredential は、保存されているAPIキーを取得します
func (r *Repository) GetCredential(ctx context.Context) (domain.Credential, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.credential, nil
}

// SetCredential は、APIキーを保存します
func (r *Repository) SetCredential(ctx context.Context, credential domain.Credential) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.credential = credential
	return nil
}

// ClearCredential は、APIキーを削除します
func (r *Repository) ClearCredential(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.credential = ""
	return nil
}

// LoadHistory は、保存されている履歴のコピーを返します
func (r *Repository) LoadHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.history == nil {
		return nil, nil
	}
	return append([]domain.HistoryEntry(nil), r.history...), nil
}

// SaveHistory は、履歴全体を置き換えます
func (r *Repository) SaveHistory(ctx context.Context, entries []domain.HistoryEntry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.history = append([]domain.HistoryEntry(nil), entries...)
	return nil
}

// ClearHistory は、履歴をすべて削除します
func (r *Repository) ClearHistory(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.history = nil
	return nil
}
