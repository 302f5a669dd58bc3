package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sillydream/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Repository は、APIキーと生成履歴をRedisに保存するリポジトリの実装です
// 値は prefix + 保存キー名 にJSONで格納され、有効期限は設定しません
type Repository struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRepository は新しいRepositoryインスタンスを作成します
func NewRepository(client redis.UniversalClient, prefix string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Ping は、Redisへの接続を確認します
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return nil
}

// GetCredential は、保存されているAPIキーを取得します
func (r *Repository) GetCredential(ctx context.Context) (domain.Credential, error) {
	var credential string
	if err := r.get(ctx, domain.CredentialStorageKey, &credential); err != nil {
		return "", err
	}
	return domain.Credential(credential), nil
}

// SetCredential は、APIキーを保存します
func (r *Repository) SetCredential(ctx context.Context, credential domain.Credential) error {
	return r.set(ctx, domain.CredentialStorageKey, credential.String())
}

// ClearCredential は、APIキーを削除します
func (r *Repository) ClearCredential(ctx context.Context) error {
	return r.del(ctx, domain.CredentialStorageKey)
}

// LoadHistory は、保存されている履歴を取得します
func (r *Repository) LoadHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	if err := r.get(ctx, domain.HistoryStorageKey, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveHistory は、履歴全体を保存します
func (r *Repository) SaveHistory(ctx context.Context, entries []domain.HistoryEntry) error {
	return r.set(ctx, domain.HistoryStorageKey, entries)
}

// ClearHistory は、履歴を削除します
func (r *Repository) ClearHistory(ctx context.Context) error {
	return r.del(ctx, domain.HistoryStorageKey)
}

func (r *Repository) key(name string) string {
	return r.prefix + name
}

// get は、キーが存在しない場合や値が壊れている場合は out を変更せずに正常終了します
func (r *Repository) get(ctx context.Context, name string, out any) error {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%s の読み込みに失敗: %w", name, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		r.logger.Warn("保存データの解析に失敗したため初期値を使用します",
			zap.String("key", name),
			zap.Error(err),
		)
	}
	return nil
}

func (r *Repository) set(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s のエンコードに失敗: %w", name, err)
	}
	if err := r.client.Set(ctx, r.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("%s の書き込みに失敗: %w", name, err)
	}
	return nil
}

func (r *Repository) del(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, r.key(name)).Err(); err != nil {
		return fmt.Errorf("%s の削除に失敗: %w", name, err)
	}
	return nil
}
