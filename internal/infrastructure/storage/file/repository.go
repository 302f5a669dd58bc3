package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"sillydream/internal/domain"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const fileExt = ".json"

// Repository は、APIキーと生成履歴をJSONファイルとして保存するリポジトリの実装です
// 各値は保存キー名のファイルに格納されます
type Repository struct {
	fs     afero.Fs
	logger *zap.Logger
	mutex  sync.RWMutex
}

// NewRepository は新しいRepositoryインスタンスを作成します
func NewRepository(fsys afero.Fs, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		fs:     fsys,
		logger: logger,
	}
}

// NewOsRepository は、dir 配下に保存するRepositoryを作成します
func NewOsRepository(dir string, logger *zap.Logger) (*Repository, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
	}
	return NewRepository(afero.NewBasePathFs(osFs, dir), logger), nil
}

// GetCredential は、保存されているAPIキーを取得します
func (r *Repository) GetCredential(ctx context.Context) (domain.Credential, error) {
	var credential string
	if err := r.read(ctx, domain.CredentialStorageKey, &credential); err != nil {
		return "", err
	}
	return domain.Credential(credential), nil
}

// SetCredential は、APIキーを保存します
func (r *Repository) SetCredential(ctx context.Context, credential domain.Credential) error {
	return r.write(ctx, domain.CredentialStorageKey, credential.String())
}

// ClearCredential は、APIキーのファイルを削除します
func (r *Repository) ClearCredential(ctx context.Context) error {
	return r.remove(ctx, domain.CredentialStorageKey)
}

// LoadHistory は、保存されている履歴を取得します
func (r *Repository) LoadHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	if err := r.read(ctx, domain.HistoryStorageKey, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveHistory は、履歴全体を保存します
func (r *Repository) SaveHistory(ctx context.Context, entries []domain.HistoryEntry) error {
	return r.write(ctx, domain.HistoryStorageKey, entries)
}

// ClearHistory は、履歴のファイルを削除します
func (r *Repository) ClearHistory(ctx context.Context) error {
	return r.remove(ctx, domain.HistoryStorageKey)
}

// read は、キーに対応するファイルを読み込みます
// ファイルが存在しない場合や壊れている場合は out を変更せずに正常終了します
func (r *Repository) read(ctx context.Context, key string, out any) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	data, err := afero.ReadFile(r.fs, key+fileExt)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%s の読み込みに失敗: %w", key, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		r.logger.Warn("保存データの解析に失敗したため初期値を使用します",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return nil
}

func (r *Repository) write(ctx context.Context, key string, value any) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s のエンコードに失敗: %w", key, err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// 書き込み途中で読まれないよう一時ファイル経由で置き換える
	tmp := key + fileExt + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("%s の書き込みに失敗: %w", key, err)
	}
	if err := r.fs.Rename(tmp, key+fileExt); err != nil {
		return fmt.Errorf("%s の書き込みに失敗: %w", key, err)
	}
	return nil
}

func (r *Repository) remove(ctx context.Context, key string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.fs.Remove(key + fileExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s の削除に失敗: %w", key, err)
	}
	return nil
}
