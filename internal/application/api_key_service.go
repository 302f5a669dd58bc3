package application

import (
	"context"
	"fmt"
	"sync"

	"sillydream/internal/domain"

	"go.uber.org/zap"
)

// CredentialListener は、APIキーが変更されたときに呼び出されます
type CredentialListener func(ctx context.Context, credential domain.Credential)

// KeyStoreService は、APIキーの管理を行うアプリケーションサービスです
type KeyStoreService struct {
	repo   domain.CredentialRepository
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []CredentialListener
}

// NewKeyStoreService は新しいKeyStoreServiceインスタンスを作成します
func NewKeyStoreService(repo domain.CredentialRepository, logger *zap.Logger) *KeyStoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyStoreService{
		repo:   repo,
		logger: logger,
	}
}

// Subscribe は、APIキー変更時に通知を受け取るリスナーを登録します
func (s *KeyStoreService) Subscribe(listener CredentialListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Get は、保存されているAPIキーを取得します
func (s *KeyStoreService) Get(ctx context.Context) (domain.Credential, error) {
	credential, err := s.repo.GetCredential(ctx)
	if err != nil {
		return "", fmt.Errorf("APIキーの取得に失敗: %w", err)
	}
	return credential, nil
}

// HasCredential は、APIキーが設定されているかを確認します
func (s *KeyStoreService) HasCredential(ctx context.Context) (bool, error) {
	credential, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return credential.IsSet(), nil
}

// Set は、APIキーを保存してリスナーに通知します。空文字列はClearと同じ扱いです
func (s *KeyStoreService) Set(ctx context.Context, raw string) error {
	credential := domain.NewCredential(raw)
	if !credential.IsSet() {
		return s.Clear(ctx)
	}

	if err := s.repo.SetCredential(ctx, credential); err != nil {
		return fmt.Errorf("APIキーの保存に失敗: %w", err)
	}

	s.logger.Info("APIキーを保存しました", zap.String("api_key", credential.Masked()))
	s.notify(ctx, credential)
	return nil
}

// Clear は、APIキーを削除してリスナーに通知します
func (s *KeyStoreService) Clear(ctx context.Context) error {
	if err := s.repo.ClearCredential(ctx); err != nil {
		return fmt.Errorf("APIキーの削除に失敗: %w", err)
	}

	s.logger.Info("APIキーを削除しました")
	s.notify(ctx, "")
	return nil
}

// notify は、登録済みのリスナーを登録順に呼び出します
func (s *KeyStoreService) notify(ctx context.Context, credential domain.Credential) {
	s.mu.RLock()
	listeners := make([]CredentialListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(ctx, credential)
	}
}
