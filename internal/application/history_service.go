package application

import (
	"context"
	"fmt"
	"sync"

	"sillydream/internal/domain"

	"go.uber.org/zap"
)

// HistoryService は、生成履歴の追加・参照・削除を行うアプリケーションサービスです
type HistoryService struct {
	repo   domain.HistoryRepository
	logger *zap.Logger

	// 読み込みから保存までを直列化する
	mu sync.Mutex
}

// NewHistoryService は新しいHistoryServiceインスタンスを作成します
func NewHistoryService(repo domain.HistoryRepository, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		repo:   repo,
		logger: logger,
	}
}

// Record は、履歴の先頭にエントリを追加し、最大件数を超えた古いものを削除します
func (s *HistoryService) Record(ctx context.Context, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("履歴の読み込みに失敗: %w", err)
	}

	entries = domain.PrependHistory(entries, entry)
	if err := s.repo.SaveHistory(ctx, entries); err != nil {
		return fmt.Errorf("履歴の保存に失敗: %w", err)
	}

	s.logger.Info("履歴を追加しました",
		zap.String("id", entry.ID),
		zap.Int("results", len(entry.ResultImageReferences)),
		zap.Int("total", len(entries)),
	)
	return nil
}

// List は、新しい順に並んだ履歴を返します
func (s *HistoryService) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.LoadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("履歴の読み込みに失敗: %w", err)
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

// Get は、指定IDの履歴を返します
func (s *HistoryService) Get(ctx context.Context, id string) (domain.HistoryEntry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.HistoryEntry{}, domain.ErrHistoryNotFound
}

// Delete は、指定IDの履歴を1件削除します
func (s *HistoryService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.repo.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("履歴の読み込みに失敗: %w", err)
	}

	kept := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return domain.ErrHistoryNotFound
	}

	if err := s.repo.SaveHistory(ctx, kept); err != nil {
		return fmt.Errorf("履歴の保存に失敗: %w", err)
	}
	return nil
}

// Clear は、履歴をすべて削除します
func (s *HistoryService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.ClearHistory(ctx); err != nil {
		return fmt.Errorf("履歴の削除に失敗: %w", err)
	}
	s.logger.Info("履歴をすべて削除しました")
	return nil
}
