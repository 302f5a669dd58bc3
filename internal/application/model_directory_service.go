package application

import (
	"context"
	"sync"

	"sillydream/internal/domain"

	"go.uber.org/zap"
)

// ModelDirectoryService は、図生図に使えるモデルの一覧と選択状態を管理するサービスです
type ModelDirectoryService struct {
	gateway ImageGateway
	logger  *zap.Logger

	mu        sync.RWMutex
	models    []domain.ModelDescriptor
	state     domain.DetectionState
	selection domain.ModelSelection
	modelUsed string
}

// NewModelDirectoryService は新しいModelDirectoryServiceインスタンスを作成します
func NewModelDirectoryService(gateway ImageGateway, logger *zap.Logger) *ModelDirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelDirectoryService{
		gateway:   gateway,
		logger:    logger,
		state:     domain.DetectionStateIdle,
		selection: domain.DefaultModelSelection(),
	}
}

// ListModels は、APIキーで利用可能なモデル一覧を取得し、取得状態とともに返します
// APIキーが空または短すぎる場合は通信せずに空の一覧を返し、状態は変更しません
func (s *ModelDirectoryService) ListModels(ctx context.Context, credential domain.Credential) ([]domain.ModelDescriptor, domain.DetectionState) {
	if !credential.IsUsable() {
		s.mu.Lock()
		s.models = nil
		state := s.state
		s.mu.Unlock()
		return []domain.ModelDescriptor{}, state
	}

	s.setState(domain.DetectionStateLoading)

	models, err := s.gateway.ListModels(ctx, credential)
	if err != nil {
		s.logger.Warn("モデル一覧の取得に失敗しました", zap.Error(err))
		return s.store(nil, domain.DetectionStateError)
	}

	if len(models) == 0 {
		s.logger.Warn("利用可能なモデルがありません")
		return s.store(nil, domain.DetectionStateError)
	}

	tagged := make([]domain.ModelDescriptor, len(models))
	for i, m := range models {
		if m.Name == "" {
			m.Name = m.ID
		}
		m.SupportsImageToImage = true
		m.IsFlash = domain.IsFlashModel(m.ID)
		tagged[i] = m
	}

	s.logger.Info("モデル一覧を取得しました", zap.Int("count", len(tagged)))
	return s.store(tagged, domain.DetectionStateSuccess)
}

// OnCredentialChange は、APIキーの変更時にモデル一覧を更新します
// APIキーが削除された場合は一覧と選択状態をリセットします
func (s *ModelDirectoryService) OnCredentialChange(ctx context.Context, credential domain.Credential) {
	if !credential.IsSet() {
		s.Reset()
		return
	}
	if credential.IsUsable() {
		s.ListModels(ctx, credential)
	}
}

// Reset は、モデル一覧と選択状態を初期化します
func (s *ModelDirectoryService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = nil
	s.state = domain.DetectionStateIdle
	s.selection = domain.DefaultModelSelection()
}

// Models は、直近に取得したモデル一覧を返します
func (s *ModelDirectoryService) Models() []domain.ModelDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	models := make([]domain.ModelDescriptor, len(s.models))
	copy(models, s.models)
	return models
}

// State は、モデル一覧の取得状態を返します
func (s *ModelDirectoryService) State() domain.DetectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SelectModel は、手動でモデルを選択し自動モードを解除します
func (s *ModelDirectoryService) SelectModel(modelID string) {
	if modelID == "" {
		s.EnableAutoMode()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = domain.ModelSelection{AutoMode: false, SelectedModel: modelID}
}

// EnableAutoMode は、自動モードに切り替え選択中のモデルを解除します
func (s *ModelDirectoryService) EnableAutoMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = domain.DefaultModelSelection()
}

// Selection は、現在のモデル選択を返します
func (s *ModelDirectoryService) Selection() domain.ModelSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// SetModelUsed は、直近に成功したバッチで使われたモデルを記録します
func (s *ModelDirectoryService) SetModelUsed(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelUsed = model
}

// CurrentModelUsed は、直近に成功したバッチで使われたモデルを返します
func (s *ModelDirectoryService) CurrentModelUsed() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelUsed
}

func (s *ModelDirectoryService) setState(state domain.DetectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *ModelDirectoryService) store(models []domain.ModelDescriptor, state domain.DetectionState) ([]domain.ModelDescriptor, domain.DetectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = models
	s.state = state

	out := make([]domain.ModelDescriptor, len(models))
	copy(out, models)
	return out, state
}
