package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sillydream/internal/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CredentialProvider は、現在のAPIキーを提供します
type CredentialProvider interface {
	Get(ctx context.Context) (domain.Credential, error)
}

// HistoryRecorder は、成功したバッチを履歴に記録します
type HistoryRecorder interface {
	Record(ctx context.Context, entry domain.HistoryEntry) error
}

// ModelUsageRecorder は、直近のバッチで使われたモデルを記録します
type ModelUsageRecorder interface {
	SetModelUsed(model string)
}

// BatchSnapshot は、現在のバッチの状態を読み取り専用で表したものです
type BatchSnapshot struct {
	BatchID      string                    `json:"batch_id,omitempty"`
	Results      []domain.GenerationResult `json:"results"`
	Running      bool                      `json:"running"`
	SuccessCount int                       `json:"success_count"`
	Error        string                    `json:"error,omitempty"`
}

// SnapshotListener は、スロットの状態が遷移するたびに呼び出されます
type SnapshotListener func(snapshot BatchSnapshot)

// batch は、1回の生成操作の状態です
type batch struct {
	id       string
	params   domain.GenerationParams
	results  []domain.GenerationResult
	inFlight int
	fanOut   bool
	err      error
}

// GenerationOrchestrator は、複数の生成リクエストの発行と結果の集約を担当するサービスです
type GenerationOrchestrator struct {
	gateway     ImageGateway
	credentials CredentialProvider
	history     HistoryRecorder
	usage       ModelUsageRecorder
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	current   *batch
	listeners []SnapshotListener
}

// NewGenerationOrchestrator は新しいGenerationOrchestratorインスタンスを作成します
// usage は nil でも構いません
func NewGenerationOrchestrator(
	gateway ImageGateway,
	credentials CredentialProvider,
	history HistoryRecorder,
	usage ModelUsageRecorder,
	logger *zap.Logger,
) *GenerationOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationOrchestrator{
		gateway:     gateway,
		credentials: credentials,
		history:     history,
		usage:       usage,
		logger:      logger,
		now:         time.Now,
	}
}

// Subscribe は、状態遷移の通知を受け取るリスナーを登録します
func (o *GenerationOrchestrator) Subscribe(listener SnapshotListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, listener)
}

// RunBatch は、count 件の生成リクエストを並行に発行し、すべての完了を待って結果を返します
// 結果は発行順に並び、ネットワークの応答順には依存しません
// 全件が失敗した場合は結果とともに *domain.BatchError を返します
func (o *GenerationOrchestrator) RunBatch(ctx context.Context, count int, params domain.GenerationParams) ([]domain.GenerationResult, error) {
	credential, err := o.checkPreconditions(ctx, count, params)
	if err != nil {
		return nil, err
	}

	b := o.startBatch(count, params)

	o.logger.Info("バッチを開始します",
		zap.String("batch_id", b.id),
		zap.Int("count", count),
		zap.Int("images", len(params.Images)),
		zap.Bool("auto", params.AutoMode),
	)

	// 発行済みのリクエストは取り消さない
	requestCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i := 0; i < count; i++ {
		g.Go(func() error {
			o.runSlot(requestCtx, b, i, credential)
			return nil
		})
	}
	_ = g.Wait()

	return o.finishBatch(ctx, b)
}

// Retry は、エラー状態のスロットを1件だけ再実行します。他のスロットには影響しません
func (o *GenerationOrchestrator) Retry(ctx context.Context, index int) (domain.GenerationResult, error) {
	credential, err := o.credentials.Get(ctx)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("APIキーの取得に失敗: %w", err)
	}
	if !credential.IsSet() {
		return domain.GenerationResult{}, domain.ErrCredentialNotSet
	}

	o.mu.Lock()
	b := o.current
	if b == nil || index < 0 || index >= len(b.results) {
		o.mu.Unlock()
		return domain.GenerationResult{}, domain.ErrSlotOutOfRange
	}
	// 集約前の再試行は RunBatch の結果と履歴を食い違わせる
	if b.fanOut || b.results[index].State != domain.ResultStateError {
		o.mu.Unlock()
		return domain.GenerationResult{}, domain.ErrSlotNotRetryable
	}
	b.results[index].State = domain.ResultStateLoading
	b.results[index].ErrorMessage = ""
	b.inFlight++
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(snapshot)

	o.logger.Info("スロットを再試行します", zap.String("batch_id", b.id), zap.Int("index", index))

	result := o.request(context.WithoutCancel(ctx), b, index, credential)
	o.complete(b, index, result)
	return result, nil
}

// Results は、現在のバッチの状態を返します
func (o *GenerationOrchestrator) Results() BatchSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Result は、現在のバッチの指定スロットを返します
func (o *GenerationOrchestrator) Result(index int) (domain.GenerationResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || index < 0 || index >= len(o.current.results) {
		return domain.GenerationResult{}, domain.ErrSlotOutOfRange
	}
	return o.current.results[index], nil
}

// ClearResults は、現在のバッチの結果とバナーエラーを破棄します
// 実行中のリクエストの結果は以後反映されません
func (o *GenerationOrchestrator) ClearResults() {
	o.mu.Lock()
	o.current = nil
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(snapshot)
}

// checkPreconditions は、ネットワーク呼び出し前に前提条件を検証します
func (o *GenerationOrchestrator) checkPreconditions(ctx context.Context, count int, params domain.GenerationParams) (domain.Credential, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	credential, err := o.credentials.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("APIキーの取得に失敗: %w", err)
	}
	if !credential.IsSet() {
		return "", domain.ErrCredentialNotSet
	}

	if count < 1 || count > domain.MaxBatchSize {
		return "", fmt.Errorf("%w (1〜%d 枚)", domain.ErrInvalidBatchSize, domain.MaxBatchSize)
	}
	return credential, nil
}

// startBatch は、Pending のプレースホルダーを作成して現在のバッチとして公開します
func (o *GenerationOrchestrator) startBatch(count int, params domain.GenerationParams) *batch {
	id := uuid.NewString()
	results := make([]domain.GenerationResult, count)
	for i := range results {
		results[i] = domain.GenerationResult{
			ID:    fmt.Sprintf("result-%s-%d", id, i),
			Index: i,
			State: domain.ResultStatePending,
		}
	}

	b := &batch{
		id:       id,
		params:   params,
		results:  results,
		inFlight: count,
		fanOut:   true,
	}

	o.mu.Lock()
	o.current = b
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(snapshot)

	return b
}

// runSlot は、1スロットを Loading にしてからリクエストを発行し、終端状態を書き込みます
func (o *GenerationOrchestrator) runSlot(ctx context.Context, b *batch, index int, credential domain.Credential) {
	o.mu.Lock()
	b.results[index].State = domain.ResultStateLoading
	snapshot, isCurrent := o.snapshotIfCurrentLocked(b)
	o.mu.Unlock()
	if isCurrent {
		o.publish(snapshot)
	}

	result := o.request(ctx, b, index, credential)
	o.complete(b, index, result)
}

// request は、リモートAPIを呼び出してレスポンスを分類します
func (o *GenerationOrchestrator) request(ctx context.Context, b *batch, index int, credential domain.Credential) domain.GenerationResult {
	req := domain.NewGenerateImageRequest(credential, b.params)
	reply, err := o.gateway.GenerateImage(ctx, req)
	outcome := classifyReply(o.gateway, reply, err)

	if outcome.state == domain.ResultStateError {
		o.logger.Warn("生成リクエストが失敗しました",
			zap.String("batch_id", b.id),
			zap.Int("index", index),
			zap.String("reason", outcome.errorMessage),
		)
	} else {
		o.logger.Info("生成リクエストが成功しました",
			zap.String("batch_id", b.id),
			zap.Int("index", index),
			zap.String("model", outcome.modelUsed),
		)
	}

	return domain.GenerationResult{
		ID:             fmt.Sprintf("result-%s-%d", b.id, index),
		Index:          index,
		ImageReference: outcome.imageReference,
		Filename:       outcome.filename,
		State:          outcome.state,
		ErrorMessage:   outcome.errorMessage,
		ModelUsed:      outcome.modelUsed,
	}
}

// complete は、スロットに終端状態を書き込みます
// バッチが既に置き換えられている場合は通知しません
func (o *GenerationOrchestrator) complete(b *batch, index int, result domain.GenerationResult) {
	o.mu.Lock()
	b.results[index] = result
	b.inFlight--
	if result.State == domain.ResultStateSuccess {
		b.err = nil
	}
	snapshot, isCurrent := o.snapshotIfCurrentLocked(b)
	o.mu.Unlock()
	if isCurrent {
		o.publish(snapshot)
	}
}

// finishBatch は、全スロットの結果を集約し、履歴の作成とバナーエラーの設定を行います
// 置き換えられたバッチは結果を返すだけで、履歴と使用モデルには反映しません
func (o *GenerationOrchestrator) finishBatch(ctx context.Context, b *batch) ([]domain.GenerationResult, error) {
	o.mu.Lock()
	b.fanOut = false
	results := make([]domain.GenerationResult, len(b.results))
	copy(results, b.results)
	stale := o.current != b
	o.mu.Unlock()

	successes := lo.Filter(results, func(r domain.GenerationResult, _ int) bool {
		return r.State == domain.ResultStateSuccess
	})
	failed := lo.CountBy(results, func(r domain.GenerationResult) bool {
		return r.State == domain.ResultStateError
	})

	o.logger.Info("バッチが完了しました",
		zap.String("batch_id", b.id),
		zap.Int("success", len(successes)),
		zap.Int("failed", failed),
		zap.Bool("stale", stale),
	)

	var batchErr error
	if len(successes) > 0 && !stale {
		modelUsed := successes[0].ModelUsed
		if o.usage != nil {
			o.usage.SetModelUsed(modelUsed)
		}

		entry := domain.NewHistoryEntry(b.params, successes, modelUsed, o.now())
		if err := o.history.Record(context.WithoutCancel(ctx), entry); err != nil {
			o.logger.Error("履歴の保存に失敗しました", zap.String("batch_id", b.id), zap.Error(err))
		}
	}
	if failed == len(results) {
		batchErr = &domain.BatchError{Total: len(results)}
	}

	o.mu.Lock()
	b.err = batchErr
	snapshot, isCurrent := o.snapshotIfCurrentLocked(b)
	o.mu.Unlock()
	if isCurrent && batchErr != nil {
		o.publish(snapshot)
	}

	return results, batchErr
}

func (o *GenerationOrchestrator) snapshotIfCurrentLocked(b *batch) (BatchSnapshot, bool) {
	if o.current != b {
		return BatchSnapshot{}, false
	}
	return o.snapshotLocked(), true
}

func (o *GenerationOrchestrator) snapshotLocked() BatchSnapshot {
	b := o.current
	if b == nil {
		return BatchSnapshot{Results: []domain.GenerationResult{}}
	}

	results := make([]domain.GenerationResult, len(b.results))
	copy(results, b.results)

	successCount := lo.CountBy(results, func(r domain.GenerationResult) bool {
		return r.State == domain.ResultStateSuccess
	})

	snapshot := BatchSnapshot{
		BatchID:      b.id,
		Results:      results,
		Running:      b.inFlight > 0,
		SuccessCount: successCount,
	}
	var batchErr *domain.BatchError
	if errors.As(b.err, &batchErr) {
		snapshot.Error = batchErr.Error()
	}
	return snapshot
}

func (o *GenerationOrchestrator) publish(snapshot BatchSnapshot) {
	o.mu.Lock()
	listeners := make([]SnapshotListener, len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}
}
