package application

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"sillydream/internal/domain"
)

// --- Mocks ---

// fakeGateway は ImageGateway を実装します
type fakeGateway struct {
	mu sync.Mutex

	calls        atomic.Int32
	modelCalls   atomic.Int32
	fetchCalls   atomic.Int32
	requests     []domain.GenerateImageRequest
	generateFunc func(call int, req domain.GenerateImageRequest) (*domain.GenerateImageReply, error)
	models       []domain.ModelDescriptor
	modelsErr    error
	images       map[string]*domain.ImageFile
}

func (f *fakeGateway) ListModels(ctx context.Context, credential domain.Credential) ([]domain.ModelDescriptor, error) {
	f.modelCalls.Add(1)
	return f.models, f.modelsErr
}

func (f *fakeGateway) GenerateImage(ctx context.Context, req domain.GenerateImageRequest) (*domain.GenerateImageReply, error) {
	call := int(f.calls.Add(1)) - 1

	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.generateFunc
	f.mu.Unlock()

	if fn == nil {
		return okReply("out.png", "model-a"), nil
	}
	return fn(call, req)
}

func (f *fakeGateway) setGenerateFunc(fn func(call int, req domain.GenerateImageRequest) (*domain.GenerateImageReply, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateFunc = fn
}

func (f *fakeGateway) FetchImage(ctx context.Context, filename string) (*domain.ImageFile, error) {
	f.fetchCalls.Add(1)
	if file, ok := f.images[filename]; ok {
		return file, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeGateway) ImageURL(filename string) string {
	return "http://remote.test/api/image/" + url.PathEscape(filename)
}

func okReply(filename, model string) *domain.GenerateImageReply {
	return &domain.GenerateImageReply{
		HTTPStatus: 200,
		Code:       200,
		Msg:        "ok",
		Data:       &domain.ReplyData{Filename: filename},
		ModelUsed:  model,
	}
}

func rejectReply(status int, msg string) *domain.GenerateImageReply {
	return &domain.GenerateImageReply{
		HTTPStatus: status,
		Code:       status,
		Msg:        msg,
	}
}

// fakeCredentials は CredentialProvider を実装します
type fakeCredentials struct {
	credential domain.Credential
	err        error
}

func (f *fakeCredentials) Get(ctx context.Context) (domain.Credential, error) {
	return f.credential, f.err
}

// fakeHistory は HistoryRecorder を実装します
type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (f *fakeHistory) Record(ctx context.Context, entry domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = domain.PrependHistory(f.entries, entry)
	return nil
}

// fakeUsage は ModelUsageRecorder を実装します
type fakeUsage struct {
	mu    sync.Mutex
	model string
}

func (f *fakeUsage) SetModelUsed(model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.model = model
}

func (f *fakeUsage) get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model
}

// memoryHistoryRepo は domain.HistoryRepository を実装します
type memoryHistoryRepo struct {
	entries []domain.HistoryEntry
	err     error
}

func (m *memoryHistoryRepo) LoadHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.HistoryEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *memoryHistoryRepo) SaveHistory(ctx context.Context, entries []domain.HistoryEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = entries
	return nil
}

func (m *memoryHistoryRepo) ClearHistory(ctx context.Context) error {
	m.entries = nil
	return m.err
}

// memoryCredentialRepo は domain.CredentialRepository を実装します
type memoryCredentialRepo struct {
	credential domain.Credential
}

func (m *memoryCredentialRepo) GetCredential(ctx context.Context) (domain.Credential, error) {
	return m.credential, nil
}

func (m *memoryCredentialRepo) SetCredential(ctx context.Context, credential domain.Credential) error {
	m.credential = credential
	return nil
}

func (m *memoryCredentialRepo) ClearCredential(ctx context.Context) error {
	m.credential = ""
	return nil
}

// mapCache は ImageCacher を実装します
type mapCache struct {
	data map[string]any
}

func (m *mapCache) Get(key string) (any, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *mapCache) Set(key string, value any, d time.Duration) {
	if m.data == nil {
		m.data = make(map[string]any)
	}
	m.data[key] = value
}
