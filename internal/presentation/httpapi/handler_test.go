package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"sync"
	"testing"
	"time"

	"sillydream/internal/application"
	"sillydream/internal/domain"
	"sillydream/internal/infrastructure/storage/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testKey = "AIzaSy-test-key"

// stubGateway は、応答を差し替えられるテスト用のゲートウェイです
type stubGateway struct {
	mu       sync.Mutex
	models   []domain.ModelDescriptor
	replies  []*domain.GenerateImageReply
	requests []domain.GenerateImageRequest
	images   map[string]*domain.ImageFile
}

func (g *stubGateway) ListModels(context.Context, domain.Credential) ([]domain.ModelDescriptor, error) {
	return g.models, nil
}

func (g *stubGateway) GenerateImage(_ context.Context, req domain.GenerateImageRequest) (*domain.GenerateImageReply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.replies) == 0 {
		return &domain.GenerateImageReply{Code: 500, Msg: "no reply"}, nil
	}
	reply := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return reply, nil
}

func (g *stubGateway) FetchImage(_ context.Context, filename string) (*domain.ImageFile, error) {
	if img, ok := g.images[filename]; ok {
		return &domain.ImageFile{Filename: filename, MediaType: img.MediaType, Data: img.Data}, nil
	}
	return nil, assert.AnError
}

func (g *stubGateway) ImageURL(filename string) string {
	return "http://remote.test/api/image/" + filename
}

type testServer struct {
	router       *gin.Engine
	gateway      *stubGateway
	keys         *application.KeyStoreService
	intake       *application.ImageIntakeService
	orchestrator *application.GenerationOrchestrator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithIntake(t, application.DefaultIntakeConfig())
}

func newTestServerWithIntake(t *testing.T, intakeConfig application.IntakeConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	repo := memory.NewRepository()
	gateway := &stubGateway{
		models: []domain.ModelDescriptor{{ID: "gemini-2.5-flash-image"}, {ID: "gemini-3-pro-image"}},
		images: map[string]*domain.ImageFile{},
	}

	keys := application.NewKeyStoreService(repo, logger)
	intake := application.NewImageIntakeService(intakeConfig, logger)
	models := application.NewModelDirectoryService(gateway, logger)
	keys.Subscribe(models.OnCredentialChange)
	history := application.NewHistoryService(repo, logger)
	orchestrator := application.NewGenerationOrchestrator(gateway, keys, history, models, logger)
	downloads := application.NewDownloadService(gateway, nil, time.Minute, logger)

	handler := NewHandler(Services{
		Keys:         keys,
		Intake:       intake,
		Models:       models,
		Orchestrator: orchestrator,
		History:      history,
		Downloads:    downloads,
	}, logger)

	return &testServer{
		router:       handler.Router([]string{"*"}),
		gateway:      gateway,
		keys:         keys,
		intake:       intake,
		orchestrator: orchestrator,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, filename, mediaType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSettingsKey_SetLoadsModelsAndNeverEchoesKey(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/settings/key", map[string]string{"api_key": "  " + testKey + "  "})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), testKey)

	w = s.do(t, http.MethodGet, "/api/settings/key", nil)
	assert.JSONEq(t, `{"configured":true}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	models := decode[modelsResponse](t, w)
	assert.Equal(t, domain.DetectionStateSuccess, models.Detection)
	assert.Len(t, models.Models, 2)
	assert.True(t, models.Selection.AutoMode)

	w = s.do(t, http.MethodDelete, "/api/settings/key", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/models", nil)
	models = decode[modelsResponse](t, w)
	assert.Empty(t, models.Models)
	assert.Equal(t, domain.DetectionStateIdle, models.Detection)
}

func TestModelSelection(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/models/selection", map[string]any{"auto": false, "model": "gemini-3-pro-image"})
	require.Equal(t, http.StatusOK, w.Code)
	models := decode[modelsResponse](t, w)
	assert.False(t, models.Selection.AutoMode)
	assert.Equal(t, "gemini-3-pro-image", models.Selection.SelectedModel)

	w = s.do(t, http.MethodPut, "/api/models/selection", map[string]any{"auto": true})
	models = decode[modelsResponse](t, w)
	assert.True(t, models.Selection.AutoMode)
}

func TestImages_UploadValidateRemove(t *testing.T) {
	s := newTestServer(t)

	w := s.upload(t, "cat.png", "image/png", []byte("\x89PNG\r\n\x1a\npayload"))
	require.Equal(t, http.StatusCreated, w.Code)
	image := decode[domain.SourceImage](t, w)
	assert.Equal(t, "cat.png", image.Filename)
	assert.Contains(t, image.EncodedContent, "data:image/png;base64,")

	w = s.upload(t, "doc.gif", "image/gif", []byte("GIF89a"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/images", nil)
	state := decode[imagesResponse](t, w)
	assert.Len(t, state.Images, 1)
	assert.NotEmpty(t, state.Error)

	w = s.do(t, http.MethodDelete, "/api/images/"+image.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	state = decode[imagesResponse](t, w)
	assert.Empty(t, state.Images)
	assert.Empty(t, state.Error)

	w = s.do(t, http.MethodDelete, "/api/images/"+image.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerate_ConfigurationErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/generate", map[string]any{"count": 1, "prompt": "watercolor"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.upload(t, "cat.png", "image/png", []byte("\x89PNG\r\n\x1a\npayload"))
	w = s.do(t, http.MethodPost, "/api/generate", map[string]any{"count": 1, "prompt": "watercolor"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "APIキー")

	assert.Empty(t, s.gateway.requests)
}

func TestGenerate_SuccessRetryDownloadHistory(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.keys.Set(context.Background(), testKey))
	s.upload(t, "cat.png", "image/png", []byte("\x89PNG\r\n\x1a\npayload"))

	s.gateway.replies = []*domain.GenerateImageReply{
		{Code: 200, Data: &domain.ReplyData{Filename: "out.png"}, ModelUsed: "gemini-2.5-flash-image"},
		{Code: 503, Msg: "busy"},
	}
	s.gateway.images["out.png"] = &domain.ImageFile{MediaType: "image/png", Data: []byte("result")}

	w := s.do(t, http.MethodPost, "/api/generate", map[string]any{"count": 2, "prompt": "watercolor", "denoising": 0.6})
	require.Equal(t, http.StatusOK, w.Code)
	snapshot := decode[application.BatchSnapshot](t, w)
	require.Len(t, snapshot.Results, 2)
	assert.Equal(t, 1, snapshot.SuccessCount)
	assert.Len(t, s.gateway.requests, 2)
	assert.Equal(t, 0.6, s.gateway.requests[0].Denoising)
	assert.True(t, s.gateway.requests[0].Auto)

	failed := 0
	if snapshot.Results[0].State == domain.ResultStateSuccess {
		failed = 1
	}

	w = s.do(t, http.MethodGet, "/api/results/"+strconv.Itoa(1-failed)+"/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "result", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "out.png")

	w = s.do(t, http.MethodGet, "/api/results/"+strconv.Itoa(failed)+"/download", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/results/"+strconv.Itoa(1-failed)+"/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/results/"+strconv.Itoa(failed)+"/retry", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/results/9/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/history", nil)
	history := decode[struct {
		Entries []domain.HistoryEntry `json:"entries"`
	}](t, w)
	require.Len(t, history.Entries, 1)
	assert.Equal(t, "watercolor", history.Entries[0].Prompt)

	w = s.do(t, http.MethodDelete, "/api/history/"+history.Entries[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/history/"+history.Entries[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/results", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/api/results", nil)
	assert.Empty(t, decode[application.BatchSnapshot](t, w).Results)
}

func TestGenerate_TotalFailure(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.keys.Set(context.Background(), testKey))
	s.upload(t, "cat.png", "image/png", []byte("\x89PNG\r\n\x1a\npayload"))

	s.gateway.replies = []*domain.GenerateImageReply{
		{HTTPStatus: 503, Code: 503, Msg: "所有模型都不可用", TriedModels: []string{"a", "b", "c"}},
	}

	w := s.do(t, http.MethodPost, "/api/generate", map[string]any{"count": 4, "prompt": "watercolor"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	snapshot := decode[application.BatchSnapshot](t, w)
	require.Len(t, snapshot.Results, 4)
	assert.NotEmpty(t, snapshot.Error)
	for _, r := range snapshot.Results {
		assert.Equal(t, domain.ResultStateError, r.State)
		assert.Contains(t, r.ErrorMessage, "• a\n• b\n• c")
	}

	w = s.do(t, http.MethodGet, "/api/history", nil)
	assert.JSONEq(t, `{"entries":[]}`, w.Body.String())
}

func TestImages_OversizeUploadIsDisplayed(t *testing.T) {
	s := newTestServerWithIntake(t, application.IntakeConfig{MaxImages: 5, MaxSizeBytes: 1024})

	w := s.upload(t, "huge.png", "image/png", bytes.Repeat([]byte{0x89}, 2<<20))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/images", nil)
	state := decode[imagesResponse](t, w)
	assert.Empty(t, state.Images)
	assert.Equal(t, domain.ErrImageTooLarge.Error(), state.Error)
}

func TestGenerate_RespondsWithOwnBatch(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.keys.Set(context.Background(), testKey))
	s.upload(t, "cat.png", "image/png", []byte("\x89PNG\r\n\x1a\npayload"))
	s.gateway.replies = []*domain.GenerateImageReply{
		{Code: 200, Data: &domain.ReplyData{Filename: "out.png"}, ModelUsed: "gemini-2.5-flash-image"},
	}

	// 別の操作が結果を破棄しても、応答はこのリクエストのバッチを返す
	var once sync.Once
	s.orchestrator.Subscribe(func(snapshot application.BatchSnapshot) {
		if snapshot.SuccessCount > 0 {
			once.Do(s.orchestrator.ClearResults)
		}
	})

	w := s.do(t, http.MethodPost, "/api/generate", map[string]any{"count": 1, "prompt": "watercolor"})
	require.Equal(t, http.StatusOK, w.Code)
	snapshot := decode[application.BatchSnapshot](t, w)
	require.Len(t, snapshot.Results, 1)
	assert.Equal(t, 1, snapshot.SuccessCount)
	assert.Equal(t, "out.png", snapshot.Results[0].Filename)
	assert.Empty(t, decode[application.BatchSnapshot](t, s.do(t, http.MethodGet, "/api/results", nil)).Results)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, errorStatus(domain.ErrPromptEmpty))
	assert.Equal(t, http.StatusBadRequest, errorStatus(domain.ErrTooManyImages))
	assert.Equal(t, http.StatusNotFound, errorStatus(domain.ErrHistoryNotFound))
	assert.Equal(t, http.StatusConflict, errorStatus(domain.ErrSlotNotRetryable))
	assert.Equal(t, http.StatusBadGateway, errorStatus(&domain.BatchError{Total: 2}))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(assert.AnError))
}
