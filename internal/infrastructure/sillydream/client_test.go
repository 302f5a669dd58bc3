package sillydream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sillydream/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", 5*time.Second, zaptest.NewLogger(t))
}

func TestClient_ListModels(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/models", r.URL.Path)
		assert.Equal(t, "AIza key+1", r.URL.Query().Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":200,"count":3,"data":[
			{"id":"gemini-2.5-flash-image","name":"gemini-2.5-flash-image","is_flash":true,"speed":0},
			{"id":"gemini-3-pro-image","name":"","is_flash":false,"speed":1},
			{"id":""}
		]}`))
	})

	models, err := client.ListModels(context.Background(), "AIza key+1")
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, domain.ModelDescriptor{ID: "gemini-2.5-flash-image", Name: "gemini-2.5-flash-image", IsFlash: true}, models[0])
	assert.Equal(t, "gemini-3-pro-image", models[1].ID)
}

func TestClient_ListModelsRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"msg":"API Key 未提供"}`))
	})

	_, err := client.ListModels(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_GenerateImage(t *testing.T) {
	seed := uint32(7)
	request := domain.GenerateImageRequest{
		APIKey:       "AIzaSy-test-key",
		Images:       []string{"AAAA", "BBBB"},
		Prompt:       "make it watercolor",
		Denoising:    0.8,
		Seed:         &seed,
		Auto:         true,
		PromptWeight: 1.5,
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/gen_image", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got domain.GenerateImageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, request, got)

		_, _ = w.Write([]byte(`{"code":200,"msg":"ok","data":{"filename":"out.png","image":"data:image/png;base64,AAAA"},"model_used":"gemini-2.5-flash-image","tried_models":["gemini-2.5-flash-image"]}`))
	})

	reply, err := client.GenerateImage(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, reply.IsOK())
	assert.Equal(t, http.StatusOK, reply.HTTPStatus)
	assert.Equal(t, "out.png", reply.Data.Filename)
	assert.Equal(t, "gemini-2.5-flash-image", reply.ModelUsed)
}

func TestClient_GenerateImageRejectionIsReply(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":503,"msg":"所有模型都不可用","tried_models":["a","b"]}`))
	})

	reply, err := client.GenerateImage(context.Background(), domain.GenerateImageRequest{})
	require.NoError(t, err)
	assert.False(t, reply.IsOK())
	assert.Equal(t, http.StatusServiceUnavailable, reply.HTTPStatus)
	assert.Equal(t, []string{"a", "b"}, reply.TriedModels)
}

func TestClient_GenerateImageUnparseableBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})

	_, err := client.GenerateImage(context.Background(), domain.GenerateImageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_GenerateImageTransportError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, nil)

	_, err := client.GenerateImage(context.Background(), domain.GenerateImageRequest{})
	assert.Error(t, err)
}

func TestClient_FetchImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/image/a b.png" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"图片不存在"}`))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	})

	file, err := client.FetchImage(context.Background(), "a b.png")
	require.NoError(t, err)
	assert.Equal(t, "a b.png", file.Filename)
	assert.Equal(t, "image/png", file.MediaType)
	assert.Equal(t, []byte("png-bytes"), file.Data)

	_, err = client.FetchImage(context.Background(), "missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_ImageURL(t *testing.T) {
	client := NewClient("http://remote.test/", time.Second, nil)
	assert.Equal(t, "http://remote.test/api/image/a%20b.png", client.ImageURL("a b.png"))
}
