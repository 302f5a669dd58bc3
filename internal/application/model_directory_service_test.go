package application

import (
	"context"
	"errors"
	"testing"

	"sillydream/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListModels_EmptyCredentialSkipsNetwork(t *testing.T) {
	gateway := &fakeGateway{models: []domain.ModelDescriptor{{ID: "m"}}}
	dir := NewModelDirectoryService(gateway, nil)

	for _, credential := range []domain.Credential{"", "short"} {
		models, state := dir.ListModels(context.Background(), credential)
		assert.Empty(t, models)
		assert.Equal(t, domain.DetectionStateIdle, state)
	}
	assert.Zero(t, gateway.modelCalls.Load())
}

func TestListModels_TagsCapabilities(t *testing.T) {
	gateway := &fakeGateway{models: []domain.ModelDescriptor{
		{ID: "gemini-2.5-flash-image", SupportsImageToImage: false},
		{ID: "gemini-3-pro-image", Name: "Pro"},
	}}
	dir := NewModelDirectoryService(gateway, nil)

	models, state := dir.ListModels(context.Background(), "sk-1234567890")

	assert.Equal(t, domain.DetectionStateSuccess, state)
	require.Len(t, models, 2)
	assert.True(t, models[0].SupportsImageToImage)
	assert.True(t, models[0].IsFlash)
	assert.Equal(t, "gemini-2.5-flash-image", models[0].Name)
	assert.True(t, models[1].SupportsImageToImage)
	assert.False(t, models[1].IsFlash)
	assert.Equal(t, models, dir.Models())
}

func TestListModels_FailuresClearList(t *testing.T) {
	gateway := &fakeGateway{models: []domain.ModelDescriptor{{ID: "m"}}}
	dir := NewModelDirectoryService(gateway, nil)

	_, state := dir.ListModels(context.Background(), "sk-1234567890")
	require.Equal(t, domain.DetectionStateSuccess, state)

	gateway.modelsErr = errors.New("401")
	models, state := dir.ListModels(context.Background(), "sk-1234567890")
	assert.Empty(t, models)
	assert.Equal(t, domain.DetectionStateError, state)
	assert.Empty(t, dir.Models())

	gateway.modelsErr = nil
	gateway.models = nil
	_, state = dir.ListModels(context.Background(), "sk-1234567890")
	assert.Equal(t, domain.DetectionStateError, state)
}

func TestModelSelection_MutuallyExclusive(t *testing.T) {
	dir := NewModelDirectoryService(&fakeGateway{}, nil)
	assert.True(t, dir.Selection().AutoMode)

	dir.SelectModel("model-x")
	assert.Equal(t, domain.ModelSelection{AutoMode: false, SelectedModel: "model-x"}, dir.Selection())
	assert.Equal(t, "model-x", dir.Selection().ModelSelector())

	dir.EnableAutoMode()
	assert.Equal(t, domain.DefaultModelSelection(), dir.Selection())
	assert.Equal(t, "", dir.Selection().ModelSelector())
}

func TestKeyStore_NotifiesModelDirectory(t *testing.T) {
	gateway := &fakeGateway{models: []domain.ModelDescriptor{{ID: "m1"}}}
	dir := NewModelDirectoryService(gateway, nil)
	keys := NewKeyStoreService(&memoryCredentialRepo{}, nil)
	keys.Subscribe(dir.OnCredentialChange)

	ctx := context.Background()

	require.NoError(t, keys.Set(ctx, "short"))
	assert.Zero(t, gateway.modelCalls.Load())

	require.NoError(t, keys.Set(ctx, "  sk-1234567890  "))
	assert.Equal(t, int32(1), gateway.modelCalls.Load())
	assert.Equal(t, domain.DetectionStateSuccess, dir.State())

	stored, err := keys.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Credential("sk-1234567890"), stored)

	dir.SelectModel("m1")
	require.NoError(t, keys.Clear(ctx))
	assert.Empty(t, dir.Models())
	assert.Equal(t, domain.DetectionStateIdle, dir.State())
	assert.True(t, dir.Selection().AutoMode)

	has, err := keys.HasCredential(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestKeyStore_SetEmptyClears(t *testing.T) {
	repo := &memoryCredentialRepo{credential: "sk-1234567890"}
	keys := NewKeyStoreService(repo, nil)

	var notified []domain.Credential
	keys.Subscribe(func(ctx context.Context, c domain.Credential) {
		notified = append(notified, c)
	})

	require.NoError(t, keys.Set(context.Background(), "   "))
	assert.Equal(t, domain.Credential(""), repo.credential)
	assert.Equal(t, []domain.Credential{""}, notified)
}
