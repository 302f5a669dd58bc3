package file

import (
	"context"
	"testing"
	"time"

	"sillydream/internal/domain"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRepository_CredentialRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	repo := NewRepository(fsys, zaptest.NewLogger(t))
	ctx := context.Background()

	got, err := repo.GetCredential(ctx)
	require.NoError(t, err)
	assert.False(t, got.IsSet())

	require.NoError(t, repo.SetCredential(ctx, "AIzaSy-test-key"))

	exists, err := afero.Exists(fsys, domain.CredentialStorageKey+".json")
	require.NoError(t, err)
	assert.True(t, exists)

	// 別インスタンスからも読めること
	got, err = NewRepository(fsys, nil).GetCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Credential("AIzaSy-test-key"), got)

	require.NoError(t, repo.ClearCredential(ctx))
	require.NoError(t, repo.ClearCredential(ctx))
	got, err = repo.GetCredential(ctx)
	require.NoError(t, err)
	assert.False(t, got.IsSet())
}

func TestRepository_HistoryRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	repo := NewRepository(fsys, nil)
	ctx := context.Background()

	seed := uint32(42)
	entries := []domain.HistoryEntry{
		{
			ID:                    "h2",
			SourceImageReferences: []string{"data:image/png;base64,AAAA"},
			ResultImageReferences: []string{"http://remote.test/api/image/out.png"},
			Prompt:                "watercolor",
			Denoising:             0.8,
			Seed:                  &seed,
			ModelUsed:             "gemini-2.5-flash-image",
			CreatedAt:             time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{ID: "h1"},
	}
	require.NoError(t, repo.SaveHistory(ctx, entries))

	loaded, err := repo.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, entries[0], loaded[0])
	assert.Equal(t, "h1", loaded[1].ID)

	require.NoError(t, repo.ClearHistory(ctx))
	loaded, err = repo.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRepository_CorruptHistoryFallsBackToEmpty(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, domain.HistoryStorageKey+".json", []byte("{not json"), 0o600))

	repo := NewRepository(fsys, zaptest.NewLogger(t))
	loaded, err := repo.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRepository_ReadOnlyFs(t *testing.T) {
	repo := NewRepository(afero.NewReadOnlyFs(afero.NewMemMapFs()), nil)

	err := repo.SetCredential(context.Background(), "AIzaSy-test-key")
	assert.Error(t, err)
}
