package memory

import (
	"context"
	"testing"

	"sillydream/internal/domain"
)

func TestRepository_Credential(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	got, err := repo.GetCredential(ctx)
	if err != nil {
		t.Fatalf("予期しないエラーが発生しました: %v", err)
	}
	if got.IsSet() {
		t.Errorf("初期状態ではAPIキーは未設定であるべきです: %q", got)
	}

	if err := repo.SetCredential(ctx, "AIzaSy-test-key"); err != nil {
		t.Fatalf("予期しないエラーが発生しました: %v", err)
	}
	got, _ = repo.GetCredential(ctx)
	if got != "AIzaSy-test-key" {
		t.Errorf("期待される値: AIzaSy-test-key, 実際: %s", got)
	}

	if err := repo.ClearCredential(ctx); err != nil {
		t.Fatalf("予期しないエラーが発生しました: %v", err)
	}
	got, _ = repo.GetCredential(ctx)
	if got.IsSet() {
		t.Errorf("削除後はAPIキーが未設定であるべきです: %q", got)
	}
}

func TestRepository_HistoryIsCopied(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	entries := []domain.HistoryEntry{{ID: "a"}, {ID: "b"}}
	if err := repo.SaveHistory(ctx, entries); err != nil {
		t.Fatalf("予期しないエラーが発生しました: %v", err)
	}
	entries[0].ID = "changed"

	loaded, err := repo.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("予期しないエラーが発生しました: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != "a" {
		t.Errorf("保存後の変更が反映されるべきではありません: %+v", loaded)
	}

	if err := repo.ClearHistory(ctx); err != nil {
		t.Fatalf("予期しないエラーが発生しました: %v", err)
	}
	loaded, _ = repo.LoadHistory(ctx)
	if len(loaded) != 0 {
		t.Errorf("削除後の履歴は空であるべきです: %+v", loaded)
	}
}

func TestRepository_CanceledContext(t *testing.T) {
	repo := NewRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := repo.SetCredential(ctx, "AIzaSy-test-key"); err == nil {
		t.Errorf("キャンセル済みのコンテキストではエラーが期待されます")
	}
	if _, err := repo.LoadHistory(ctx); err == nil {
		t.Errorf("キャンセル済みのコンテキストではエラーが期待されます")
	}
}
