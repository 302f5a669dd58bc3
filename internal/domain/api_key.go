package domain

import (
	"context"
	"strings"
)

// CredentialStorageKey は、APIキーを永続化する際のキー名です
const CredentialStorageKey = "sillydream_api_key"

// MinCredentialLength は、モデル一覧の自動取得を行うAPIキーの最小長です
const MinCredentialLength = 10

// Credential は、ユーザーが入力したAPIキーを表す値オブジェクトです
// 空文字列は未設定を意味します
type Credential string

// NewCredential は前後の空白を取り除いたCredentialを作成します
func NewCredential(raw string) Credential {
	return Credential(strings.TrimSpace(raw))
}

// IsSet は、APIキーが設定されているかを返します
func (c Credential) IsSet() bool {
	return strings.TrimSpace(string(c)) != ""
}

// IsUsable は、リモートAPIへの問い合わせに使える長さかを返します
func (c Credential) IsUsable() bool {
	return len(strings.TrimSpace(string(c))) >= MinCredentialLength
}

// String はAPIキーの文字列を返します
func (c Credential) String() string {
	return string(c)
}

// Masked は、ログや画面表示用に末尾4文字以外を伏せた文字列を返します
func (c Credential) Masked() string {
	s := string(c)
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// CredentialRepository は、APIキーの永続化を行うインターフェースです
type CredentialRepository interface {
	// GetCredential は、保存されているAPIキーを取得します。未設定の場合は空文字列を返します
	GetCredential(ctx context.Context) (Credential, error)

	// SetCredential は、APIキーを保存します
	SetCredential(ctx context.Context, credential Credential) error

	// ClearCredential は、保存されているAPIキーを削除します
	ClearCredential(ctx context.Context) error
}
