package domain

import (
	"errors"
	"fmt"
)

// エラー分類の基底です。errors.Is で分類を判定します
var (
	// ErrConfiguration は、ネットワーク呼び出し前に検出される設定不備です
	ErrConfiguration = errors.New("設定エラー")

	// ErrValidation は、画像の取り込み時に検出される入力不備です
	ErrValidation = errors.New("入力検証エラー")

	// ErrBatchFailed は、バッチ内の全リクエストが失敗したことを表します
	ErrBatchFailed = errors.New("すべてのリクエストが失敗しました")
)

// 設定エラー
var (
	// ErrCredentialNotSet は、APIキーが未設定の場合のエラーです
	ErrCredentialNotSet = fmt.Errorf("%w: APIキーが設定されていません", ErrConfiguration)

	// ErrPromptEmpty は、プロンプトが空の場合のエラーです
	ErrPromptEmpty = fmt.Errorf("%w: プロンプトが空です", ErrConfiguration)

	// ErrNoSourceImages は、参照画像が1枚もない場合のエラーです
	ErrNoSourceImages = fmt.Errorf("%w: 参照画像がありません", ErrConfiguration)

	// ErrInvalidBatchSize は、生成枚数が範囲外の場合のエラーです
	ErrInvalidBatchSize = fmt.Errorf("%w: 生成枚数が範囲外です", ErrConfiguration)

	// ErrInvalidDenoising は、重描画強度が0〜1の範囲外の場合のエラーです
	ErrInvalidDenoising = fmt.Errorf("%w: 重描画強度は0から1の範囲で指定してください", ErrConfiguration)

	// ErrInvalidPromptWeight は、プロンプト重みが0.5〜2.0の範囲外の場合のエラーです
	ErrInvalidPromptWeight = fmt.Errorf("%w: プロンプト重みは0.5から2.0の範囲で指定してください", ErrConfiguration)
)

// 入力検証エラー
var (
	// ErrUnsupportedMediaType は、許可されていない画像形式の場合のエラーです
	ErrUnsupportedMediaType = fmt.Errorf("%w: PNG、JPG、WebP 形式のみ対応しています", ErrValidation)

	// ErrImageTooLarge は、画像サイズが上限を超えた場合のエラーです
	ErrImageTooLarge = fmt.Errorf("%w: 画像サイズが上限を超えています", ErrValidation)

	// ErrTooManyImages は、画像枚数が上限に達している場合のエラーです
	ErrTooManyImages = fmt.Errorf("%w: これ以上画像を追加できません", ErrValidation)

	// ErrEmptyImage は、画像データが空の場合のエラーです
	ErrEmptyImage = fmt.Errorf("%w: 画像データが空です", ErrValidation)
)

var (
	// ErrImageNotFound は、指定IDの参照画像が存在しない場合のエラーです
	ErrImageNotFound = errors.New("参照画像が見つかりません")

	// ErrHistoryNotFound は、指定IDの履歴が存在しない場合のエラーです
	ErrHistoryNotFound = errors.New("履歴が見つかりません")

	// ErrSlotOutOfRange は、存在しないスロットを指定した場合のエラーです
	ErrSlotOutOfRange = errors.New("指定されたスロットは存在しません")

	// ErrSlotNotRetryable は、終端のエラー状態ではないスロットを再試行しようとした場合のエラーです
	ErrSlotNotRetryable = errors.New("このスロットは再試行できる状態ではありません")

	// ErrImageUnavailable は、結果画像が取得できない場合のエラーです
	ErrImageUnavailable = errors.New("画像を取得できません")
)

// BatchError は、バッチ全体が失敗したことを表すバナー用のエラーです
// 個々のスロットのエラーとは区別されます
type BatchError struct {
	Total int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("全 %d 件のリクエストがすべて失敗しました。ネットワークまたはAPIキーを確認してください", e.Total)
}

// Unwrap は ErrBatchFailed を返します
func (e *BatchError) Unwrap() error {
	return ErrBatchFailed
}
