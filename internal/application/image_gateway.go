package application

import (
	"context"

	"sillydream/internal/domain"
)

// ImageGateway は、リモートの画像生成APIとの通信を行うクライアントのインターフェースです
type ImageGateway interface {
	// ListModels は、APIキーで利用可能な画像生成モデルの一覧を取得します
	ListModels(ctx context.Context, credential domain.Credential) ([]domain.ModelDescriptor, error)

	// GenerateImage は、生成リクエストを送信してレスポンスエンベロープを返します
	// 通信失敗やボディの解析失敗のみをエラーとして返し、APIによる拒否はエンベロープで表現します
	GenerateImage(ctx context.Context, request domain.GenerateImageRequest) (*domain.GenerateImageReply, error)

	// FetchImage は、ファイル名で指定された生成画像を取得します
	FetchImage(ctx context.Context, filename string) (*domain.ImageFile, error)

	// ImageURL は、ファイル名を画像取得パスに解決したURLを返します
	ImageURL(filename string) string
}
