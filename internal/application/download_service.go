package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sillydream/internal/domain"

	"go.uber.org/zap"
)

// ImageCacher は、取得した画像をキャッシュするためのインターフェースです
type ImageCacher interface {
	Get(key string) (any, bool)
	Set(key string, value any, d time.Duration)
}

const cacheKeyImage = "image:"

// DownloadService は、生成結果の画像をダウンロード可能な形で取得するサービスです
type DownloadService struct {
	gateway ImageGateway
	cache   ImageCacher
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewDownloadService は新しいDownloadServiceインスタンスを作成します
// cache は nil を許容します（キャッシュなしで動作）
func NewDownloadService(gateway ImageGateway, cache ImageCacher, ttl time.Duration, logger *zap.Logger) *DownloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadService{
		gateway: gateway,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Download は、生成結果の画像を取得します
// ファイル名を持つ結果はリモートAPIから取得し、埋め込み画像はその場でデコードします
func (s *DownloadService) Download(ctx context.Context, result domain.GenerationResult) (*domain.ImageFile, error) {
	if result.State != domain.ResultStateSuccess {
		return nil, domain.ErrImageUnavailable
	}

	var (
		file *domain.ImageFile
		err  error
	)
	switch {
	case result.Filename != "":
		file, err = s.fetch(ctx, result.Filename)
	case strings.HasPrefix(result.ImageReference, "data:"):
		file, err = domain.DecodeDataURL(result.ImageReference)
	default:
		return nil, domain.ErrImageUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImageUnavailable, err)
	}

	out := *file
	if result.Filename != "" {
		out.Filename = result.Filename
	}
	if out.Filename == "" {
		out.Filename = fmt.Sprintf("generated_%d.png", s.now().Unix())
	}
	return &out, nil
}

// fetch は、キャッシュを確認してからリモートAPIの画像取得パスにアクセスします
func (s *DownloadService) fetch(ctx context.Context, filename string) (*domain.ImageFile, error) {
	key := cacheKeyImage + filename
	if s.cache != nil {
		if val, ok := s.cache.Get(key); ok {
			if file, ok := val.(*domain.ImageFile); ok {
				return file, nil
			}
		}
	}

	file, err := s.gateway.FetchImage(ctx, filename)
	if err != nil {
		s.logger.Warn("画像の取得に失敗しました", zap.String("filename", filename), zap.Error(err))
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(key, file, s.ttl)
	}
	return file, nil
}
