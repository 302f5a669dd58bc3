package application

import (
	"fmt"
	"sync"

	"sillydream/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 取り込みのデフォルト上限
const (
	DefaultMaxImages    = 5
	DefaultMaxSizeBytes = 10 << 20 // 10MB
)

// IntakeConfig は、画像取り込みの上限設定です
type IntakeConfig struct {
	MaxImages    int
	MaxSizeBytes int64
}

// DefaultIntakeConfig は、デフォルトの取り込み設定を返します
func DefaultIntakeConfig() IntakeConfig {
	return IntakeConfig{
		MaxImages:    DefaultMaxImages,
		MaxSizeBytes: DefaultMaxSizeBytes,
	}
}

// ImageIntakeService は、参照画像の検証と保持を行うサービスです
type ImageIntakeService struct {
	config IntakeConfig
	logger *zap.Logger

	mu        sync.RWMutex
	images    []domain.SourceImage
	lastError error
}

// NewImageIntakeService は新しいImageIntakeServiceインスタンスを作成します
func NewImageIntakeService(config IntakeConfig, logger *zap.Logger) *ImageIntakeService {
	if config.MaxImages <= 0 {
		config.MaxImages = DefaultMaxImages
	}
	if config.MaxSizeBytes <= 0 {
		config.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageIntakeService{
		config: config,
		logger: logger,
	}
}

// Config は、取り込みの上限設定を返します
func (s *ImageIntakeService) Config() IntakeConfig {
	return s.config
}

// Validate は、ファイルの形式とサイズを検証します。コレクションには触れません
func (s *ImageIntakeService) Validate(file domain.UploadedFile) error {
	if !domain.IsAllowedMediaType(file.MediaType) {
		return domain.ErrUnsupportedMediaType
	}
	if file.Size() == 0 {
		return domain.ErrEmptyImage
	}
	if file.Size() > s.config.MaxSizeBytes {
		return fmt.Errorf("%w (最大 %dMB)", domain.ErrImageTooLarge, s.config.MaxSizeBytes>>20)
	}
	return nil
}

// Encode は、ファイルをメディアタイプを保持したdata URLに変換します
func (s *ImageIntakeService) Encode(file domain.UploadedFile) domain.SourceImage {
	return domain.SourceImage{
		ID:             uuid.NewString(),
		EncodedContent: domain.EncodeDataURL(file.Subtype(), file.Data),
		Filename:       file.Filename,
	}
}

// AddImage は、ファイルを検証して参照画像として末尾に追加します
func (s *ImageIntakeService) AddImage(file domain.UploadedFile) (domain.SourceImage, error) {
	if err := s.Validate(file); err != nil {
		s.setError(err)
		return domain.SourceImage{}, err
	}

	image := s.Encode(file)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.images) >= s.config.MaxImages {
		err := fmt.Errorf("%w (最大 %d 枚)", domain.ErrTooManyImages, s.config.MaxImages)
		s.lastError = err
		return domain.SourceImage{}, err
	}

	s.images = append(s.images, image)
	s.lastError = nil

	s.logger.Debug("参照画像を追加しました",
		zap.String("id", image.ID),
		zap.String("filename", image.Filename),
		zap.Int64("size", file.Size()),
	)
	return image, nil
}

// Reject は、取り込み前に弾かれたファイルのエラーを表示中のエラーとして記録します
func (s *ImageIntakeService) Reject(err error) error {
	s.setError(err)
	return err
}

// RemoveImage は、指定IDの参照画像を削除し、表示中のエラーを解除します
func (s *ImageIntakeService) RemoveImage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, img := range s.images {
		if img.ID == id {
			s.images = append(s.images[:i:i], s.images[i+1:]...)
			s.lastError = nil
			return nil
		}
	}
	return domain.ErrImageNotFound
}

// Images は、取り込み済みの参照画像を表示順で返します
func (s *ImageIntakeService) Images() []domain.SourceImage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	images := make([]domain.SourceImage, len(s.images))
	copy(images, s.images)
	return images
}

// LastError は、表示中の検証エラーを返します
func (s *ImageIntakeService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Clear は、すべての参照画像と表示中のエラーを削除します
func (s *ImageIntakeService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = nil
	s.lastError = nil
}

func (s *ImageIntakeService) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
}
