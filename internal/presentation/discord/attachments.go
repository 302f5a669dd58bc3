package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sillydream/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// attachmentFetcher は、Discordの添付ファイルを取得します
type attachmentFetcher interface {
	Fetch(ctx context.Context, attachment *discordgo.MessageAttachment) (domain.UploadedFile, error)
}

// httpFetcher は、添付ファイルのURLからHTTPで取得します
type httpFetcher struct {
	client   *http.Client
	maxBytes int64
}

func newHTTPFetcher(maxBytes int64) *httpFetcher {
	return &httpFetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: maxBytes,
	}
}

// Fetch は、添付ファイルをダウンロードします
// 上限を1バイト超えて読み、サイズ超過の判定は取り込み側に任せます
func (f *httpFetcher) Fetch(ctx context.Context, attachment *discordgo.MessageAttachment) (domain.UploadedFile, error) {
	if attachment.Size > 0 && int64(attachment.Size) > f.maxBytes {
		return domain.UploadedFile{}, domain.ErrImageTooLarge
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachment.URL, nil)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("添付ファイルのリクエスト作成に失敗: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("添付ファイルの取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.UploadedFile{}, fmt.Errorf("添付ファイルの取得に失敗 (HTTP %d)", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("添付ファイルの読み込みに失敗: %w", err)
	}

	mediaType := attachment.ContentType
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}

	return domain.UploadedFile{
		Filename:  attachment.Filename,
		MediaType: strings.TrimSpace(mediaType),
		Data:      data,
	}, nil
}
