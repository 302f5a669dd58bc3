package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"sillydream/internal/domain"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// handleGenerateCommand は、/generateコマンドを処理します
// 生成には時間がかかるため、先に応答を保留してから結果で編集します
func (h *SlashCommandHandler) handleGenerateCommand(ctx context.Context, i *discordgo.Interaction) {
	if err := h.responder.Respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		h.logger.Error("応答の保留に失敗", zap.Error(err))
		return
	}

	params, count, err := h.generationParams(ctx, i)
	if err != nil {
		h.editResponse(i, h.responses.formatError(err), nil)
		return
	}

	results, err := h.services.Orchestrator.RunBatch(ctx, count, params)
	var batchErr *domain.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		h.editResponse(i, h.responses.formatError(err), nil)
		return
	}

	var banner error
	if batchErr != nil {
		banner = batchErr
	}
	h.editResponse(i, h.responses.formatResults(results, banner), h.resultFiles(ctx, results))
}

// handleRetryCommand は、/retryコマンドを処理します
func (h *SlashCommandHandler) handleRetryCommand(ctx context.Context, i *discordgo.Interaction) {
	options := optionMap(i.ApplicationCommandData().Options)
	opt, ok := options["index"]
	if !ok {
		h.respondToInteraction(i, "❌ スロット番号が指定されていません。", true)
		return
	}
	index := int(opt.IntValue()) - 1

	// 存在しないスロットや再試行できない状態は保留前に弾く
	current, err := h.services.Orchestrator.Result(index)
	if err != nil {
		h.respondToInteraction(i, h.responses.formatError(err), true)
		return
	}
	if current.State != domain.ResultStateError {
		h.respondToInteraction(i, h.responses.formatError(domain.ErrSlotNotRetryable), true)
		return
	}

	if err := h.responder.Respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		h.logger.Error("応答の保留に失敗", zap.Error(err))
		return
	}

	if _, err := h.services.Orchestrator.Retry(ctx, index); err != nil {
		h.editResponse(i, h.responses.formatError(err), nil)
		return
	}

	snapshot := h.services.Orchestrator.Results()
	var banner error
	if snapshot.Error != "" {
		banner = errors.New(snapshot.Error)
	}
	h.editResponse(i, h.responses.formatResults(snapshot.Results, banner), h.resultFiles(ctx, snapshot.Results))
}

// generationParams は、コマンドのオプションから生成パラメータを組み立てます
// 添付画像はこの場で検証し、HTTP側で取り込み中の画像には触れません
func (h *SlashCommandHandler) generationParams(ctx context.Context, i *discordgo.Interaction) (domain.GenerationParams, int, error) {
	data := i.ApplicationCommandData()
	options := optionMap(data.Options)

	params := domain.GenerationParams{
		Denoising:    domain.DefaultDenoising,
		PromptWeight: domain.DefaultPromptWeight,
	}
	count := 1

	if opt, ok := options["prompt"]; ok {
		params.Prompt = opt.StringValue()
	}
	if opt, ok := options["count"]; ok {
		count = int(opt.IntValue())
	}
	if opt, ok := options["denoising"]; ok {
		params.Denoising = opt.FloatValue()
	}
	if opt, ok := options["seed"]; ok {
		seed := uint32(opt.IntValue())
		params.Seed = &seed
	}
	if opt, ok := options["prompt-weight"]; ok {
		params.PromptWeight = opt.FloatValue()
	}
	if opt, ok := options["enhanced"]; ok {
		params.EnhancedMode = opt.BoolValue()
	}

	for _, name := range imageOptionNames {
		opt, ok := options[name]
		if !ok || data.Resolved == nil {
			continue
		}
		attachmentID, _ := opt.Value.(string)
		attachment, ok := data.Resolved.Attachments[attachmentID]
		if !ok {
			continue
		}

		file, err := h.fetcher.Fetch(ctx, attachment)
		if err != nil {
			return domain.GenerationParams{}, 0, err
		}
		if err := h.services.Intake.Validate(file); err != nil {
			return domain.GenerationParams{}, 0, fmt.Errorf("%s: %w", attachment.Filename, err)
		}
		params.Images = append(params.Images, h.services.Intake.Encode(file))
	}

	selection := h.services.Models.Selection()
	params.AutoMode = selection.AutoMode
	params.ModelSelector = selection.ModelSelector()

	return params, count, nil
}

// resultFiles は、成功したスロットの画像を添付ファイルとして取得します
// 取得できなかった画像は本文の一覧にのみ残ります
func (h *SlashCommandHandler) resultFiles(ctx context.Context, results []domain.GenerationResult) []*discordgo.File {
	var files []*discordgo.File
	for _, r := range results {
		if r.State != domain.ResultStateSuccess {
			continue
		}
		image, err := h.services.Downloads.Download(ctx, r)
		if err != nil {
			h.logger.Warn("結果画像の取得に失敗", zap.Int("index", r.Index), zap.Error(err))
			continue
		}
		files = append(files, &discordgo.File{
			Name:        fmt.Sprintf("%d_%s", r.Index+1, image.Filename),
			ContentType: image.MediaType,
			Reader:      bytes.NewReader(image.Data),
		})
	}
	return files
}

// editResponse は、保留した応答を結果で置き換えます
func (h *SlashCommandHandler) editResponse(i *discordgo.Interaction, content string, files []*discordgo.File) {
	edit := &discordgo.WebhookEdit{
		Content: &content,
		Files:   files,
	}
	if err := h.responder.EditResponse(i, edit); err != nil {
		h.logger.Error("応答の編集に失敗", zap.Error(err))
	}
}
