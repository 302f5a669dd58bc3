package discord

import (
	"errors"
	"fmt"
	"strings"

	"sillydream/internal/domain"
)

// DiscordMessageLimit は、Discordのメッセージ文字数制限です
const DiscordMessageLimit = 2000

// 履歴一覧に表示する最大件数
const historyDisplayLimit = 10

// ResponseHandler は、Discordへ返すメッセージのフォーマットを担当するハンドラーです
type ResponseHandler struct{}

// NewResponseHandler は新しいResponseHandlerインスタンスを作成します
func NewResponseHandler() *ResponseHandler {
	return &ResponseHandler{}
}

// formatResults は、バッチの結果を1メッセージにまとめます
func (h *ResponseHandler) formatResults(results []domain.GenerationResult, batchErr error) string {
	var b strings.Builder

	success := 0
	for _, r := range results {
		if r.State == domain.ResultStateSuccess {
			success++
		}
	}

	if batchErr != nil {
		fmt.Fprintf(&b, "❌ **%s**\n\n", batchErr.Error())
	} else {
		fmt.Fprintf(&b, "🎨 **生成完了** (%d/%d 成功)\n\n", success, len(results))
	}

	for _, r := range results {
		switch r.State {
		case domain.ResultStateSuccess:
			line := fmt.Sprintf("✅ #%d", r.Index+1)
			if r.ModelUsed != "" {
				line += fmt.Sprintf(" (%s)", r.ModelUsed)
			}
			b.WriteString(line + "\n")
		case domain.ResultStateError:
			fmt.Fprintf(&b, "❌ #%d: %s\n", r.Index+1, r.ErrorMessage)
		default:
			fmt.Fprintf(&b, "⏳ #%d: %s\n", r.Index+1, r.State)
		}
	}

	if success < len(results) {
		b.WriteString("\n失敗したスロットは `/retry index:<番号>` で再試行できます。")
	}

	return h.truncate(b.String())
}

// formatModels は、モデル一覧と選択状態をフォーマットします
func (h *ResponseHandler) formatModels(models []domain.ModelDescriptor, state domain.DetectionState, selection domain.ModelSelection, modelUsed string) string {
	var b strings.Builder
	b.WriteString("🤖 **画像生成モデル**\n")

	switch state {
	case domain.DetectionStateIdle:
		b.WriteString("モデルはまだ取得されていません。`/set-key` でAPIキーを設定してください。\n")
	case domain.DetectionStateLoading:
		b.WriteString("モデル一覧を取得中です…\n")
	case domain.DetectionStateError:
		b.WriteString("モデル一覧を取得できませんでした。APIキーを確認してください。\n")
	}

	for _, m := range models {
		marker := "・"
		if !selection.AutoMode && selection.SelectedModel == m.ID {
			marker = "▶"
		}
		speed := ""
		if m.IsFlash {
			speed = " ⚡"
		}
		fmt.Fprintf(&b, "%s `%s`%s\n", marker, m.ID, speed)
	}

	if selection.AutoMode {
		b.WriteString("\n選択: **自動**")
	} else {
		fmt.Fprintf(&b, "\n選択: **%s**", selection.SelectedModel)
	}
	if modelUsed != "" {
		fmt.Fprintf(&b, "\n直近の使用モデル: `%s`", modelUsed)
	}

	return h.truncate(b.String())
}

// formatHistory は、新しい順の履歴を一覧にします
func (h *ResponseHandler) formatHistory(entries []domain.HistoryEntry) string {
	if len(entries) == 0 {
		return "📭 履歴はありません。"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🗂️ **生成履歴** (全 %d 件)\n\n", len(entries))

	for i, e := range entries {
		if i >= historyDisplayLimit {
			fmt.Fprintf(&b, "…ほか %d 件", len(entries)-historyDisplayLimit)
			break
		}
		prompt := []rune(e.Prompt)
		if len(prompt) > 40 {
			prompt = append(prompt[:40], []rune("…")...)
		}
		fmt.Fprintf(&b, "%d. %s | %s | 結果 %d 枚",
			i+1, e.CreatedAt.Format("2006/01/02 15:04"), string(prompt), len(e.ResultImageReferences))
		if e.ModelUsed != "" {
			fmt.Fprintf(&b, " | `%s`", e.ModelUsed)
		}
		b.WriteString("\n")
	}

	return h.truncate(b.String())
}

// formatError は、エラーを利用者向けのメッセージにフォーマットします
func (h *ResponseHandler) formatError(err error) string {
	switch {
	case h.isTimeoutError(err):
		return "⏰ **タイムアウトしました**\n\n処理に時間がかかりすぎました。しばらく待ってから再度お試しください。"
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrValidation):
		return fmt.Sprintf("⚠️ **入力を確認してください**\n%s", err.Error())
	case errors.Is(err, domain.ErrSlotOutOfRange), errors.Is(err, domain.ErrSlotNotRetryable):
		return fmt.Sprintf("⚠️ %s", err.Error())
	default:
		return fmt.Sprintf("❌ **エラーが発生しました**\n%s", err.Error())
	}
}

// isTimeoutError は、タイムアウトに起因するエラーかを判定します
func (h *ResponseHandler) isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	errorMsg := strings.ToLower(err.Error())
	for _, keyword := range []string{"timeout", "タイムアウト", "deadline exceeded"} {
		if strings.Contains(errorMsg, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// truncate は、メッセージをDiscordの文字数制限に収めます
func (h *ResponseHandler) truncate(message string) string {
	runes := []rune(message)
	if len(runes) <= DiscordMessageLimit {
		return message
	}
	return string(runes[:DiscordMessageLimit-1]) + "…"
}
