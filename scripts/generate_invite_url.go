package main

import (
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
)

// 生成画像の投稿に必要な権限
var requiredPermissions = []struct {
	name  string
	value int64
}{
	{"View Channels", discordgo.PermissionViewChannel},
	{"Send Messages", discordgo.PermissionSendMessages},
	{"Attach Files", discordgo.PermissionAttachFiles},
	{"Use Application Commands", discordgo.PermissionUseSlashCommands},
}

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("警告: .envファイルの読み込みに失敗しました: %v", err)
	}

	botToken := os.Getenv("DISCORD_BOT_TOKEN")
	if botToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN が設定されていません")
	}

	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		log.Fatalf("Discordセッションの作成に失敗: %v", err)
	}
	defer session.Close()

	user, err := session.User("@me")
	if err != nil {
		log.Fatalf("Bot情報の取得に失敗: %v", err)
	}

	var permissions int64
	for _, p := range requiredPermissions {
		permissions |= p.value
	}

	query := url.Values{}
	query.Set("client_id", user.ID)
	query.Set("permissions", fmt.Sprint(permissions))
	query.Set("scope", "bot applications.commands")

	fmt.Printf("🤖 Bot: %s (ID: %s)\n\n", user.Username, user.ID)
	fmt.Printf("🔗 Bot招待URL:\n   https://discord.com/oauth2/authorize?%s\n\n", query.Encode())

	fmt.Printf("📋 必要な権限:\n")
	for _, p := range requiredPermissions {
		fmt.Printf("   - %s (%d)\n", p.name, p.value)
	}
	fmt.Printf("   - 合計: %d\n\n", permissions)

	fmt.Printf("🎯 使い方:\n")
	fmt.Printf("   1. 管理者が /set-key でAPIキーを設定\n")
	fmt.Printf("   2. /models でモデルを確認・選択 (既定は自動)\n")
	fmt.Printf("   3. /generate に参考画像とプロンプトを指定して生成\n")
	fmt.Printf("   4. 失敗したスロットは /retry で再試行、/history で履歴を確認\n")
}
