package discord

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/reginald/internal/interaction"
)

// Messenger はユーザーにダイレクトメッセージを送る。
type Messenger struct {
	session Session
}

var _ interaction.DirectMessenger = (*Messenger)(nil)

// NewMessenger は新しいMessengerを生成する。
func NewMessenger(s Session) *Messenger {
	return &Messenger{session: s}
}

// SendDirectMessage はテキストのみのDMを送る。
func (m *Messenger) SendDirectMessage(ctx context.Context, userID int64, content string) error {
	return m.SendDirectFiles(ctx, userID, content, nil)
}

// SendDirectFiles はファイルを添付したDMを送る。
func (m *Messenger) SendDirectFiles(ctx context.Context, userID int64, content string, files []interaction.File) error {
	ch, err := m.session.UserChannelCreate(strconv.FormatInt(userID, 10), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("DMチャンネルの作成に失敗しました: %w", err)
	}

	attachments, closeFiles, err := openFiles(files)
	if err != nil {
		return err
	}
	defer closeFiles()

	if _, err := m.session.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content: content,
		Files:   attachments,
	}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("DMの送信に失敗しました: %w", err)
	}
	return nil
}
