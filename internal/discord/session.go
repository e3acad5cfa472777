package discord

import (
	"fmt"
	"os"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/reginald/internal/interaction"
)

// Session はアダプタが使うdiscordgo.Sessionの操作。
type Session interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

var _ Session = (*discordgo.Session)(nil)

// openFiles は添付ファイルを開く。戻り値のcloseで全て閉じる。
func openFiles(files []interaction.File) ([]*discordgo.File, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	out := make([]*discordgo.File, 0, len(files))
	for _, f := range files {
		fh, err := os.Open(f.Path)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("添付ファイルを開けません: %w", err)
		}
		opened = append(opened, fh)
		out = append(out, &discordgo.File{Name: f.Name, ContentType: "image/png", Reader: fh})
	}
	return out, closeAll, nil
}
