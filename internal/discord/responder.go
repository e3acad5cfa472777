package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/reginald/internal/interaction"
)

// responder は1件のインタラクションに応答する。
type responder struct {
	session     Session
	interaction *discordgo.Interaction
}

var _ interaction.Responder = (*responder)(nil)

func newResponder(s Session, i *discordgo.Interaction) *responder {
	return &responder{session: s, interaction: i}
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (r *responder) respond(ctx context.Context, typ discordgo.InteractionResponseType, resp interaction.Response) error {
	files, closeFiles, err := openFiles(resp.Files)
	if err != nil {
		return err
	}
	defer closeFiles()

	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: typ,
		Data: &discordgo.InteractionResponseData{
			Content:    resp.Content,
			Embeds:     toEmbeds(resp.Embeds),
			Components: toComponents(resp.Components),
			Files:      files,
			Flags:      flags(resp.Ephemeral),
		},
	}, discordgo.WithContext(ctx))
}

func (r *responder) Reply(ctx context.Context, resp interaction.Response) error {
	return r.respond(ctx, discordgo.InteractionResponseChannelMessageWithSource, resp)
}

func (r *responder) Update(ctx context.Context, resp interaction.Response) error {
	return r.respond(ctx, discordgo.InteractionResponseUpdateMessage, resp)
}

func (r *responder) Defer(ctx context.Context, ephemeral bool) error {
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	}, discordgo.WithContext(ctx))
}

// Edit は最初の応答を全フィールドで置き換える。以前の添付ファイルは外す。
func (r *responder) Edit(ctx context.Context, resp interaction.Response) error {
	files, closeFiles, err := openFiles(resp.Files)
	if err != nil {
		return err
	}
	defer closeFiles()

	content := resp.Content
	embeds := toEmbeds(resp.Embeds)
	components := toComponents(resp.Components)
	attachments := []*discordgo.MessageAttachment{}
	_, err = r.session.InteractionResponseEdit(r.interaction, &discordgo.WebhookEdit{
		Content:     &content,
		Embeds:      &embeds,
		Components:  &components,
		Files:       files,
		Attachments: &attachments,
	}, discordgo.WithContext(ctx))
	return err
}

func (r *responder) FollowUp(ctx context.Context, resp interaction.Response) error {
	files, closeFiles, err := openFiles(resp.Files)
	if err != nil {
		return err
	}
	defer closeFiles()

	_, err = r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content:    resp.Content,
		Embeds:     toEmbeds(resp.Embeds),
		Components: toComponents(resp.Components),
		Files:      files,
		Flags:      flags(resp.Ephemeral),
	}, discordgo.WithContext(ctx))
	return err
}

func (r *responder) ShowModal(ctx context.Context, modal interaction.Modal) error {
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: toModal(modal),
	}, discordgo.WithContext(ctx))
}
