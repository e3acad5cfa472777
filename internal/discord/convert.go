package discord

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/reginald/internal/interaction"
)

// toRequest はDiscordのインタラクションをRequestに変換する。
// 対応しない種別の場合はfalseを返す。
func toRequest(i *discordgo.Interaction) (*interaction.Request, bool) {
	user := interactionUser(i)
	if user == nil {
		return nil, false
	}
	userID, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return nil, false
	}
	req := &interaction.Request{
		UserID:   userID,
		Username: displayName(i.Member, user),
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		req.Kind = interaction.KindCommand
		req.Name = data.Name
		req.Options = make(map[string]string, len(data.Options))
		for _, opt := range data.Options {
			req.Options[opt.Name] = optionString(opt)
		}
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		req.Name = data.CustomID
		req.Kind = interaction.KindButton
		if data.ComponentType == discordgo.SelectMenuComponent {
			req.Kind = interaction.KindSelect
			req.Values = data.Values
		}
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		req.Kind = interaction.KindModalSubmit
		req.Name = data.CustomID
		req.Fields = modalFields(data.Components)
	default:
		return nil, false
	}
	return req, true
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// displayName はサーバー内のニックネーム、グローバル表示名、ユーザー名の順に使う。
func displayName(m *discordgo.Member, u *discordgo.User) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func optionString(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	switch v := opt.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func modalFields(components []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	var walk func([]discordgo.MessageComponent)
	walk = func(cs []discordgo.MessageComponent) {
		for _, c := range cs {
			switch v := c.(type) {
			case *discordgo.ActionsRow:
				walk(v.Components)
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.TextInput:
				fields[v.CustomID] = v.Value
			case discordgo.TextInput:
				fields[v.CustomID] = v.Value
			}
		}
	}
	walk(components)
	return fields
}

// --- 送信側の変換 ---

var buttonStyles = map[interaction.ButtonStyle]discordgo.ButtonStyle{
	interaction.ButtonPrimary:   discordgo.PrimaryButton,
	interaction.ButtonSecondary: discordgo.SecondaryButton,
	interaction.ButtonSuccess:   discordgo.SuccessButton,
	interaction.ButtonDanger:    discordgo.DangerButton,
}

func toComponents(rows []interaction.ActionRow) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		var cs []discordgo.MessageComponent
		if row.Select != nil {
			options := make([]discordgo.SelectMenuOption, len(row.Select.Options))
			for i, o := range row.Select.Options {
				options[i] = discordgo.SelectMenuOption{Label: o.Label, Description: o.Description, Value: o.Value}
			}
			cs = append(cs, discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    row.Select.CustomID,
				Placeholder: row.Select.Placeholder,
				Options:     options,
			})
		}
		for _, b := range row.Buttons {
			btn := discordgo.Button{
				CustomID: b.CustomID,
				Label:    b.Label,
				Style:    buttonStyles[b.Style],
				Disabled: b.Disabled,
			}
			if btn.Style == 0 {
				btn.Style = discordgo.SecondaryButton
			}
			if b.Emoji != "" {
				btn.Emoji = &discordgo.ComponentEmoji{Name: b.Emoji}
			}
			cs = append(cs, btn)
		}
		out = append(out, discordgo.ActionsRow{Components: cs})
	}
	return out
}

func toEmbeds(embeds []interaction.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, len(embeds))
	for i, e := range embeds {
		me := &discordgo.MessageEmbed{Title: e.Title, Description: e.Description}
		if e.Author != nil {
			me.Author = &discordgo.MessageEmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
		}
		if e.Image != "" {
			me.Image = &discordgo.MessageEmbedImage{URL: e.Image}
		}
		for _, f := range e.Fields {
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out[i] = me
	}
	return out
}

func toModal(m interaction.Modal) *discordgo.InteractionResponseData {
	rows := make([]discordgo.MessageComponent, len(m.Inputs))
	for i, in := range m.Inputs {
		rows[i] = discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    in.CustomID,
				Label:       in.Label,
				Style:       discordgo.TextInputShort,
				Placeholder: in.Placeholder,
				Required:    in.Required,
			},
		}}
	}
	return &discordgo.InteractionResponseData{CustomID: m.CustomID, Title: m.Title, Components: rows}
}

var optionTypes = map[interaction.OptionType]discordgo.ApplicationCommandOptionType{
	interaction.OptionString:  discordgo.ApplicationCommandOptionString,
	interaction.OptionInteger: discordgo.ApplicationCommandOptionInteger,
	interaction.OptionBoolean: discordgo.ApplicationCommandOptionBoolean,
	interaction.OptionUser:    discordgo.ApplicationCommandOptionUser,
}

// toCommands はコマンド定義をDiscordの登録形式に変換する。
func toCommands(cmds []*interaction.Command) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, len(cmds))
	for i, cmd := range cmds {
		ac := &discordgo.ApplicationCommand{Name: cmd.Name, Description: cmd.Description}
		for _, o := range cmd.Options {
			opt := &discordgo.ApplicationCommandOption{
				Type:        optionTypes[o.Type],
				Name:        o.Name,
				Description: o.Description,
				Required:    o.Required,
			}
			for _, c := range o.Choices {
				opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c, Value: c})
			}
			ac.Options = append(ac.Options, opt)
		}
		out[i] = ac
	}
	return out
}
