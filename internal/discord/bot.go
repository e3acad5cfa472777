package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/reginald/internal/interaction"
)

// interactionTimeout はインタラクションのトークンの有効期間。
const interactionTimeout = 15 * time.Minute

// Dispatcher はインタラクションを処理する。
type Dispatcher interface {
	Dispatch(ctx context.Context, req *interaction.Request, r interaction.Responder)
	Commands() []*interaction.Command
}

// Bot はDiscordのゲートウェイ接続とインタラクションの受け口。
type Bot struct {
	session    *discordgo.Session
	dispatcher Dispatcher
	guildID    string
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBot は新しいBotを生成する。guildIDが空の場合はコマンドをグローバルに登録する。
func NewBot(session *discordgo.Session, dispatcher Dispatcher, guildID string, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		session:    session,
		dispatcher: dispatcher,
		guildID:    guildID,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// NewSession はBotトークンからセッションを生成する。
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("Discordセッションの生成に失敗しました: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages
	return s, nil
}

// Start はゲートウェイに接続し、コマンドを登録する。
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.onInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("Discordに接続しました", slog.String("user", r.User.Username))
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("Discordへの接続に失敗しました: %w", err)
	}
	if err := registerCommands(ctx, b.session, b.session.State.User.ID, b.guildID, b.dispatcher.Commands()); err != nil {
		b.session.Close()
		return err
	}
	return nil
}

// Close はゲートウェイから切断し、処理中のインタラクションを打ち切って終了を待つ。
func (b *Bot) Close() error {
	err := b.session.Close()
	b.cancel()
	b.wg.Wait()
	return err
}

func (b *Bot) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	b.handle(s, ic.Interaction)
}

func (b *Bot) handle(s Session, i *discordgo.Interaction) {
	req, ok := toRequest(i)
	if !ok {
		b.logger.Debug("未対応のインタラクションを無視しました", slog.Int("type", int(i.Type)))
		return
	}

	b.wg.Add(1)
	defer b.wg.Done()
	ctx, cancel := context.WithTimeout(b.ctx, interactionTimeout)
	defer cancel()
	b.dispatcher.Dispatch(ctx, req, newResponder(s, i))
}

// registerCommands はコマンド定義を一括で上書き登録する。
func registerCommands(ctx context.Context, s Session, appID, guildID string, cmds []*interaction.Command) error {
	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, toCommands(cmds), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("コマンドの登録に失敗しました: %w", err)
	}
	return nil
}
