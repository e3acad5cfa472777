package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/reginald/internal/metrics"
	"github.com/hitoshi/reginald/internal/model"
	"github.com/hitoshi/reginald/internal/security"
)

// 処理結果（メトリクスのoutcomeラベル）
const (
	outcomeOK          = "ok"
	outcomeRejected    = "rejected"
	outcomeError       = "error"
	outcomePanic       = "panic"
	outcomeRateLimited = "rate_limited"
	outcomeUnknown     = "unknown"
)

const genericFailure = "Something went wrong on my end. Sorry!"

// Catalog はカタログAPIのうちフローが使う操作。
type Catalog interface {
	GetSectionBySectionNumber(ctx context.Context, course model.Course, sectionNumber, term int) (*model.Section, error)
	FetchSectionByClassNumber(ctx context.Context, classNumber, term int) (*model.CourseSection, error)
	GetCourseDescription(ctx context.Context, course model.Course, term int) (string, bool, error)
}

// Enrollments は履修登録の操作。
type Enrollments interface {
	HasEnrollments(ctx context.Context, studentID int64, term int) (bool, error)
	CountEnrollments(ctx context.Context, studentID int64, term int) (int, error)
	GetEnrollments(ctx context.Context, studentID int64, term int) ([]model.CourseSection, error)
	ListEnrollments(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error)
	AddEnrollment(ctx context.Context, studentID int64, term int, course model.Course, section int) (*model.Enrollment, error)
	RemoveEnrollment(ctx context.Context, studentID int64, term int, course model.Course, section int) error
	ClearEnrollment(ctx context.Context, studentID int64, term int) error
	EnsureUser(ctx context.Context, userID int64, username string) error
	SetNotifyPeers(ctx context.Context, userID int64, notify bool) error
	PeerInfo(ctx context.Context, studentID int64, term int) (*model.PeerInfo, error)
}

// Notifier は新しい登録のピア通知を送る。
type Notifier interface {
	Notify(ctx context.Context, e *model.Enrollment, redundant bool) error
}

// ScheduleRenderer はスケジュール画像をファイルに書き出す。
type ScheduleRenderer interface {
	RenderFile(dir string, userID int64, termCode int, classes []model.CourseSection) (string, error)
}

// Config はControllerの設定を保持する。
type Config struct {
	DefaultTerm      string        // term未指定時の学期名
	DisplayTTL       time.Duration // スケジュール表示の有効期間
	ProgressInterval time.Duration // 一括登録の進捗更新間隔
	AssetsDir        string        // 描画した画像の出力先
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		DefaultTerm:      "Winter 2023",
		DisplayTTL:       14 * time.Minute,
		ProgressInterval: 250 * time.Millisecond,
		AssetsDir:        "assets",
	}
}

// Deps はControllerが依存するコンポーネント。
type Deps struct {
	Catalog     Catalog
	Enrollments Enrollments
	Notifier    Notifier
	Renderer    ScheduleRenderer
	Messenger   DirectMessenger
	RateLimiter *RateLimiter // nilの場合は制限しない
	Logger      *slog.Logger
	Metrics     metrics.MetricsCollector
}

// Controller はインタラクションのディスパッチとフローを担う。
type Controller struct {
	cfg       Config
	catalog   Catalog
	store     Enrollments
	notifier  Notifier
	renderer  ScheduleRenderer
	messenger DirectMessenger
	limiter   *RateLimiter
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	displays  *Registry

	commands   map[string]*Command
	order      []string
	components map[string]Handler

	// バックグラウンドタスク（表示の期限切れ、一括登録）
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// NewController はControllerの新しいインスタンスを生成し、コマンドとコンポーネントを登録する。
func NewController(deps Deps, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.DefaultTerm == "" {
		cfg.DefaultTerm = def.DefaultTerm
	}
	if cfg.DisplayTTL <= 0 {
		cfg.DisplayTTL = def.DisplayTTL
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}
	if cfg.AssetsDir == "" {
		cfg.AssetsDir = def.AssetsDir
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NopCollector{}
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:        cfg,
		catalog:    deps.Catalog,
		store:      deps.Enrollments,
		notifier:   deps.Notifier,
		renderer:   deps.Renderer,
		messenger:  deps.Messenger,
		limiter:    deps.RateLimiter,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		displays:   NewRegistry(deps.Metrics),
		commands:   make(map[string]*Command),
		components: make(map[string]Handler),
		bgCtx:      bgCtx,
		bgCancel:   cancel,
	}
	c.registerSchedule()
	c.registerBulk()
	c.registerLookup()
	return c
}

// Commands は登録済みのコマンドを登録順に返す。
func (c *Controller) Commands() []*Command {
	out := make([]*Command, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.commands[name])
	}
	return out
}

// Displays は開いているスケジュール表示の登録簿を返す。
func (c *Controller) Displays() *Registry {
	return c.displays
}

// Shutdown はバックグラウンドタスクを止め、終了を待つ。
func (c *Controller) Shutdown(ctx context.Context) error {
	c.bgCancel()
	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) addCommand(cmd *Command) {
	c.commands[cmd.Name] = cmd
	c.order = append(c.order, cmd.Name)
}

func (c *Controller) addComponent(tag string, h Handler) {
	c.components[tag] = h
}

// goBackground はControllerの寿命に紐づくゴルーチンを起動する。
func (c *Controller) goBackground(fn func(ctx context.Context)) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn(c.bgCtx)
	}()
}

// Dispatch は1件のインタラクションを処理する。
// ハンドラのエラーとpanicはここで捕捉し、ユーザーへの応答に変換する。
func (c *Controller) Dispatch(ctx context.Context, req *Request, r Responder) {
	start := time.Now()
	name := c.handlerName(req)
	outcome := c.dispatch(ctx, req, r)

	c.metrics.RecordInteraction(name, outcome)

	level := slog.LevelInfo
	if outcome == outcomeError || outcome == outcomePanic {
		level = slog.LevelError
	} else if outcome == outcomeUnknown {
		level = slog.LevelDebug
	}
	c.logger.Log(ctx, level, "interaction",
		slog.String("kind", req.Kind.String()),
		slog.String("name", name),
		slog.Int64("user_id", req.UserID),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
	)
}

func (c *Controller) handlerName(req *Request) string {
	if req.Kind == KindCommand {
		return req.Name
	}
	return req.Tag()
}

func (c *Controller) dispatch(ctx context.Context, req *Request, r Responder) (outcome string) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("panic recovered",
				slog.Any("panic", rec),
				slog.String("name", c.handlerName(req)),
				slog.String("stack", string(debug.Stack())),
			)
			c.reportFailure(ctx, r, fmt.Errorf("panic: %v", rec))
			outcome = outcomePanic
		}
	}()

	var handler Handler
	var check func(ctx context.Context, req *Request) error
	if req.Kind == KindCommand {
		cmd, ok := c.commands[req.Name]
		if !ok {
			return outcomeUnknown
		}
		handler, check = cmd.Run, cmd.Check
	} else {
		h, ok := c.components[req.Tag()]
		if !ok {
			return outcomeUnknown
		}
		handler = h
	}

	if c.limiter != nil && !c.limiter.Allow(req.UserID) {
		c.logger.Warn("rate limit exceeded", slog.Int64("user_id", req.UserID))
		c.reply(ctx, r, Response{Content: model.NewRateLimitedError().Message, Ephemeral: true})
		return outcomeRateLimited
	}

	if check != nil {
		if err := check(ctx, req); err != nil {
			return c.handleError(ctx, req, r, err)
		}
	}
	if err := handler(ctx, req, r); err != nil {
		return c.handleError(ctx, req, r, err)
	}
	return outcomeOK
}

func (c *Controller) handleError(ctx context.Context, req *Request, r Responder, err error) string {
	if ue, ok := model.AsUserError(err); ok {
		c.reply(ctx, r, Response{Content: userMessage(ue), Ephemeral: true})
		return outcomeRejected
	}
	c.logger.Error("インタラクションの処理に失敗しました",
		slog.String("name", c.handlerName(req)),
		slog.Int64("user_id", req.UserID),
		slog.String("error", err.Error()),
	)
	c.reportFailure(ctx, r, err)
	return outcomeError
}

// reportFailure は予期しないエラーをユーザーに伝える。
// 応答済みのインタラクションにはフォローアップで送る。
func (c *Controller) reportFailure(ctx context.Context, r Responder, err error) {
	c.reply(ctx, r, Response{
		Content:   fmt.Sprintf("%s\n```%s```", genericFailure, security.EscapeMarkdown(err.Error())),
		Ephemeral: true,
	})
}

// reply は初回応答を試み、失敗した場合はフォローアップで送る。
func (c *Controller) reply(ctx context.Context, r Responder, resp Response) {
	if err := r.Reply(ctx, resp); err == nil {
		return
	}
	if err := r.FollowUp(ctx, resp); err != nil {
		c.logger.Error("応答の送信に失敗しました", slog.String("error", err.Error()))
	}
}

// userMessage はUserErrorを表示用の文言にする。
func userMessage(ue *model.UserError) string {
	if strings.HasPrefix(ue.Message, ":") {
		return ue.Message
	}
	return ":x: " + ue.Message
}

// resolveTerm は学期名を解決する。空の場合は既定の学期を使う。
func (c *Controller) resolveTerm(name string) (model.Term, error) {
	if name == "" {
		name = c.cfg.DefaultTerm
	}
	term, ok := model.LookupTerm(name)
	if !ok {
		return model.Term{}, model.NewUnknownTermError(name)
	}
	return term, nil
}

// optionTerm はコマンドのtermオプションを解決する。
func (c *Controller) optionTerm(req *Request) (model.Term, error) {
	name, _ := req.Option("term")
	return c.resolveTerm(name)
}

// paramTerm はカスタムIDの1番目のパラメータを学期として解決する。
func (c *Controller) paramTerm(req *Request) (model.Term, error) {
	params := req.Params()
	if len(params) == 0 || params[0] == "" {
		return model.Term{}, model.NewUnknownTermError("")
	}
	term, ok := model.LookupTerm(params[0])
	if !ok {
		return model.Term{}, model.NewUnknownTermError(params[0])
	}
	return term, nil
}

func termChoices() []string {
	out := make([]string, len(model.Terms))
	for i, t := range model.Terms {
		out[i] = t.Name
	}
	return out
}
