// Package peer は新しい履修登録に対するピア通知の生成と配信を提供する。
// 同じコースの学生への通知は受信者ごとに最も優先度の高い1件にまとめる。
package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/reginald/internal/metrics"
	"github.com/hitoshi/reginald/internal/model"
)

// 関係の優先度。値が大きいほど優先される。
const (
	PriorityAlumnus     = 1
	PriorityCoursemate  = 2
	PrioritySectionmate = 3
)

// defaultMaxConcurrency は配信の最大並列数。
const defaultMaxConcurrency = 10

// ignoredSection は通知を生成しない (コース, セクション) の組。
type ignoredSection struct {
	course  string
	section int
}

// 受講者の多い導入科目の講義セクション
var ignoredSections = []ignoredSection{
	{course: "UARTS 150", section: 1},
	{course: "ENGR 100", section: 210},
}

// Ignored は登録が通知対象外の組かを返す。
func Ignored(e *model.Enrollment) bool {
	for _, ig := range ignoredSections {
		if ig.course == e.CourseCode && ig.section == e.Section {
			return true
		}
	}
	return false
}

// Notification は1人の受信者に送るダイレクトメッセージ。
type Notification struct {
	RecipientID int64
	Message     string
	Priority    int
}

// PeerSource は通知を受け取る設定の他の学生の登録を返す。
type PeerSource interface {
	ListNotifiablePeers(ctx context.Context, e *model.Enrollment) ([]model.Enrollment, error)
}

// Sender はユーザーにダイレクトメッセージを送る。
type Sender interface {
	SendDirectMessage(ctx context.Context, userID int64, content string) error
}

// BuildNotifications はピアの登録から受信者ごとの通知を生成する。
// redundantの場合、セクションメイト以外への通知は生成せず、冒頭の告知行も省く。
// 結果は受信者IDの昇順。
func BuildNotifications(e *model.Enrollment, peers []model.Enrollment, redundant bool) []Notification {
	if Ignored(e) {
		return nil
	}

	best := map[int64]Notification{}
	for _, p := range peers {
		if p.StudentID == e.StudentID || p.CourseCode != e.CourseCode || p.Term < e.Term {
			continue
		}
		n, ok := candidate(e, p, redundant)
		if !ok {
			continue
		}
		if cur, exists := best[n.RecipientID]; !exists || n.Priority > cur.Priority {
			best[n.RecipientID] = n
		}
	}

	out := make([]Notification, 0, len(best))
	for _, n := range best {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out
}

func candidate(e *model.Enrollment, p model.Enrollment, redundant bool) (Notification, bool) {
	sameTerm := p.Term == e.Term
	priority := PriorityAlumnus
	if sameTerm {
		priority = PriorityCoursemate
		if p.Section == e.Section {
			priority = PrioritySectionmate
		}
	}
	if redundant && priority < PrioritySectionmate {
		return Notification{}, false
	}

	mention := fmt.Sprintf("<@%d>", e.StudentID)
	var lines []string
	if sameTerm {
		if !redundant {
			lines = append(lines, fmt.Sprintf("You have a new classmate in %s.", p.CourseCode))
		}
		lines = append(lines, fmt.Sprintf("%s is taking %s in %s along with you.",
			mention, e.CourseCode, model.TermName(e.Term)))
		if priority == PrioritySectionmate {
			lines = append(lines, fmt.Sprintf("They are also in section %s!", model.ZeroPad(e.Section)))
		}
	} else {
		lines = append(lines, fmt.Sprintf("You have a new alumnus in %s.", p.CourseCode))
		term := model.TermName(e.Term)
		if term == model.UnknownTermName {
			term = "an unknown term"
		}
		lines = append(lines, fmt.Sprintf("%s took %s in %s.", mention, e.CourseCode, term))
	}

	return Notification{
		RecipientID: p.StudentID,
		Message:     strings.Join(lines, "\n"),
		Priority:    priority,
	}, true
}

// Engine はピア通知の検索と配信を行う。
type Engine struct {
	peers          PeerSource
	sender         Sender
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	maxConcurrency int
}

// NewEngine はEngineの新しいインスタンスを生成する。
func NewEngine(peers PeerSource, sender Sender, logger *slog.Logger, collector metrics.MetricsCollector) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Engine{
		peers:          peers,
		sender:         sender,
		logger:         logger,
		metrics:        collector,
		maxConcurrency: defaultMaxConcurrency,
	}
}

// Notifications は新しい登録に対して送るべき通知を返す。
func (en *Engine) Notifications(ctx context.Context, e *model.Enrollment, redundant bool) ([]Notification, error) {
	if Ignored(e) {
		return nil, nil
	}
	peers, err := en.peers.ListNotifiablePeers(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("ピアの取得に失敗しました: %w", err)
	}
	return BuildNotifications(e, peers, redundant), nil
}

// Notify は新しい登録の通知を生成して配信する。
// 配信の失敗は個別にログに記録し、呼び出し側には返さない。
func (en *Engine) Notify(ctx context.Context, e *model.Enrollment, redundant bool) error {
	notifications, err := en.Notifications(ctx, e, redundant)
	if err != nil {
		return err
	}
	en.Deliver(ctx, notifications)
	return nil
}

// Deliver は通知を並列に配信し、すべての送信が終わるまで待つ。
// 1件の失敗は他の受信者への配信を妨げない。
func (en *Engine) Deliver(ctx context.Context, notifications []Notification) {
	if len(notifications) == 0 {
		return
	}
	start := time.Now()

	sem := make(chan struct{}, en.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, n := range notifications {
		wg.Add(1)
		sem <- struct{}{}

		go func(n Notification) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := en.sender.SendDirectMessage(ctx, n.RecipientID, n.Message); err != nil {
				en.logger.Error("ピア通知の送信に失敗しました",
					slog.Int64("user_id", n.RecipientID),
					slog.String("message", n.Message),
					slog.String("error", err.Error()),
				)
				en.metrics.RecordPeerNotification(false)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			en.logger.Info("ピア通知を送信しました",
				slog.Int64("user_id", n.RecipientID),
				slog.Int("priority", n.Priority),
			)
			en.metrics.RecordPeerNotification(true)
		}(n)
	}

	wg.Wait()

	en.logger.Info("ピア通知の配信が完了しました",
		slog.Int("total", len(notifications)),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}
