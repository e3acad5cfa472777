package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/reginald/internal/model"
	"github.com/hitoshi/reginald/internal/security"
)

const minBulkClasses = 2

// itemState は一括登録の各クラス番号の解決状態。
type itemState int

const (
	itemPending itemState = iota
	itemSucceeded
	itemFailed
)

type bulkItem struct {
	classNumber int
	state       itemState
	detail      string // 成功時はセクション表記、失敗時は理由
}

func (it bulkItem) line() string {
	switch it.state {
	case itemSucceeded:
		return fmt.Sprintf("`%d` :green_circle: %s", it.classNumber, it.detail)
	case itemFailed:
		return fmt.Sprintf("`%d` :red_circle: Failed: %s", it.classNumber, it.detail)
	default:
		return fmt.Sprintf("`%d` :hourglass:", it.classNumber)
	}
}

// bulkProgress は並行に解決される項目の状態を保持する。
// snapshotは常に全項目の一貫した写しを返す。
type bulkProgress struct {
	mu    sync.Mutex
	items []bulkItem
}

func newBulkProgress(numbers []int) *bulkProgress {
	items := make([]bulkItem, len(numbers))
	for i, n := range numbers {
		items[i] = bulkItem{classNumber: n}
	}
	return &bulkProgress{items: items}
}

func (p *bulkProgress) resolve(i int, state itemState, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[i].state = state
	p.items[i].detail = detail
}

func (p *bulkProgress) snapshot() []bulkItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bulkItem, len(p.items))
	copy(out, p.items)
	return out
}

func progressBody(items []bulkItem) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = it.line()
	}
	return strings.Join(lines, "\n")
}

func (c *Controller) registerBulk() {
	c.addCommand(&Command{
		Name:        "schedule-set-classes",
		Description: "Set your entire schedule for a term using class numbers",
		Options: []OptionSpec{
			{
				Name:        "class-numbers",
				Description: "The class numbers of the sections in your schedule, separated by spaces",
				Type:        OptionString,
				Required:    true,
			},
			termOption("The academic term of the schedule to set. Current default: " + c.cfg.DefaultTerm),
		},
		Check: c.checkBulk,
		Run:   c.runBulk,
	})
}

// parseClassNumbers は空白区切りのクラス番号を検証して返す。
func parseClassNumbers(raw string) ([]int, error) {
	tokens := strings.Fields(raw)
	if len(tokens) < minBulkClasses {
		return nil, model.NewTooFewClassesError(minBulkClasses, len(tokens))
	}
	if len(tokens) > maxClasses {
		return nil, model.NewTooManyClassesError(maxClasses, len(tokens))
	}
	numbers := make([]int, len(tokens))
	for i, tok := range tokens {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, model.NewInvalidIntegerError(security.EscapeMarkdown(tok))
		}
		numbers[i] = n
	}
	return numbers, nil
}

// uniqueSorted は重複を除いて昇順に並べる。
func uniqueSorted(numbers []int) []int {
	seen := make(map[int]bool, len(numbers))
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func (c *Controller) checkBulk(ctx context.Context, req *Request) error {
	if _, err := c.optionTerm(req); err != nil {
		return err
	}
	raw, _ := req.Option("class-numbers")
	_, err := parseClassNumbers(raw)
	return err
}

// runBulk は学期の登録をすべて置き換える。
// 各クラス番号は並行に解決し、解決が終わるまで一定間隔で進捗を同じ返信に反映する。
func (c *Controller) runBulk(ctx context.Context, req *Request, r Responder) error {
	term, err := c.optionTerm(req)
	if err != nil {
		return err
	}
	raw, _ := req.Option("class-numbers")
	parsed, err := parseClassNumbers(raw)
	if err != nil {
		return err
	}
	numbers := uniqueSorted(parsed)

	if err := r.Reply(ctx, Response{Content: "Resolving classes...", Ephemeral: true}); err != nil {
		return err
	}

	if err := c.store.EnsureUser(ctx, req.UserID, req.Username); err != nil {
		return err
	}
	if err := c.store.ClearEnrollment(ctx, req.UserID, term.Code); err != nil {
		return err
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := newBulkProgress(numbers)
	added := make([]*model.Enrollment, len(numbers))
	var wg sync.WaitGroup
	for i, n := range numbers {
		i, n := i, n
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, label, err := c.resolveClassNumber(workCtx, req.UserID, term, n)
			if err != nil {
				progress.resolve(i, itemFailed, c.itemFailure(req.UserID, n, err))
				return
			}
			added[i] = e
			progress.resolve(i, itemSucceeded, label)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(c.cfg.ProgressInterval)
	defer ticker.Stop()
	for resolving := true; resolving; {
		select {
		case <-done:
			resolving = false
		case <-ticker.C:
			content := truncate("Resolving classes...\n"+progressBody(progress.snapshot()), maxContent)
			if err := r.Edit(ctx, Response{Content: content}); err != nil {
				return fmt.Errorf("進捗の更新に失敗しました: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	classes, err := c.store.GetEnrollments(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	view, err := c.scheduleView(ctx, req.UserID, term, classes)
	if err != nil {
		return err
	}
	view.Content = truncate("Finished setting your schedule.\n"+progressBody(progress.snapshot()), maxContent)
	if err := r.Edit(ctx, view); err != nil {
		return fmt.Errorf("スケジュール表示に失敗しました: %w", err)
	}
	c.refreshDisplays(ctx, req.UserID, term)
	c.openDisplay(req.UserID, term, r)

	// 同じコースの2件目以降は冗長な通知として扱う
	notified := make(map[string]bool)
	for _, e := range added {
		if e == nil {
			continue
		}
		c.notify(ctx, e, notified[e.CourseCode])
		notified[e.CourseCode] = true
	}
	return nil
}

// resolveClassNumber はクラス番号をセクションに解決して登録する。
func (c *Controller) resolveClassNumber(ctx context.Context, userID int64, term model.Term, classNumber int) (*model.Enrollment, string, error) {
	cs, err := c.catalog.FetchSectionByClassNumber(ctx, classNumber, term.Code)
	if err != nil {
		return nil, "", err
	}
	if cs == nil {
		return nil, "", model.NewClassNotFoundError(term.Name)
	}
	if cs.Section.Type == model.SectionMidterm {
		return nil, "", model.NewMidtermSectionError()
	}
	e, err := c.store.AddEnrollment(ctx, userID, term.Code, cs.Course, cs.Section.Number)
	if err != nil {
		return nil, "", err
	}
	label := fmt.Sprintf("%s, %s %s", cs.Course, cs.Section.Type, model.ZeroPad(cs.Section.Number))
	return e, label, nil
}

// itemFailure は項目の失敗理由を表示用にする。予期しないエラーはログに記録する。
func (c *Controller) itemFailure(userID int64, classNumber int, err error) string {
	if ue, ok := model.AsUserError(err); ok {
		return ue.Message
	}
	c.logger.Error("クラス番号の解決に失敗しました",
		slog.Int64("user_id", userID),
		slog.Int("class_number", classNumber),
		slog.String("error", err.Error()),
	)
	return genericFailure
}
