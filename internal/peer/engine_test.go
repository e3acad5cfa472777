package peer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/reginald/internal/metrics"
	"github.com/hitoshi/reginald/internal/model"
)

// --- モック ---

type mockPeerSource struct {
	listFn func(ctx context.Context, e *model.Enrollment) ([]model.Enrollment, error)
	calls  int
}

func (m *mockPeerSource) ListNotifiablePeers(ctx context.Context, e *model.Enrollment) ([]model.Enrollment, error) {
	m.calls++
	return m.listFn(ctx, e)
}

type sentMessage struct {
	userID  int64
	content string
}

type mockSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	failFn func(userID int64) error
}

func (m *mockSender) SendDirectMessage(ctx context.Context, userID int64, content string) error {
	if m.failFn != nil {
		if err := m.failFn(userID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{userID: userID, content: content})
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func enrollment(student int64, term int, course string, section int) model.Enrollment {
	return model.Enrollment{StudentID: student, Term: term, CourseCode: course, Section: section}
}

// --- テスト ---

// TestBuildNotifications_SectionmateOutranksCoursemate は同じ受信者への通知が最も高い優先度の1件になることを検証する。
func TestBuildNotifications_SectionmateOutranksCoursemate(t *testing.T) {
	e := enrollment(1, 2420, "EECS 280", 210)
	peers := []model.Enrollment{
		enrollment(2, 2420, "EECS 280", 201),
		enrollment(2, 2420, "EECS 280", 210),
	}

	got := BuildNotifications(&e, peers, false)
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].Priority != PrioritySectionmate {
		t.Errorf("Priority = %d, want %d", got[0].Priority, PrioritySectionmate)
	}
	want := "You have a new classmate in EECS 280.\n" +
		"<@1> is taking EECS 280 in Winter 2023 along with you.\n" +
		"They are also in section 210!"
	if got[0].Message != want {
		t.Errorf("Message = %q, want %q", got[0].Message, want)
	}
}

// TestBuildNotifications_Coursemate は別セクションの同学期履修者への文面を検証する。
func TestBuildNotifications_Coursemate(t *testing.T) {
	e := enrollment(1, 2420, "EECS 280", 210)
	got := BuildNotifications(&e, []model.Enrollment{enrollment(2, 2420, "EECS 280", 1)}, false)

	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	want := "You have a new classmate in EECS 280.\n<@1> is taking EECS 280 in Winter 2023 along with you."
	if got[0].Message != want {
		t.Errorf("Message = %q, want %q", got[0].Message, want)
	}
	if got[0].Priority != PriorityCoursemate {
		t.Errorf("Priority = %d, want %d", got[0].Priority, PriorityCoursemate)
	}
}

// TestBuildNotifications_Alumnus は後の学期の学生に過去の履修者として通知することを検証する。
func TestBuildNotifications_Alumnus(t *testing.T) {
	e := enrollment(1, 2410, "EECS 280", 1)
	got := BuildNotifications(&e, []model.Enrollment{enrollment(2, 2420, "EECS 280", 1)}, false)

	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	want := "You have a new alumnus in EECS 280.\n<@1> took EECS 280 in Fall 2022."
	if got[0].Message != want {
		t.Errorf("Message = %q, want %q", got[0].Message, want)
	}
}

// TestBuildNotifications_AlumnusUnknownTerm は未知の学期コードの表記を検証する。
func TestBuildNotifications_AlumnusUnknownTerm(t *testing.T) {
	e := enrollment(1, 1000, "EECS 280", 1)
	got := BuildNotifications(&e, []model.Enrollment{enrollment(2, 2420, "EECS 280", 1)}, false)

	if len(got) != 1 || !strings.HasSuffix(got[0].Message, "took EECS 280 in an unknown term.") {
		t.Errorf("got = %+v", got)
	}
}

// TestBuildNotifications_Redundant は重複パスではセクションメイトのみに告知行なしで通知することを検証する。
func TestBuildNotifications_Redundant(t *testing.T) {
	e := enrollment(1, 2420, "EECS 280", 210)
	peers := []model.Enrollment{
		enrollment(2, 2420, "EECS 280", 210),
		enrollment(3, 2420, "EECS 280", 1),
		enrollment(4, 2430, "EECS 280", 1),
	}

	got := BuildNotifications(&e, peers, true)
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].RecipientID != 2 {
		t.Errorf("RecipientID = %d, want 2", got[0].RecipientID)
	}
	if strings.Contains(got[0].Message, "You have a new") {
		t.Errorf("重複パスで告知行が含まれる: %q", got[0].Message)
	}
}

// TestBuildNotifications_IgnoredSections は除外リストの組が通知を生成しないことを検証する。
func TestBuildNotifications_IgnoredSections(t *testing.T) {
	for _, e := range []model.Enrollment{
		enrollment(1, 2420, "UARTS 150", 1),
		enrollment(1, 2420, "ENGR 100", 210),
	} {
		peers := []model.Enrollment{enrollment(2, 2420, e.CourseCode, e.Section)}
		if got := BuildNotifications(&e, peers, false); len(got) != 0 {
			t.Errorf("%s §%d: len(got) = %d, want 0", e.CourseCode, e.Section, len(got))
		}
	}

	other := enrollment(1, 2420, "ENGR 100", 200)
	if got := BuildNotifications(&other, []model.Enrollment{enrollment(2, 2420, "ENGR 100", 200)}, false); len(got) != 1 {
		t.Errorf("除外対象外のセクションで len(got) = %d, want 1", len(got))
	}
}

// TestBuildNotifications_SkipsSelfAndEarlierTerms は本人と過去学期の行を無視することを検証する。
func TestBuildNotifications_SkipsSelfAndEarlierTerms(t *testing.T) {
	e := enrollment(1, 2420, "EECS 280", 1)
	peers := []model.Enrollment{
		enrollment(1, 2420, "EECS 280", 1),
		enrollment(2, 2410, "EECS 280", 1),
		enrollment(3, 2420, "EECS 281", 1),
	}
	if got := BuildNotifications(&e, peers, false); len(got) != 0 {
		t.Errorf("got = %+v, want none", got)
	}
}

// TestBuildNotifications_SortedByRecipient は結果が受信者ID順であることを検証する。
func TestBuildNotifications_SortedByRecipient(t *testing.T) {
	e := enrollment(1, 2420, "EECS 280", 1)
	peers := []model.Enrollment{
		enrollment(9, 2420, "EECS 280", 1),
		enrollment(3, 2420, "EECS 280", 2),
		enrollment(5, 2430, "EECS 280", 1),
	}
	got := BuildNotifications(&e, peers, false)
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	for i, want := range []int64{3, 5, 9} {
		if got[i].RecipientID != want {
			t.Errorf("got[%d].RecipientID = %d, want %d", i, got[i].RecipientID, want)
		}
	}
}

// TestEngine_NotifySecondStudentGetsOneMessage は2人目の登録で1人目に1通だけ届くことを検証する。
func TestEngine_NotifySecondStudentGetsOneMessage(t *testing.T) {
	source := &mockPeerSource{listFn: func(ctx context.Context, e *model.Enrollment) ([]model.Enrollment, error) {
		return []model.Enrollment{enrollment(1, 2420, "EECS 280", 210)}, nil
	}}
	sender := &mockSender{}
	engine := NewEngine(source, sender, nil, nil)

	e := enrollment(2, 2420, "EECS 280", 200)
	if err := engine.Notify(context.Background(), &e, false); err != nil {
		t.Fatalf("Notify がエラーを返した: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("送信数 = %d, want 1", len(sender.sent))
	}
	if sender.sent[0].userID != 1 || !strings.HasPrefix(sender.sent[0].content, "You have a new classmate") {
		t.Errorf("sent = %+v", sender.sent[0])
	}
}

// TestEngine_IgnoredSkipsQuery は除外対象の登録でピア検索を行わないことを検証する。
func TestEngine_IgnoredSkipsQuery(t *testing.T) {
	source := &mockPeerSource{listFn: func(ctx context.Context, e *model.Enrollment) ([]model.Enrollment, error) {
		return nil, nil
	}}
	engine := NewEngine(source, &mockSender{}, nil, nil)

	e := enrollment(1, 2420, "UARTS 150", 1)
	got, err := engine.Notifications(context.Background(), &e, false)
	if err != nil || got != nil {
		t.Errorf("Notifications = %v, %v", got, err)
	}
	if source.calls != 0 {
		t.Errorf("ピア検索の呼び出し回数 = %d, want 0", source.calls)
	}
}

// TestEngine_NotificationsQueryError は検索エラーを返すことを検証する。
func TestEngine_NotificationsQueryError(t *testing.T) {
	dbErr := errors.New("db error")
	source := &mockPeerSource{listFn: func(ctx context.Context, e *model.Enrollment) ([]model.Enrollment, error) {
		return nil, dbErr
	}}
	engine := NewEngine(source, &mockSender{}, nil, nil)

	e := enrollment(1, 2420, "EECS 280", 1)
	if err := engine.Notify(context.Background(), &e, false); !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want dbErr", err)
	}
}

// TestEngine_DeliverIsBestEffort は1件の失敗が他の配信を止めず、失敗がログとメトリクスに残ることを検証する。
func TestEngine_DeliverIsBestEffort(t *testing.T) {
	sender := &mockSender{failFn: func(userID int64) error {
		if userID == 2 {
			return errors.New("cannot send messages to this user")
		}
		return nil
	}}
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	engine := NewEngine(nil, sender, newTestLogger(&buf), metrics.NewCollector(reg))

	engine.Deliver(context.Background(), []Notification{
		{RecipientID: 1, Message: "a"},
		{RecipientID: 2, Message: "b"},
		{RecipientID: 3, Message: "c"},
	})

	if len(sender.sent) != 2 {
		t.Errorf("送信成功数 = %d, want 2", len(sender.sent))
	}
	if !strings.Contains(buf.String(), "ピア通知の送信に失敗しました") {
		t.Errorf("失敗ログが出力されていない: %s", buf.String())
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather がエラーを返した: %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "reginald_peer_notifications_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" {
					counts[lp.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	if counts["delivered"] != 2 || counts["failed"] != 1 {
		t.Errorf("counts = %v, want delivered=2 failed=1", counts)
	}
}
