package interaction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/reginald/internal/model"
)

var errAlreadyAcknowledged = errors.New("interaction has already been acknowledged")

// --- Responder ---

type call struct {
	method    string
	resp      Response
	modal     Modal
	ephemeral bool
}

// fakeResponder は呼び出しを記録する。Discordと同様に初回応答は1度だけ受け付ける。
type fakeResponder struct {
	mu           sync.Mutex
	calls        []call
	acknowledged bool

	editErr     error
	followUpErr error
}

func (f *fakeResponder) record(c call) {
	f.calls = append(f.calls, c)
}

func (f *fakeResponder) Reply(ctx context.Context, resp Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acknowledged {
		return errAlreadyAcknowledged
	}
	f.acknowledged = true
	f.record(call{method: "Reply", resp: resp})
	return nil
}

func (f *fakeResponder) Defer(ctx context.Context, ephemeral bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acknowledged {
		return errAlreadyAcknowledged
	}
	f.acknowledged = true
	f.record(call{method: "Defer", ephemeral: ephemeral})
	return nil
}

func (f *fakeResponder) Edit(ctx context.Context, resp Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(call{method: "Edit", resp: resp})
	return f.editErr
}

func (f *fakeResponder) Update(ctx context.Context, resp Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acknowledged {
		return errAlreadyAcknowledged
	}
	f.acknowledged = true
	f.record(call{method: "Update", resp: resp})
	return nil
}

func (f *fakeResponder) FollowUp(ctx context.Context, resp Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(call{method: "FollowUp", resp: resp})
	return f.followUpErr
}

func (f *fakeResponder) ShowModal(ctx context.Context, modal Modal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acknowledged {
		return errAlreadyAcknowledged
	}
	f.acknowledged = true
	f.record(call{method: "ShowModal", modal: modal})
	return nil
}

func (f *fakeResponder) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

// byMethod は指定したメソッドの呼び出しだけを返す。
func (f *fakeResponder) byMethod(method string) []call {
	var out []call
	for _, c := range f.snapshot() {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// last は指定したメソッドの最後の呼び出しを返す。
func (f *fakeResponder) last(t *testing.T, method string) call {
	t.Helper()
	calls := f.byMethod(method)
	if len(calls) == 0 {
		t.Fatalf("%s が呼ばれていません: %+v", method, f.snapshot())
	}
	return calls[len(calls)-1]
}

// --- Catalog ---

func sectionKey(course model.Course, section, term int) string {
	return fmt.Sprintf("%s|%d|%d", course, section, term)
}

// fakeCatalog はセットアップ後に読み取り専用で使う。
type fakeCatalog struct {
	sections     map[string]*model.Section
	byClass      map[int]*model.CourseSection
	descriptions map[model.Course]string
	classErr     map[int]error
	sectionErr   error
	classDelay   time.Duration

	classCalls atomic.Int32
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		sections:     make(map[string]*model.Section),
		byClass:      make(map[int]*model.CourseSection),
		descriptions: make(map[model.Course]string),
		classErr:     make(map[int]error),
	}
}

func (f *fakeCatalog) addSection(course model.Course, term int, s *model.Section) {
	f.sections[sectionKey(course, s.Number, term)] = s
	if s.ClassNumber != 0 {
		f.byClass[s.ClassNumber] = &model.CourseSection{Course: course, Section: s}
	}
}

func (f *fakeCatalog) GetSectionBySectionNumber(ctx context.Context, course model.Course, sectionNumber, term int) (*model.Section, error) {
	if f.sectionErr != nil {
		return nil, f.sectionErr
	}
	return f.sections[sectionKey(course, sectionNumber, term)], nil
}

func (f *fakeCatalog) FetchSectionByClassNumber(ctx context.Context, classNumber, term int) (*model.CourseSection, error) {
	f.classCalls.Add(1)
	if f.classDelay > 0 {
		select {
		case <-time.After(f.classDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.classErr[classNumber]; err != nil {
		return nil, err
	}
	return f.byClass[classNumber], nil
}

func (f *fakeCatalog) GetCourseDescription(ctx context.Context, course model.Course, term int) (string, bool, error) {
	d, ok := f.descriptions[course]
	return d, ok, nil
}

// --- Enrollments ---

// memStore は登録をメモリに保持し、fakeCatalogで解決する。
type memStore struct {
	mu      sync.Mutex
	rows    []model.Enrollment
	users   map[int64]string
	notify  map[int64]bool
	catalog *fakeCatalog
	nextID  int

	peerInfo *model.PeerInfo
	clearErr error
	getErr   error
}

func newMemStore(catalog *fakeCatalog) *memStore {
	return &memStore{
		users:   make(map[int64]string),
		notify:  make(map[int64]bool),
		catalog: catalog,
	}
}

func (m *memStore) HasEnrollments(ctx context.Context, studentID int64, term int) (bool, error) {
	n, err := m.CountEnrollments(ctx, studentID, term)
	return n > 0, err
}

func (m *memStore) CountEnrollments(ctx context.Context, studentID int64, term int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.StudentID == studentID && r.Term == term {
			n++
		}
	}
	return n, nil
}

func (m *memStore) EnrolledIn(ctx context.Context, studentID int64, term int, course model.Course) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.StudentID == studentID && r.Term == term && r.CourseCode == course.String() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetEnrollments(ctx context.Context, studentID int64, term int) ([]model.CourseSection, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CourseSection
	for _, r := range m.rows {
		if r.StudentID != studentID || r.Term != term {
			continue
		}
		course := model.MustParseCourse(r.CourseCode)
		s := m.catalog.sections[sectionKey(course, r.Section, term)]
		if s == nil {
			continue
		}
		out = append(out, model.CourseSection{Course: course, Section: s})
	}
	return out, nil
}

func (m *memStore) ListEnrollments(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Enrollment
	for _, r := range m.rows {
		if r.StudentID == studentID && r.Term == term {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) AddEnrollment(ctx context.Context, studentID int64, term int, course model.Course, section int) (*model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.StudentID == studentID && r.Term == term && r.CourseCode == course.String() && r.Section == section {
			return nil, nil
		}
	}
	m.nextID++
	e := model.Enrollment{
		ID:         fmt.Sprintf("e-%d", m.nextID),
		StudentID:  studentID,
		Term:       term,
		CourseCode: course.String(),
		Section:    section,
	}
	m.rows = append(m.rows, e)
	return &e, nil
}

func (m *memStore) RemoveEnrollment(ctx context.Context, studentID int64, term int, course model.Course, section int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.StudentID == studentID && r.Term == term && r.CourseCode == course.String() && r.Section == section {
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return nil
}

func (m *memStore) ClearEnrollment(ctx context.Context, studentID int64, term int) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.StudentID == studentID && r.Term == term {
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return nil
}

func (m *memStore) EnsureUser(ctx context.Context, userID int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		m.users[userID] = username
		m.notify[userID] = true
	}
	return nil
}

func (m *memStore) SetNotifyPeers(ctx context.Context, userID int64, notify bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify[userID] = notify
	return nil
}

func (m *memStore) PeerInfo(ctx context.Context, studentID int64, term int) (*model.PeerInfo, error) {
	if m.peerInfo != nil {
		return m.peerInfo, nil
	}
	return &model.PeerInfo{}, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// --- Notifier / Renderer / Messenger ---

type notifyCall struct {
	course    string
	section   int
	redundant bool
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) Notify(ctx context.Context, e *model.Enrollment, redundant bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{course: e.CourseCode, section: e.Section, redundant: redundant})
	return nil
}

func (f *fakeNotifier) snapshot() []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notifyCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeRenderer struct {
	renders atomic.Int32
}

func (f *fakeRenderer) RenderFile(dir string, userID int64, termCode int, classes []model.CourseSection) (string, error) {
	f.renders.Add(1)
	return filepath.Join(dir, fmt.Sprintf("%d-%d-schedule.png", userID, termCode)), nil
}

type dm struct {
	userID  int64
	content string
	files   []File
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []dm
	err  error
}

func (f *fakeMessenger) SendDirectMessage(ctx context.Context, userID int64, content string) error {
	return f.SendDirectFiles(ctx, userID, content, nil)
}

func (f *fakeMessenger) SendDirectFiles(ctx context.Context, userID int64, content string, files []File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, dm{userID: userID, content: content, files: files})
	return nil
}

// --- ヘルパー ---

const (
	testUserID   int64 = 1001
	testUsername       = "alice"
	winter2023         = 2420
)

var (
	eecs280 = model.MustParseCourse("EECS 280")
	math215 = model.MustParseCourse("MATH 215")
)

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// syncBuffer はバックグラウンドのゴルーチンからも書き込まれるログ出力先。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	ctrl      *Controller
	catalog   *fakeCatalog
	store     *memStore
	notifier  *fakeNotifier
	renderer  *fakeRenderer
	messenger *fakeMessenger
	logs      *syncBuffer
}

func newTestEnv(t *testing.T, mutate func(cfg *Config, deps *Deps)) *testEnv {
	t.Helper()
	env := &testEnv{
		catalog:   newFakeCatalog(),
		notifier:  &fakeNotifier{},
		renderer:  &fakeRenderer{},
		messenger: &fakeMessenger{},
		logs:      &syncBuffer{},
	}
	env.store = newMemStore(env.catalog)

	env.catalog.addSection(eecs280, winter2023, &model.Section{
		Number: 1, Type: model.SectionLecture, Status: model.StatusOpen,
		Enrolled: 100, Capacity: 200, Credits: 4, ClassNumber: 10001,
		Meetings: []model.Meeting{{
			Days:     model.NewWeekdaySet(model.Tuesday, model.Thursday),
			Time:     &model.TimeRange{Start: 10*time.Hour + 30*time.Minute, End: 12 * time.Hour},
			Location: "1013 DOW",
		}},
		Instructors: []model.Instructor{{Uniqname: "jjuett", FirstName: "James", LastName: "Juett"}},
	})
	env.catalog.addSection(eecs280, winter2023, &model.Section{
		Number: 11, Type: model.SectionDiscussion, Status: model.StatusWaitList, ClassNumber: 10002,
	})
	env.catalog.addSection(math215, winter2023, &model.Section{
		Number: 1, Type: model.SectionLecture, Status: model.StatusClosed, ClassNumber: 10005,
	})
	env.catalog.addSection(math215, winter2023, &model.Section{
		Number: 50, Type: model.SectionMidterm, ClassNumber: 10003,
	})
	env.catalog.descriptions[eecs280] = "Programming and Introductory Data Structures---Techniques and algorithms."

	cfg := Config{
		DefaultTerm:      "Winter 2023",
		DisplayTTL:       time.Hour,
		ProgressInterval: 5 * time.Millisecond,
		AssetsDir:        t.TempDir(),
	}
	deps := Deps{
		Catalog:     env.catalog,
		Enrollments: env.store,
		Notifier:    env.notifier,
		Renderer:    env.renderer,
		Messenger:   env.messenger,
		Logger:      newTestLogger(env.logs),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	env.ctrl = NewController(deps, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := env.ctrl.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown がエラーを返しました: %v", err)
		}
	})
	return env
}

func command(name string, options map[string]string) *Request {
	return &Request{Kind: KindCommand, Name: name, UserID: testUserID, Username: testUsername, Options: options}
}

func component(kind Kind, customID string) *Request {
	return &Request{Kind: kind, Name: customID, UserID: testUserID, Username: testUsername}
}

func (env *testEnv) dispatch(req *Request) *fakeResponder {
	r := &fakeResponder{}
	env.ctrl.Dispatch(context.Background(), req, r)
	return r
}

// eventually は条件が満たされるまで待つ。
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
