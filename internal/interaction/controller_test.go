package interaction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/reginald/internal/model"
)

func TestNewController_RegistersCommands(t *testing.T) {
	env := newTestEnv(t, nil)

	var names []string
	for _, cmd := range env.ctrl.Commands() {
		names = append(names, cmd.Name)
	}
	want := []string{
		"schedule", "schedule-peers", "schedule-clear", "schedule-notify", "schedule-share",
		"schedule-set-classes", "lookup-section",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("commands = %v, want %v", names, want)
	}
}

func TestNewController_AppliesDefaults(t *testing.T) {
	c := NewController(Deps{}, Config{})
	defer c.Shutdown(context.Background())

	if c.cfg != DefaultConfig() {
		t.Errorf("cfg = %+v, want %+v", c.cfg, DefaultConfig())
	}
	if c.logger == nil || c.metrics == nil {
		t.Error("logger と metrics にデフォルトが設定されていません")
	}
}

func TestDispatch_UnknownInteractionIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.dispatch(command("no-such-command", nil))
	if calls := r.snapshot(); len(calls) != 0 {
		t.Errorf("未知のコマンドに応答しました: %+v", calls)
	}

	r = env.dispatch(component(KindButton, "no-such-button:Winter 2023"))
	if calls := r.snapshot(); len(calls) != 0 {
		t.Errorf("未知のボタンに応答しました: %+v", calls)
	}
}

func TestDispatch_UserErrorRepliesPrivately(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.dispatch(command("lookup-section", map[string]string{
		"course-code":    "EECS",
		"section-number": "1",
	}))

	got := r.last(t, "Reply")
	if !got.resp.Ephemeral {
		t.Error("拒否メッセージが非公開ではありません")
	}
	want := ":x: `EECS` is not a properly formatted course code."
	if got.resp.Content != want {
		t.Errorf("content = %q, want %q", got.resp.Content, want)
	}
	if strings.Contains(env.logs.String(), "インタラクションの処理に失敗しました") {
		t.Error("ユーザーの入力エラーがエラーログに記録されました")
	}
}

func TestDispatch_MessageWithEmojiPrefixIsKept(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.dispatch(command("schedule-peers", nil))

	got := r.last(t, "Reply").resp.Content
	if !strings.HasPrefix(got, ":x: Your Winter 2023 schedule is empty.") {
		t.Errorf("content = %q", got)
	}
	if strings.HasPrefix(got, ":x: :x:") {
		t.Errorf("絵文字が二重に付きました: %q", got)
	}
}

func TestDispatch_UnknownTermIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.dispatch(command("schedule-clear", map[string]string{"term": "Fall 1999"}))

	want := ":x: `Fall 1999` is not a valid term."
	if got := r.last(t, "Reply").resp.Content; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestDispatch_UnexpectedErrorReportsFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.clearErr = errors.New("connection refused")

	r := env.dispatch(command("schedule-clear", nil))

	got := r.last(t, "Reply").resp
	want := "Something went wrong on my end. Sorry!\n```connection refused```"
	if got.Content != want {
		t.Errorf("content = %q, want %q", got.Content, want)
	}
	if !got.Ephemeral {
		t.Error("失敗の通知が非公開ではありません")
	}
	logs := env.logs.String()
	if !strings.Contains(logs, "インタラクションの処理に失敗しました") || !strings.Contains(logs, "connection refused") {
		t.Errorf("エラーログが記録されていません: %s", logs)
	}
}

func TestDispatch_FailureAfterReplyUsesFollowUp(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ctrl.addCommand(&Command{
		Name: "fails-late",
		Run: func(ctx context.Context, req *Request, r Responder) error {
			if err := r.Reply(ctx, Response{Content: "working"}); err != nil {
				return err
			}
			return errors.New("late failure")
		},
	})

	r := env.dispatch(command("fails-late", nil))

	got := r.last(t, "FollowUp").resp.Content
	if !strings.HasPrefix(got, genericFailure) || !strings.Contains(got, "late failure") {
		t.Errorf("content = %q", got)
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ctrl.addCommand(&Command{
		Name: "explodes",
		Run: func(ctx context.Context, req *Request, r Responder) error {
			panic("kaboom")
		},
	})

	r := env.dispatch(command("explodes", nil))

	got := r.last(t, "Reply").resp.Content
	if !strings.HasPrefix(got, genericFailure) || !strings.Contains(got, "kaboom") {
		t.Errorf("content = %q", got)
	}
	if !strings.Contains(env.logs.String(), "panic recovered") {
		t.Error("panicがログに記録されていません")
	}
}

func TestDispatch_CheckFailureSkipsRun(t *testing.T) {
	env := newTestEnv(t, nil)
	ran := false
	env.ctrl.addCommand(&Command{
		Name:  "guarded",
		Check: func(ctx context.Context, req *Request) error { return errors.New("check failed") },
		Run: func(ctx context.Context, req *Request, r Responder) error {
			ran = true
			return nil
		},
	})

	env.dispatch(command("guarded", nil))

	if ran {
		t.Error("Checkが失敗したのにRunが実行されました")
	}
}

func TestDispatch_RateLimited(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1, CleanupInterval: time.Minute})
	defer limiter.Stop()
	env := newTestEnv(t, func(cfg *Config, deps *Deps) {
		deps.RateLimiter = limiter
	})

	first := env.dispatch(command("schedule-clear", nil))
	if got := first.last(t, "Reply").resp.Content; !strings.HasPrefix(got, "Successfully cleared") {
		t.Fatalf("1回目が拒否されました: %q", got)
	}

	second := env.dispatch(command("schedule-clear", nil))
	got := second.last(t, "Reply").resp
	if !strings.HasPrefix(got.Content, ":snail:") || !got.Ephemeral {
		t.Errorf("レート制限の応答ではありません: %+v", got)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"接頭辞を付ける", "Class does not exist during Winter 2023", ":x: Class does not exist during Winter 2023"},
		{"絵文字付きはそのまま", ":snail: slow down", ":snail: slow down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := userMessage(&model.UserError{Message: tt.message}); got != tt.want {
				t.Errorf("userMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParamTerm(t *testing.T) {
	env := newTestEnv(t, nil)

	term, err := env.ctrl.paramTerm(component(KindButton, tagAddButton+":Fall 2023"))
	if err != nil {
		t.Fatalf("paramTerm がエラーを返しました: %v", err)
	}
	if term.Code != 2460 {
		t.Errorf("term.Code = %d, want 2460", term.Code)
	}

	for _, id := range []string{tagAddButton, tagAddButton + ":", tagAddButton + ":Fall 1999"} {
		if _, err := env.ctrl.paramTerm(component(KindButton, id)); err == nil {
			t.Errorf("paramTerm(%q) がエラーを返しませんでした", id)
		}
	}
}
