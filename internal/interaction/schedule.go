package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/reginald/internal/model"
	"github.com/hitoshi/reginald/internal/security"
)

// detachedTimeout は元のインタラクションと切り離した編集のタイムアウト。
const detachedTimeout = 10 * time.Second

func termOption(description string) OptionSpec {
	return OptionSpec{
		Name:        "term",
		Description: description,
		Type:        OptionString,
		Choices:     termChoices(),
	}
}

func (c *Controller) registerSchedule() {
	def := c.cfg.DefaultTerm

	c.addCommand(&Command{
		Name:        "schedule",
		Description: "See and edit your class schedule",
		Options: []OptionSpec{
			termOption("The academic term of the schedule to see and edit. Current default: " + def),
		},
		Run: c.runSchedule,
	})
	c.addCommand(&Command{
		Name:        "schedule-peers",
		Description: "Find others who are taking or have taken the classes you're taking.",
		Options: []OptionSpec{
			termOption("The term for which you want to find academic peers. Current default: " + def),
		},
		Check: c.checkNonEmptySchedule,
		Run:   c.runPeers,
	})
	c.addCommand(&Command{
		Name:        "schedule-clear",
		Description: "Clears your entire schedule for a given term.",
		Options: []OptionSpec{
			termOption("The academic term for which you want to clear your schedule. Current default: " + def),
		},
		Run: c.runClear,
	})
	c.addCommand(&Command{
		Name:        "schedule-notify",
		Description: "Indicate whether you want to be notified about new academic peers.",
		Options: []OptionSpec{{
			Name:        "notify",
			Description: "Whether you want to be notified about new academic peers",
			Type:        OptionBoolean,
			Required:    true,
		}},
		Run: c.runNotify,
	})
	c.addCommand(&Command{
		Name:        "schedule-share",
		Description: "Sends a DM of your schedule to another user",
		Options: []OptionSpec{
			{
				Name:        "recipient",
				Description: "The users who will receive a DM of your schedule",
				Type:        OptionUser,
				Required:    true,
			},
			termOption("The academic term of the schedule you want to share. Current default: " + def),
		},
		Check: c.checkShare,
		Run:   c.runShare,
	})

	c.addComponent(tagAddButton, c.onAddButton)
	c.addComponent(tagAddSubmit, c.onAddSubmit)
	c.addComponent(tagRemoveButton, c.onRemoveButton)
	c.addComponent(tagRemoveSubmit, c.onRemoveSubmit)
	c.addComponent(tagPeersButton, c.onPeersButton)
}

// runSchedule はスケジュール表示を開き、有効期限まで登録簿に載せる。
func (c *Controller) runSchedule(ctx context.Context, req *Request, r Responder) error {
	term, err := c.optionTerm(req)
	if err != nil {
		return err
	}
	if err := r.Defer(ctx, true); err != nil {
		return fmt.Errorf("応答の保留に失敗しました: %w", err)
	}
	if err := c.store.EnsureUser(ctx, req.UserID, req.Username); err != nil {
		return err
	}
	classes, err := c.store.GetEnrollments(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	view, err := c.scheduleView(ctx, req.UserID, term, classes)
	if err != nil {
		return err
	}
	if err := r.Edit(ctx, view); err != nil {
		return fmt.Errorf("スケジュール表示に失敗しました: %w", err)
	}

	c.openDisplay(req.UserID, term, r)
	return nil
}

// openDisplay は表示を登録し、有効期限が来たら期限切れの表示に置き換えて登録簿から外す。
func (c *Controller) openDisplay(userID int64, term model.Term, r Responder) *Display {
	d := c.displays.Register(userID, term.Code, r, time.Now().Add(c.cfg.DisplayTTL))

	c.goBackground(func(ctx context.Context) {
		timer := time.NewTimer(c.cfg.DisplayTTL)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			c.displays.Remove(d.ID)
			return
		}

		// 期限切れの表示が再描画で上書きされないよう、先に登録簿から外す
		c.displays.Remove(d.ID)
		editCtx, cancel := context.WithTimeout(context.Background(), detachedTimeout)
		defer cancel()
		err := d.MarkExpired(editCtx, Response{
			Content: fmt.Sprintf(
				"This interaction has expired. Run `/schedule` again to view and edit your %s schedule.", term.Name),
		})
		if err != nil {
			c.logger.Error("期限切れ表示への更新に失敗しました",
				slog.Int64("user_id", userID),
				slog.Int("term", term.Code),
				slog.String("error", err.Error()),
			)
		}
	})
	return d
}

// refreshDisplays はユーザーと学期が一致する開いている表示をすべて再描画する。
// 個々の編集の失敗はログに記録して続ける。
func (c *Controller) refreshDisplays(ctx context.Context, userID int64, term model.Term) {
	displays := c.displays.Matching(userID, term.Code)
	if len(displays) == 0 {
		return
	}

	classes, err := c.store.GetEnrollments(ctx, userID, term.Code)
	if err != nil {
		c.logger.Error("表示の再描画用の登録取得に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	view, err := c.scheduleView(ctx, userID, term, classes)
	if err != nil {
		c.logger.Error("表示の再描画に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, d := range displays {
		if _, err := d.Edit(ctx, view); err != nil {
			c.logger.Error("表示の更新に失敗しました",
				slog.Uint64("display_id", d.ID),
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// notify はピア通知を送る。失敗はログに記録するだけで呼び出し側には返さない。
func (c *Controller) notify(ctx context.Context, e *model.Enrollment, redundant bool) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, e, redundant); err != nil {
		c.logger.Error("ピア通知に失敗しました",
			slog.Int64("user_id", e.StudentID),
			slog.String("course", e.CourseCode),
			slog.Int("section", e.Section),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) onAddButton(ctx context.Context, req *Request, r Responder) error {
	term, err := c.paramTerm(req)
	if err != nil {
		return err
	}
	count, err := c.store.CountEnrollments(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	if count >= maxClasses {
		return model.NewScheduleFullError(maxClasses)
	}

	return r.ShowModal(ctx, Modal{
		CustomID: tagAddSubmit + ":" + term.Name,
		Title:    "Add section for " + term.Name,
		Inputs: []TextInput{
			{CustomID: "courseCode", Label: "Course code", Placeholder: `Example: "UARTS 150"`, Required: true},
			{CustomID: "section", Label: "Section number", Placeholder: `Example: "210"`, Required: true},
		},
	})
}

func (c *Controller) onAddSubmit(ctx context.Context, req *Request, r Responder) error {
	term, err := c.paramTerm(req)
	if err != nil {
		return err
	}

	rawCourse := req.Fields["courseCode"]
	course, ok := model.ParseCourse(rawCourse)
	if !ok {
		return model.NewInvalidCourseCodeError(security.EscapeMarkdown(rawCourse))
	}
	rawSection := req.Fields["section"]
	section, err := strconv.Atoi(strings.TrimSpace(rawSection))
	if err != nil {
		return model.NewNotIntegerError(security.EscapeMarkdown(rawSection))
	}

	info, err := c.catalog.GetSectionBySectionNumber(ctx, course, section, term.Code)
	if err != nil {
		return err
	}
	if info == nil || info.Type == model.SectionMidterm {
		return model.NewSectionNotFoundError(course, section, term.Name)
	}

	if err := c.store.EnsureUser(ctx, req.UserID, req.Username); err != nil {
		return err
	}
	rows, err := c.store.ListEnrollments(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	alreadyInCourse := false
	for _, row := range rows {
		if row.CourseCode != course.String() {
			continue
		}
		if row.Section == section {
			return c.replyAlreadyPresent(ctx, r, course, section, term)
		}
		alreadyInCourse = true
	}
	if len(rows) >= maxClasses {
		return model.NewScheduleFullError(maxClasses)
	}
	e, err := c.store.AddEnrollment(ctx, req.UserID, term.Code, course, section)
	if err != nil {
		return err
	}
	if e == nil {
		return c.replyAlreadyPresent(ctx, r, course, section, term)
	}

	if err := r.Reply(ctx, Response{
		Ephemeral: true,
		Content: fmt.Sprintf(":white_check_mark: Successfully added %s, section %s (%s) to your %s schedule.",
			course, model.ZeroPad(section), info.Type, term.Name),
	}); err != nil {
		return err
	}
	c.refreshDisplays(ctx, req.UserID, term)
	c.notify(ctx, e, alreadyInCourse)
	return nil
}

func (c *Controller) replyAlreadyPresent(ctx context.Context, r Responder, course model.Course, section int, term model.Term) error {
	return r.Reply(ctx, Response{
		Ephemeral: true,
		Content: fmt.Sprintf(":eyes: %s, section %s is already in your %s schedule.",
			course, model.ZeroPad(section), term.Name),
	})
}

func (c *Controller) onRemoveButton(ctx context.Context, req *Request, r Responder) error {
	term, err := c.paramTerm(req)
	if err != nil {
		return err
	}
	rows, err := c.store.ListEnrollments(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return model.NewEmptyScheduleError(term.Name)
	}
	classes, err := c.store.GetEnrollments(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	options, err := c.removeOptions(ctx, classes, term.Code)
	if err != nil {
		return err
	}
	options = append(options, unresolvedOptions(rows, classes)...)

	return r.Reply(ctx, Response{
		Ephemeral: true,
		Content:   fmt.Sprintf("Pick a class section to remove from your %s schedule.", term.Name),
		Components: []ActionRow{{Select: &SelectMenu{
			CustomID: tagRemoveSubmit + ":" + term.Name,
			Options:  options,
		}}},
	})
}

func (c *Controller) onRemoveSubmit(ctx context.Context, req *Request, r Responder) error {
	term, err := c.paramTerm(req)
	if err != nil {
		return err
	}
	if len(req.Values) == 0 {
		return nil
	}
	course, section, ok := parseRemoveOptionValue(req.Values[0])
	if !ok {
		c.logger.Warn("不正な削除対象の値を無視しました",
			slog.Int64("user_id", req.UserID),
			slog.String("value", req.Values[0]),
		)
		return nil
	}

	if err := c.store.RemoveEnrollment(ctx, req.UserID, term.Code, course, section); err != nil {
		return err
	}
	if err := r.Update(ctx, Response{
		Content: fmt.Sprintf(":white_check_mark: Successfully removed %s, section %s from your %s schedule.",
			course, model.ZeroPad(section), term.Name),
	}); err != nil {
		return err
	}
	c.refreshDisplays(ctx, req.UserID, term)
	return nil
}

func (c *Controller) onPeersButton(ctx context.Context, req *Request, r Responder) error {
	term, err := c.paramTerm(req)
	if err != nil {
		return err
	}
	return c.replyPeers(ctx, req, r, term)
}

func (c *Controller) checkNonEmptySchedule(ctx context.Context, req *Request) error {
	term, err := c.optionTerm(req)
	if err != nil {
		return err
	}
	ok, err := c.store.HasEnrollments(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewEmptyScheduleError(term.Name)
	}
	return nil
}

func (c *Controller) runPeers(ctx context.Context, req *Request, r Responder) error {
	term, err := c.optionTerm(req)
	if err != nil {
		return err
	}
	info, err := c.store.PeerInfo(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	return r.Reply(ctx, Response{Ephemeral: true, Embeds: peerEmbeds(info, term.Name)})
}

// replyPeers はスケジュールが空でないことを確認してからピアを表示する。
func (c *Controller) replyPeers(ctx context.Context, req *Request, r Responder, term model.Term) error {
	ok, err := c.store.HasEnrollments(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewEmptyScheduleError(term.Name)
	}
	info, err := c.store.PeerInfo(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	return r.Reply(ctx, Response{Ephemeral: true, Embeds: peerEmbeds(info, term.Name)})
}

func (c *Controller) runClear(ctx context.Context, req *Request, r Responder) error {
	term, err := c.optionTerm(req)
	if err != nil {
		return err
	}
	if err := c.store.ClearEnrollment(ctx, req.UserID, term.Code); err != nil {
		return err
	}
	if err := r.Reply(ctx, Response{
		Ephemeral: true,
		Content:   fmt.Sprintf("Successfully cleared your schedule for %s.", term.Name),
	}); err != nil {
		return err
	}
	c.refreshDisplays(ctx, req.UserID, term)
	return nil
}

func (c *Controller) runNotify(ctx context.Context, req *Request, r Responder) error {
	notify, ok := req.BoolOption("notify")
	if !ok {
		return model.NewMissingOptionError("notify")
	}
	if err := c.store.EnsureUser(ctx, req.UserID, req.Username); err != nil {
		return err
	}
	if err := c.store.SetNotifyPeers(ctx, req.UserID, notify); err != nil {
		return err
	}
	not := ""
	if !notify {
		not = "not "
	}
	return r.Reply(ctx, Response{
		Ephemeral: true,
		Content:   fmt.Sprintf("Got it. You will %sbe notified about new academic peers.", not),
	})
}

func (c *Controller) checkShare(ctx context.Context, req *Request) error {
	if _, err := c.optionTerm(req); err != nil {
		return err
	}
	if _, ok := req.UserOption("recipient"); !ok {
		return model.NewMissingOptionError("recipient")
	}
	return c.store.EnsureUser(ctx, req.UserID, req.Username)
}

// runShare はスケジュール画像を受信者にDMで送る。送信の失敗は本人への返信で伝える。
func (c *Controller) runShare(ctx context.Context, req *Request, r Responder) error {
	term, err := c.optionTerm(req)
	if err != nil {
		return err
	}
	recipient, _ := req.UserOption("recipient")

	if err := r.Defer(ctx, true); err != nil {
		return fmt.Errorf("応答の保留に失敗しました: %w", err)
	}
	classes, err := c.store.GetEnrollments(ctx, req.UserID, term.Code)
	if err != nil {
		return err
	}
	path, err := c.renderer.RenderFile(c.cfg.AssetsDir, req.UserID, term.Code, classes)
	if err != nil {
		return fmt.Errorf("スケジュール画像の描画に失敗しました: %w", err)
	}

	err = c.messenger.SendDirectFiles(ctx, recipient,
		fmt.Sprintf("%s has sent you their %s schedule", req.Username, term.Name),
		[]File{{Name: filepath.Base(path), Path: path}},
	)
	if err != nil {
		c.logger.Error("スケジュールの共有に失敗しました",
			slog.Int64("user_id", req.UserID),
			slog.Int64("recipient_id", recipient),
			slog.String("error", err.Error()),
		)
		return r.Edit(ctx, Response{
			Content: fmt.Sprintf(":x: Failed to send your %s schedule to %s. Maybe they do not allow DMs from server members.",
				term.Name, mention(recipient)),
		})
	}

	suffix := "."
	if len(classes) == 0 {
		suffix = ", but it is empty."
	}
	return r.Edit(ctx, Response{
		Content: fmt.Sprintf("%s has successfully received your %s schedule%s", mention(recipient), term.Name, suffix),
	})
}
