package interaction

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/reginald/internal/catalog"
	"github.com/hitoshi/reginald/internal/model"
	"github.com/hitoshi/reginald/internal/security"
)

// 表示の上限
const (
	maxClasses     = 20
	maxFieldLength = 1024
	maxTitleLength = 800
	maxContent     = 1024
)

// カスタムIDのタグ
const (
	tagAddButton    = "schedule-add-section-button"
	tagAddSubmit    = "schedule-add-section-submit"
	tagRemoveButton = "schedule-remove-section-button"
	tagRemoveSubmit = "schedule-remove-section-submit"
	tagPeersButton  = "schedule-peers-button"
)

// scheduleActionRow はスケジュール表示のボタン行を返す。
func scheduleActionRow(count int, termName string) ActionRow {
	return ActionRow{Buttons: []Button{
		{
			CustomID: tagAddButton + ":" + termName,
			Label:    "Add class",
			Emoji:    "➕",
			Style:    ButtonPrimary,
			Disabled: count >= maxClasses,
		},
		{
			CustomID: tagPeersButton + ":" + termName,
			Label:    "Find peers",
			Emoji:    "🔍",
			Style:    ButtonSecondary,
			Disabled: count == 0,
		},
		{
			CustomID: tagRemoveButton + ":" + termName,
			Label:    "Remove class",
			Emoji:    "➖",
			Style:    ButtonDanger,
			Disabled: count == 0,
		},
	}}
}

// meetingLine は授業1回分の行を返す。場所が不明な場合はunknownLocationを使い、それも空なら場所を省く。
func meetingLine(m model.Meeting, unknownLocation string) string {
	start, end := "TBA", "TBA"
	if m.Time != nil {
		start = model.FormatTime(&m.Time.Start)
		end = model.FormatTime(&m.Time.End)
	}
	line := fmt.Sprintf("%s from %s to %s", m.Days, start, end)
	loc := m.Location
	if loc == "" {
		loc = unknownLocation
	}
	if loc != "" {
		line += " in " + loc
	}
	return line
}

// instructorList は担当教員の一覧行を返す。
func instructorList(instructors []model.Instructor) string {
	if len(instructors) == 0 {
		return "No known instructors"
	}
	names := make([]string, len(instructors))
	for i, in := range instructors {
		names[i] = in.FirstName + " " + in.LastName
	}
	label := "Instructors: "
	if len(instructors) == 1 {
		label = "Instructor: "
	}
	return label + strings.Join(names, ", ")
}

// descriptions はクラスごとのコース説明を並行に取得する。説明がない場合は空文字。
func (c *Controller) descriptions(ctx context.Context, classes []model.CourseSection, term int) ([]string, error) {
	out := make([]string, len(classes))
	g, gctx := errgroup.WithContext(ctx)
	for i, cs := range classes {
		i, cs := i, cs
		g.Go(func() error {
			desc, ok, err := c.catalog.GetCourseDescription(gctx, cs.Course, term)
			if err != nil {
				return fmt.Errorf("コース説明の取得に失敗しました (%s): %w", cs.Course, err)
			}
			if ok {
				out[i] = desc
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// scheduleView はスケジュール画像を描画し、埋め込みとボタンを組み立てる。
func (c *Controller) scheduleView(ctx context.Context, userID int64, term model.Term, classes []model.CourseSection) (Response, error) {
	descs, err := c.descriptions(ctx, classes, term.Code)
	if err != nil {
		return Response{}, err
	}

	path, err := c.renderer.RenderFile(c.cfg.AssetsDir, userID, term.Code, classes)
	if err != nil {
		return Response{}, fmt.Errorf("スケジュール画像の描画に失敗しました: %w", err)
	}
	name := filepath.Base(path)

	embed := Embed{
		Title: fmt.Sprintf("Your %s Schedule", term.Name),
		Image: "attachment://" + name,
	}
	if len(classes) == 0 {
		embed.Description = `Your schedule is empty. Click ":heavy_plus_sign: Add class" to add a class.`
	}
	for i, cs := range classes {
		var b strings.Builder
		if descs[i] != "" {
			title := security.EscapeMarkdown(catalog.SplitDescription(descs[i]).Title)
			b.WriteString(truncate(title, maxTitleLength))
			b.WriteString("\n")
		}
		for _, m := range cs.Section.Meetings {
			b.WriteString(meetingLine(m, ""))
			b.WriteString("\n")
		}
		b.WriteString(instructorList(cs.Section.Instructors))

		embed.Fields = append(embed.Fields, EmbedField{
			Name:  fmt.Sprintf("%s: %s %s", cs.Course, cs.Section.Type, model.ZeroPad(cs.Section.Number)),
			Value: truncate(b.String(), maxFieldLength),
		})
	}

	return Response{
		Ephemeral:  true,
		Embeds:     []Embed{embed},
		Components: []ActionRow{scheduleActionRow(len(classes), term.Name)},
		Files:      []File{{Name: name, Path: path}},
	}, nil
}

// removeOptionValue はセレクトメニューの値 ["EECS 280",210] を作る。
func removeOptionValue(course model.Course, section int) string {
	b, _ := json.Marshal([]any{course.String(), section})
	return string(b)
}

// parseRemoveOptionValue はremoveOptionValueの逆変換。
func parseRemoveOptionValue(value string) (model.Course, int, bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(value), &raw); err != nil || len(raw) != 2 {
		return model.Course{}, 0, false
	}
	var code string
	if err := json.Unmarshal(raw[0], &code); err != nil {
		return model.Course{}, 0, false
	}
	course, ok := model.ParseCourse(code)
	if !ok {
		return model.Course{}, 0, false
	}
	var section int
	if err := json.Unmarshal(raw[1], &section); err != nil {
		var s string
		if err := json.Unmarshal(raw[1], &s); err != nil {
			return model.Course{}, 0, false
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return model.Course{}, 0, false
		}
		section = n
	}
	return course, section, true
}

// removeOptions は削除用セレクトメニューの選択肢を組み立てる。
func (c *Controller) removeOptions(ctx context.Context, classes []model.CourseSection, term int) ([]SelectOption, error) {
	descs, err := c.descriptions(ctx, classes, term)
	if err != nil {
		return nil, err
	}

	options := make([]SelectOption, len(classes))
	for i, cs := range classes {
		var days model.WeekdaySet
		for _, m := range cs.Section.Meetings {
			for _, d := range m.Days.Days() {
				days = days.Add(d)
			}
		}
		dayList := days.String()

		cut := ""
		if descs[i] != "" {
			cut = TruncateText(catalog.SplitDescription(descs[i]).Title, 95-len(dayList))
		}
		description := cut
		if dayList != "" {
			description = fmt.Sprintf("%s (%s)", cut, dayList)
		}

		options[i] = SelectOption{
			Label:       fmt.Sprintf("%s Section %s (%s)", cs.Course, model.ZeroPad(cs.Section.Number), cs.Section.Type),
			Description: description,
			Value:       removeOptionValue(cs.Course, cs.Section.Number),
		}
	}
	return options, nil
}

// unresolvedOptions はカタログから消えたセクションの登録を削除用の選択肢にする。
// GetEnrollmentsには現れないが登録数には含まれるため、削除できるようにしておく。
func unresolvedOptions(rows []model.Enrollment, classes []model.CourseSection) []SelectOption {
	resolved := make(map[string]bool, len(classes))
	for _, cs := range classes {
		resolved[removeOptionValue(cs.Course, cs.Section.Number)] = true
	}

	var options []SelectOption
	for _, row := range rows {
		course, ok := model.ParseCourse(row.CourseCode)
		if !ok {
			continue
		}
		value := removeOptionValue(course, row.Section)
		if resolved[value] {
			continue
		}
		resolved[value] = true
		options = append(options, SelectOption{
			Label:       fmt.Sprintf("%s Section %s", course, model.ZeroPad(row.Section)),
			Description: "No longer listed in the catalog",
			Value:       value,
		})
	}
	return options
}

// peerEmbeds はピア検索の結果を現在の学期と過去の履修者の2つの埋め込みにする。
func peerEmbeds(info *model.PeerInfo, termName string) []Embed {
	isOrAre := func(n int) string {
		if n == 1 {
			return "is"
		}
		return "are"
	}

	current := Embed{Title: termName + " Academic Peers"}
	if len(info.Coursemates) == 0 {
		current.Description = "No current peers found."
	}
	for _, course := range sortedKeys(info.Coursemates) {
		ids := info.Coursemates[course]
		mentions := make([]string, len(ids))
		for i, id := range ids {
			mentions[i] = mention(id)
		}
		value := strings.Join(mentions, ", ")

		bySection := map[int][]int64{}
		for _, p := range info.Sectionmates[course] {
			bySection[p.Section] = append(bySection[p.Section], p.StudentID)
		}
		var lines []string
		for _, section := range sortedKeys(bySection) {
			mates := bySection[section]
			names := make([]string, len(mates))
			for i, id := range mates {
				names[i] = mention(id)
			}
			lines = append(lines, fmt.Sprintf("%s %s also in section %s!",
				strings.Join(names, ", "), isOrAre(len(mates)), model.ZeroPad(section)))
		}
		if len(lines) > 0 {
			value += "\n\n" + strings.Join(lines, "\n")
		}

		current.Fields = append(current.Fields, EmbedField{
			Name:   course,
			Value:  truncate(value, maxFieldLength),
			Inline: true,
		})
	}

	alumni := Embed{Title: termName + " Alumni Peers"}
	if len(info.Alumni) == 0 {
		alumni.Description = "No alumni peers found."
	}
	for _, course := range sortedKeys(info.Alumni) {
		byTerm := map[int][]int64{}
		for _, a := range info.Alumni[course] {
			byTerm[a.Term] = append(byTerm[a.Term], a.StudentID)
		}
		var lines []string
		for _, code := range sortedKeys(byTerm) {
			ids := byTerm[code]
			names := make([]string, len(ids))
			for i, id := range ids {
				names[i] = mention(id)
			}
			name := model.TermName(code)
			if name == model.UnknownTermName {
				name = "unknown"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", strings.Join(names, ", "), name))
		}
		alumni.Fields = append(alumni.Fields, EmbedField{
			Name:  course,
			Value: truncate(strings.Join(lines, "\n"), maxFieldLength),
		})
	}

	return []Embed{current, alumni}
}

func sortedKeys[K string | int, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
