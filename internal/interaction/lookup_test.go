package interaction

import (
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/reginald/internal/model"
)

func TestLookup_RepliesWithEmbed(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.dispatch(command("lookup-section", map[string]string{
		"course-code":    "eecs 280",
		"section-number": "1",
	}))

	reply := r.last(t, "Reply").resp
	if reply.Ephemeral {
		t.Error("検索結果が非公開になっています")
	}
	if len(reply.Embeds) != 1 {
		t.Fatalf("len(embeds) = %d, want 1", len(reply.Embeds))
	}
	e := reply.Embeds[0]
	if e.Title != "EECS 280: LEC Section 001" {
		t.Errorf("title = %q", e.Title)
	}
	if e.Author == nil || e.Author.Name != "Programming and Introductory Data Structures" {
		t.Fatalf("author = %+v", e.Author)
	}
	if e.Author.URL != "https://atlas.ai.umich.edu/course/EECS%20280/" {
		t.Errorf("author url = %q", e.Author.URL)
	}
	if e.Description != "Techniques and algorithms." {
		t.Errorf("description = %q", e.Description)
	}

	want := map[string]string{
		"Term":          "Winter 2023",
		"Credits":       "4",
		"Enrollment":    ":green_circle: 100 enrolled / 200 (Open)",
		"Instructor(s)": "James Juett ([jjuett](https://atlas.ai.umich.edu/instructor/jjuett/))",
		"Meeting(s)":    "Tue, Thu from 10:30 AM to 12:00 PM in 1013 DOW",
	}
	for _, f := range e.Fields {
		if w, ok := want[f.Name]; ok && f.Value != w {
			t.Errorf("%s = %q, want %q", f.Name, f.Value, w)
		}
		delete(want, f.Name)
	}
	if len(want) != 0 {
		t.Errorf("フィールドが足りません: %v", want)
	}
}

func TestLookup_SectionNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	r := env.dispatch(command("lookup-section", map[string]string{
		"course-code":    "EECS 280",
		"section-number": "99",
		"term":           "Fall 2023",
	}))

	want := ":x: Section 99 of EECS 280 does not exist during Fall 2023."
	if got := r.last(t, "Reply").resp.Content; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestSectionEmbed_WithoutDescription(t *testing.T) {
	s := &model.Section{Number: 210, Type: model.SectionLab, Status: model.StatusClosed, Credits: 1.5}
	e := sectionEmbed(math215, s, model.Term{Name: "Fall 2023", Code: 2460}, "", false)

	if e.Author != nil || e.Description != "" {
		t.Errorf("説明がないのに著者欄が設定されました: %+v", e)
	}
	for _, f := range e.Fields {
		switch f.Name {
		case "Credits":
			if f.Value != "1.5" {
				t.Errorf("credits = %q", f.Value)
			}
		case "Meeting(s)", "Instructor(s)":
			if f.Value != "None" {
				t.Errorf("%s = %q, want None", f.Name, f.Value)
			}
		}
	}
}

func TestInstructorLinks_CapsAtTen(t *testing.T) {
	instructors := make([]model.Instructor, 12)
	for i := range instructors {
		instructors[i] = model.Instructor{Uniqname: "prof", FirstName: "A", LastName: "B"}
	}

	got := instructorLinks(instructors)

	if n := strings.Count(got, "\n") + 1; n != 11 {
		t.Errorf("行数 = %d, want 11", n)
	}
	if !strings.HasSuffix(got, "\n...") {
		t.Errorf("省略記号がありません: %q", got)
	}
}

func TestMeetingLines_UnknownLocationAndTBA(t *testing.T) {
	got := meetingLines([]model.Meeting{
		{Days: model.NewWeekdaySet(model.Monday), Time: &model.TimeRange{Start: 9 * time.Hour, End: 10 * time.Hour}},
		{Days: model.NewWeekdaySet(model.Friday), Location: "B1560 EECS"},
	})

	want := "Mon from 9:00 AM to 10:00 AM in _unknown_\nFri from TBA to TBA in B1560 EECS"
	if got != want {
		t.Errorf("meetingLines() = %q, want %q", got, want)
	}
}

func TestMeetingLine_LocationFallback(t *testing.T) {
	m := model.Meeting{Days: model.NewWeekdaySet(model.Tuesday)}

	tests := []struct {
		name    string
		unknown string
		want    string
	}{
		{name: "時間割表示は場所を省略する", unknown: "", want: "Tue from TBA to TBA"},
		{name: "検索表示は代替文字列を使う", unknown: "_unknown_", want: "Tue from TBA to TBA in _unknown_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := meetingLine(m, tt.unknown); got != tt.want {
				t.Errorf("meetingLine() = %q, want %q", got, tt.want)
			}
		})
	}
}
