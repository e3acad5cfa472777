package interaction

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/reginald/internal/catalog"
	"github.com/hitoshi/reginald/internal/model"
	"github.com/hitoshi/reginald/internal/security"
)

const (
	atlasBaseURL         = "https://atlas.ai.umich.edu"
	atlasIconURL         = atlasBaseURL + "/static/images/logo/atlas-favicon-32x32.1292451fcaad.png"
	maxAuthorName        = 256
	maxListedInstructors = 10
)

func (c *Controller) registerLookup() {
	c.addCommand(&Command{
		Name:        "lookup-section",
		Description: "Look up information about a specific section of a course",
		Options: []OptionSpec{
			{
				Name:        "course-code",
				Description: `Course code, such as "EECS 280"`,
				Type:        OptionString,
				Required:    true,
			},
			{
				Name:        "section-number",
				Description: "Section number, such as 1 or 201",
				Type:        OptionInteger,
				Required:    true,
			},
			termOption("The term in which to look up the section. Current default: " + c.cfg.DefaultTerm),
		},
		Run: c.runLookup,
	})
}

func (c *Controller) runLookup(ctx context.Context, req *Request, r Responder) error {
	term, err := c.optionTerm(req)
	if err != nil {
		return err
	}
	rawCourse, _ := req.Option("course-code")
	course, ok := model.ParseCourse(rawCourse)
	if !ok {
		return model.NewInvalidCourseCodeError(security.EscapeMarkdown(rawCourse))
	}
	number, ok := req.IntOption("section-number")
	if !ok {
		raw, _ := req.Option("section-number")
		return model.NewNotIntegerError(security.EscapeMarkdown(raw))
	}

	section, err := c.catalog.GetSectionBySectionNumber(ctx, course, number, term.Code)
	if err != nil {
		return err
	}
	if section == nil {
		return model.NewNoSuchSectionError(course, number, term.Name)
	}
	desc, hasDesc, err := c.catalog.GetCourseDescription(ctx, course, term.Code)
	if err != nil {
		return err
	}

	return r.Reply(ctx, Response{Embeds: []Embed{sectionEmbed(course, section, term, desc, hasDesc)}})
}

// sectionEmbed はセクション情報の埋め込みを組み立てる。
func sectionEmbed(course model.Course, s *model.Section, term model.Term, desc string, hasDesc bool) Embed {
	embed := Embed{
		Title: fmt.Sprintf("%s: %s Section %s", course, s.Type, model.ZeroPad(s.Number)),
		Fields: []EmbedField{
			{Name: "Term", Value: term.Name, Inline: true},
			{Name: "Credits", Value: strconv.FormatFloat(s.Credits, 'f', -1, 64), Inline: true},
			{
				Name:   "Enrollment",
				Value:  fmt.Sprintf("%s %d enrolled / %d (%s)", s.Status.Symbol(), s.Enrolled, s.Capacity, s.Status),
				Inline: true,
			},
			{Name: "Instructor(s)", Value: instructorLinks(s.Instructors), Inline: true},
			{Name: "Meeting(s)", Value: truncate(meetingLines(s.Meetings), maxFieldLength)},
		},
	}

	if hasDesc {
		d := catalog.SplitDescription(desc)
		embed.Author = &EmbedAuthor{
			Name:    truncate(d.Title, maxAuthorName),
			URL:     atlasBaseURL + "/course/" + url.PathEscape(course.String()) + "/",
			IconURL: atlasIconURL,
		}
		if d.Details != "" {
			embed.Description = truncate(d.Details, 4096)
		}
	}
	return embed
}

func instructorLinks(instructors []model.Instructor) string {
	if len(instructors) == 0 {
		return "None"
	}
	n := min(len(instructors), maxListedInstructors)
	lines := make([]string, n)
	for i, in := range instructors[:n] {
		lines[i] = fmt.Sprintf("%s %s ([%s](%s/instructor/%s/))",
			in.FirstName, in.LastName, in.Uniqname, atlasBaseURL, in.Uniqname)
	}
	out := strings.Join(lines, "\n")
	if len(instructors) > maxListedInstructors {
		out += "\n..."
	}
	return out
}

func meetingLines(meetings []model.Meeting) string {
	if len(meetings) == 0 {
		return "None"
	}
	lines := make([]string, len(meetings))
	for i, m := range meetings {
		lines[i] = meetingLine(m, "_unknown_")
	}
	return strings.Join(lines, "\n")
}
