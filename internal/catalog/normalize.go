package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/reginald/internal/model"
)

// oneOrMany は要素が1つのときに配列ではなく単体の値として返ってくるフィールドを受け取る。
// カタログAPIはリストの要素が1つだとスカラーに潰すため、リストになりうるフィールドはすべてこれで受ける。
type oneOrMany[T any] []T

// UnmarshalJSON は配列・単体・nullのいずれも受け付ける。
func (o *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*o = nil
		return nil
	}
	if trimmed[0] == '[' {
		var many []T
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return err
	}
	*o = oneOrMany[T]{one}
	return nil
}

// flexInt は数値または数値文字列（"001"などゼロ埋めを含む）を受け取る整数。
type flexInt int

// UnmarshalJSON は数値と文字列の両方を受け付ける。空文字列は0として扱う。
func (n *flexInt) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*n = 0
		return nil
	}
	s := string(trimmed)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		v = int(f)
	}
	*n = flexInt(v)
	return nil
}

// flexFloat は数値または数値文字列を受け取る浮動小数点数。
type flexFloat float64

// UnmarshalJSON は数値と文字列の両方を受け付ける。
func (f *flexFloat) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(trimmed)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// sectionJSON はセクション詳細・クラス番号検索で共通のセクション表現。
type sectionJSON struct {
	SectionNumber      flexInt                        `json:"SectionNumber"`
	SectionType        string                         `json:"SectionType"`
	EnrollmentStatus   string                         `json:"EnrollmentStatus"`
	EnrollmentTotal    flexInt                        `json:"EnrollmentTotal"`
	EnrollmentCapacity flexInt                        `json:"EnrollmentCapacity"`
	AvailableSeats     flexInt                        `json:"AvailableSeats"`
	CreditHours        flexFloat                      `json:"CreditHours"`
	ClassNumber        flexInt                        `json:"ClassNumber"`
	Meeting            oneOrMany[meetingJSON]         `json:"Meeting"`
	ClassInstructors   oneOrMany[classInstructorJSON] `json:"ClassInstructors"`
	Instructor         oneOrMany[namedInstructorJSON] `json:"Instructor"`
}

// classOfferedJSON はクラス番号検索の結果。セクションに所属コースの情報が加わる。
type classOfferedJSON struct {
	sectionJSON
	SubjectCode   string     `json:"SubjectCode"`
	CatalogNumber flexString `json:"CatalogNumber"`
}

// flexString は文字列または数値を文字列として受け取る。
type flexString string

// UnmarshalJSON は文字列と数値の両方を受け付ける。
func (s *flexString) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(trimmed)
	return nil
}

type meetingJSON struct {
	Days     string `json:"Days"`
	Times    string `json:"Times"`
	Location string `json:"Location"`
}

// classInstructorJSON はクラス番号検索で返る "Last,First Middle" 形式の教員。
type classInstructorJSON struct {
	InstrUniqname string `json:"InstrUniqname"`
	InstrName     string `json:"InstrName"`
}

// namedInstructorJSON はセクション詳細で返る姓名分割済みの教員。
type namedInstructorJSON struct {
	Uniqname  string `json:"Uniqname"`
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
}

// toSection は上流のセクション表現をmodel.Sectionに正規化する。
func (s *sectionJSON) toSection() *model.Section {
	section := &model.Section{
		Number:         int(s.SectionNumber),
		Type:           model.SectionType(strings.ToUpper(strings.TrimSpace(s.SectionType))),
		Status:         model.EnrollmentStatus(strings.TrimSpace(s.EnrollmentStatus)),
		Enrolled:       int(s.EnrollmentTotal),
		Capacity:       int(s.EnrollmentCapacity),
		SeatsAvailable: int(s.AvailableSeats),
		Credits:        float64(s.CreditHours),
		ClassNumber:    int(s.ClassNumber),
		Meetings:       []model.Meeting{},
		Instructors:    []model.Instructor{},
	}

	for _, m := range s.Meeting {
		days := parseDays(m.Days)
		// 曜日がない枠（"TBA"など）は授業時間として扱わない
		if days.Empty() {
			continue
		}
		section.Meetings = append(section.Meetings, model.Meeting{
			Days:     days,
			Time:     parseTimes(m.Times),
			Location: normalizeLocation(m.Location),
		})
	}

	seen := make(map[string]bool)
	add := func(instr model.Instructor, ok bool) {
		if !ok || seen[instr.Uniqname] {
			return
		}
		seen[instr.Uniqname] = true
		section.Instructors = append(section.Instructors, instr)
	}
	for _, ci := range s.ClassInstructors {
		add(parseCombinedInstructor(ci.InstrUniqname, ci.InstrName))
	}
	for _, ni := range s.Instructor {
		add(parseNamedInstructor(ni))
	}

	return section
}

// parseDays は "MoWeFr" のような連結された2文字コードを曜日集合に分解する。
func parseDays(s string) model.WeekdaySet {
	var days model.WeekdaySet
	for _, d := range model.Weekdays() {
		if strings.Contains(s, d.Code()) {
			days = days.Add(d)
		}
	}
	return days
}

// parseTimes は "h:mmAM - h:mmPM" 形式の時間帯を解析する。
// "TBA" や解釈できない値はnil（時間未定）を返す。
func parseTimes(s string) *model.TimeRange {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "TBA") {
		return nil
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil
	}
	start, ok := parseClock(parts[0])
	if !ok {
		return nil
	}
	end, ok := parseClock(parts[1])
	if !ok {
		return nil
	}
	return &model.TimeRange{Start: start, End: end}
}

// parseClock は "10:30AM" を深夜0時からの経過時間に変換する。
func parseClock(s string) (time.Duration, bool) {
	t, err := time.Parse("3:04PM", strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "")))
	if err != nil {
		return 0, false
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
}

// normalizeLocation は未定を表す場所表記を空文字列に揃える。
func normalizeLocation(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "ARR", "TBA":
		return ""
	}
	return s
}

// parseCombinedInstructor は "Last,First Middle" 形式の名前を分解する。
// カンマを含まない名前は不正として捨てる。
func parseCombinedInstructor(uniqname, name string) (model.Instructor, bool) {
	last, rest, found := strings.Cut(name, ",")
	if !found {
		return model.Instructor{}, false
	}
	firstFields := strings.Fields(rest)
	uniqname = strings.ToLower(strings.TrimSpace(uniqname))
	last = strings.TrimSpace(last)
	if uniqname == "" || last == "" || len(firstFields) == 0 {
		return model.Instructor{}, false
	}
	return model.Instructor{
		Uniqname:  uniqname,
		FirstName: firstFields[0],
		LastName:  last,
	}, true
}

// parseNamedInstructor は姓名分割済みの教員表現を正規化する。
func parseNamedInstructor(ni namedInstructorJSON) (model.Instructor, bool) {
	uniqname := strings.ToLower(strings.TrimSpace(ni.Uniqname))
	if uniqname == "" {
		return model.Instructor{}, false
	}
	return model.Instructor{
		Uniqname:  uniqname,
		FirstName: strings.TrimSpace(ni.FirstName),
		LastName:  strings.TrimSpace(ni.LastName),
	}, true
}

// course はクラス番号検索の結果から所属コースを組み立てる。
func (c *classOfferedJSON) course() (model.Course, bool) {
	return model.ParseCourse(strings.TrimSpace(c.SubjectCode) + " " + strings.TrimSpace(string(c.CatalogNumber)))
}
