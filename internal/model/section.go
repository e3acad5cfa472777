package model

import (
	"strings"
	"time"
)

// SectionType はセクションの種別。
type SectionType string

const (
	SectionLecture     SectionType = "LEC"
	SectionLab         SectionType = "LAB"
	SectionDiscussion  SectionType = "DIS"
	SectionRecitation  SectionType = "REC"
	SectionSeminar     SectionType = "SEM"
	SectionClinic      SectionType = "CLN"
	SectionMidterm     SectionType = "MID"
	SectionIndependent SectionType = "IND"
)

// EnrollmentStatus はセクションの登録受付状態。
type EnrollmentStatus string

const (
	StatusOpen     EnrollmentStatus = "Open"
	StatusWaitList EnrollmentStatus = "Wait List"
	StatusClosed   EnrollmentStatus = "Closed"
)

// Symbol はDiscordの絵文字表記を返す。
func (s EnrollmentStatus) Symbol() string {
	switch s {
	case StatusOpen:
		return ":green_circle:"
	case StatusWaitList:
		return ":yellow_circle:"
	case StatusClosed:
		return ":red_circle:"
	default:
		return ":white_circle:"
	}
}

// Weekday は曜日。月曜始まり。
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// weekdayCodes は上流APIの2文字の曜日コード。
var weekdayCodes = [...]string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// String は3文字の略称を返す。
func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "???"
	}
	return weekdayNames[d]
}

// Code は上流APIの2文字コードを返す。
func (d Weekday) Code() string {
	if d < Monday || d > Sunday {
		return ""
	}
	return weekdayCodes[d]
}

// Weekdays は月曜から日曜までを順に返す。
func Weekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// WeekdaySet は曜日の集合。重複は表現できず、順序は持たない。
type WeekdaySet uint8

// NewWeekdaySet は指定した曜日からなる集合を返す。
func NewWeekdaySet(days ...Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

// Add はdを加えた集合を返す。
func (s WeekdaySet) Add(d Weekday) WeekdaySet {
	return s | 1<<uint(d)
}

// Has はdが含まれるかを返す。
func (s WeekdaySet) Has(d Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Empty は空集合かどうかを返す。
func (s WeekdaySet) Empty() bool {
	return s == 0
}

// Days は月曜から順に並べた曜日のスライスを返す。
func (s WeekdaySet) Days() []Weekday {
	var days []Weekday
	for _, d := range Weekdays() {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// String は "Mon, Wed, Fri" のようにフォーマットする。
func (s WeekdaySet) String() string {
	days := s.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	return strings.Join(names, ", ")
}

// TimeRange は深夜0時からの経過時間で表した開始・終了時刻。
type TimeRange struct {
	Start time.Duration
	End   time.Duration
}

// Meeting は1つの授業時間枠を表す。
// TimeがnilのときはTBA、Locationが空のときは場所不明（ARR）を意味する。
type Meeting struct {
	Days     WeekdaySet
	Time     *TimeRange
	Location string
}

// Instructor は担当教員。
type Instructor struct {
	Uniqname  string // 小文字
	FirstName string
	LastName  string
}

// Section はコースの1つの開講セクション。
// SeatsAvailableはCapacity-Enrolledと一致するとは限らないため独立に保持する。
type Section struct {
	Number         int
	Type           SectionType
	Status         EnrollmentStatus
	Enrolled       int
	Capacity       int
	SeatsAvailable int
	Credits        float64
	ClassNumber    int
	Meetings       []Meeting
	Instructors    []Instructor
}

// CourseSection はセクションとその所属コースの組。
type CourseSection struct {
	Course  Course
	Section *Section
}
