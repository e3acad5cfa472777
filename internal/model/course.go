package model

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Course はコース（科目コード + カタログ番号）を表す値型。
// 比較は構造的に行う（==で比較可能）。
type Course struct {
	Subject string // 大文字の科目コード（例: "EECS"）
	Number  int    // カタログ番号（1〜999）
}

// ParseCourse は自由入力の文字列からCourseを解析する。
//
// 前後の空白を除去したうえで、空白を含む場合は最初の空白の区切りで科目と番号に分け、
// 含まない場合は最初の数字の位置で分割する。番号が整数として解釈できない場合や
// 数字が見つからない場合はfalseを返す。
func ParseCourse(s string) (Course, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Course{}, false
	}

	var subject, number string
	if strings.IndexFunc(trimmed, unicode.IsSpace) >= 0 {
		fields := strings.Fields(trimmed)
		subject, number = fields[0], fields[1]
	} else {
		i := strings.IndexFunc(trimmed, unicode.IsDigit)
		if i < 0 {
			return Course{}, false
		}
		subject, number = trimmed[:i], trimmed[i:]
	}

	n, err := strconv.Atoi(number)
	if err != nil || n <= 0 || n >= 1000 {
		return Course{}, false
	}
	if subject == "" || strings.IndexFunc(subject, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
		return Course{}, false
	}

	return Course{Subject: strings.ToUpper(subject), Number: n}, true
}

// MustParseCourse はParseCourseに失敗した場合panicする。テストと定数定義用。
func MustParseCourse(s string) Course {
	c, ok := ParseCourse(s)
	if !ok {
		panic(fmt.Sprintf("model: invalid course code %q", s))
	}
	return c
}

// String は "{SUBJECT} {NUMBER}" 形式でフォーマットする。番号はゼロ埋めしない。
func (c Course) String() string {
	return fmt.Sprintf("%s %d", c.Subject, c.Number)
}

// Valid は科目が大文字かつトリム済みで、番号が1〜999の範囲にあるかを返す。
func (c Course) Valid() bool {
	return c.Subject != "" &&
		strings.TrimSpace(strings.ToUpper(c.Subject)) == c.Subject &&
		c.Number > 0 && c.Number < 1000
}
