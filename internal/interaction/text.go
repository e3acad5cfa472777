package interaction

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const ellipsis = "…"

// TruncateText は省略記号を含めてlimit文字以内に収まるよう単語単位で切り詰める。
// 切り詰めた末尾の句読点は取り除く。
func TruncateText(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	var out string
	for _, word := range strings.Fields(s) {
		candidate := word
		if out != "" {
			candidate = out + " " + word
		}
		if utf8.RuneCountInString(candidate)+utf8.RuneCountInString(ellipsis) > limit {
			break
		}
		out = candidate
	}
	return strings.TrimRightFunc(out, unicode.IsPunct) + ellipsis
}

// truncate はrune単位でlimit文字に切る。
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// plural はnが1でない場合に"s"を返す。
func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// mention はユーザーのメンション文字列を返す。
func mention(userID int64) string {
	return "<@" + strconv.FormatInt(userID, 10) + ">"
}
