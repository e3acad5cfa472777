// Package security は外部由来のテキストをDiscordに表示する前の無害化を提供する。
//
// カタログAPIのコース説明にはHTMLタグや実体参照が混ざることがあるため、
// bluemondayの厳格ポリシーでタグを除去してからプレーンテキストとして扱う。
// ユーザー入力や上流データを埋め込むメッセージにはEscapeMarkdownを通す。
package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はHTMLを除去してプレーンテキストを返す。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はタグを除去し、実体参照を元の文字に戻した文字列を返す。
// 前後の空白は除去する。
func (s *TextSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

var (
	markdownSpecial = regexp.MustCompile("([*_~`\\[\\]()|\\\\])")
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// EscapeMarkdown はDiscordのマークダウン記号をエスケープし、連続する空白を1つの空白にまとめる。
func EscapeMarkdown(s string) string {
	escaped := markdownSpecial.ReplaceAllString(s, `\$1`)
	return whitespaceRun.ReplaceAllString(escaped, " ")
}
