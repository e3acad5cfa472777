package catalog

import "strings"

// Description はコース説明をタイトルと詳細に分けたもの。
type Description struct {
	Title   string
	Details string // 区切りが見つからない場合は空
}

var descriptionSeparators = []string{"---", "\n"}

// SplitDescription はコース説明を最初の "---" または改行で分割する。
// "---" を改行より優先する。
func SplitDescription(description string) Description {
	for _, sep := range descriptionSeparators {
		if i := strings.Index(description, sep); i >= 0 {
			return Description{
				Title:   strings.TrimSpace(description[:i]),
				Details: strings.TrimSpace(description[i+len(sep):]),
			}
		}
	}
	return Description{Title: description}
}
