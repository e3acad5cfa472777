package model

import (
	"fmt"
	"time"
)

// ZeroPad はセクション番号を3桁にゼロ埋めする。3桁を超える数値は切り詰めない。
func ZeroPad(n int) string {
	return fmt.Sprintf("%03d", n)
}

// FormatTime は深夜0時からの経過時間を "3:04 PM" 形式でフォーマットする。
// nilの場合は "TBA" を返す。
func FormatTime(d *time.Duration) string {
	if d == nil {
		return "TBA"
	}
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(*d).Format("3:04 PM")
}
