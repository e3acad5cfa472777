// Package render は週間スケジュールのグリッド画像を描画する。
// 座標計算(ComputeLayout)は純粋関数で、描画とPNGエンコードはRendererが行う。
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/hitoshi/reginald/internal/model"
)

// Config は描画のジオメトリと配色。
type Config struct {
	ImageWidth     int // 画像全体の幅
	HeightPerHour  int // 1時間あたりの高さ
	TimeLabelWidth int // 時刻ラベル列の幅
	DayLabelHeight int // 曜日ラベル行の高さ
	TablePadding   int // 表の外側の余白
	TextPadding    int // セル内の余白
	FontSize       float64

	Background color.RGBA
	Borders    color.RGBA
	Text       color.RGBA
	Palette    []color.RGBA
}

// DefaultConfig は既定の描画設定を返す。
func DefaultConfig() Config {
	return Config{
		ImageWidth:     600,
		HeightPerHour:  80,
		TimeLabelWidth: 60,
		DayLabelHeight: 40,
		TablePadding:   20,
		TextPadding:    4,
		FontSize:       18,
		Background:     color.RGBA{R: 47, G: 49, B: 54, A: 255},
		Borders:        color.RGBA{R: 120, G: 120, B: 120, A: 255},
		Text:           color.RGBA{R: 220, G: 220, B: 220, A: 255},
		Palette: []color.RGBA{
			{R: 88, G: 101, B: 242, A: 255},
			{R: 59, G: 165, B: 93, A: 255},
			{R: 237, G: 66, B: 69, A: 255},
			{R: 250, G: 166, B: 26, A: 255},
			{R: 235, G: 69, B: 158, A: 255},
			{R: 26, G: 188, B: 156, A: 255},
			{R: 155, G: 89, B: 182, A: 255},
			{R: 230, G: 126, B: 34, A: 255},
		},
	}
}

// gridDays は描画する曜日の列。
var gridDays = []model.Weekday{model.Monday, model.Tuesday, model.Wednesday, model.Thursday, model.Friday}

// 表示範囲の既定値（時）
const (
	defaultStartHour = 9
	defaultEndHour   = 17
)

// WidthPerWeekday は曜日1列の幅。
func (c Config) WidthPerWeekday() int {
	return (c.ImageWidth - c.TimeLabelWidth - 2*c.TablePadding) / len(gridDays)
}

// DayColumn は曜日列の縦線と見出し。
type DayColumn struct {
	X     int
	Label string
}

// HourRow は時刻行の横線とラベル。
type HourRow struct {
	Y     int
	Label string
}

// Block は1回の授業の矩形。
type Block struct {
	Rect       image.Rectangle
	Day        model.Weekday
	ColorIndex int
	Lines      []string
}

// Layout は1枚の画像を描くための座標一式。
type Layout struct {
	Width     int
	Height    int
	StartHour int
	EndHour   int
	Days      []DayColumn
	Hours     []HourRow
	Blocks    []Block
}

// VisibleHours は表示する時間帯を時単位で返す。
// 開始は9時と全授業の開始時刻の最小値の切り捨て、終了は17時と終了時刻の最大値の切り上げ。
func VisibleHours(classes []model.CourseSection) (start, end int) {
	earliest := float64(defaultStartHour)
	latest := float64(defaultEndHour)
	for _, cs := range classes {
		for _, m := range cs.Section.Meetings {
			if m.Time == nil {
				continue
			}
			earliest = math.Min(earliest, hours(m.Time.Start))
			latest = math.Max(latest, hours(m.Time.End))
		}
	}
	return int(math.Floor(earliest)), int(math.Ceil(latest))
}

// ComputeLayout はクラス一覧から描画座標を計算する。
// 開始・終了時刻が未定の授業と土日の授業は矩形を持たない。
func ComputeLayout(cfg Config, classes []model.CourseSection) Layout {
	start, end := VisibleHours(classes)
	visible := end - start
	colWidth := cfg.WidthPerWeekday()
	gridTop := cfg.TablePadding + cfg.DayLabelHeight

	l := Layout{
		Width:     cfg.ImageWidth,
		Height:    cfg.HeightPerHour*visible + 2*cfg.TablePadding + cfg.DayLabelHeight,
		StartHour: start,
		EndHour:   end,
	}

	for i, d := range gridDays {
		l.Days = append(l.Days, DayColumn{
			X:     cfg.TablePadding + cfg.TimeLabelWidth + colWidth*i,
			Label: d.String(),
		})
	}
	for i := 0; i < visible; i++ {
		l.Hours = append(l.Hours, HourRow{
			Y:     gridTop + cfg.HeightPerHour*i,
			Label: FormatHour(start + i),
		})
	}

	colors := map[model.Course]int{}
	for _, cs := range classes {
		idx, ok := colors[cs.Course]
		if !ok {
			idx = len(colors)
			colors[cs.Course] = idx
		}
		if len(cfg.Palette) > 0 {
			idx %= len(cfg.Palette)
		}

		for _, m := range cs.Section.Meetings {
			if m.Time == nil {
				continue
			}
			top := float64(gridTop) + (hours(m.Time.Start)-float64(start))*float64(cfg.HeightPerHour)
			height := (hours(m.Time.End) - hours(m.Time.Start)) * float64(cfg.HeightPerHour)

			for col, d := range gridDays {
				if !m.Days.Has(d) {
					continue
				}
				left := cfg.TablePadding + cfg.TimeLabelWidth + colWidth*col
				rect := image.Rect(
					left+cfg.TextPadding,
					int(math.Round(top))+cfg.TextPadding,
					left+colWidth-cfg.TextPadding,
					int(math.Round(top+height))-cfg.TextPadding,
				)
				l.Blocks = append(l.Blocks, Block{
					Rect:       rect,
					Day:        d,
					ColorIndex: idx,
					Lines:      blockLines(cs, m),
				})
			}
		}
	}
	return l
}

func blockLines(cs model.CourseSection, m model.Meeting) []string {
	lines := []string{
		fmt.Sprintf("%s %s", cs.Course, cs.Section.Type),
		model.ZeroPad(cs.Section.Number),
	}
	if m.Location != "" {
		lines = append(lines, m.Location)
	}
	return lines
}

// FormatHour は時を12時間表記のラベルにする。
func FormatHour(hour int) string {
	h := ((hour % 24) + 24) % 24
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	shown := (h+11)%12 + 1
	return fmt.Sprintf("%d %s", shown, suffix)
}

func hours(d time.Duration) float64 {
	return d.Hours()
}
