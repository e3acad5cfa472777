package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/hitoshi/reginald/internal/metrics"
	"github.com/hitoshi/reginald/internal/model"
)

// lineWidth はグリッド線の太さ。
const lineWidth = 2

// Renderer はスケジュール画像を描画する。
// フォントフェイスは並行利用できないため描画全体をmuで直列化する。
type Renderer struct {
	cfg     Config
	face    font.Face
	mu      sync.Mutex
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewRenderer はRendererの新しいインスタンスを生成する。
func NewRenderer(cfg Config, logger *slog.Logger, collector metrics.MetricsCollector) (*Renderer, error) {
	parsed, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    cfg.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Renderer{cfg: cfg, face: face, logger: logger, metrics: collector}, nil
}

// FileName は画像ファイル名 {userId}-{termCode}-schedule.png を返す。
func FileName(userID int64, termCode int) string {
	return fmt.Sprintf("%d-%d-schedule.png", userID, termCode)
}

// Draw はクラス一覧を画像に描画する。
func (r *Renderer) Draw(classes []model.CourseSection) *image.NRGBA {
	l := ComputeLayout(r.cfg, classes)
	canvas := imaging.New(l.Width, l.Height, r.cfg.Background)

	r.mu.Lock()
	defer r.mu.Unlock()

	metricsFace := r.face.Metrics()
	ascent := metricsFace.Ascent.Ceil()
	descent := metricsFace.Descent.Ceil()

	// 縦線と曜日
	for _, d := range l.Days {
		fill(canvas, image.Rect(d.X-lineWidth/2, r.cfg.TablePadding, d.X+lineWidth/2, l.Height-r.cfg.TablePadding), r.cfg.Borders)
		baseline := r.cfg.TablePadding + r.cfg.DayLabelHeight/2 + (ascent-descent)/2
		r.text(canvas, d.Label, d.X+r.cfg.TextPadding, baseline, r.cfg.Text)
	}

	// 横線と時刻
	for _, h := range l.Hours {
		fill(canvas, image.Rect(r.cfg.TablePadding, h.Y-lineWidth/2, l.Width-r.cfg.TablePadding, h.Y+lineWidth/2), r.cfg.Borders)
		r.text(canvas, h.Label, r.cfg.TablePadding, h.Y+r.cfg.TextPadding+ascent, r.cfg.Text)
	}

	// 授業
	lineHeight := ascent + descent
	for _, b := range l.Blocks {
		c := r.cfg.Text
		if len(r.cfg.Palette) > 0 {
			c = r.cfg.Palette[b.ColorIndex]
		}
		fill(canvas, b.Rect, c)

		clip, ok := canvas.SubImage(b.Rect).(*image.NRGBA)
		if !ok {
			continue
		}
		y := b.Rect.Min.Y + r.cfg.TextPadding + ascent
		for _, line := range b.Lines {
			r.text(clip, line, b.Rect.Min.X+r.cfg.TextPadding, y, r.cfg.Text)
			y += lineHeight
		}
	}

	return canvas
}

// Render はクラス一覧を描画し、PNGとしてwに書き込む。
func (r *Renderer) Render(w io.Writer, classes []model.CourseSection) error {
	start := time.Now()
	img := r.Draw(classes)
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode schedule image: %w", err)
	}
	r.metrics.RecordRender(time.Since(start))
	return nil
}

// RenderFile はdir/{userId}-{termCode}-schedule.png に画像を書き込み、そのパスを返す。
// 一時ファイルに書き込んでからリネームする。
func (r *Renderer) RenderFile(dir string, userID int64, termCode int, classes []model.CourseSection) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create assets directory: %w", err)
	}
	path := filepath.Join(dir, FileName(userID, termCode))

	tmp, err := os.CreateTemp(dir, ".schedule-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.Render(tmp, classes); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move schedule image: %w", err)
	}

	r.logger.Debug("スケジュール画像を書き込みました",
		slog.String("path", path),
		slog.Int("classes", len(classes)),
	)
	return path, nil
}

func (r *Renderer) text(dst draw.Image, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func fill(dst draw.Image, rect image.Rectangle, c color.Color) {
	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Src)
}
