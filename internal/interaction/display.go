package interaction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/reginald/internal/metrics"
)

// Display は開いているスケジュール表示。
// 有効期限まで他のインタラクションから再描画される。
type Display struct {
	ID        uint64
	UserID    int64
	Term      int
	Responder Responder
	Expire    time.Time

	// muは同じメッセージへの編集を直列化する
	mu      sync.Mutex
	expired bool
}

// Edit は表示を置き換える。期限切れ後は何もせずfalseを返す。
func (d *Display) Edit(ctx context.Context, resp Response) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.expired {
		return false, nil
	}
	return true, d.Responder.Edit(ctx, resp)
}

// MarkExpired は表示を期限切れにし、最後の編集としてrespを書き込む。
// 以降のEditは無視される。
func (d *Display) MarkExpired(ctx context.Context, resp Response) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expired = true
	return d.Responder.Edit(ctx, resp)
}

// Registry は開いているスケジュール表示の登録簿。
type Registry struct {
	mu       sync.Mutex
	next     uint64
	displays map[uint64]*Display
	metrics  metrics.MetricsCollector
}

// NewRegistry はRegistryの新しいインスタンスを生成する。
func NewRegistry(collector metrics.MetricsCollector) *Registry {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Registry{
		displays: make(map[uint64]*Display),
		metrics:  collector,
	}
}

// Register は表示を登録する。同じユーザーと学期に複数の表示を登録できる。
func (r *Registry) Register(userID int64, term int, responder Responder, expire time.Time) *Display {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	d := &Display{
		ID:        r.next,
		UserID:    userID,
		Term:      term,
		Responder: responder,
		Expire:    expire,
	}
	r.displays[d.ID] = d
	r.metrics.SetActiveDisplays(len(r.displays))
	return d
}

// Remove は表示を登録簿から外す。
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.displays, id)
	r.metrics.SetActiveDisplays(len(r.displays))
}

// Matching はユーザーと学期が一致する表示を登録順に返す。
func (r *Registry) Matching(userID int64, term int) []*Display {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Display
	for _, d := range r.displays {
		if d.UserID == userID && d.Term == term {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len は登録されている表示の数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.displays)
}
