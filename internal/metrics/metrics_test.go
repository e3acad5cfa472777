package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定した名前とラベルを持つメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabels(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func hasLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordCatalogRequest_LabelsByStatus はステータス別にカウントされることを検証する。
func TestRecordCatalogRequest_LabelsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCatalogRequest("section", 200)
	c.RecordCatalogRequest("section", 200)
	c.RecordCatalogRequest("section", 404)

	ok := findMetric(t, reg, "reginald_catalog_requests_total", map[string]string{"endpoint": "section", "status_code": "200"})
	if v := ok.GetCounter().GetValue(); v != 2 {
		t.Errorf("200 count = %v, want 2", v)
	}
	nf := findMetric(t, reg, "reginald_catalog_requests_total", map[string]string{"endpoint": "section", "status_code": "404"})
	if v := nf.GetCounter().GetValue(); v != 1 {
		t.Errorf("404 count = %v, want 1", v)
	}
}

// TestRecordCache_HitAndMiss はキャッシュのヒット・ミスが別々に記録されることを検証する。
func TestRecordCache_HitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheMiss("section")
	c.RecordCacheHit("section")
	c.RecordCacheHit("section")

	hit := findMetric(t, reg, "reginald_catalog_cache_lookups_total", map[string]string{"cache": "section", "result": "hit"})
	if v := hit.GetCounter().GetValue(); v != 2 {
		t.Errorf("hit = %v, want 2", v)
	}
	miss := findMetric(t, reg, "reginald_catalog_cache_lookups_total", map[string]string{"cache": "section", "result": "miss"})
	if v := miss.GetCounter().GetValue(); v != 1 {
		t.Errorf("miss = %v, want 1", v)
	}
}

// TestRecordPeerNotification_SplitsResult は配信成功と失敗が区別されることを検証する。
func TestRecordPeerNotification_SplitsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPeerNotification(true)
	c.RecordPeerNotification(false)
	c.RecordPeerNotification(false)

	failed := findMetric(t, reg, "reginald_peer_notifications_total", map[string]string{"result": "failed"})
	if v := failed.GetCounter().GetValue(); v != 2 {
		t.Errorf("failed = %v, want 2", v)
	}
}

// TestRecordRender_CountsAndObserves は描画回数とヒストグラムの両方が更新されることを検証する。
func TestRecordRender_CountsAndObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRender(50 * time.Millisecond)

	if v := findMetric(t, reg, "reginald_schedule_renders_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("renders_total = %v, want 1", v)
	}
	h := findMetric(t, reg, "reginald_schedule_render_seconds", nil).GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
}

// TestSetActiveDisplays_SetsGauge はゲージが上書きされることを検証する。
func TestSetActiveDisplays_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetActiveDisplays(3)
	c.SetActiveDisplays(1)

	if v := findMetric(t, reg, "reginald_active_schedule_displays", nil).GetGauge().GetValue(); v != 1 {
		t.Errorf("active displays = %v, want 1", v)
	}
}

// TestRecordInteraction_LabelsByOutcome はインタラクションの結果ラベルを検証する。
func TestRecordInteraction_LabelsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordInteraction("schedule", "ok")
	c.RecordInteraction("schedule", "rejected")

	m := findMetric(t, reg, "reginald_interactions_total", map[string]string{"name": "schedule", "outcome": "rejected"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("rejected = %v, want 1", v)
	}
}

// TestNopCollector_DoesNotPanic はNopCollectorが安全に呼び出せることを検証する。
func TestNopCollector_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = NopCollector{}
	c.RecordCatalogRequest("section", 200)
	c.RecordCatalogLatency(time.Second)
	c.RecordCacheHit("section")
	c.RecordCacheMiss("section")
	c.RecordPeerNotification(true)
	c.RecordRender(time.Second)
	c.SetActiveDisplays(1)
	c.RecordInteraction("schedule", "ok")
}
