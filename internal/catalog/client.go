// Package catalog はミシガン大学の授業カタログ（Schedule of Classes）APIのクライアントを提供する。
// アクセストークンの管理、レスポンスの正規化、セクションとコース説明のキャッシュを含む。
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/hitoshi/reginald/internal/metrics"
	"github.com/hitoshi/reginald/internal/model"
	"github.com/hitoshi/reginald/internal/security"
)

const (
	// DefaultBaseURL はカタログAPIのベースURL。
	DefaultBaseURL = "https://gw.api.it.umich.edu/um/Curriculum/SOC"
	// maxResponseSize はレスポンスボディの最大サイズ。
	maxResponseSize = 2 << 20
	// sharedFetchTimeout はまとめたフェッチ全体の上限。呼び出し元のキャンセルには従わない。
	sharedFetchTimeout = 30 * time.Second

	cacheSection     = "section"
	cacheDescription = "description"

	endpointSection     = "section"
	endpointClass       = "class"
	endpointDescription = "description"
)

// Config はClientの設定を保持する。
type Config struct {
	BaseURL   string
	ClientID  string     // X-IBM-Client-Idヘッダーに送るクライアントID
	RateLimit rate.Limit // 上流APIへの最大リクエストレート（req/sec）。0以下の場合は無制限
	Burst     int
}

// Client はカタログAPIのクライアント。
// 返されるSectionはキャッシュと共有されるため、呼び出し側は変更してはならない。
type Client struct {
	httpClient *http.Client
	tokens     oauth2.TokenSource
	baseURL    string
	clientID   string
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	sanitizer  *security.TextSanitizer

	sections     *cache[sectionKey, *model.Section]
	descriptions *cache[courseKey, *string]
	group        singleflight.Group
}

// NewClient はClientの新しいインスタンスを生成する。
// tokensがnilの場合はAuthorizationヘッダーを付与しない。
func NewClient(httpClient *http.Client, tokens oauth2.TokenSource, cfg Config, logger *slog.Logger, collector metrics.MetricsCollector) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	return &Client{
		httpClient:   httpClient,
		tokens:       tokens,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		limiter:      rate.NewLimiter(limit, burst),
		logger:       logger,
		metrics:      collector,
		sanitizer:    security.NewTextSanitizer(),
		sections:     newCache[sectionKey, *model.Section](),
		descriptions: newCache[courseKey, *string](),
	}
}

// GetSectionBySectionNumber はコースとセクション番号からセクションを取得する。
// 結果は存在しない場合（nil）も含めてキャッシュされ、同じ引数での2回目以降は外部APIを呼ばない。
// 同じキーへの同時のキャッシュミスは1回のフェッチにまとめる。
func (c *Client) GetSectionBySectionNumber(ctx context.Context, course model.Course, sectionNumber, term int) (*model.Section, error) {
	key := sectionKey{Term: term, Course: course, Section: sectionNumber}
	if s, ok := c.sections.get(key); ok {
		c.metrics.RecordCacheHit(cacheSection)
		return s, nil
	}
	c.metrics.RecordCacheMiss(cacheSection)

	v, err := c.shared(ctx, key.String(), func(ctx context.Context) (any, error) {
		if s, ok := c.sections.get(key); ok {
			return s, nil
		}
		s, err := c.fetchSection(ctx, course, sectionNumber, term)
		if err != nil {
			return nil, err
		}
		c.sections.set(key, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Section), nil
}

// FetchSectionByClassNumber はクラス番号からセクションと所属コースを取得する。
// クラス番号での検索結果はキャッシュしないが、取得したセクションはセクション番号のキャッシュに格納する。
// 存在しない場合はnilを返す。
func (c *Client) FetchSectionByClassNumber(ctx context.Context, classNumber, term int) (*model.CourseSection, error) {
	var resp struct {
		Result *struct {
			ClassOffered oneOrMany[classOfferedJSON] `json:"ClassOffered"`
		} `json:"getSOCSectionListByNbrResponse"`
	}

	path := fmt.Sprintf("/Terms/%d/Classes/%d", term, classNumber)
	found, err := c.get(ctx, endpointClass, path, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch class %d: %w", classNumber, err)
	}
	if !found || resp.Result == nil || len(resp.Result.ClassOffered) == 0 {
		return nil, nil
	}

	offered := resp.Result.ClassOffered[0]
	course, ok := offered.course()
	if !ok {
		return nil, fmt.Errorf("カタログAPIが不正なコースコードを返しました: %q %q", offered.SubjectCode, offered.CatalogNumber)
	}
	section := offered.toSection()
	if section.ClassNumber == 0 {
		section.ClassNumber = classNumber
	}

	c.sections.set(sectionKey{Term: term, Course: course, Section: section.Number}, section)

	return &model.CourseSection{Course: course, Section: section}, nil
}

// GetCourseDescription はコース説明を取得する。説明がない場合はfalseを返す。
// 上流の「説明なし」の応答は空文字列ではなく「存在しない」として扱う。
func (c *Client) GetCourseDescription(ctx context.Context, course model.Course, term int) (string, bool, error) {
	key := courseKey{Term: term, Course: course}
	if d, ok := c.descriptions.get(key); ok {
		c.metrics.RecordCacheHit(cacheDescription)
		return derefDescription(d)
	}
	c.metrics.RecordCacheMiss(cacheDescription)

	v, err := c.shared(ctx, key.String(), func(ctx context.Context) (any, error) {
		if d, ok := c.descriptions.get(key); ok {
			return d, nil
		}
		d, err := c.fetchDescription(ctx, course, term)
		if err != nil {
			return nil, err
		}
		c.descriptions.set(key, d)
		return d, nil
	})
	if err != nil {
		return "", false, err
	}
	return derefDescription(v.(*string))
}

// shared は同じキーへの同時のキャッシュミスを1回のフェッチにまとめる。
// フェッチは呼び出し元のキャンセルから切り離して実行し、各呼び出し元は自分のctxでのみ待ちを打ち切る。
func (c *Client) shared(ctx context.Context, key string, fetch func(ctx context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return fetch(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func derefDescription(d *string) (string, bool, error) {
	if d == nil {
		return "", false, nil
	}
	return *d, true, nil
}

func (c *Client) fetchSection(ctx context.Context, course model.Course, sectionNumber, term int) (*model.Section, error) {
	var resp struct {
		Result *sectionJSON `json:"getSOCSectionDetailResponse"`
	}

	path := fmt.Sprintf("/Terms/%d/Schools/UM/Subjects/%s/CatalogNbrs/%d/Sections/%s",
		term, url.PathEscape(course.Subject), course.Number, model.ZeroPad(sectionNumber))
	found, err := c.get(ctx, endpointSection, path, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s section %d: %w", course, sectionNumber, err)
	}
	if !found || resp.Result == nil || (resp.Result.ClassNumber == 0 && resp.Result.SectionType == "") {
		return nil, nil
	}

	section := resp.Result.toSection()
	if section.Number == 0 {
		section.Number = sectionNumber
	}
	return section, nil
}

func (c *Client) fetchDescription(ctx context.Context, course model.Course, term int) (*string, error) {
	var resp struct {
		Result *struct {
			CourseDescr string `json:"CourseDescr"`
		} `json:"getSOCCourseDescrResponse"`
	}

	path := fmt.Sprintf("/Terms/%d/Schools/UM/Subjects/%s/CatalogNbrs/%d",
		term, url.PathEscape(course.Subject), course.Number)
	found, err := c.get(ctx, endpointDescription, path, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s description: %w", course, err)
	}
	if !found || resp.Result == nil {
		return nil, nil
	}

	text := c.sanitizer.PlainText(resp.Result.CourseDescr)
	if text == "" || strings.HasPrefix(strings.ToLower(text), "no course description") {
		return nil, nil
	}
	return &text, nil
}

// get はカタログAPIにGETリクエストを送り、JSONをoutにデコードする。
// 404または空のボディの場合はfalseを返す。
func (c *Client) get(ctx context.Context, endpoint, path string, out any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.clientID != "" {
		req.Header.Set("X-IBM-Client-Id", c.clientID)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			c.logger.Error("カタログAPIのアクセストークン取得に失敗しました",
				slog.String("error", err.Error()),
			)
			return false, fmt.Errorf("failed to obtain access token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordCatalogLatency(time.Since(start))
	if err != nil {
		c.metrics.RecordCatalogRequest(endpoint, 0)
		c.logger.Error("カタログAPIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return false, err
	}
	defer resp.Body.Close()

	c.metrics.RecordCatalogRequest(endpoint, resp.StatusCode)

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("カタログAPIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return false, fmt.Errorf("カタログAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return false, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("カタログAPIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return true, nil
}
