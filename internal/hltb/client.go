// Package hltb はHowLongToBeatからメインストーリーのクリア時間を取得する。
// 公開APIが無いため、サイトが配信するスクリプトから検索エンドポイントと
// 認証トークンを発見し、キャッシュして使用する。
package hltb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/backlogroll/internal/scoring"
)

const (
	// DefaultBaseURL はHowLongToBeatのベースURL。
	DefaultBaseURL = "https://howlongtobeat.com"
	// DefaultTimeout は1リクエストあたりのタイムアウト。
	DefaultTimeout = 10 * time.Second
	// DefaultConfigTTL は検索設定のキャッシュ有効期間。
	DefaultConfigTTL = time.Hour
	// DefaultShortResultHours はこの時間未満の先頭結果を疑わしいとみなす閾値。
	DefaultShortResultHours = 1.0

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// searchResultSize は検索で取得する上位件数。
	searchResultSize = 2
	// maxBodySize はレスポンスボディの読み取り上限。
	maxBodySize = 5 << 20
)

// Recorder はクライアントの結果を記録するメトリクスのインターフェース。
type Recorder interface {
	RecordHLTBDiscovery(success bool)
	RecordHLTBLookup(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordHLTBDiscovery(bool) {}
func (nopRecorder) RecordHLTBLookup(string)  {}

// Config はClientの設定を保持する。
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	ConfigTTL time.Duration
	// ShortResultHours は先頭結果がこの時間未満で2件目がこの時間以上なら2件目を採用する。
	// 0以下で無効。非公開サイトに対する経験則であり、短いゲームを誤判定することがある。
	ShortResultHours float64
}

// DefaultConfig は既定の設定を返す。
func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		Timeout:          DefaultTimeout,
		ConfigTTL:        DefaultConfigTTL,
		ShortResultHours: DefaultShortResultHours,
	}
}

// Client はHowLongToBeatのクライアント。
// 検索設定のキャッシュはインスタンスごとに保持する。
type Client struct {
	httpClient       *http.Client
	logger           *slog.Logger
	baseURL          string
	timeout          time.Duration
	configTTL        time.Duration
	shortResultHours float64
	recorder         Recorder
	now              func() time.Time

	mu       sync.Mutex
	cached   *SearchConfig
	cachedAt time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConfigTTL <= 0 {
		cfg.ConfigTTL = DefaultConfigTTL
	}
	return &Client{
		httpClient:       httpClient,
		logger:           logger,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		timeout:          cfg.Timeout,
		configTTL:        cfg.ConfigTTL,
		shortResultHours: cfg.ShortResultHours,
		recorder:         nopRecorder{},
		now:              time.Now,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (c *Client) SetRecorder(r Recorder) {
	if r != nil {
		c.recorder = r
	}
}

// GetMainStoryHours はタイトルのメインストーリーのクリア時間（時間）を返す。
// 見つからない場合やエラー時は false を返し、呼び出し元のバッチを失敗させない。
// 最初の検索で見つからず、タイトルに版の修飾語や括弧付きの年が含まれる場合は
// それらを除去して1回だけ再検索する。
func (c *Client) GetMainStoryHours(ctx context.Context, title string) (float64, bool) {
	cfg, ok := c.DiscoverConfig(ctx)
	if !ok {
		c.recorder.RecordHLTBLookup("no_config")
		return 0, false
	}

	if hours, ok := c.Search(ctx, cfg, title); ok {
		c.recorder.RecordHLTBLookup("found")
		return hours, true
	}

	if cleaned, stripped := StripQualifiers(title); stripped && cleaned != "" {
		c.logger.Debug("修飾語を除去して再検索します",
			slog.String("title", title),
			slog.String("cleaned", cleaned),
		)
		if hours, ok := c.Search(ctx, cfg, cleaned); ok {
			c.recorder.RecordHLTBLookup("found_fallback")
			return hours, true
		}
	}

	c.recorder.RecordHLTBLookup("not_found")
	return 0, false
}

// searchResult は検索レスポンスの1件分。comp_mainは秒単位。
type searchResult struct {
	GameName string  `json:"game_name"`
	CompMain float64 `json:"comp_main"`
}

type searchResponse struct {
	Data []searchResult `json:"data"`
}

// Search は検索エンドポイントにタイトルを問い合わせ、クリア時間（時間、小数第1位）を返す。
// 人気順の上位2件を取得し、先頭が閾値未満で2件目が閾値以上なら2件目を採用する。
func (c *Client) Search(ctx context.Context, cfg SearchConfig, title string) (float64, bool) {
	terms := NormalizeTerms(title)
	if len(terms) == 0 {
		return 0, false
	}

	payload, err := json.Marshal(newSearchRequest(terms))
	if err != nil {
		return 0, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(cfg.Endpoint), bytes.NewReader(payload))
	if err != nil {
		return 0, false
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-auth-token", cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("HLTBの検索に失敗しました",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// トークン失効の可能性があるため次回は再探索する
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
			c.InvalidateConfig()
		}
		c.logger.Warn("HLTBの検索がエラーステータスを返しました",
			slog.String("title", title),
			slog.Int("http_status", resp.StatusCode),
		)
		return 0, false
	}

	var result searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&result); err != nil {
		c.logger.Warn("HLTBの検索レスポンスのパースに失敗しました",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	chosen, ok := c.pickResult(result.Data)
	if !ok {
		return 0, false
	}
	c.logger.Debug("HLTBの検索結果を採用しました",
		slog.String("title", title),
		slog.String("matched_name", chosen.GameName),
		slog.Float64("comp_main_seconds", chosen.CompMain),
	)
	return scoring.SecondsToHours(chosen.CompMain), true
}

// pickResult は検索結果から採用する1件を選ぶ。
func (c *Client) pickResult(results []searchResult) (searchResult, bool) {
	if len(results) == 0 {
		return searchResult{}, false
	}

	first := results[0]
	if c.shortResultHours > 0 && len(results) > 1 {
		threshold := c.shortResultHours * 3600
		second := results[1]
		if first.CompMain < threshold && second.CompMain >= threshold {
			return second, true
		}
	}

	if first.CompMain <= 0 {
		return searchResult{}, false
	}
	return first, true
}

// get はGETリクエストを送信し、200の場合のみボディを返す。
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s がステータス %d を返しました", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", c.baseURL)
}

// resolve はパスをベースURL基準の絶対URLにする。絶対URLはそのまま返す。
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}
