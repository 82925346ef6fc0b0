// Package steam はSteamストアとSteam Web APIのクライアントを提供する。
package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/backlogroll/internal/model"
	"golang.org/x/time/rate"
)

const (
	// DefaultStoreBaseURL はSteamストアAPIのベースURL。
	DefaultStoreBaseURL = "https://store.steampowered.com"
	// DefaultStoreTimeout はストアAPIのタイムアウト。
	DefaultStoreTimeout = 15 * time.Second
	// DefaultStoreRPS はストアAPIへの1秒あたりの最大リクエスト数。
	DefaultStoreRPS = 1.0

	maxBodySize = 5 << 20
)

// ErrRateLimited はストアが429を返した場合のエラー。
var ErrRateLimited = errors.New("steam store rate limited")

// StoreConfig はStoreClientの設定を保持する。
type StoreConfig struct {
	BaseURL string
	Timeout time.Duration
	RPS     float64
}

// StoreClient はSteamストアのアプリ詳細とレビュー集計を取得する。
// 送信するリクエストはトークンバケットで間隔を空ける。
type StoreClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
}

// NewStoreClient はStoreClientの新しいインスタンスを生成する。
func NewStoreClient(httpClient *http.Client, logger *slog.Logger, cfg StoreConfig) *StoreClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultStoreBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStoreTimeout
	}
	limit := rate.Inf
	burst := 1
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		burst = max(1, int(math.Ceil(cfg.RPS)))
	}
	return &StoreClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// AppDetails はappdetailsのレスポンス1件分。
type AppDetails struct {
	Success bool     `json:"success"`
	Data    *AppData `json:"data"`
}

// AppData はアプリの詳細情報。
type AppData struct {
	Type             string       `json:"type"`
	Name             string       `json:"name"`
	SteamAppID       int64        `json:"steam_appid"`
	ShortDescription string       `json:"short_description"`
	HeaderImage      string       `json:"header_image"`
	Genres           []Descriptor `json:"genres"`
	Categories       []Descriptor `json:"categories"`
	ReleaseDate      *ReleaseDate `json:"release_date"`
}

// Descriptor はジャンル・カテゴリの要素。IDは文字列と数値が混在するため保持しない。
type Descriptor struct {
	Description string `json:"description"`
}

// ReleaseDate は発売日情報。
type ReleaseDate struct {
	ComingSoon bool   `json:"coming_soon"`
	Date       string `json:"date"`
}

// Metadata はAppDetailsから抽出した同期対象のフィールド。
type Metadata struct {
	Type        model.AppType
	Name        string
	Genres      []string
	Categories  []string
	Description string
	ReleaseDate string
	HeaderImage string
}

// ReviewData はレビュー集計。Scoreは好評率(0-100)。
type ReviewData struct {
	Score int
	Count int
}

// GetAppDetails はアプリの詳細を取得する。
// ストアが非200を返した場合や success:false の場合は nil, nil を返す（削除済みタイトルなど）。
// 通信エラー・タイムアウト・429はエラーを返す。
func (c *StoreClient) GetAppDetails(ctx context.Context, appID int64) (*AppDetails, error) {
	q := url.Values{}
	q.Set("appids", strconv.FormatInt(appID, 10))

	var payload map[string]AppDetails
	found, err := c.getJSON(ctx, c.baseURL+"/api/appdetails?"+q.Encode(), &payload)
	if err != nil || !found {
		return nil, err
	}

	details, ok := payload[strconv.FormatInt(appID, 10)]
	if !ok || !details.Success || details.Data == nil {
		return nil, nil
	}
	return &details, nil
}

// ExtractMetadata はAppDetailsから同期対象のフィールドを取り出す。
// 存在しない任意フィールドは空スライス・空文字列になる。
func ExtractMetadata(details *AppDetails) *Metadata {
	if details == nil || !details.Success || details.Data == nil {
		return nil
	}
	d := details.Data

	m := &Metadata{
		Type:        model.ParseAppType(d.Type),
		Name:        d.Name,
		Genres:      descriptions(d.Genres),
		Categories:  descriptions(d.Categories),
		Description: d.ShortDescription,
		HeaderImage: d.HeaderImage,
	}
	if d.ReleaseDate != nil {
		m.ReleaseDate = d.ReleaseDate.Date
	}
	return m
}

func descriptions(ds []Descriptor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		if d.Description != "" {
			out = append(out, d.Description)
		}
	}
	return out
}

type reviewResponse struct {
	Success      int `json:"success"`
	QuerySummary struct {
		TotalPositive int `json:"total_positive"`
		TotalReviews  int `json:"total_reviews"`
	} `json:"query_summary"`
}

// GetReviewData はレビュー集計を取得する。
// レビューが0件の場合やクエリ失敗の場合は nil, nil を返す。
func (c *StoreClient) GetReviewData(ctx context.Context, appID int64) (*ReviewData, error) {
	q := url.Values{}
	q.Set("json", "1")
	q.Set("language", "all")
	q.Set("purchase_type", "all")
	q.Set("num_per_page", "0")
	reqURL := fmt.Sprintf("%s/appreviews/%d?%s", c.baseURL, appID, q.Encode())

	var payload reviewResponse
	found, err := c.getJSON(ctx, reqURL, &payload)
	if err != nil || !found {
		return nil, err
	}

	total := payload.QuerySummary.TotalReviews
	if payload.Success != 1 || total <= 0 {
		return nil, nil
	}

	score := int(math.Round(float64(payload.QuerySummary.TotalPositive) / float64(total) * 100))
	return &ReviewData{Score: score, Count: total}, nil
}

// getJSON はGETしてJSONをデコードする。非200（429以外）の場合は found=false を返す。
func (c *StoreClient) getJSON(ctx context.Context, rawURL string, v any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("レート制御の待機が中断されました: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, model.NewUpstreamTimeoutError("Steamストア")
		}
		return false, fmt.Errorf("Steamストアの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		c.logger.Debug("Steamストアがエラーステータスを返しました",
			slog.String("url", rawURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return false, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.logger.Warn("Steamストアのレスポンスのパースに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return true, nil
}
