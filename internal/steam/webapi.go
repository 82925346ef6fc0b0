package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/backlogroll/internal/model"
)

const (
	// DefaultAPIBaseURL はSteam Web APIのベースURL。
	DefaultAPIBaseURL = "https://api.steampowered.com"
	// DefaultAPITimeout はWeb APIのタイムアウト。
	DefaultAPITimeout = 10 * time.Second
)

// APIClient はSteam Web APIのクライアント。APIキーが必要。
type APIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

// NewAPIClient はAPIClientの新しいインスタンスを生成する。
func NewAPIClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	return &APIClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
	}
}

type ownedGamesResponse struct {
	Response struct {
		Games []struct {
			AppID           int64  `json:"appid"`
			Name            string `json:"name"`
			PlaytimeForever int    `json:"playtime_forever"`
			ImgIconURL      string `json:"img_icon_url"`
		} `json:"games"`
	} `json:"response"`
}

// GetOwnedGames はSteamIDが所有するゲームの一覧を取得する。
// 無料プレイのゲームも含める。非公開プロフィールの場合は空の一覧になる。
func (c *APIClient) GetOwnedGames(ctx context.Context, steamID string) ([]model.OwnedGame, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("Steam APIキーが設定されていません")
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("steamid", steamID)
	q.Set("include_appinfo", "true")
	q.Set("include_played_free_games", "true")
	reqURL := c.baseURL + "/IPlayerService/GetOwnedGames/v1/?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, model.NewUpstreamTimeoutError("Steam Web API")
		}
		c.logger.Error("Steam Web APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("Steam Web APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Steam Web APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewUpstreamUnavailableError("Steam Web API")
	}

	var payload ownedGamesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("所有ゲーム一覧のパースに失敗しました: %w", err)
	}

	games := make([]model.OwnedGame, 0, len(payload.Response.Games))
	for _, g := range payload.Response.Games {
		games = append(games, model.OwnedGame{
			AppID:           g.AppID,
			Name:            g.Name,
			PlaytimeForever: g.PlaytimeForever,
			ImgIconURL:      g.ImgIconURL,
		})
	}
	return games, nil
}
