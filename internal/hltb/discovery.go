package hltb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// scriptChunkPattern はトップページから検索対象とするバンドルチャンクのパス。
var scriptChunkPattern = regexp.MustCompile(`^/_next/static/chunks/[^"]+\.js$`)

// searchCallPattern はスクリプト本文中の検索API呼び出しを検出する。
// fetch("<.../api/...>", { ... method: "POST" ... }) の形に一致し、
// 最初のキャプチャがエンドポイントのパスになる。
var searchCallPattern = regexp.MustCompile(`(?i)fetch\s*\(\s*["']([^"']*/api/[a-zA-Z0-9_/]+)["']\s*,\s*\{[^}]*method:\s*["']POST["']`)

// SearchConfig は発見した検索エンドポイントと認証トークンの組。
// 同じページ取得から得られるため、常にまとめて無効化する。
type SearchConfig struct {
	Endpoint string
	Token    string
}

// DiscoverConfig は検索エンドポイントと認証トークンを取得する。
// キャッシュが有効な間はキャッシュを返し、期限切れ・未取得の場合はトップページから再探索する。
// 取得できなかった場合は false を返す（エラーは呼び出し元に伝播しない）。
func (c *Client) DiscoverConfig(ctx context.Context) (SearchConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.cached != nil && now.Sub(c.cachedAt) < c.configTTL {
		return *c.cached, true
	}

	cfg, err := c.discover(ctx)
	if err != nil {
		c.cached = nil
		c.logger.Warn("HLTBの検索設定の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		c.recorder.RecordHLTBDiscovery(false)
		return SearchConfig{}, false
	}

	c.cached = &cfg
	c.cachedAt = now
	c.recorder.RecordHLTBDiscovery(true)
	c.logger.Info("HLTBの検索設定を取得しました",
		slog.String("endpoint", cfg.Endpoint),
	)
	return cfg, true
}

// InvalidateConfig はキャッシュ済みの検索設定を破棄する。
func (c *Client) InvalidateConfig() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

// discover はトップページ→スクリプト→initの順に取得して検索設定を組み立てる。
func (c *Client) discover(ctx context.Context) (SearchConfig, error) {
	home, err := c.get(ctx, c.baseURL)
	if err != nil {
		return SearchConfig{}, fmt.Errorf("トップページの取得に失敗しました: %w", err)
	}

	scripts := extractScriptURLs(home, c.baseURL)
	if len(scripts) == 0 {
		return SearchConfig{}, fmt.Errorf("バンドルスクリプトが見つかりません")
	}

	endpoint, err := c.findSearchEndpoint(ctx, scripts)
	if err != nil {
		return SearchConfig{}, err
	}

	token, err := c.fetchToken(ctx, endpoint)
	if err != nil {
		return SearchConfig{}, err
	}

	return SearchConfig{Endpoint: endpoint, Token: token}, nil
}

// findSearchEndpoint はスクリプトを順に取得し、最初に検索API呼び出しが見つかった時点で返す。
func (c *Client) findSearchEndpoint(ctx context.Context, scripts []string) (string, error) {
	for _, scriptURL := range scripts {
		body, err := c.get(ctx, scriptURL)
		if err != nil {
			c.logger.Debug("スクリプトの取得に失敗しました",
				slog.String("url", scriptURL),
				slog.String("error", err.Error()),
			)
			continue
		}

		if endpoint, ok := matchSearchEndpoint(body); ok {
			return endpoint, nil
		}
	}
	return "", fmt.Errorf("検索エンドポイントが見つかりません（%d件のスクリプトを検査）", len(scripts))
}

// matchSearchEndpoint はスクリプト本文から検索エンドポイントを抽出する。
func matchSearchEndpoint(script []byte) (string, bool) {
	m := searchCallPattern.FindSubmatch(script)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// fetchToken は {endpoint}/init?t={now} から認証トークンを取得する。
func (c *Client) fetchToken(ctx context.Context, endpoint string) (string, error) {
	initURL := c.resolve(strings.TrimRight(endpoint, "/") + "/init")
	u, err := url.Parse(initURL)
	if err != nil {
		return "", fmt.Errorf("initURLのパースに失敗しました: %w", err)
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return "", fmt.Errorf("認証トークンの取得に失敗しました: %w", err)
	}

	var reply struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("認証トークンのパースに失敗しました: %w", err)
	}
	if reply.Token == "" {
		return "", fmt.Errorf("認証トークンが空です")
	}
	return reply.Token, nil
}

// extractScriptURLs はHTMLのscriptタグからバンドルチャンクのURLを出現順に抽出する。
// 相対パスはbaseURLを基準に絶対URLへ解決する。
func extractScriptURLs(htmlBody []byte, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var urls []string
	seen := make(map[string]bool)

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return urls

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if string(tn) != "script" || !hasAttr {
				continue
			}

			var src string
			for {
				key, val, more := tokenizer.TagAttr()
				if strings.EqualFold(string(key), "src") {
					src = string(val)
				}
				if !more {
					break
				}
			}

			if src == "" || !scriptChunkPattern.MatchString(src) {
				continue
			}

			ref, err := url.Parse(src)
			if err != nil {
				continue
			}
			resolved := base.ResolveReference(ref).String()
			if seen[resolved] {
				continue
			}
			seen[resolved] = true
			urls = append(urls, resolved)
		}
	}
}
