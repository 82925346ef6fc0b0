package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hitoshi/backlogroll/internal/model"
)

const (
	// DefaultCompletionBaseURL はOpenAI互換APIのベースURL。
	DefaultCompletionBaseURL = "https://api.openai.com/v1"
	// DefaultCompletionModel は既定のモデル名。
	DefaultCompletionModel = "gpt-4o-mini"
	// DefaultTemperature は既定の温度。
	DefaultTemperature = 0.7
	// DefaultMaxTokens は応答の最大トークン数。
	DefaultMaxTokens = 300
	// DefaultCompletionTimeout は1リクエストあたりのタイムアウト。
	DefaultCompletionTimeout = 30 * time.Second

	completionServiceName = "補完サービス"
	breakerName           = "completion-api"
)

// Completer はプロンプトから1回分の補完テキストを得るインターフェース。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompletionConfig はCompletionClientの設定を保持する。
type CompletionConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// CompletionClient はOpenAI互換のchat completions APIのクライアント。
// 連続した失敗でサーキットブレーカーが開き、回復まで即座に失敗を返す。
type CompletionClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        CompletionConfig
	breaker    *gobreaker.CircuitBreaker[string]
	recorder   Recorder
}

// NewCompletionClient はCompletionClientの新しいインスタンスを生成する。
func NewCompletionClient(httpClient *http.Client, logger *slog.Logger, cfg CompletionConfig) *CompletionClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCompletionBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultCompletionModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCompletionTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &CompletionClient{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
		recorder:   nopRecorder{},
	}
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			c.recorder.RecordBreakerState(to.String())
		},
	})
	return c
}

// SetRecorder はメトリクスの記録先を設定する。
func (c *CompletionClient) SetRecorder(r Recorder) {
	if r != nil {
		c.recorder = r
	}
}

// Complete はプロンプトを送信し、最初の選択肢の本文を返す。
func (c *CompletionClient) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := c.breaker.Execute(func() (string, error) {
		return c.send(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", model.NewUpstreamUnavailableError(completionServiceName)
	}
	return text, err
}

func (c *CompletionClient) send(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", model.NewUpstreamTimeoutError(completionServiceName)
		}
		c.logger.Error("補完サービスへのリクエストに失敗しました", slog.String("error", err.Error()))
		return "", model.NewUpstreamUnavailableError(completionServiceName)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", model.NewRateLimitedError(parseRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		c.logger.Error("補完サービスがエラーを返しました", slog.Int("status", resp.StatusCode))
		return "", model.NewUpstreamUnavailableError(completionServiceName)
	}

	var parsed chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", model.NewUpstreamTimeoutError(completionServiceName)
		}
		return "", model.NewMalformedUpstreamReplyError("補完サービスの応答を解析できません")
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

// isBreakerSuccess はタイムアウトと接続失敗だけをブレーカーの失敗として数える。
// レート制限や応答形式の不正はサービス自体の障害とはみなさない。
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code != model.ErrCodeUpstreamTimeout && apiErr.Code != model.ErrCodeUpstreamUnavailable
	}
	return false
}

// parseRetryAfter はRetry-Afterヘッダーの秒数を解釈する。不正な場合は0を返す。
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
