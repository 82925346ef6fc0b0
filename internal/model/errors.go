package model

import (
	"fmt"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code       string        // エラーコード
	Message    string        // エラーメッセージ
	Category   string        // カテゴリ: auth, validation, upstream, suggest, system
	Action     string        // ユーザー向け対処方法
	RetryAfter time.Duration // RATE_LIMITED / COOLDOWN_ACTIVE の場合のみ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNotFoundUpstream    = "NOT_FOUND_UPSTREAM"
	ErrCodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeMalformedUpstream   = "MALFORMED_UPSTREAM_REPLY"
	ErrCodeNoEligibleGames     = "NO_ELIGIBLE_GAMES"
	ErrCodeSuggestionRejected  = "SUGGESTION_REJECTED"
	ErrCodeCooldownActive      = "COOLDOWN_ACTIVE"
	ErrCodeInvalidPhase        = "INVALID_PHASE"
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeInvalidPreferences  = "INVALID_PREFERENCES"
	ErrCodeInvalidStatus       = "INVALID_STATUS"
	ErrCodeInvalidAppID        = "INVALID_APP_ID"
	ErrCodeGameNotFound        = "GAME_NOT_FOUND"
	ErrCodeSteamNotConnected   = "STEAM_NOT_CONNECTED"
	ErrCodeSuggestionsDisabled = "SUGGESTIONS_DISABLED"
)

// NewNotFoundUpstreamError は外部サービスにデータが存在しない場合のエラーを生成する。
func NewNotFoundUpstreamError(appID int64) *APIError {
	return &APIError{
		Code:     ErrCodeNotFoundUpstream,
		Message:  fmt.Sprintf("ストアにタイトルが見つかりません: %d", appID),
		Category: "upstream",
		Action:   "ストアから削除されたタイトルの可能性があります。",
	}
}

// NewUpstreamTimeoutError は外部サービスのタイムアウトエラーを生成する。
func NewUpstreamTimeoutError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamTimeout,
		Message:  fmt.Sprintf("%s の応答がタイムアウトしました。", service),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamUnavailableError は外部サービスが利用できない場合のエラーを生成する。
func NewUpstreamUnavailableError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("%s が一時的に利用できません。", service),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(retryAfter time.Duration) *APIError {
	return &APIError{
		Code:       ErrCodeRateLimited,
		Message:    "リクエストが多すぎます。",
		Category:   "system",
		Action:     "指定された時間が経過してから再度お試しください。",
		RetryAfter: retryAfter,
	}
}

// NewMalformedUpstreamReplyError は言語モデルの応答が解析できない場合のエラーを生成する。
func NewMalformedUpstreamReplyError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedUpstream,
		Message:  fmt.Sprintf("提案の応答を解析できませんでした: %s", reason),
		Category: "suggest",
		Action:   "もう一度お試しください。",
	}
}

// NewNoEligibleGamesError は提案対象のゲームが残っていない場合のエラーを生成する。
func NewNoEligibleGamesError() *APIError {
	return &APIError{
		Code:     ErrCodeNoEligibleGames,
		Message:  "提案できるゲームがありません。",
		Category: "suggest",
		Action:   "条件を変えるか、除外リストをリセットしてください。",
	}
}

// NewSuggestionRejectedError は提案されたapp_idが候補に含まれない場合のエラーを生成する。
func NewSuggestionRejectedError(appID int64) *APIError {
	return &APIError{
		Code:     ErrCodeSuggestionRejected,
		Message:  fmt.Sprintf("候補に存在しないゲームが提案されました: %d", appID),
		Category: "suggest",
		Action:   "もう一度お試しください。",
	}
}

// NewCooldownActiveError はリロールのクールダウン中エラーを生成する。
func NewCooldownActiveError(remaining time.Duration) *APIError {
	return &APIError{
		Code:       ErrCodeCooldownActive,
		Message:    fmt.Sprintf("リロールはあと%d秒お待ちください。", int(remaining.Round(time.Second).Seconds())),
		Category:   "suggest",
		Action:     "クールダウン終了後に再度お試しください。",
		RetryAfter: remaining,
	}
}

// NewInvalidPhaseError は現在の状態で許可されない操作のエラーを生成する。
func NewInvalidPhaseError(phase, operation string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPhase,
		Message:  fmt.Sprintf("現在の状態（%s）では %s を実行できません。", phase, operation),
		Category: "validation",
		Action:   "画面を更新してからやり直してください。",
	}
}

// NewSessionNotFoundError は提案セッションが存在しない場合のエラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("提案セッションが見つかりません: %s", sessionID),
		Category: "suggest",
		Action:   "最初からやり直してください。",
	}
}

// NewInvalidPreferencesError は気分・エネルギー・時間の回答が不正な場合のエラーを生成する。
func NewInvalidPreferencesError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPreferences,
		Message:  "回答の値が不正です。",
		Category: "validation",
		Action:   "選択肢の中から回答してください。",
	}
}

// NewInvalidStatusError は不正なステータス指定のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "backlog、playing、finished、dropped、hidden のいずれかを指定してください。",
	}
}

// NewInvalidAppIDError は不正なapp_id指定のエラーを生成する。
func NewInvalidAppIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAppID,
		Message:  "app_idが不正です。",
		Category: "validation",
		Action:   "正の整数を指定してください。",
	}
}

// NewGameNotFoundError はライブラリにゲームが存在しない場合のエラーを生成する。
func NewGameNotFoundError(appID int64) *APIError {
	return &APIError{
		Code:     ErrCodeGameNotFound,
		Message:  fmt.Sprintf("ライブラリにゲームが見つかりません: %d", appID),
		Category: "validation",
		Action:   "ライブラリを更新してから再度お試しください。",
	}
}

// NewSteamNotConnectedError はSteamアカウント未連携のエラーを生成する。
func NewSteamNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeSteamNotConnected,
		Message:  "Steamアカウントが連携されていません。",
		Category: "auth",
		Action:   "Steamアカウントを連携してください。",
	}
}

// NewSuggestionsDisabledError は提案機能が未設定の場合のエラーを生成する。
func NewSuggestionsDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeSuggestionsDisabled,
		Message:  "提案機能は現在利用できません。",
		Category: "system",
		Action:   "管理者に連絡してください。",
	}
}
