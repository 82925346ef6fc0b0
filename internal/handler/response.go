// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/hitoshi/backlogroll/internal/middleware"
	"github.com/hitoshi/backlogroll/internal/model"
)

// maxRequestBodyBytes は受け付けるリクエストボディの上限。
const maxRequestBodyBytes = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
// RetryAfterを持つエラーにはRetry-Afterヘッダーも付与する。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr.RetryAfter > 0 {
		sec := max(int(math.Ceil(apiErr.RetryAfter.Seconds())), 1)
		w.Header().Set("Retry-After", strconv.Itoa(sec))
	}
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// writeUnauthorized はユーザーIDを解決できない場合のレスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// writeInvalidRequest はリクエストボディを解析できない場合のレスポンスを書き込む。
func writeInvalidRequest(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// decodeJSON はリクエストボディをデコードする。ボディが空の場合はvを変更せずに成功とする。
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidPreferences, model.ErrCodeInvalidStatus, model.ErrCodeInvalidAppID, "INVALID_REQUEST":
		return http.StatusBadRequest
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case model.ErrCodeGameNotFound, model.ErrCodeSessionNotFound, model.ErrCodeNotFoundUpstream:
		return http.StatusNotFound
	case model.ErrCodeInvalidPhase:
		return http.StatusConflict
	case model.ErrCodeNoEligibleGames, model.ErrCodeSteamNotConnected:
		return http.StatusPreconditionFailed
	case model.ErrCodeRateLimited, model.ErrCodeCooldownActive:
		return http.StatusTooManyRequests
	case model.ErrCodeMalformedUpstream, model.ErrCodeSuggestionRejected:
		return http.StatusBadGateway
	case model.ErrCodeUpstreamUnavailable, model.ErrCodeSuggestionsDisabled:
		return http.StatusServiceUnavailable
	case model.ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
