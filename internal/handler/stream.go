package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

// ndjsonStream は改行区切りJSONのストリーミング応答を書き込む。
// 最初の書き込みでヘッダーを確定し、以降は1行ごとにFlushする。
// ストリーム中はサーバーのWriteTimeoutを解除する。
type ndjsonStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	enc     *json.Encoder
	started bool
}

func newNDJSONStream(w http.ResponseWriter) *ndjsonStream {
	return &ndjsonStream{
		w:   w,
		rc:  http.NewResponseController(w),
		enc: json.NewEncoder(w),
	}
}

// Send は1行分のJSONを書き込んでFlushする。
func (s *ndjsonStream) Send(v any) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "application/x-ndjson")
		s.w.Header().Set("X-Accel-Buffering", "no")
		_ = s.rc.SetWriteDeadline(time.Time{})
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	// Flush非対応のResponseWriterではバッファリングされたまま送られる
	_ = s.rc.Flush()
	return nil
}

// Started は応答ヘッダーを送信済みかどうかを返す。
func (s *ndjsonStream) Started() bool {
	return s.started
}
