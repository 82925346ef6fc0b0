package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger はデータベース疎通確認のインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// healthTimeout はヘルスチェックでのデータベース疎通確認のタイムアウト。
const healthTimeout = 2 * time.Second

// Health はプロセスとデータベースの疎通状態を返す。
// GET /health
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":   "unavailable",
					"database": "unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
