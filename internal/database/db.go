package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// 接続プールの上限。workerは複数ユーザーの同期を並行させ、
// ユーザーごとに3タイトルずつ書き込むため、その同時実行数を賄える値にしている。
const (
	MaxOpenConns    = 20
	MaxIdleConns    = 5
	ConnMaxLifetime = 30 * time.Minute
)

// Open はライブラリとメタデータを保持するPostgreSQLへの接続プールを開く。
// sql.Openは接続を試行しないため、起動時の疎通確認は呼び出し側でdb.Ping()を使う。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(MaxOpenConns)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetConnMaxLifetime(ConnMaxLifetime)
	return db, nil
}
