// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/backlogroll/internal/model"
)

// MetadataRepository は全ユーザー共有のメタデータキャッシュの永続化インターフェース。
type MetadataRepository interface {
	// FindByAppID は指定app_idのメタデータを取得する。見つからない場合はnilを返す。
	FindByAppID(ctx context.Context, appID int64) (*model.GameMetadata, error)

	// Upsert はapp_idをキーにメタデータを上書き保存する（後勝ち）。
	Upsert(ctx context.Context, m *model.GameMetadata) error
}

// LibraryRepository はユーザーごとのライブラリエントリの永続化インターフェース。
type LibraryRepository interface {
	// FindByUserAndApp はユーザーIDとapp_idでエントリを取得する。見つからない場合はnilを返す。
	FindByUserAndApp(ctx context.Context, userID string, appID int64) (*model.LibraryGame, error)

	// ListByUser はユーザーの全エントリを名前順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.LibraryGame, error)

	// ListUnsynced は同期対象の未同期エントリを返す。
	// 種別が未設定またはgame、かつカテゴリが未設定またはSingle-playerを含むものが対象。
	// limitが0以下の場合は全件を返す。
	ListUnsynced(ctx context.Context, userID string, limit int) ([]*model.LibraryGame, error)

	// ListUsersWithUnsynced は同期対象の未同期エントリを持つユーザーIDを返す。
	ListUsersWithUnsynced(ctx context.Context, limit int) ([]string, error)

	// ApplyMetadata はメタデータをエントリへコピーし、同期済みにする。
	ApplyMetadata(ctx context.Context, userID string, appID int64, m *model.GameMetadata) error

	// MarkSynced はメタデータを変更せずにエントリを同期済みにする。
	MarkSynced(ctx context.Context, userID string, appID int64) error

	// UpdateStatus はエントリのステータスを更新する。
	// playingを設定する場合は、既存のplayingエントリを同一トランザクションでbacklogに戻す。
	// エントリが存在しない場合はfalseを返す。
	UpdateStatus(ctx context.Context, userID string, appID int64, status model.GameStatus) (bool, error)

	// FindPlaying はユーザーのplayingエントリを取得する。存在しない場合はnilを返す。
	FindPlaying(ctx context.Context, userID string) (*model.LibraryGame, error)

	// IncrementRerollCount はエントリのリロール回数を1増やす。
	IncrementRerollCount(ctx context.Context, userID string, appID int64) error

	// InsertMissing は未登録の所有ゲームだけを追加し、追加件数を返す。
	InsertMissing(ctx context.Context, userID string, games []model.OwnedGame) (int, error)
}
