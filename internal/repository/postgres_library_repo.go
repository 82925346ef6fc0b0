package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/backlogroll/internal/model"
	"github.com/lib/pq"
)

// PostgresLibraryRepo はPostgreSQLを使用したライブラリリポジトリ。
type PostgresLibraryRepo struct {
	db *sql.DB
}

// NewPostgresLibraryRepo はPostgresLibraryRepoを生成する。
func NewPostgresLibraryRepo(db *sql.DB) *PostgresLibraryRepo {
	return &PostgresLibraryRepo{db: db}
}

const libraryColumns = `user_id, app_id, name, img_icon_url, playtime_forever, status,
        reroll_count, metadata_synced, type, genres, categories, description,
        release_date, header_image, review_score, review_count, review_weighted,
        main_story_hours, created_at, updated_at`

// syncEligiblePredicate は同期対象とするエントリの条件。
const syncEligiblePredicate = `metadata_synced = false
          AND (type IS NULL OR type = 'game')
          AND (categories IS NULL OR 'Single-player' = ANY(categories))`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLibraryGame(s rowScanner) (*model.LibraryGame, error) {
	g := &model.LibraryGame{}
	var status string
	var iconURL, appType, description, releaseDate, headerImage sql.NullString
	var score, count, weighted sql.NullInt64
	var hours sql.NullFloat64
	var genres, categories pq.StringArray

	err := s.Scan(
		&g.UserID, &g.AppID, &g.Name, &iconURL, &g.PlaytimeForever, &status,
		&g.RerollCount, &g.MetadataSynced, &appType, &genres, &categories, &description,
		&releaseDate, &headerImage, &score, &count, &weighted,
		&hours, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Status = model.GameStatus(status)
	g.ImgIconURL = nullStringValue(iconURL)
	if appType.Valid {
		t := model.ParseAppType(appType.String)
		g.Type = &t
	}
	g.Genres = []string(genres)
	g.Categories = []string(categories)
	g.Description = nullStringValue(description)
	g.ReleaseDate = nullStringValue(releaseDate)
	g.HeaderImage = nullStringValue(headerImage)
	g.ReviewScore = nullIntPtr(score)
	g.ReviewCount = nullIntPtr(count)
	g.ReviewWeighted = nullIntPtr(weighted)
	g.MainStoryHours = nullFloatPtr(hours)
	return g, nil
}

func (r *PostgresLibraryRepo) queryGames(ctx context.Context, query string, args ...any) ([]*model.LibraryGame, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*model.LibraryGame
	for rows.Next() {
		g, err := scanLibraryGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// FindByUserAndApp はユーザーIDとapp_idでエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresLibraryRepo) FindByUserAndApp(ctx context.Context, userID string, appID int64) (*model.LibraryGame, error) {
	g, err := scanLibraryGame(r.db.QueryRowContext(ctx,
		`SELECT `+libraryColumns+` FROM library_games WHERE user_id = $1 AND app_id = $2`,
		userID, appID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ライブラリエントリの取得に失敗しました: %w", err)
	}
	return g, nil
}

// ListByUser はユーザーの全エントリを名前順で返す。
func (r *PostgresLibraryRepo) ListByUser(ctx context.Context, userID string) ([]*model.LibraryGame, error) {
	games, err := r.queryGames(ctx,
		`SELECT `+libraryColumns+` FROM library_games WHERE user_id = $1 ORDER BY name, app_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ライブラリ一覧の取得に失敗しました: %w", err)
	}
	return games, nil
}

// ListUnsynced は同期対象の未同期エントリを返す。
func (r *PostgresLibraryRepo) ListUnsynced(ctx context.Context, userID string, limit int) ([]*model.LibraryGame, error) {
	query := `SELECT ` + libraryColumns + ` FROM library_games
	          WHERE user_id = $1 AND ` + syncEligiblePredicate + `
	          ORDER BY playtime_forever DESC, app_id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	games, err := r.queryGames(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("未同期エントリの取得に失敗しました: %w", err)
	}
	return games, nil
}

// ListUsersWithUnsynced は同期対象の未同期エントリを持つユーザーIDを返す。
func (r *PostgresLibraryRepo) ListUsersWithUnsynced(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM library_games
		 WHERE `+syncEligiblePredicate+`
		 ORDER BY user_id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("未同期ユーザーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("未同期ユーザーの読み取りに失敗しました: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// ApplyMetadata はメタデータをエントリへコピーし、同期済みにする。
func (r *PostgresLibraryRepo) ApplyMetadata(ctx context.Context, userID string, appID int64, m *model.GameMetadata) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE library_games SET
		     type = $3, genres = $4, categories = $5, description = $6,
		     release_date = $7, header_image = $8, review_score = $9,
		     review_count = $10, review_weighted = $11, main_story_hours = $12,
		     metadata_synced = true, updated_at = now()
		 WHERE user_id = $1 AND app_id = $2`,
		userID, appID, string(m.Type),
		pq.Array(nonNilStrings(m.Genres)), pq.Array(nonNilStrings(m.Categories)),
		nullString(m.Description), nullString(m.ReleaseDate), nullString(m.HeaderImage),
		m.ReviewScore, m.ReviewCount, m.ReviewWeighted, m.MainStoryHours,
	)
	if err != nil {
		return fmt.Errorf("メタデータの反映に失敗しました: %w", err)
	}
	return nil
}

// MarkSynced はメタデータを変更せずにエントリを同期済みにする。
func (r *PostgresLibraryRepo) MarkSynced(ctx context.Context, userID string, appID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE library_games SET metadata_synced = true, updated_at = now()
		 WHERE user_id = $1 AND app_id = $2`,
		userID, appID,
	)
	if err != nil {
		return fmt.Errorf("同期済みフラグの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus はエントリのステータスを更新する。
// playingを設定する場合は既存のplayingエントリを同一トランザクションでbacklogに戻す。
func (r *PostgresLibraryRepo) UpdateStatus(ctx context.Context, userID string, appID int64, status model.GameStatus) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if status == model.GameStatusPlaying {
		if _, err := tx.ExecContext(ctx,
			`UPDATE library_games SET status = 'backlog', updated_at = now()
			 WHERE user_id = $1 AND status = 'playing' AND app_id <> $2`,
			userID, appID,
		); err != nil {
			return false, fmt.Errorf("プレイ中エントリの解除に失敗しました: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE library_games SET status = $3, updated_at = now()
		 WHERE user_id = $1 AND app_id = $2`,
		userID, appID, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return true, nil
}

// FindPlaying はユーザーのplayingエントリを取得する。存在しない場合はnilを返す。
func (r *PostgresLibraryRepo) FindPlaying(ctx context.Context, userID string) (*model.LibraryGame, error) {
	g, err := scanLibraryGame(r.db.QueryRowContext(ctx,
		`SELECT `+libraryColumns+` FROM library_games
		 WHERE user_id = $1 AND status = 'playing'
		 ORDER BY updated_at DESC LIMIT 1`,
		userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プレイ中エントリの取得に失敗しました: %w", err)
	}
	return g, nil
}

// IncrementRerollCount はエントリのリロール回数を1増やす。
func (r *PostgresLibraryRepo) IncrementRerollCount(ctx context.Context, userID string, appID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE library_games SET reroll_count = reroll_count + 1, updated_at = now()
		 WHERE user_id = $1 AND app_id = $2`,
		userID, appID,
	)
	if err != nil {
		return fmt.Errorf("リロール回数の更新に失敗しました: %w", err)
	}
	return nil
}

// InsertMissing は未登録の所有ゲームだけを追加し、追加件数を返す。
func (r *PostgresLibraryRepo) InsertMissing(ctx context.Context, userID string, games []model.OwnedGame) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO library_games (user_id, app_id, name, img_icon_url, playtime_forever)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, app_id) DO NOTHING`,
	)
	if err != nil {
		return 0, fmt.Errorf("ステートメントの準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, g := range games {
		res, err := stmt.ExecContext(ctx, userID, g.AppID, g.Name, nullString(g.ImgIconURL), g.PlaytimeForever)
		if err != nil {
			return 0, fmt.Errorf("ライブラリエントリの追加に失敗しました: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("追加件数の取得に失敗しました: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return inserted, nil
}
