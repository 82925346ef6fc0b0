package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/backlogroll/internal/model"
	"github.com/lib/pq"
)

// PostgresMetadataRepo はPostgreSQLを使用した共有メタデータリポジトリ。
type PostgresMetadataRepo struct {
	db *sql.DB
}

// NewPostgresMetadataRepo はPostgresMetadataRepoを生成する。
func NewPostgresMetadataRepo(db *sql.DB) *PostgresMetadataRepo {
	return &PostgresMetadataRepo{db: db}
}

// FindByAppID は指定app_idのメタデータを取得する。見つからない場合はnilを返す。
func (r *PostgresMetadataRepo) FindByAppID(ctx context.Context, appID int64) (*model.GameMetadata, error) {
	m := &model.GameMetadata{}
	var appType string
	var description, releaseDate, headerImage sql.NullString
	var score, count, weighted sql.NullInt64
	var hours sql.NullFloat64

	err := r.db.QueryRowContext(ctx,
		`SELECT app_id, platform, type, name, genres, categories, description,
		        release_date, header_image, review_score, review_count,
		        review_weighted, main_story_hours, last_synced_at
		 FROM shared_game_metadata WHERE app_id = $1`,
		appID,
	).Scan(
		&m.AppID, &m.Platform, &appType, &m.Name,
		pq.Array(&m.Genres), pq.Array(&m.Categories), &description,
		&releaseDate, &headerImage, &score, &count,
		&weighted, &hours, &m.LastSyncedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メタデータの取得に失敗しました: %w", err)
	}

	m.Type = model.ParseAppType(appType)
	m.Description = nullStringValue(description)
	m.ReleaseDate = nullStringValue(releaseDate)
	m.HeaderImage = nullStringValue(headerImage)
	m.ReviewScore = nullIntPtr(score)
	m.ReviewCount = nullIntPtr(count)
	m.ReviewWeighted = nullIntPtr(weighted)
	m.MainStoryHours = nullFloatPtr(hours)

	return m, nil
}

// Upsert はapp_idをキーにメタデータを上書き保存する。
func (r *PostgresMetadataRepo) Upsert(ctx context.Context, m *model.GameMetadata) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shared_game_metadata (
		     app_id, platform, type, name, genres, categories, description,
		     release_date, header_image, review_score, review_count,
		     review_weighted, main_story_hours, last_synced_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (app_id) DO UPDATE SET
		     platform = EXCLUDED.platform,
		     type = EXCLUDED.type,
		     name = EXCLUDED.name,
		     genres = EXCLUDED.genres,
		     categories = EXCLUDED.categories,
		     description = EXCLUDED.description,
		     release_date = EXCLUDED.release_date,
		     header_image = EXCLUDED.header_image,
		     review_score = EXCLUDED.review_score,
		     review_count = EXCLUDED.review_count,
		     review_weighted = EXCLUDED.review_weighted,
		     main_story_hours = EXCLUDED.main_story_hours,
		     last_synced_at = EXCLUDED.last_synced_at`,
		m.AppID, m.Platform, string(m.Type), m.Name,
		pq.Array(nonNilStrings(m.Genres)), pq.Array(nonNilStrings(m.Categories)),
		nullString(m.Description), nullString(m.ReleaseDate), nullString(m.HeaderImage),
		m.ReviewScore, m.ReviewCount, m.ReviewWeighted, m.MainStoryHours, m.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("メタデータの保存に失敗しました: %w", err)
	}
	return nil
}
