// Package model はドメインモデルを定義する。
package model

import "time"

// AppType はストアカタログ上のタイトル種別を表す。
type AppType string

const (
	// AppTypeGame はゲーム本体。
	AppTypeGame AppType = "game"
	// AppTypeDLC は追加コンテンツ。
	AppTypeDLC AppType = "dlc"
	// AppTypeSoftware はゲーム以外のソフトウェア。
	AppTypeSoftware AppType = "software"
	// AppTypeUnknown はストアが種別を返さなかった場合。
	AppTypeUnknown AppType = "unknown"
)

// ParseAppType はストアが返す種別文字列をAppTypeに変換する。
// 未知の値はAppTypeUnknownになる。
func ParseAppType(s string) AppType {
	switch AppType(s) {
	case AppTypeGame, AppTypeDLC, AppTypeSoftware:
		return AppType(s)
	default:
		return AppTypeUnknown
	}
}

// CategorySinglePlayer はシングルプレイ対応を示すストアカテゴリ名。
const CategorySinglePlayer = "Single-player"

// GameMetadata は全ユーザーで共有されるタイトル単位のメタデータキャッシュ。
// app_idをキーとし、同期成功時に上書きされる。コアからは削除しない。
type GameMetadata struct {
	AppID          int64
	Platform       string
	Type           AppType
	Name           string
	Genres         []string
	Categories     []string
	Description    string
	ReleaseDate    string
	HeaderImage    string
	ReviewScore    *int     // 0-100
	ReviewCount    *int     // >= 0
	ReviewWeighted *int     // ReviewScoreとReviewCountが揃っている場合のみ
	MainStoryHours *float64 // 種別がgameの場合のみ
	LastSyncedAt   time.Time
}

// IsComplete はキャッシュとして再利用できるだけの情報が揃っているかを返す。
// gameの場合はクリア時間が埋まっている必要がある。
func (m *GameMetadata) IsComplete() bool {
	if m.Type != AppTypeGame {
		return true
	}
	return m.MainStoryHours != nil
}

// GameStatus はライブラリエントリのライフサイクル状態を表す。
type GameStatus string

const (
	// GameStatusBacklog は未着手（既定値）。空文字もbacklogとして扱う。
	GameStatusBacklog GameStatus = "backlog"
	// GameStatusPlaying はプレイ中。ユーザーごとに最大1件。
	GameStatusPlaying GameStatus = "playing"
	// GameStatusFinished はクリア済み。
	GameStatusFinished GameStatus = "finished"
	// GameStatusDropped は途中で断念。
	GameStatusDropped GameStatus = "dropped"
	// GameStatusHidden は一覧から非表示。
	GameStatusHidden GameStatus = "hidden"
)

// ValidGameStatuses は受け付けるステータスの一覧。
var ValidGameStatuses = []GameStatus{
	GameStatusBacklog,
	GameStatusPlaying,
	GameStatusFinished,
	GameStatusDropped,
	GameStatusHidden,
}

// IsValid はステータスが定義済みの値かを返す。
func (s GameStatus) IsValid() bool {
	for _, v := range ValidGameStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsBacklog は未設定を含めてbacklog扱いかどうかを返す。
func (s GameStatus) IsBacklog() bool {
	return s == "" || s == GameStatusBacklog
}

// LibraryGame はユーザーごとのライブラリエントリ。
// メタデータ列は同期時点のGameMetadataの非正規化コピー。
type LibraryGame struct {
	UserID          string
	AppID           int64
	Name            string
	ImgIconURL      string
	PlaytimeForever int // 分
	Status          GameStatus
	RerollCount     int
	MetadataSynced  bool

	Type           *AppType
	Genres         []string
	Categories     []string
	Description    string
	ReleaseDate    string
	HeaderImage    string
	ReviewScore    *int
	ReviewCount    *int
	ReviewWeighted *int
	MainStoryHours *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApplyMetadata は共有メタデータの各フィールドをエントリへコピーし、同期済みにする。
func (g *LibraryGame) ApplyMetadata(m *GameMetadata) {
	t := m.Type
	g.Type = &t
	g.Genres = m.Genres
	g.Categories = m.Categories
	g.Description = m.Description
	g.ReleaseDate = m.ReleaseDate
	g.HeaderImage = m.HeaderImage
	g.ReviewScore = m.ReviewScore
	g.ReviewCount = m.ReviewCount
	g.ReviewWeighted = m.ReviewWeighted
	g.MainStoryHours = m.MainStoryHours
	g.MetadataSynced = true
}

// HasCategory はカテゴリ一覧に指定名が含まれるかを返す。
func (g *LibraryGame) HasCategory(name string) bool {
	for _, c := range g.Categories {
		if c == name {
			return true
		}
	}
	return false
}

// OwnedGame はプラットフォームの所有ゲーム一覧から取得した1件。
type OwnedGame struct {
	AppID           int64
	Name            string
	PlaytimeForever int
	ImgIconURL      string
}
