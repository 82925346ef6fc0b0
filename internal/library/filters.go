// Package library はユーザーのゲームライブラリに関するルールを提供する。
// ステータス遷移、カルーセルの抽出条件、提案候補の抽出、Steamからのライブラリ更新を含む。
package library

import (
	"sort"

	"github.com/hitoshi/backlogroll/internal/model"
)

// カルーセルの抽出条件
const (
	ShortMinHours          = 1.0
	ShortMaxHours          = 5.0
	WeekendMaxHours        = 12.0
	CarouselMaxPlaytime    = 240 // 分
	RandomPickMaxPlaytime  = 120 // 分
	HighlyRatedPoolSize    = 20
	CarouselDisplaySize    = 10
	PersonalizationPoolMax = 20
)

// Carousels はトップ画面に表示する3種類のカルーセル。
type Carousels struct {
	Short       []*model.LibraryGame `json:"short"`
	Weekend     []*model.LibraryGame `json:"weekend"`
	HighlyRated []*model.LibraryGame `json:"highly_rated"`
}

// isPlayableBacklog は種別がgame、シングルプレイ対応、backlog扱いのエントリかを返す。
func isPlayableBacklog(g *model.LibraryGame) bool {
	return g.Type != nil && *g.Type == model.AppTypeGame &&
		g.HasCategory(model.CategorySinglePlayer) &&
		g.Status.IsBacklog()
}

// filter は条件に一致するエントリを抽出する。
func filter(games []*model.LibraryGame, keep func(*model.LibraryGame) bool) []*model.LibraryGame {
	out := make([]*model.LibraryGame, 0)
	for _, g := range games {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}

// sortByWeightedScore は平滑化スコアの降順に並べる。スコアが無いものは末尾、同点は名前順。
func sortByWeightedScore(games []*model.LibraryGame) {
	sort.SliceStable(games, func(i, j int) bool {
		a, b := games[i].ReviewWeighted, games[j].ReviewWeighted
		switch {
		case a != nil && b != nil && *a != *b:
			return *a > *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return games[i].Name < games[j].Name
	})
}

func limit(games []*model.LibraryGame, n int) []*model.LibraryGame {
	if len(games) > n {
		return games[:n]
	}
	return games
}

// ShortGames は1〜5時間で遊べる未プレイに近いゲームを返す。
func ShortGames(games []*model.LibraryGame) []*model.LibraryGame {
	out := filter(games, func(g *model.LibraryGame) bool {
		return isPlayableBacklog(g) && g.ReviewWeighted != nil && g.MainStoryHours != nil &&
			*g.MainStoryHours >= ShortMinHours && *g.MainStoryHours <= ShortMaxHours &&
			g.PlaytimeForever <= CarouselMaxPlaytime
	})
	sortByWeightedScore(out)
	return out
}

// WeekendGames は5時間超〜12時間で遊べるゲームを返す。
func WeekendGames(games []*model.LibraryGame) []*model.LibraryGame {
	out := filter(games, func(g *model.LibraryGame) bool {
		return isPlayableBacklog(g) && g.ReviewWeighted != nil && g.MainStoryHours != nil &&
			*g.MainStoryHours > ShortMaxHours && *g.MainStoryHours <= WeekendMaxHours &&
			g.PlaytimeForever <= CarouselMaxPlaytime
	})
	sortByWeightedScore(out)
	return out
}

// HighlyRatedUnplayed は一度も起動していない高評価ゲームを上位20件まで返す。
func HighlyRatedUnplayed(games []*model.LibraryGame) []*model.LibraryGame {
	out := filter(games, func(g *model.LibraryGame) bool {
		return isPlayableBacklog(g) && g.ReviewWeighted != nil && g.PlaytimeForever == 0
	})
	sortByWeightedScore(out)
	return limit(out, HighlyRatedPoolSize)
}

// BuildCarousels は3種類のカルーセルを組み立てる。
// 高評価カルーセルからは、表示中の短編・週末カルーセルに含まれるゲームを除外する。
func BuildCarousels(games []*model.LibraryGame) Carousels {
	short := limit(ShortGames(games), CarouselDisplaySize)
	weekend := limit(WeekendGames(games), CarouselDisplaySize)

	shown := make(map[int64]bool, len(short)+len(weekend))
	for _, g := range short {
		shown[g.AppID] = true
	}
	for _, g := range weekend {
		shown[g.AppID] = true
	}

	highlyRated := filter(HighlyRatedUnplayed(games), func(g *model.LibraryGame) bool {
		return !shown[g.AppID]
	})

	return Carousels{
		Short:       short,
		Weekend:     weekend,
		HighlyRated: limit(highlyRated, CarouselDisplaySize),
	}
}

// RandomPickPool はランダムピックの候補を返す。
func RandomPickPool(games []*model.LibraryGame) []*model.LibraryGame {
	return filter(games, func(g *model.LibraryGame) bool {
		return isPlayableBacklog(g) && g.MainStoryHours != nil && g.PlaytimeForever <= RandomPickMaxPlaytime
	})
}

// SuggestionCandidates は提案候補（game、backlog扱い、シングルプレイ対応）を平滑化スコアの降順で返す。
func SuggestionCandidates(games []*model.LibraryGame) []*model.LibraryGame {
	out := filter(games, isPlayableBacklog)
	sortByWeightedScore(out)
	return out
}

// NamesByStatus は指定ステータスのエントリ名を最大n件返す。
func NamesByStatus(games []*model.LibraryGame, status model.GameStatus, n int) []string {
	names := make([]string, 0)
	for _, g := range games {
		if g.Status == status {
			names = append(names, g.Name)
			if len(names) == n {
				break
			}
		}
	}
	return names
}
