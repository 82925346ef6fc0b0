// Package scoring はレビュースコアの平滑化とメタデータ鮮度の判定を提供する。
package scoring

import (
	"math"
	"time"
)

// 既定の定数。出典のない経験値のため設定で上書きできる。
const (
	DefaultConfidence = 100.0 // M: 信頼度の閾値となるレビュー件数
	DefaultPriorScore = 70.0  // C: 母集団の平均スコアとして仮定する値
	DefaultFreshness  = 7 * 24 * time.Hour
)

// Calculator はベイズ平均によるレビュースコアを計算する。
type Calculator struct {
	Confidence float64
	PriorScore float64
}

// NewCalculator は既定の定数でCalculatorを生成する。
func NewCalculator() Calculator {
	return Calculator{Confidence: DefaultConfidence, PriorScore: DefaultPriorScore}
}

// Weighted は生スコア(0-100)とレビュー件数から平滑化スコアを返す。
// (count/(count+M))*score + (M/(count+M))*C を整数に丸める。
func (c Calculator) Weighted(rawScore, rawCount int) int {
	n := float64(rawCount)
	denom := n + c.Confidence
	if denom <= 0 {
		return clamp(rawScore)
	}
	v := (n/denom)*float64(rawScore) + (c.Confidence/denom)*c.PriorScore
	return clamp(int(math.Round(v)))
}

// WeightedPtr はscoreとcountが両方ある場合のみ平滑化スコアを返す。
func (c Calculator) WeightedPtr(rawScore, rawCount *int) *int {
	if rawScore == nil || rawCount == nil {
		return nil
	}
	v := c.Weighted(*rawScore, *rawCount)
	return &v
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// IsFresh は最終同期時刻がfreshness以内かどうかを返す。
// ゼロ値の時刻は未同期とみなす。
func IsFresh(lastSynced, now time.Time, freshness time.Duration) bool {
	if lastSynced.IsZero() {
		return false
	}
	return now.Sub(lastSynced) < freshness
}

// SecondsToHours は秒数を時間に換算し、小数第1位に丸める。
func SecondsToHours(seconds float64) float64 {
	return math.Round(seconds/3600*10) / 10
}
