package ratelimit

import (
	"fmt"
	"time"
)

// Preset は操作ごとの上限とウィンドウ幅の組。
type Preset struct {
	Name   string
	Limit  int
	Window time.Duration
}

// 操作ごとの既定プリセット
var (
	GameStatus   = Preset{Name: "gameStatus", Limit: 60, Window: time.Minute}
	GameSync     = Preset{Name: "gameSync", Limit: 10, Window: time.Minute}
	SteamRefresh = Preset{Name: "steamRefresh", Limit: 10, Window: time.Hour}
	Suggestion   = Preset{Name: "suggestion", Limit: 20, Window: time.Minute}
)

// Key はプリセット名と識別子から "operation:identity" 形式のキーを組み立てる。
func (p Preset) Key(identity string) string {
	return fmt.Sprintf("%s:%s", p.Name, identity)
}

// CheckPreset はプリセットの上限とウィンドウ幅でCheckを呼び出す。
func (l *Limiter) CheckPreset(p Preset, identity string) Result {
	return l.Check(p.Key(identity), p.Limit, p.Window)
}
