package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
)

// 応答解析のエラー。いずれも MALFORMED_UPSTREAM_REPLY として呼び出し元へ返す。
var (
	ErrNoJSONFound      = errors.New("応答にJSONが含まれていません")
	ErrInvalidJSON      = errors.New("応答のJSONを解析できません")
	ErrInvalidAppID     = errors.New("応答のapp_idが不正です")
	ErrInvalidReasoning = errors.New("応答のreasoningが不正です")
)

// jsonObjectPattern は最初の「{」から最後の「}」までを取り出す。
// コードフェンスや前後の文章を含む応答に対応する。
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Reply は補完サービスの応答から取り出した提案。
type Reply struct {
	AppID     int64
	Reasoning string
}

// ParseReply は補完サービスの応答テキストを解析する。
// app_idは整数の数値、reasoningは空でない文字列でなければならない。
func ParseReply(text string) (Reply, error) {
	raw := jsonObjectPattern.FindString(text)
	if raw == "" {
		return Reply{}, ErrNoJSONFound
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	id, ok := fields["app_id"].(float64)
	if !ok || id != math.Trunc(id) || math.Abs(id) > 1<<53 {
		return Reply{}, ErrInvalidAppID
	}

	reasoning, ok := fields["reasoning"].(string)
	if !ok || reasoning == "" {
		return Reply{}, ErrInvalidReasoning
	}

	return Reply{AppID: int64(id), Reasoning: reasoning}, nil
}
