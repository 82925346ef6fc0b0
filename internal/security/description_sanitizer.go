package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はストアの説明文などからHTMLを取り除くインターフェース。
type TextSanitizer interface {
	// Sanitize は全てのタグを除去し、実体参照を戻したプレーンテキストを返す。
	// 連続する空白は1つにまとめる。
	Sanitize(raw string) string
}

// descriptionSanitizer はbluemondayのStrictPolicyでタグを除去する。
// bluemondayのポリシーはスレッドセーフ。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewDescriptionSanitizer() *descriptionSanitizer {
	return &descriptionSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は説明文をプレーンテキストにする。
func (s *descriptionSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}
