package hltb

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// editionPattern は版・バリアントを表す修飾語。
	editionPattern = regexp.MustCompile(`(?i)\b(edition|enhanced|complete|ultimate|definitive)\b`)
	// yearPattern は括弧付きの4桁の年。
	yearPattern = regexp.MustCompile(`\(\d{4}\)`)
)

// NormalizeTerms はタイトルを検索語に分解する。
// 英数字と空白以外を除去し、英字と数字の境界に空白を入れ、連続する空白をまとめる。
func NormalizeTerms(title string) []string {
	var b strings.Builder
	var prev rune
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if prev != 0 && isLetterDigitBoundary(prev, r) {
				b.WriteRune(' ')
			}
			b.WriteRune(r)
			prev = r
		case unicode.IsSpace(r):
			b.WriteRune(' ')
			prev = 0
		}
	}
	return strings.Fields(b.String())
}

func isLetterDigitBoundary(prev, cur rune) bool {
	return (unicode.IsLetter(prev) && unicode.IsDigit(cur)) ||
		(unicode.IsDigit(prev) && unicode.IsLetter(cur))
}

// StripQualifiers は版の修飾語と括弧付きの年を取り除いたタイトルを返す。
// どちらも含まれない場合は false を返す。
func StripQualifiers(title string) (string, bool) {
	if !editionPattern.MatchString(title) && !yearPattern.MatchString(title) {
		return title, false
	}
	cleaned := yearPattern.ReplaceAllString(title, " ")
	cleaned = editionPattern.ReplaceAllString(cleaned, " ")
	return strings.Join(strings.Fields(cleaned), " "), true
}
