// Package suggest は気分・集中力・時間の回答からバックログの1本を提案する。
// プロンプトの組み立て、補完サービスの応答解析、リロールとクールダウンを持つセッションを扱う。
package suggest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hitoshi/backlogroll/internal/model"
)

// historyDisplayLimit はプロンプトに載せるクリア済み・断念したゲーム名の上限。
const historyDisplayLimit = 10

var moodDescriptions = map[model.Mood]string{
	model.MoodAdrenaline: "fast, demanding, focus-heavy, skill or reaction based gameplay",
	model.MoodEngaged:    "thinking, planning, problem-solving, meaningful choices",
	model.MoodChill:      "low pressure, cozy, forgiving gameplay with no stress",
	model.MoodPower:      "power fantasy, overwhelming the opposition and feeling strong",
	model.MoodEmotional:  "story-first, atmospheric, character-driven, memorable moments",
	model.MoodCurious:    "weird, experimental, unique mechanics worth discovering",
}

var energyDescriptions = map[model.Energy]string{
	model.EnergyHigh:   "complex systems to learn, optimization, deep mechanics",
	model.EnergyMedium: "familiar mechanics with some light thinking required",
	model.EnergyLow:    "minimal cognitive load, react-only, comfortable and easy to play",
}

var timeDescriptions = map[model.TimeCommitment]string{
	model.TimeShort:  "1-5 hours to complete OR games playable in short sessions (roguelikes count!)",
	model.TimeMedium: "5-12 hours total, perfect for a few evenings",
	model.TimeLong:   "20+ hours, deep commitment, epic adventures",
}

// PromptInput はプロンプトの組み立てに必要な情報。
type PromptInput struct {
	Preferences     model.Preferences
	Candidates      []model.SuggestionCandidate
	Finished        []string
	Dropped         []string
	ExcludedAppIDs  []int64
	PriorReasonings []string
}

// Eligible は除外リストに含まれない候補を元の順序のまま返す。
func Eligible(candidates []model.SuggestionCandidate, excluded []int64) []model.SuggestionCandidate {
	skip := make(map[int64]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	out := make([]model.SuggestionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !skip[c.AppID] {
			out = append(out, c)
		}
	}
	return out
}

// BuildPrompt は補完サービスに渡すプロンプトを組み立てる。
// 除外後に候補が残らない場合は NO_ELIGIBLE_GAMES を返す。
func BuildPrompt(in PromptInput) (string, error) {
	eligible := Eligible(in.Candidates, in.ExcludedAppIDs)
	if len(eligible) == 0 {
		return "", model.NewNoEligibleGamesError()
	}

	var b strings.Builder
	b.WriteString("You are a game recommendation assistant helping a user pick their next game from their Steam backlog.\n\n")

	b.WriteString("## USER'S CURRENT MOOD & PREFERENCES\n\n")
	fmt.Fprintf(&b, "**Desired feeling:** %s\n", moodDescriptions[in.Preferences.Mood])
	fmt.Fprintf(&b, "**Mental energy level:** %s\n", energyDescriptions[in.Preferences.Energy])
	fmt.Fprintf(&b, "**Time commitment:** %s\n\n", timeDescriptions[in.Preferences.Time])

	fmt.Fprintf(&b, "## THEIR BACKLOG (%d eligible games)\n\n", len(eligible))
	for _, c := range eligible {
		b.WriteString(FormatCandidate(c))
		b.WriteString("\n")
	}

	b.WriteString("\n## USER'S GAMING HISTORY (Important - use this to personalize your recommendation!)\n\n")
	if len(in.Finished) > 0 {
		fmt.Fprintf(&b, "**Games they FINISHED** (they loved these enough to complete - similar games are likely safe picks): %s\n\n", summarizeNames(in.Finished))
	} else {
		b.WriteString("No finished games yet.\n\n")
	}
	if len(in.Dropped) > 0 {
		fmt.Fprintf(&b, "**Games they DROPPED** (lost interest - be cautious with similar styles/genres): %s\n\n", summarizeNames(in.Dropped))
	} else {
		b.WriteString("No dropped games.\n\n")
	}
	b.WriteString(`**Playtime patterns in backlog:** Look at the "Already played" values - games with some playtime mean they've tried it and might want to continue. Games with 0 playtime are completely fresh.` + "\n\n")

	b.WriteString(taskInstructions)

	if len(in.PriorReasonings) > 0 {
		b.WriteString("\nAVOID REPETITION: The user has rerolled. Here are your previous suggestions - do NOT repeat the same reasoning patterns or reference the same games from their history:\n")
		for i, r := range in.PriorReasonings {
			fmt.Fprintf(&b, "%d. %q\n", i+1, r)
		}
		b.WriteString("\nUse DIFFERENT examples from their history and vary your reasoning style.\n")
	}

	b.WriteString(replyFormatInstructions)
	return b.String(), nil
}

const taskInstructions = `## YOUR TASK

Pick ONE game from the backlog that best matches the current mood, energy, and time preferences. Consider:
- **Their history matters**: If they finished similar games before, that's a strong signal. If they dropped similar games, be cautious.
- **Playtime signals interest**: Games they've already started playing might be good to continue. Fresh games (0 playtime) are also great for new experiences.
- Games that were skipped/rerolled before should generally be deprioritized (but not excluded)
- Higher-rated games are generally safer picks
- Match the time commitment (roguelikes work for "short" sessions even if total playtime is long)
- Match the mood/genre appropriately

IMPORTANT: Write the reasoning in second person, speaking directly to the user (use "you/your", not "the user/their"). Reference their history when relevant (e.g., "Since you finished X, you might enjoy this similar game...").
`

const replyFormatInstructions = `
Respond with ONLY valid JSON in this exact format:
{
  "app_id": <number>,
  "reasoning": "<2-3 sentences explaining why this game fits YOUR current mood, energy level, and time. Speak directly to the user.>"
}`

// FormatCandidate は候補1件を「|」区切りの1行にする。
// 値が無い項目は省略する。
func FormatCandidate(c model.SuggestionCandidate) string {
	parts := []string{fmt.Sprintf("%q (ID: %d)", c.Name, c.AppID)}
	if len(c.Genres) > 0 {
		parts = append(parts, "Genres: "+strings.Join(c.Genres, ", "))
	}
	if c.MainStoryHours != nil && *c.MainStoryHours > 0 {
		parts = append(parts, "Length: "+strconv.FormatFloat(*c.MainStoryHours, 'f', -1, 64)+"h")
	}
	if c.PlaytimeForever > 0 {
		parts = append(parts, fmt.Sprintf("Already played: %dh", int(math.Round(float64(c.PlaytimeForever)/60))))
	} else {
		parts = append(parts, "Never played")
	}
	if c.ReviewWeighted != nil && *c.ReviewWeighted > 0 {
		parts = append(parts, fmt.Sprintf("Rating: %d%%", *c.ReviewWeighted))
	}
	if c.RerollCount > 0 {
		suffix := ""
		if c.RerollCount > 1 {
			suffix = "s"
		}
		parts = append(parts, fmt.Sprintf("(Skipped %d time%s before)", c.RerollCount, suffix))
	}
	return strings.Join(parts, " | ")
}

// summarizeNames は先頭10件をカンマ区切りにし、残りを件数で示す。
func summarizeNames(names []string) string {
	if len(names) <= historyDisplayLimit {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(names[:historyDisplayLimit], ", "), len(names)-historyDisplayLimit)
}
