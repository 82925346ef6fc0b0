package model

// Mood はユーザーが今感じたい気分。
type Mood string

const (
	MoodAdrenaline Mood = "adrenaline"
	MoodEngaged    Mood = "engaged"
	MoodChill      Mood = "chill"
	MoodPower      Mood = "power"
	MoodEmotional  Mood = "emotional"
	MoodCurious    Mood = "curious"
)

// Energy はユーザーの残り集中力。
type Energy string

const (
	EnergyHigh   Energy = "high"
	EnergyMedium Energy = "medium"
	EnergyLow    Energy = "low"
)

// TimeCommitment はプレイに割ける時間の目安。
type TimeCommitment string

const (
	TimeShort  TimeCommitment = "short"
	TimeMedium TimeCommitment = "medium"
	TimeLong   TimeCommitment = "long"
)

// IsValid は定義済みの気分かどうかを返す。
func (m Mood) IsValid() bool {
	switch m {
	case MoodAdrenaline, MoodEngaged, MoodChill, MoodPower, MoodEmotional, MoodCurious:
		return true
	}
	return false
}

// IsValid は定義済みのエネルギー値かどうかを返す。
func (e Energy) IsValid() bool {
	switch e {
	case EnergyHigh, EnergyMedium, EnergyLow:
		return true
	}
	return false
}

// IsValid は定義済みの時間区分かどうかを返す。
func (t TimeCommitment) IsValid() bool {
	switch t {
	case TimeShort, TimeMedium, TimeLong:
		return true
	}
	return false
}

// Preferences は提案に使う3つの回答の組。
type Preferences struct {
	Mood   Mood
	Energy Energy
	Time   TimeCommitment
}

// Validate は3つの回答がすべて定義済みの値であることを検証する。
func (p Preferences) Validate() error {
	if !p.Mood.IsValid() || !p.Energy.IsValid() || !p.Time.IsValid() {
		return NewInvalidPreferencesError()
	}
	return nil
}

// SuggestionCandidate はプロンプトに載せる候補ゲーム1件分の情報。
type SuggestionCandidate struct {
	AppID           int64
	Name            string
	Genres          []string
	Categories      []string
	MainStoryHours  *float64
	PlaytimeForever int
	ReviewWeighted  *int
	RerollCount     int
}

// Suggestion は提案結果。
type Suggestion struct {
	AppID          int64    `json:"app_id"`
	Name           string   `json:"name"`
	HeaderImage    string   `json:"header_image,omitempty"`
	MainStoryHours *float64 `json:"main_story_hours,omitempty"`
	Genres         []string `json:"genres"`
	Reasoning      string   `json:"reasoning"`
}
