package suggest

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/hitoshi/backlogroll/internal/model"
)

// Phase はセッションの段階。
type Phase string

const (
	PhaseCollectingMood   Phase = "collecting_mood"
	PhaseCollectingEnergy Phase = "collecting_energy"
	PhaseCollectingTime   Phase = "collecting_time"
	PhaseLoading          Phase = "loading"
	PhaseResult           Phase = "result"
)

// Step は回答する質問。
type Step string

const (
	StepMood   Step = "mood"
	StepEnergy Step = "energy"
	StepTime   Step = "time"
)

// stepPhase は各質問を受け付ける段階。
var stepPhase = map[Step]Phase{
	StepMood:   PhaseCollectingMood,
	StepEnergy: PhaseCollectingEnergy,
	StepTime:   PhaseCollectingTime,
}

// ErrorView はセッションに記録した直近の提案失敗。
type ErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionView はセッションの外部表現。
type SessionView struct {
	ID                string               `json:"id"`
	Phase             Phase                `json:"phase"`
	Mood              model.Mood           `json:"mood,omitempty"`
	Energy            model.Energy         `json:"energy,omitempty"`
	Time              model.TimeCommitment `json:"time,omitempty"`
	Suggestion        *model.Suggestion    `json:"suggestion,omitempty"`
	Error             *ErrorView           `json:"error,omitempty"`
	ExcludedAppIDs    []int64              `json:"excluded_app_ids"`
	CooldownRemaining int                  `json:"cooldown_remaining"`
}

// Session は1人のユーザーの提案ウィザードの状態。
// クールダウンは満了時刻として保持し、残り時間は参照時に計算する。
type Session struct {
	ID     string
	UserID string

	mu            sync.Mutex
	phase         Phase
	prefs         model.Preferences
	suggestion    *model.Suggestion
	lastErr       *ErrorView
	excluded      []int64
	reasonings    []string
	cooldownUntil time.Time
	lastAccess    time.Time
}

func newSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:         id,
		UserID:     userID,
		phase:      PhaseCollectingMood,
		lastAccess: now,
	}
}

// answer は現在の段階に対応する質問への回答を記録して次の段階へ進む。
// 3つ目の回答でloadingに入る。
func (s *Session) answer(step Step, value string) error {
	want, ok := stepPhase[step]
	if !ok || s.phase != want {
		return model.NewInvalidPhaseError(string(s.phase), "answer:"+string(step))
	}

	switch step {
	case StepMood:
		m := model.Mood(value)
		if !m.IsValid() {
			return model.NewInvalidPreferencesError()
		}
		s.prefs.Mood = m
		s.phase = PhaseCollectingEnergy
	case StepEnergy:
		e := model.Energy(value)
		if !e.IsValid() {
			return model.NewInvalidPreferencesError()
		}
		s.prefs.Energy = e
		s.phase = PhaseCollectingTime
	case StepTime:
		t := model.TimeCommitment(value)
		if !t.IsValid() {
			return model.NewInvalidPreferencesError()
		}
		s.prefs.Time = t
		s.phase = PhaseLoading
	}
	return nil
}

// back は1つ前の質問に戻る。戻り先より後の回答は破棄する。
func (s *Session) back() error {
	switch s.phase {
	case PhaseCollectingEnergy:
		s.prefs.Energy = ""
		s.prefs.Time = ""
		s.phase = PhaseCollectingMood
	case PhaseCollectingTime:
		s.prefs.Time = ""
		s.phase = PhaseCollectingEnergy
	default:
		return model.NewInvalidPhaseError(string(s.phase), "back")
	}
	return nil
}

// cooldownRemaining はクールダウンの残り秒数を切り上げで返す。
func (s *Session) cooldownRemaining(now time.Time) int {
	if !now.Before(s.cooldownUntil) {
		return 0
	}
	return int(math.Ceil(s.cooldownUntil.Sub(now).Seconds()))
}

// beginReroll は現在の提案を除外リストに加え、クールダウンを開始してloadingに入る。
// リロールした提案のapp_idを返す。
func (s *Session) beginReroll(now time.Time, cooldown time.Duration) (int64, error) {
	remaining := s.cooldownRemaining(now)
	// 直前のリロールの提案が実行中でもクールダウン中ならクールダウンとして返す
	if s.phase == PhaseLoading && remaining > 0 {
		return 0, model.NewCooldownActiveError(time.Duration(remaining) * time.Second)
	}
	if s.phase != PhaseResult || s.suggestion == nil {
		return 0, model.NewInvalidPhaseError(string(s.phase), "reroll")
	}
	if remaining > 0 {
		return 0, model.NewCooldownActiveError(time.Duration(remaining) * time.Second)
	}

	prev := s.suggestion
	s.excluded = append(s.excluded, prev.AppID)
	s.reasonings = append(s.reasonings, prev.Reasoning)
	s.cooldownUntil = now.Add(cooldown)
	s.suggestion = nil
	s.lastErr = nil
	s.phase = PhaseLoading
	return prev.AppID, nil
}

// finish は提案の結果を記録してresultに入る。
func (s *Session) finish(suggestion *model.Suggestion, err error) {
	s.phase = PhaseResult
	s.suggestion = suggestion
	s.lastErr = nil
	if err == nil {
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.lastErr = &ErrorView{Code: apiErr.Code, Message: apiErr.Message}
		return
	}
	s.lastErr = &ErrorView{Code: "INTERNAL_ERROR", Message: "提案の取得に失敗しました。"}
}

// request は現在の回答と除外状態から提案リクエストを作る。
func (s *Session) request() Request {
	return Request{
		UserID:          s.UserID,
		Preferences:     s.prefs,
		ExcludedAppIDs:  append([]int64(nil), s.excluded...),
		PriorReasonings: append([]string(nil), s.reasonings...),
	}
}

func (s *Session) view(now time.Time) SessionView {
	excluded := append([]int64{}, s.excluded...)
	return SessionView{
		ID:                s.ID,
		Phase:             s.phase,
		Mood:              s.prefs.Mood,
		Energy:            s.prefs.Energy,
		Time:              s.prefs.Time,
		Suggestion:        s.suggestion,
		Error:             s.lastErr,
		ExcludedAppIDs:    excluded,
		CooldownRemaining: s.cooldownRemaining(now),
	}
}
