package suggest

import (
	"context"
	"log/slog"

	"github.com/hitoshi/backlogroll/internal/library"
	"github.com/hitoshi/backlogroll/internal/model"
)

// 提案結果のメトリクスラベル
const (
	OutcomeSuccess    = "success"
	OutcomeNoEligible = "no_eligible"
	OutcomeRejected   = "rejected"
	OutcomeMalformed  = "malformed"
	OutcomeUpstream   = "upstream_error"
)

// Recorder は提案の結果を記録するメトリクスのインターフェース。
type Recorder interface {
	RecordSuggestion(outcome string)
	RecordBreakerState(state string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSuggestion(string)   {}
func (nopRecorder) RecordBreakerState(string) {}

// LibrarySource は提案に必要なライブラリ情報の取得元。
type LibrarySource interface {
	SuggestionContext(ctx context.Context, userID string) (*library.SuggestionContext, error)
	RecordReroll(ctx context.Context, userID string, appID int64)
}

// Request は1回分の提案リクエスト。
type Request struct {
	UserID          string
	Preferences     model.Preferences
	ExcludedAppIDs  []int64
	PriorReasonings []string
}

// Engine は候補の抽出からプロンプト生成、補完、応答検証までを行う。
type Engine struct {
	library   LibrarySource
	completer Completer
	logger    *slog.Logger
	recorder  Recorder
}

// NewEngine はEngineの新しいインスタンスを生成する。
func NewEngine(lib LibrarySource, completer Completer, logger *slog.Logger) *Engine {
	return &Engine{
		library:   lib,
		completer: completer,
		logger:    logger,
		recorder:  nopRecorder{},
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (e *Engine) SetRecorder(r Recorder) {
	if r != nil {
		e.recorder = r
	}
}

// Suggest は条件に合うゲームを1本提案する。
// 補完サービスが候補外のapp_idを返した場合は SUGGESTION_REJECTED とし、別のゲームで代用しない。
func (e *Engine) Suggest(ctx context.Context, req Request) (*model.Suggestion, error) {
	if err := req.Preferences.Validate(); err != nil {
		return nil, err
	}

	sc, err := e.library.SuggestionContext(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.SuggestionCandidate, 0, len(sc.Candidates))
	byID := make(map[int64]*model.LibraryGame, len(sc.Candidates))
	for _, g := range sc.Candidates {
		candidates = append(candidates, candidateFromGame(g))
		byID[g.AppID] = g
	}

	prompt, err := BuildPrompt(PromptInput{
		Preferences:     req.Preferences,
		Candidates:      candidates,
		Finished:        sc.Finished,
		Dropped:         sc.Dropped,
		ExcludedAppIDs:  req.ExcludedAppIDs,
		PriorReasonings: req.PriorReasonings,
	})
	if err != nil {
		e.recorder.RecordSuggestion(OutcomeNoEligible)
		return nil, err
	}

	text, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		e.recorder.RecordSuggestion(OutcomeUpstream)
		return nil, err
	}

	reply, err := ParseReply(text)
	if err != nil {
		e.logger.Error("補完サービスの応答を解析できませんでした",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		e.recorder.RecordSuggestion(OutcomeMalformed)
		return nil, model.NewMalformedUpstreamReplyError(err.Error())
	}

	eligible := make(map[int64]bool)
	for _, c := range Eligible(candidates, req.ExcludedAppIDs) {
		eligible[c.AppID] = true
	}
	game, ok := byID[reply.AppID]
	if !ok || !eligible[reply.AppID] {
		e.logger.Error("補完サービスが候補外のゲームを提案しました",
			slog.String("user_id", req.UserID),
			slog.Int64("app_id", reply.AppID),
		)
		e.recorder.RecordSuggestion(OutcomeRejected)
		return nil, model.NewSuggestionRejectedError(reply.AppID)
	}

	e.recorder.RecordSuggestion(OutcomeSuccess)
	e.logger.Info("ゲームを提案しました",
		slog.String("user_id", req.UserID),
		slog.Int64("app_id", game.AppID),
		slog.Int("eligible", len(eligible)),
	)

	return &model.Suggestion{
		AppID:          game.AppID,
		Name:           game.Name,
		HeaderImage:    game.HeaderImage,
		MainStoryHours: game.MainStoryHours,
		Genres:         game.Genres,
		Reasoning:      reply.Reasoning,
	}, nil
}

// RecordReroll はリロールされたゲームの回数を記録する。
func (e *Engine) RecordReroll(ctx context.Context, userID string, appID int64) {
	e.library.RecordReroll(ctx, userID, appID)
}

func candidateFromGame(g *model.LibraryGame) model.SuggestionCandidate {
	return model.SuggestionCandidate{
		AppID:           g.AppID,
		Name:            g.Name,
		Genres:          g.Genres,
		Categories:      g.Categories,
		MainStoryHours:  g.MainStoryHours,
		PlaytimeForever: g.PlaytimeForever,
		ReviewWeighted:  g.ReviewWeighted,
		RerollCount:     g.RerollCount,
	}
}
