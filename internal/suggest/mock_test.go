package suggest

import (
	"context"
	"sync"

	"github.com/hitoshi/backlogroll/internal/library"
	"github.com/hitoshi/backlogroll/internal/model"
)

// --- LibrarySource モック ---

type mockLibrary struct {
	mu       sync.Mutex
	ctx      *library.SuggestionContext
	err      error
	rerolled []int64
}

func (m *mockLibrary) SuggestionContext(ctx context.Context, userID string) (*library.SuggestionContext, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ctx, nil
}

func (m *mockLibrary) RecordReroll(ctx context.Context, userID string, appID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rerolled = append(m.rerolled, appID)
}

// --- Completer モック ---

type mockCompleter struct {
	mu         sync.Mutex
	prompts    []string
	completeFn func(ctx context.Context, prompt string) (string, error)
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.completeFn(ctx, prompt)
}

func replyWith(text string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return text, nil }
}

type outcomeRecorder struct {
	nopRecorder
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) RecordSuggestion(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func backlogGame(appID int64, name string, weighted int) *model.LibraryGame {
	t := model.AppTypeGame
	return &model.LibraryGame{
		UserID:         "user-1",
		AppID:          appID,
		Name:           name,
		Type:           &t,
		Categories:     []string{model.CategorySinglePlayer},
		Genres:         []string{"RPG"},
		HeaderImage:    "https://cdn.example/" + name + ".jpg",
		MainStoryHours: floatPtr(8),
		ReviewWeighted: intPtr(weighted),
	}
}

func threeGameLibrary() *mockLibrary {
	return &mockLibrary{ctx: &library.SuggestionContext{
		Candidates: []*model.LibraryGame{
			backlogGame(10, "Alpha", 90),
			backlogGame(20, "Bravo", 80),
			backlogGame(30, "Charlie", 70),
		},
		Finished: []string{"Old Favorite"},
		Dropped:  []string{},
	}}
}

var validPrefs = model.Preferences{Mood: model.MoodChill, Energy: model.EnergyLow, Time: model.TimeShort}
