package suggest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/backlogroll/internal/model"
)

const (
	// DefaultCooldown はリロール後に次のリロールを受け付けない期間。
	DefaultCooldown = 15 * time.Second
	// DefaultSessionTTL は最終アクセスからセッションを破棄するまでの期間。
	DefaultSessionTTL = time.Hour
	// DefaultSweepInterval は期限切れセッションを掃除する間隔。
	DefaultSweepInterval = 5 * time.Minute
)

// Suggester は提案とリロール回数の記録を行うインターフェース。
type Suggester interface {
	Suggest(ctx context.Context, req Request) (*model.Suggestion, error)
	RecordReroll(ctx context.Context, userID string, appID int64)
}

// Manager は提案セッションを保持し、状態遷移と提案の実行を仲介する。
// 同一セッションの状態遷移は直列化されるが、補完サービスの呼び出し中はロックを保持しない。
type Manager struct {
	suggester Suggester
	logger    *slog.Logger
	cooldown  time.Duration
	ttl       time.Duration
	tick      time.Duration
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager はManagerの新しいインスタンスを生成する。
func NewManager(suggester Suggester, logger *slog.Logger, cooldown, ttl time.Duration) *Manager {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		suggester: suggester,
		logger:    logger,
		cooldown:  cooldown,
		ttl:       ttl,
		tick:      time.Second,
		now:       time.Now,
		newID:     uuid.NewString,
		sessions:  make(map[string]*Session),
	}
}

// Create は新しいセッションを作成する。
func (m *Manager) Create(userID string) SessionView {
	now := m.now()
	s := newSession(m.newID(), userID, now)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug("提案セッションを作成しました",
		slog.String("user_id", userID),
		slog.String("session_id", s.ID),
	)
	return s.view(now)
}

// lookup はユーザーが所有するセッションを返す。期限切れや他人のセッションは見つからない扱い。
func (m *Manager) lookup(userID, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	return s, nil
}

// withSession はセッションをロックして fn を実行し、最新の状態を返す。
// ロックは fn の間だけ保持し、提案の実行はロックの外で行う。
func (m *Manager) withSession(userID, sessionID string, fn func(s *Session) error) (*Session, SessionView, error) {
	s, err := m.lookup(userID, sessionID)
	if err != nil {
		return nil, SessionView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := m.now()
	if now.Sub(s.lastAccess) > m.ttl {
		m.remove(sessionID)
		return nil, SessionView{}, model.NewSessionNotFoundError(sessionID)
	}
	s.lastAccess = now

	err = fn(s)
	return s, s.view(m.now()), err
}

// Get はセッションの現在の状態を返す。提案の実行中もloadingとして即座に返る。
func (m *Manager) Get(userID, sessionID string) (SessionView, error) {
	_, view, err := m.withSession(userID, sessionID, func(*Session) error { return nil })
	return view, err
}

// Answer は質問への回答を記録する。3つ目の回答で提案を実行し、結果を記録して返す。
// 提案に失敗した場合もセッションはresultに入り、エラーを返す。
func (m *Manager) Answer(ctx context.Context, userID, sessionID string, step Step, value string) (SessionView, error) {
	var req *Request
	s, view, err := m.withSession(userID, sessionID, func(s *Session) error {
		if err := s.answer(step, value); err != nil {
			return err
		}
		if s.phase == PhaseLoading {
			r := s.request()
			req = &r
		}
		return nil
	})
	if err != nil || req == nil {
		return view, err
	}
	return m.run(ctx, s, *req)
}

// Back は1つ前の質問に戻る。
func (m *Manager) Back(userID, sessionID string) (SessionView, error) {
	_, view, err := m.withSession(userID, sessionID, func(s *Session) error {
		return s.back()
	})
	return view, err
}

// Reroll は現在の提案を除外して同じ回答で提案をやり直す。
// クールダウン中は COOLDOWN_ACTIVE を返し、待機はしない。
func (m *Manager) Reroll(ctx context.Context, userID, sessionID string) (SessionView, error) {
	var (
		req   Request
		appID int64
	)
	s, view, err := m.withSession(userID, sessionID, func(s *Session) error {
		id, err := s.beginReroll(m.now(), m.cooldown)
		if err != nil {
			return err
		}
		appID = id
		req = s.request()
		return nil
	})
	if err != nil {
		return view, err
	}
	m.suggester.RecordReroll(ctx, userID, appID)
	return m.run(ctx, s, req)
}

// Reset はセッションを破棄する。除外リストとクールダウンも消える。
func (m *Manager) Reset(userID, sessionID string) error {
	if _, err := m.lookup(userID, sessionID); err != nil {
		return err
	}
	m.remove(sessionID)
	return nil
}

// Countdown はクールダウンの残り秒数を1秒ごとに送るチャネルを返す。
// 残りが0になるか ctx が終了するとチャネルは閉じられる。
func (m *Manager) Countdown(ctx context.Context, userID, sessionID string) (<-chan int, error) {
	s, err := m.lookup(userID, sessionID)
	if err != nil {
		return nil, err
	}

	remaining := func() int {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cooldownRemaining(m.now())
	}

	ch := make(chan int, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(m.tick)
		defer ticker.Stop()

		for {
			r := remaining()
			select {
			case ch <- r:
			case <-ctx.Done():
				return
			}
			if r == 0 {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Sweep は期限切れのセッションを削除し、削除件数を返す。
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		expired := now.Sub(s.lastAccess) > m.ttl
		s.mu.Unlock()
		if expired {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper は指定間隔で期限切れセッションを削除する。ctx の終了まで戻らない。
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("期限切れの提案セッションを削除しました", slog.Int("count", n))
			}
		}
	}
}

// Len は保持しているセッション数を返す。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// run はロックを持たずに提案を実行し、結果をセッションに記録する。
// 実行中のセッションはloadingのため、他の操作は待たずに拒否される。
func (m *Manager) run(ctx context.Context, s *Session, req Request) (SessionView, error) {
	suggestion, err := m.suggester.Suggest(ctx, req)

	s.mu.Lock()
	s.finish(suggestion, err)
	view := s.view(m.now())
	s.mu.Unlock()

	if err != nil {
		m.logger.Warn("提案に失敗しました",
			slog.String("user_id", s.UserID),
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
	}
	return view, err
}
