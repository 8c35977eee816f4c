package digest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/usecase/access"
	"bf1942-alert-bot/internal/usecase/dispatch"
)

type stubState struct {
	values map[string][]byte
}

func newStubState() *stubState { return &stubState{values: make(map[string][]byte)} }

func (s *stubState) GetState(_ context.Context, key string, dst any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (s *stubState) SetState(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.values[key] = raw
	return nil
}

type stubDigestSubs struct {
	candidates []domain.Candidate
}

func (s *stubDigestSubs) UpsertDigestSubscription(context.Context, domain.DigestSubscription) error {
	return nil
}
func (s *stubDigestSubs) DeleteDigestSubscription(context.Context, int64) (int64, error) {
	return 0, nil
}
func (s *stubDigestSubs) DigestCandidates(context.Context) ([]domain.Candidate, error) {
	return s.candidates, nil
}

type stubStats struct{}

func (stubStats) ServerDetails(context.Context, string) (*domain.ServerSnapshot, error) {
	return nil, nil
}
func (stubStats) LastRoundForServer(context.Context, string) (*domain.RoundRecord, error) {
	return nil, nil
}
func (stubStats) RoundTopPlayers(context.Context, int64, int) ([]domain.RoundPlayer, error) {
	return nil, nil
}
func (stubStats) DigestStats(context.Context) (domain.DigestStats, error) {
	return domain.DigestStats{Rounds24h: 17, UniquePlayers24h: 43}, nil
}
func (stubStats) MostActiveServers24h(context.Context, int) ([]domain.ServerActivity, error) {
	return []domain.ServerActivity{{ServerName: "Moongamers", RoundCount: 9}}, nil
}
func (stubStats) TopPlayers24h(context.Context, int) ([]domain.PlayerActivity, error) {
	return []domain.PlayerActivity{{PlayerName: "ace", TotalScore: 120, TotalKills: 50}}, nil
}

type recordingSink struct {
	direct int
}

func (r *recordingSink) CanPost(int64) (bool, error) { return true, nil }
func (r *recordingSink) SendChannel(context.Context, int64, domain.Alert) error {
	return nil
}
func (r *recordingSink) SendDirect(context.Context, int64, domain.Alert) error {
	r.direct++
	return nil
}

// onceCache имитирует redis SetNX: тело выполняется только при первом
// захвате ключа.
type onceCache struct {
	keys map[string]struct{}
}

func (c *onceCache) Once(key string, _ time.Duration, fn func() error) error {
	if _, ok := c.keys[key]; ok {
		return nil
	}
	c.keys[key] = struct{}{}
	return fn()
}
func (c *onceCache) Set(string, []byte, time.Duration) error { return nil }
func (c *onceCache) Get(string) ([]byte, error)              { return nil, nil }

func newTestService(subs *stubDigestSubs, state *stubState, cache domain.Cache, sink *recordingSink) *Service {
	blocklist := domain.Blocklist{Users: map[int64]struct{}{}, Guilds: map[int64]struct{}{}}
	ac := access.NewController(blocklist, sink, zerolog.Nop())
	d := dispatch.NewDispatcher(sink, 1000, 1000, zerolog.Nop())
	return NewService(subs, stubStats{}, state, cache, ac, d, zerolog.Nop())
}

func candidateDM(userID int64) domain.Candidate {
	return domain.Candidate{UserID: userID, Destination: domain.Destination{UserID: userID}}
}

func TestRunOutsideWindowIsNoop(t *testing.T) {
	state := newStubState()
	sink := &recordingSink{}
	svc := newTestService(&stubDigestSubs{candidates: []domain.Candidate{candidateDM(1)}}, state, nil, sink)

	for _, at := range []time.Time{
		time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC),
	} {
		if err := svc.Run(context.Background(), at); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if sink.direct != 0 {
		t.Fatalf("вне окна сводка не рассылается, отправок %d", sink.direct)
	}
	if len(state.values) != 0 {
		t.Fatalf("вне окна состояние не трогается")
	}
}

func TestRunInsideWindowSendsAndMarksDate(t *testing.T) {
	state := newStubState()
	sink := &recordingSink{}
	svc := newTestService(&stubDigestSubs{candidates: []domain.Candidate{candidateDM(1), candidateDM(2)}}, state, nil, sink)

	at := time.Date(2026, 3, 10, 0, 2, 0, 0, time.UTC)
	if err := svc.Run(context.Background(), at); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 2 {
		t.Fatalf("ожидали 2 отправки, получили %d", sink.direct)
	}

	var lastDate string
	found, err := state.GetState(context.Background(), StateKeyLastDigestDate, &lastDate)
	if err != nil || !found {
		t.Fatalf("дата сводки должна быть сохранена: found=%v err=%v", found, err)
	}
	if lastDate != "2026-03-10" {
		t.Fatalf("ожидали дату 2026-03-10, получили %q", lastDate)
	}

	// Второе срабатывание в том же окне — тихий no-op.
	if err := svc.Run(context.Background(), at.Add(time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 2 {
		t.Fatalf("сводка не должна уходить дважды за день, отправок %d", sink.direct)
	}
}

func TestRunNextDaySendsAgain(t *testing.T) {
	state := newStubState()
	sink := &recordingSink{}
	svc := newTestService(&stubDigestSubs{candidates: []domain.Candidate{candidateDM(1)}}, state, nil, sink)

	if err := svc.Run(context.Background(), time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := svc.Run(context.Background(), time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 2 {
		t.Fatalf("на следующий день сводка должна уйти снова, отправок %d", sink.direct)
	}
}

func TestRunNoCandidatesStillMarksDate(t *testing.T) {
	state := newStubState()
	sink := &recordingSink{}
	svc := newTestService(&stubDigestSubs{}, state, nil, sink)

	if err := svc.Run(context.Background(), time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 0 {
		t.Fatalf("без подписчиков отправок быть не должно")
	}
	var lastDate string
	if found, _ := state.GetState(context.Background(), StateKeyLastDigestDate, &lastDate); !found {
		t.Fatalf("дата отмечается и без подписчиков, чтобы тик не работал вхолостую")
	}
}

func TestCacheGuardsAgainstDoubleFire(t *testing.T) {
	cache := &onceCache{keys: make(map[string]struct{})}
	sink := &recordingSink{}
	subs := &stubDigestSubs{candidates: []domain.Candidate{candidateDM(1)}}

	// Две реплики делят кэш, но не состояние: ключ пускает только первую.
	svcA := newTestService(subs, newStubState(), cache, sink)
	svcB := newTestService(subs, newStubState(), cache, sink)

	at := time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)
	if err := svcA.Run(context.Background(), at); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := svcB.Run(context.Background(), at); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 1 {
		t.Fatalf("ключ кэша должен пустить только одну реплику, отправок %d", sink.direct)
	}
}

func TestDigestAlertFields(t *testing.T) {
	alert := buildAlert("2026-03-10",
		domain.DigestStats{Rounds24h: 17, UniquePlayers24h: 43},
		[]domain.ServerActivity{{ServerName: "Moongamers", RoundCount: 9}},
		[]domain.PlayerActivity{{PlayerName: "ace", TotalScore: 120, TotalKills: 50}},
	)
	if alert.Title != "BF1942 Daily Digest" {
		t.Fatalf("неожиданный заголовок %q", alert.Title)
	}
	if len(alert.Fields) != 4 {
		t.Fatalf("ожидали 4 поля, получили %d", len(alert.Fields))
	}
}
