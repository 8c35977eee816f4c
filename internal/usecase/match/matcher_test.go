package match

import (
	"context"
	"errors"
	"testing"

	"bf1942-alert-bot/internal/domain"
)

type stubSubs struct {
	candidates []domain.Candidate
	err        error
	lastServer string
	lastMap    string
}

func (s *stubSubs) UpsertSubscription(context.Context, domain.Subscription) error { return nil }
func (s *stubSubs) ListUserSubscriptions(context.Context, int64) ([]domain.Subscription, error) {
	return nil, nil
}
func (s *stubSubs) DeleteAllSubscriptions(context.Context, int64) (int64, error) { return 0, nil }
func (s *stubSubs) SetSubscriptionsPaused(context.Context, int64, bool) (int64, error) {
	return 0, nil
}
func (s *stubSubs) MapCandidates(_ context.Context, serverName, mapName string) ([]domain.Candidate, error) {
	s.lastServer = serverName
	s.lastMap = mapName
	return s.candidates, s.err
}

type stubRounds struct {
	candidates []domain.Candidate
	err        error
}

func (s *stubRounds) UpsertRoundSubscription(context.Context, domain.RoundSubscription) error {
	return nil
}
func (s *stubRounds) DeleteRoundSubscription(context.Context, int64, string) (int64, error) {
	return 0, nil
}
func (s *stubRounds) RoundCandidates(context.Context, string) ([]domain.Candidate, error) {
	return s.candidates, s.err
}

type stubWatch struct {
	candidates []domain.Candidate
	lastNames  []string
}

func (s *stubWatch) AddWatch(context.Context, int64, string) error            { return nil }
func (s *stubWatch) RemoveWatch(context.Context, int64, string) (int64, error) { return 0, nil }
func (s *stubWatch) ListUserWatchlist(context.Context, int64) ([]domain.WatchlistEntry, error) {
	return nil, nil
}
func (s *stubWatch) WatchCandidates(_ context.Context, names []string) ([]domain.Candidate, error) {
	s.lastNames = names
	return s.candidates, nil
}

func mapEvent(playerCount int, newMap string) domain.MapChangedEvent {
	return domain.MapChangedEvent{
		ServerName: "Moongamers",
		OldMap:     "midway",
		NewMap:     newMap,
		Snapshot:   domain.ServerSnapshot{Name: "Moongamers", Map: newMap, PlayerCount: playerCount, MaxPlayers: 64},
	}
}

func TestMapChangeThresholdIsStrict(t *testing.T) {
	subs := &stubSubs{candidates: []domain.Candidate{
		{UserID: 1, PlayersOver: 10},
		{UserID: 2, PlayersOver: 12},
		{UserID: 3, PlayersOver: 0},
	}}
	m := NewMatcher(subs, &stubRounds{}, &stubWatch{})

	got, err := m.MapChange(context.Background(), mapEvent(12, "berlin"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// players_over=12 при 12 игроках не срабатывает: порог строгий.
	if len(got) != 2 {
		t.Fatalf("ожидали 2 кандидатов, получили %d", len(got))
	}
	for _, c := range got {
		if c.UserID == 2 {
			t.Fatalf("кандидат с порогом 12 не должен пройти при 12 игроках")
		}
	}
}

func TestMapChangeLowercasesMapName(t *testing.T) {
	subs := &stubSubs{}
	m := NewMatcher(subs, &stubRounds{}, &stubWatch{})

	if _, err := m.MapChange(context.Background(), mapEvent(5, "Berlin")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if subs.lastMap != "berlin" {
		t.Fatalf("ожидали запрос по карте в нижнем регистре, получили %q", subs.lastMap)
	}
}

func TestMapChangeWrapsRepoError(t *testing.T) {
	subs := &stubSubs{err: errors.New("connection refused")}
	m := NewMatcher(subs, &stubRounds{}, &stubWatch{})

	_, err := m.MapChange(context.Background(), mapEvent(5, "berlin"))
	if !domain.IsDataSource(err) {
		t.Fatalf("ожидали ошибку источника данных, получили %v", err)
	}
}

func TestRoundCompletedHasNoThreshold(t *testing.T) {
	rounds := &stubRounds{candidates: []domain.Candidate{{UserID: 1}, {UserID: 2}}}
	m := NewMatcher(&stubSubs{}, rounds, &stubWatch{})

	got, err := m.RoundCompleted(context.Background(), "Moongamers")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ожидали 2 кандидатов, получили %d", len(got))
	}
}

func TestRoundCompletedWrapsRepoError(t *testing.T) {
	rounds := &stubRounds{err: errors.New("timeout")}
	m := NewMatcher(&stubSubs{}, rounds, &stubWatch{})

	if _, err := m.RoundCompleted(context.Background(), "Moongamers"); !domain.IsDataSource(err) {
		t.Fatalf("ожидали ошибку источника данных, получили %v", err)
	}
}

func TestPlayerJoinedEmptyListSkipsRepo(t *testing.T) {
	watch := &stubWatch{candidates: []domain.Candidate{{UserID: 1}}}
	m := NewMatcher(&stubSubs{}, &stubRounds{}, watch)

	got, err := m.PlayerJoined(context.Background(), nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != nil {
		t.Fatalf("ожидали nil без зашедших игроков")
	}
	if watch.lastNames != nil {
		t.Fatalf("репозиторий не должен вызываться без зашедших игроков")
	}
}
