package watchlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/usecase/access"
	"bf1942-alert-bot/internal/usecase/cooldown"
	"bf1942-alert-bot/internal/usecase/dispatch"
	"bf1942-alert-bot/internal/usecase/match"
)

type stubPoller struct {
	online []domain.OnlinePlayer
}

func (s *stubPoller) ActiveServers(context.Context, int) ([]domain.ServerSnapshot, error) {
	return nil, nil
}
func (s *stubPoller) OnlinePlayers(context.Context) ([]domain.OnlinePlayer, error) {
	return s.online, nil
}
func (s *stubPoller) CompletedRoundsAfter(context.Context, int64) ([]domain.RoundRecord, error) {
	return nil, nil
}
func (s *stubPoller) MaxRoundID(context.Context) (int64, error) { return 0, nil }

type stubStats struct {
	details *domain.ServerSnapshot
}

func (s *stubStats) ServerDetails(context.Context, string) (*domain.ServerSnapshot, error) {
	return s.details, nil
}
func (s *stubStats) LastRoundForServer(context.Context, string) (*domain.RoundRecord, error) {
	return nil, nil
}
func (s *stubStats) RoundTopPlayers(context.Context, int64, int) ([]domain.RoundPlayer, error) {
	return nil, nil
}
func (s *stubStats) DigestStats(context.Context) (domain.DigestStats, error) {
	return domain.DigestStats{}, nil
}
func (s *stubStats) MostActiveServers24h(context.Context, int) ([]domain.ServerActivity, error) {
	return nil, nil
}
func (s *stubStats) TopPlayers24h(context.Context, int) ([]domain.PlayerActivity, error) {
	return nil, nil
}

type stubSubs struct{}

func (stubSubs) UpsertSubscription(context.Context, domain.Subscription) error { return nil }
func (stubSubs) ListUserSubscriptions(context.Context, int64) ([]domain.Subscription, error) {
	return nil, nil
}
func (stubSubs) DeleteAllSubscriptions(context.Context, int64) (int64, error) { return 0, nil }
func (stubSubs) SetSubscriptionsPaused(context.Context, int64, bool) (int64, error) {
	return 0, nil
}
func (stubSubs) MapCandidates(context.Context, string, string) ([]domain.Candidate, error) {
	return nil, nil
}

type stubRounds struct{}

func (stubRounds) UpsertRoundSubscription(context.Context, domain.RoundSubscription) error {
	return nil
}
func (stubRounds) DeleteRoundSubscription(context.Context, int64, string) (int64, error) {
	return 0, nil
}
func (stubRounds) RoundCandidates(context.Context, string) ([]domain.Candidate, error) {
	return nil, nil
}

type stubWatch struct {
	watchers map[string][]int64
	failNext bool
}

func (s *stubWatch) AddWatch(context.Context, int64, string) error             { return nil }
func (s *stubWatch) RemoveWatch(context.Context, int64, string) (int64, error) { return 0, nil }
func (s *stubWatch) ListUserWatchlist(context.Context, int64) ([]domain.WatchlistEntry, error) {
	return nil, nil
}
func (s *stubWatch) WatchCandidates(_ context.Context, names []string) ([]domain.Candidate, error) {
	if s.failNext {
		s.failNext = false
		return nil, errors.New("нет соединения с БД")
	}
	var out []domain.Candidate
	for _, name := range names {
		for _, userID := range s.watchers[name] {
			out = append(out, domain.Candidate{
				UserID:      userID,
				Destination: domain.Destination{UserID: userID},
				PlayerName:  name,
			})
		}
	}
	return out, nil
}

type recordingSink struct {
	direct    int
	directTo  []int64
	directErr error
}

func (r *recordingSink) CanPost(int64) (bool, error) { return true, nil }
func (r *recordingSink) SendChannel(context.Context, int64, domain.Alert) error {
	return nil
}
func (r *recordingSink) SendDirect(_ context.Context, userID int64, _ domain.Alert) error {
	r.direct++
	r.directTo = append(r.directTo, userID)
	return r.directErr
}

func newTestService(poller *stubPoller, watch *stubWatch, sink *recordingSink, stats *stubStats) *Service {
	matcher := match.NewMatcher(stubSubs{}, stubRounds{}, watch)
	blocklist := domain.Blocklist{Users: map[int64]struct{}{}, Guilds: map[int64]struct{}{}}
	ac := access.NewController(blocklist, sink, zerolog.Nop())
	d := dispatch.NewDispatcher(sink, 1000, 1000, zerolog.Nop())
	return NewService(poller, stats, matcher, ac, d, cooldown.NewTracker(), 15*time.Minute, zerolog.Nop())
}

func online(names ...string) []domain.OnlinePlayer {
	var out []domain.OnlinePlayer
	for _, n := range names {
		out = append(out, domain.OnlinePlayer{Name: n, Server: "Moongamers"})
	}
	return out
}

func TestFirstRunIsSilentBaseline(t *testing.T) {
	poller := &stubPoller{online: online("target")}
	watch := &stubWatch{watchers: map[string][]int64{"target": {1}}}
	sink := &recordingSink{}
	svc := newTestService(poller, watch, sink, &stubStats{})

	if err := svc.Run(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 0 {
		t.Fatalf("первый проход принимает базовую линию без алертов")
	}
}

func TestJoinDeliversDirectMessage(t *testing.T) {
	poller := &stubPoller{online: online()}
	watch := &stubWatch{watchers: map[string][]int64{"target": {1}}}
	sink := &recordingSink{}
	svc := newTestService(poller, watch, sink, &stubStats{})

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := svc.Run(context.Background(), now); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	poller.online = online("target")
	if err := svc.Run(context.Background(), now.Add(time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 1 {
		t.Fatalf("ожидали 1 ЛС-алерт, получили %d", sink.direct)
	}
}

func TestRejoinWithinCooldownSuppressed(t *testing.T) {
	poller := &stubPoller{online: online()}
	watch := &stubWatch{watchers: map[string][]int64{"target": {1}}}
	sink := &recordingSink{}
	svc := newTestService(poller, watch, sink, &stubStats{})

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := svc.Run(context.Background(), t0); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	poller.online = online("target")
	if err := svc.Run(context.Background(), t0.Add(time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// Игрок вышел и вернулся через 5 минут: окно кулдауна ещё действует.
	poller.online = online()
	if err := svc.Run(context.Background(), t0.Add(3*time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	poller.online = online("target")
	if err := svc.Run(context.Background(), t0.Add(6*time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 1 {
		t.Fatalf("повторный вход в окне кулдауна должен быть подавлен, алертов %d", sink.direct)
	}

	// Возвращение через 17 минут после первого алерта — окно истекло.
	poller.online = online()
	if err := svc.Run(context.Background(), t0.Add(10*time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	poller.online = online("target")
	if err := svc.Run(context.Background(), t0.Add(18*time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 2 {
		t.Fatalf("после истечения кулдауна алерт должен уйти снова, алертов %d", sink.direct)
	}
}

func TestFailedDeliveryDoesNotMarkCooldown(t *testing.T) {
	poller := &stubPoller{online: online()}
	watch := &stubWatch{watchers: map[string][]int64{"target": {1}}}
	sink := &recordingSink{directErr: domain.ErrDMForbidden}
	svc := newTestService(poller, watch, sink, &stubStats{})

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := svc.Run(context.Background(), t0); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	poller.online = online("target")
	if err := svc.Run(context.Background(), t0.Add(time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// Доставка не удалась: следующий вход не должен быть съеден кулдауном.
	sink.directErr = nil
	poller.online = online()
	if err := svc.Run(context.Background(), t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	poller.online = online("target")
	if err := svc.Run(context.Background(), t0.Add(3*time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 2 {
		t.Fatalf("ожидали повторную попытку после неудачной доставки, отправок %d", sink.direct)
	}
}

func TestAbortedTickKeepsJoinEvents(t *testing.T) {
	poller := &stubPoller{online: online()}
	watch := &stubWatch{watchers: map[string][]int64{"target": {1}}}
	sink := &recordingSink{}
	svc := newTestService(poller, watch, sink, &stubStats{})

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := svc.Run(context.Background(), t0); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	// Игрок входит, но запрос кандидатов падает: тик прерывается.
	poller.online = online("target")
	watch.failNext = true
	err := svc.Run(context.Background(), t0.Add(time.Minute))
	if !domain.IsDataSource(err) {
		t.Fatalf("ожидали ошибку источника данных, получили %v", err)
	}
	if sink.direct != 0 {
		t.Fatalf("прерванный тик не должен доставлять, отправок %d", sink.direct)
	}

	// Источник восстановился, игрок всё ещё онлайн: вход не потерян.
	if err := svc.Run(context.Background(), t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sink.direct != 1 {
		t.Fatalf("вход наблюдаемого игрока потерян после прерванного тика, доставок %d", sink.direct)
	}
}

func TestBlockedWatcherDropped(t *testing.T) {
	poller := &stubPoller{online: online()}
	watch := &stubWatch{watchers: map[string][]int64{"target": {1, 2}}}
	sink := &recordingSink{}

	matcher := match.NewMatcher(stubSubs{}, stubRounds{}, watch)
	blocklist := domain.Blocklist{Users: map[int64]struct{}{1: {}}, Guilds: map[int64]struct{}{}}
	ac := access.NewController(blocklist, sink, zerolog.Nop())
	d := dispatch.NewDispatcher(sink, 1000, 1000, zerolog.Nop())
	svc := NewService(poller, &stubStats{}, matcher, ac, d, cooldown.NewTracker(), 15*time.Minute, zerolog.Nop())

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := svc.Run(context.Background(), t0); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	poller.online = online("target")
	if err := svc.Run(context.Background(), t0.Add(time.Minute)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if sink.direct != 1 {
		t.Fatalf("ожидали 1 доставку, получили %d", sink.direct)
	}
	if len(sink.directTo) != 1 || sink.directTo[0] != 2 {
		t.Fatalf("алерт должен уйти только незаблокированному наблюдателю: %v", sink.directTo)
	}
}

func TestAlertEnrichedWithServerDetails(t *testing.T) {
	details := &domain.ServerSnapshot{Name: "Moongamers", Map: "berlin", PlayerCount: 30, MaxPlayers: 64}

	alert := buildAlert("target", "Moongamers", details)
	if len(alert.Fields) != 2 {
		t.Fatalf("ожидали поля Map и Players, получили %d полей", len(alert.Fields))
	}
	if alert.Fields[0].Value != "berlin" {
		t.Fatalf("ожидали карту berlin, получили %q", alert.Fields[0].Value)
	}

	alert = buildAlert("target", "Moongamers", nil)
	if len(alert.Fields) != 0 {
		t.Fatalf("без деталей сервера полей быть не должно")
	}
}
