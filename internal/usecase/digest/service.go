// Package digest — тик ежедневной сводки активности. Тело выполняется
// только в узком окне после полуночи UTC и защищено от повторного
// срабатывания в тот же день персистентной датой последней сводки.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
	"bf1942-alert-bot/internal/usecase/access"
	"bf1942-alert-bot/internal/usecase/dispatch"
	"bf1942-alert-bot/internal/usecase/dnd"
)

// StateKeyLastDigestDate — ключ даты последней отправленной сводки.
const StateKeyLastDigestDate = "last_digest_date"

const (
	alertKind = "digest"
	// Сводка рассылается в первые пять минут суток UTC.
	windowMinutes = 5
	topLimit      = 5
)

// Service реализует тело тика сводки.
type Service struct {
	subs       domain.DigestSubscriptionRepo
	stats      domain.StatsSource
	state      domain.StateStore
	cache      domain.Cache
	access     *access.Controller
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
}

// NewService создаёт сервис сводки. cache может быть nil: тогда работает
// только персистентная защита по дате.
func NewService(subs domain.DigestSubscriptionRepo, stats domain.StatsSource, state domain.StateStore, cache domain.Cache, ac *access.Controller, dispatcher *dispatch.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		subs:       subs,
		stats:      stats,
		state:      state,
		cache:      cache,
		access:     ac,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run — тело тика. Вне окна и при уже отправленной сегодня сводке —
// тихий no-op. Redis-ключ служит второй защитой от двойного срабатывания
// между репликами; источником истины остаётся дата в StateStore.
func (s *Service) Run(ctx context.Context, now time.Time) error {
	now = now.UTC()
	if now.Hour() != 0 || now.Minute() >= windowMinutes {
		return nil
	}

	dateKey := now.Format("2006-01-02")

	var lastDate string
	found, err := s.state.GetState(ctx, StateKeyLastDigestDate, &lastDate)
	if err != nil {
		return domain.NewDataSourceError("load digest date", err)
	}
	if found && lastDate == dateKey {
		return nil
	}

	body := func() error { return s.buildAndSend(ctx, now, dateKey) }
	if s.cache != nil {
		return s.cache.Once("digest:"+dateKey, 48*time.Hour, body)
	}
	return body()
}

func (s *Service) buildAndSend(ctx context.Context, now time.Time, dateKey string) error {
	candidates, err := s.subs.DigestCandidates(ctx)
	if err != nil {
		return domain.NewDataSourceError("digest candidates", err)
	}
	if len(candidates) == 0 {
		return s.markSent(ctx, dateKey, 0)
	}

	stats, err := s.stats.DigestStats(ctx)
	if err != nil {
		return domain.NewDataSourceError("digest stats", err)
	}
	activeServers, err := s.stats.MostActiveServers24h(ctx, topLimit)
	if err != nil {
		return domain.NewDataSourceError("active servers 24h", err)
	}
	topPlayers, err := s.stats.TopPlayers24h(ctx, topLimit)
	if err != nil {
		return domain.NewDataSourceError("top players 24h", err)
	}

	alert := buildAlert(dateKey, stats, activeServers, topPlayers)

	awake := candidates[:0]
	for _, cand := range candidates {
		if dnd.IsSuppressed(cand.DND, now) {
			metrics.AlertsSuppressed.WithLabelValues(alertKind, "dnd").Inc()
			continue
		}
		awake = append(awake, cand)
	}
	awake = s.access.Filter(alertKind, awake)

	for _, cand := range awake {
		s.dispatcher.Deliver(ctx, alertKind, cand.Destination, alert)
	}

	return s.markSent(ctx, dateKey, len(awake))
}

func (s *Service) markSent(ctx context.Context, dateKey string, recipients int) error {
	if err := s.state.SetState(ctx, StateKeyLastDigestDate, dateKey); err != nil {
		return domain.NewDataSourceError("persist digest date", err)
	}
	s.logger.Info().Str("date", dateKey).Int("recipients", recipients).Msg("digest: сводка разослана")
	return nil
}

func buildAlert(dateKey string, stats domain.DigestStats, servers []domain.ServerActivity, players []domain.PlayerActivity) domain.Alert {
	alert := domain.Alert{
		Title:   "BF1942 Daily Digest",
		Body:    "Activity summary for the last 24 hours.",
		Content: fmt.Sprintf("BF1942 Daily Digest — %d rounds, %d players", stats.Rounds24h, stats.UniquePlayers24h),
		Fields: []domain.AlertField{
			{Name: "Rounds Played", Value: fmt.Sprintf("%d", stats.Rounds24h), Inline: true},
			{Name: "Unique Players", Value: fmt.Sprintf("%d", stats.UniquePlayers24h), Inline: true},
		},
	}
	if len(servers) > 0 {
		lines := make([]string, 0, len(servers))
		for _, srv := range servers {
			lines = append(lines, fmt.Sprintf("**%s** — %d rounds", srv.ServerName, srv.RoundCount))
		}
		alert.Fields = append(alert.Fields, domain.AlertField{Name: "Most Active Servers", Value: strings.Join(lines, "\n")})
	}
	if len(players) > 0 {
		lines := make([]string, 0, len(players))
		for _, p := range players {
			lines = append(lines, fmt.Sprintf("**%s** — %d pts (%d kills)", p.PlayerName, p.TotalScore, p.TotalKills))
		}
		alert.Fields = append(alert.Fields, domain.AlertField{Name: "Top Players", Value: strings.Join(lines, "\n")})
	}
	return alert
}
