// Package watchlist — тик появления наблюдаемых игроков. Снимок
// «кто был онлайн» живёт только в памяти: после рестарта первый проход
// заново принимает базовую линию (один тик ложного затишья допустим).
package watchlist

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
	"bf1942-alert-bot/internal/usecase/access"
	"bf1942-alert-bot/internal/usecase/cooldown"
	"bf1942-alert-bot/internal/usecase/detect"
	"bf1942-alert-bot/internal/usecase/dispatch"
	"bf1942-alert-bot/internal/usecase/dnd"
	"bf1942-alert-bot/internal/usecase/match"
)

const alertKind = "watchlist"

// Service реализует тело тика вотчлиста.
type Service struct {
	poller      domain.Poller
	stats       domain.StatsSource
	matcher     *match.Matcher
	access      *access.Controller
	dispatcher  *dispatch.Dispatcher
	cooldowns   *cooldown.Tracker
	cooldownDur time.Duration
	logger      zerolog.Logger

	previouslyOnline map[string]struct{}
}

// NewService создаёт сервис тика вотчлиста.
func NewService(poller domain.Poller, stats domain.StatsSource, matcher *match.Matcher, ac *access.Controller, dispatcher *dispatch.Dispatcher, cooldowns *cooldown.Tracker, cooldownDur time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		poller:      poller,
		stats:       stats,
		matcher:     matcher,
		access:      ac,
		dispatcher:  dispatcher,
		cooldowns:   cooldowns,
		cooldownDur: cooldownDur,
		logger:      logger,
	}
}

// Run — тело тика: дифф онлайна, матчинг наблюдателей, кулдаун, DND,
// доставка в личные сообщения. Кулдаун отмечается только после успешной
// доставки, чтобы неудачная попытка не съедала окно. Снимок онлайна
// подменяется только в конце тела: прерванный тик не должен терять
// события входа, следующий здоровый проход обнаружит их заново.
func (s *Service) Run(ctx context.Context, now time.Time) error {
	online, err := s.poller.OnlinePlayers(ctx)
	if err != nil {
		return domain.NewDataSourceError("online players", err)
	}

	current := make(map[string]struct{}, len(online))
	serverOf := make(map[string]string, len(online))
	for _, p := range online {
		current[p.Name] = struct{}{}
		serverOf[p.Name] = p.Server
	}

	joined := detect.JoinedPlayers(s.previouslyOnline, current)

	defer s.cooldowns.Purge(now)

	if len(joined) == 0 {
		s.previouslyOnline = current
		return nil
	}

	candidates, err := s.matcher.PlayerJoined(ctx, joined)
	if err != nil {
		return err
	}

	awake := candidates[:0]
	for _, cand := range candidates {
		key := cooldown.Key{UserID: cand.UserID, PlayerName: cand.PlayerName}
		if s.cooldowns.ShouldSuppress(key, now) {
			metrics.AlertsSuppressed.WithLabelValues(alertKind, "cooldown").Inc()
			continue
		}
		if dnd.IsSuppressed(cand.DND, now) {
			metrics.AlertsSuppressed.WithLabelValues(alertKind, "dnd").Inc()
			continue
		}
		awake = append(awake, cand)
	}
	awake = s.access.Filter(alertKind, awake)

	for _, cand := range awake {
		server, ok := serverOf[cand.PlayerName]
		if !ok {
			server = "Unknown Server"
		}

		detail, err := s.stats.ServerDetails(ctx, server)
		if err != nil {
			s.logger.Warn().Err(err).Str("server", server).Msg("watchlist: детали сервера недоступны")
			detail = nil
		}

		alert := buildAlert(cand.PlayerName, server, detail)
		if s.dispatcher.Deliver(ctx, alertKind, cand.Destination, alert) {
			s.cooldowns.Mark(cooldown.Key{UserID: cand.UserID, PlayerName: cand.PlayerName}, now, s.cooldownDur)
		}
	}

	s.previouslyOnline = current
	return nil
}

func buildAlert(playerName, serverName string, detail *domain.ServerSnapshot) domain.Alert {
	alert := domain.Alert{
		Title:   "Watchlist Alert",
		Body:    fmt.Sprintf("**%s** just joined **%s**!", playerName, serverName),
		Content: fmt.Sprintf("Watchlist: %s joined %s", playerName, serverName),
	}
	if detail != nil {
		mapName := detail.Map
		if mapName == "" {
			mapName = "N/A"
		}
		alert.Fields = append(alert.Fields,
			domain.AlertField{Name: "Map", Value: mapName, Inline: true},
			domain.AlertField{Name: "Players", Value: fmt.Sprintf("%d/%d", detail.PlayerCount, detail.MaxPlayers), Inline: true},
		)
	}
	return alert
}
