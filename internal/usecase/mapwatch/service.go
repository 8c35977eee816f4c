// Package mapwatch — тик обнаружения смены карт и рассылки алертов
// подписчикам.
package mapwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
	"bf1942-alert-bot/internal/usecase/access"
	"bf1942-alert-bot/internal/usecase/detect"
	"bf1942-alert-bot/internal/usecase/dispatch"
	"bf1942-alert-bot/internal/usecase/dnd"
	"bf1942-alert-bot/internal/usecase/match"
)

// StateKeyLastKnownMaps — ключ сохранённой карты «сервер → карта».
const StateKeyLastKnownMaps = "last_known_maps"

const alertKind = "map_change"

// Service реализует тело тика смены карт. lastKnownMaps принадлежит
// только этому тику: планировщик гарантирует отсутствие параллельных
// запусков, подмена состояния происходит целиком после обработки.
type Service struct {
	poller     domain.Poller
	stats      domain.StatsSource
	state      domain.StateStore
	matcher    *match.Matcher
	access     *access.Controller
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
	pollLimit  int

	lastKnownMaps map[string]string
}

// NewService создаёт сервис тика смены карт.
func NewService(poller domain.Poller, stats domain.StatsSource, state domain.StateStore, matcher *match.Matcher, ac *access.Controller, dispatcher *dispatch.Dispatcher, pollLimit int, logger zerolog.Logger) *Service {
	return &Service{
		poller:        poller,
		stats:         stats,
		state:         state,
		matcher:       matcher,
		access:        ac,
		dispatcher:    dispatcher,
		logger:        logger,
		pollLimit:     pollLimit,
		lastKnownMaps: make(map[string]string),
	}
}

// Prime загружает сохранённое состояние карт, чтобы рестарт процесса
// не объявил текущие карты всех серверов «сменой».
func (s *Service) Prime(ctx context.Context) error {
	saved := make(map[string]string)
	found, err := s.state.GetState(ctx, StateKeyLastKnownMaps, &saved)
	if err != nil {
		return domain.NewDataSourceError("load last known maps", err)
	}
	if found {
		s.lastKnownMaps = saved
		s.logger.Info().Int("servers", len(saved)).Msg("mapwatch: состояние карт загружено из БД")
	}
	return nil
}

// Run — тело тика: опрос, дифф, матчинг, подавление, доставка, фиксация.
func (s *Service) Run(ctx context.Context, now time.Time) error {
	servers, err := s.poller.ActiveServers(ctx, s.pollLimit)
	if err != nil {
		return domain.NewDataSourceError("active servers", err)
	}

	events, next := detect.MapChanges(s.lastKnownMaps, servers)

	if len(s.lastKnownMaps) == 0 {
		s.lastKnownMaps = next
		if err := s.state.SetState(ctx, StateKeyLastKnownMaps, next); err != nil {
			return domain.NewDataSourceError("persist map baseline", err)
		}
		s.logger.Info().Int("servers", len(next)).Msg("mapwatch: базовая линия карт принята")
		return nil
	}

	for _, ev := range events {
		s.logger.Info().
			Str("server", ev.ServerName).
			Str("old_map", ev.OldMap).
			Str("new_map", ev.NewMap).
			Msg("mapwatch: обнаружена смена карты")

		candidates, err := s.matcher.MapChange(ctx, ev)
		if err != nil {
			return err
		}

		awake := candidates[:0]
		for _, cand := range candidates {
			if dnd.IsSuppressed(cand.DND, now) {
				metrics.AlertsSuppressed.WithLabelValues(alertKind, "dnd").Inc()
				continue
			}
			awake = append(awake, cand)
		}
		awake = s.access.Filter(alertKind, awake)
		if len(awake) == 0 {
			continue
		}

		prevRound, err := s.stats.LastRoundForServer(ctx, ev.ServerName)
		if err != nil {
			s.logger.Warn().Err(err).Str("server", ev.ServerName).Msg("mapwatch: прошлый раунд недоступен")
			prevRound = nil
		}

		for _, cand := range awake {
			alert := buildAlert(ev, cand.MapName == domain.MapNameAll, prevRound)
			s.dispatcher.Deliver(ctx, alertKind, cand.Destination, alert)
		}
	}

	s.lastKnownMaps = next
	if err := s.state.SetState(ctx, StateKeyLastKnownMaps, next); err != nil {
		return domain.NewDataSourceError("persist last known maps", err)
	}
	return nil
}

func buildAlert(ev domain.MapChangedEvent, wildcard bool, prevRound *domain.RoundRecord) domain.Alert {
	var alert domain.Alert
	if wildcard {
		alert.Title = "BF1942 Server Alert!"
		alert.Body = fmt.Sprintf("**%s** has just changed maps to **%s**!", ev.ServerName, ev.NewMap)
		alert.Content = fmt.Sprintf("%s changed map to %s", ev.ServerName, ev.NewMap)
	} else {
		alert.Title = "BF1942 Map Alert!"
		alert.Body = fmt.Sprintf("The map **%s** has just started on **%s**!", ev.NewMap, ev.ServerName)
		alert.Content = fmt.Sprintf("Map %s started on %s", ev.NewMap, ev.ServerName)
	}
	alert.Fields = append(alert.Fields, domain.AlertField{
		Name:   "Players",
		Value:  fmt.Sprintf("%d/%d", ev.Snapshot.PlayerCount, ev.Snapshot.MaxPlayers),
		Inline: true,
	})
	if prevRound != nil {
		alert.Fields = append(alert.Fields, domain.AlertField{
			Name: "Previous Round",
			Value: fmt.Sprintf("%s — Winner: **%s** (%dm)",
				prevRound.MapName, winnerName(prevRound.WinningTeam), prevRound.DurationSeconds/60),
		})
	}
	return alert
}

func winnerName(team int) string {
	switch team {
	case 1:
		return "Axis"
	case 2:
		return "Allies"
	default:
		return "Draw"
	}
}
