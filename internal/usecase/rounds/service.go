// Package rounds — тик результатов раундов с персистентным watermark,
// гарантирующим не более одного алерта на раунд через рестарты.
package rounds

import (
	"context"
	"fmt"
	"strings"
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

// StateKeyLastRoundID — ключ сохранённого watermark раундов.
const StateKeyLastRoundID = "last_round_result_id"

const alertKind = "round_result"

// Service реализует тело тика результатов раундов.
type Service struct {
	poller     domain.Poller
	stats      domain.StatsSource
	state      domain.StateStore
	matcher    *match.Matcher
	access     *access.Controller
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
	topLimit   int
}

// NewService создаёт сервис тика раундов.
func NewService(poller domain.Poller, stats domain.StatsSource, state domain.StateStore, matcher *match.Matcher, ac *access.Controller, dispatcher *dispatch.Dispatcher, topLimit int, logger zerolog.Logger) *Service {
	return &Service{
		poller:     poller,
		stats:      stats,
		state:      state,
		matcher:    matcher,
		access:     ac,
		dispatcher: dispatcher,
		logger:     logger,
		topLimit:   topLimit,
	}
}

// Run — тело тика. Отсутствующий watermark инициализируется текущим
// максимальным id раунда без рассылки: накопившаяся история не должна
// вылиться в шквал алертов после первого запуска.
func (s *Service) Run(ctx context.Context, now time.Time) error {
	var lastID int64
	found, err := s.state.GetState(ctx, StateKeyLastRoundID, &lastID)
	if err != nil {
		return domain.NewDataSourceError("load round watermark", err)
	}
	if !found {
		maxID, err := s.poller.MaxRoundID(ctx)
		if err != nil {
			return domain.NewDataSourceError("max round id", err)
		}
		if err := s.state.SetState(ctx, StateKeyLastRoundID, maxID); err != nil {
			return domain.NewDataSourceError("persist round watermark", err)
		}
		s.logger.Info().Int64("watermark", maxID).Msg("rounds: watermark инициализирован")
		return nil
	}

	records, err := s.poller.CompletedRoundsAfter(ctx, lastID)
	if err != nil {
		return domain.NewDataSourceError("completed rounds", err)
	}
	fresh, next := detect.NewRounds(lastID, records)

	for _, rnd := range fresh {
		candidates, err := s.matcher.RoundCompleted(ctx, rnd.ServerName)
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

		top, err := s.stats.RoundTopPlayers(ctx, rnd.ID, s.topLimit)
		if err != nil {
			s.logger.Warn().Err(err).Int64("round", rnd.ID).Msg("rounds: топ игроков недоступен")
			top = nil
		}
		alert := buildAlert(rnd, top)

		for _, cand := range awake {
			s.dispatcher.Deliver(ctx, alertKind, cand.Destination, alert)
		}
	}

	if next > lastID {
		if err := s.state.SetState(ctx, StateKeyLastRoundID, next); err != nil {
			return domain.NewDataSourceError("persist round watermark", err)
		}
	}
	return nil
}

func buildAlert(rnd domain.RoundRecord, top []domain.RoundPlayer) domain.Alert {
	winner := winnerName(rnd.WinningTeam)
	alert := domain.Alert{
		Title:   "Round Complete!",
		Body:    fmt.Sprintf("**%s**", rnd.ServerName),
		Content: fmt.Sprintf("Round ended on %s: %s — %s", rnd.ServerName, rnd.MapName, winner),
		Fields: []domain.AlertField{
			{Name: "Map", Value: rnd.MapName, Inline: true},
			{Name: "Winner", Value: winner, Inline: true},
			{Name: "Duration", Value: fmt.Sprintf("%dm", rnd.DurationSeconds/60), Inline: true},
		},
	}
	if len(top) > 0 {
		lines := make([]string, 0, len(top))
		for i, p := range top {
			lines = append(lines, fmt.Sprintf("%d. **%s** — %d pts (%dK/%dD)", i+1, p.Name, p.Score, p.Kills, p.Deaths))
		}
		alert.Fields = append(alert.Fields, domain.AlertField{Name: "Top Players", Value: strings.Join(lines, "\n")})
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
