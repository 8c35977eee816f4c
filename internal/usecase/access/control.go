// Package access отсекает кандидатов по блоклисту и правам доставки.
package access

import (
	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
)

// Controller фильтрует кандидатов перед доставкой. Блоклист загружен
// на старте процесса и не меняется до его завершения.
type Controller struct {
	blocklist domain.Blocklist
	sink      domain.Sink
	logger    zerolog.Logger
}

// NewController создаёт контроллер доступа.
func NewController(blocklist domain.Blocklist, sink domain.Sink, logger zerolog.Logger) *Controller {
	return &Controller{blocklist: blocklist, sink: sink, logger: logger}
}

// Filter удаляет кандидатов с заблокированным пользователем или гильдией
// и кандидатов с каналом, где у бота нет прав на отправку и вложения.
// Отсечённый канал именно отбрасывается: перенаправления в ЛС нет, чтобы
// алерт не приходил туда, куда его не просили.
func (c *Controller) Filter(kind string, candidates []domain.Candidate) []domain.Candidate {
	allowed := candidates[:0]
	for _, cand := range candidates {
		if c.blocklist.BlockedUser(cand.UserID) {
			metrics.AlertsSuppressed.WithLabelValues(kind, "blocked_user").Inc()
			continue
		}
		if cand.GuildID != 0 && c.blocklist.BlockedGuild(cand.GuildID) {
			metrics.AlertsSuppressed.WithLabelValues(kind, "blocked_guild").Inc()
			continue
		}
		if !cand.Destination.IsDirect() {
			ok, err := c.sink.CanPost(cand.Destination.ChannelID)
			if err != nil {
				c.logger.Warn().Err(err).Int64("channel", cand.Destination.ChannelID).Msg("access: канал недоступен")
				metrics.AlertsSuppressed.WithLabelValues(kind, "channel_unavailable").Inc()
				continue
			}
			if !ok {
				c.logger.Warn().Int64("channel", cand.Destination.ChannelID).Msg("access: нет прав на отправку в канал")
				metrics.AlertsSuppressed.WithLabelValues(kind, "missing_permissions").Inc()
				continue
			}
		}
		allowed = append(allowed, cand)
	}
	return allowed
}
