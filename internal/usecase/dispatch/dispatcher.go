// Package dispatch доставляет готовые алерты в канал или личные
// сообщения. Любая ошибка доставки терминальна для этой попытки:
// очереди повторов нет, следующая естественная возможность — следующее
// событие.
package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
)

// Dispatcher отправляет алерты через sink с общим ограничителем темпа.
type Dispatcher struct {
	sink    domain.Sink
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewDispatcher создаёт диспетчер. perSecond/burst ограничивают
// исходящий темп на процесс, чтобы не упираться в лимиты транспорта.
func NewDispatcher(sink domain.Sink, perSecond float64, burst int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  logger,
	}
}

// Deliver доставляет алерт по назначению и сообщает, ушёл ли он.
// Недоступный канал или закрытые ЛС логируются и пропускаются — ошибка
// наружу не поднимается никогда.
func (d *Dispatcher) Deliver(ctx context.Context, kind string, dest domain.Destination, alert domain.Alert) bool {
	deliveryID := uuid.NewString()
	logger := d.logger.With().Str("delivery_id", deliveryID).Str("kind", kind).Logger()

	if err := d.limiter.Wait(ctx); err != nil {
		logger.Warn().Err(err).Msg("dispatch: доставка отменена до отправки")
		metrics.DeliveryErrors.WithLabelValues(kind, "canceled").Inc()
		return false
	}

	var err error
	destination := "dm"
	if dest.IsDirect() {
		err = d.sink.SendDirect(ctx, dest.UserID, alert)
	} else {
		destination = "channel"
		err = d.sink.SendChannel(ctx, dest.ChannelID, alert)
	}
	if err == nil {
		metrics.AlertsDelivered.WithLabelValues(kind, destination).Inc()
		return true
	}

	switch {
	case errors.Is(err, domain.ErrChannelNotFound):
		logger.Warn().Int64("channel", dest.ChannelID).Msg("dispatch: канал не найден")
		metrics.DeliveryErrors.WithLabelValues(kind, "not_found").Inc()
	case errors.Is(err, domain.ErrDMForbidden):
		logger.Warn().Int64("user", dest.UserID).Msg("dispatch: ЛС пользователя закрыты")
		metrics.DeliveryErrors.WithLabelValues(kind, "forbidden").Inc()
	case errors.Is(err, domain.ErrMissingPermissions):
		logger.Warn().Int64("channel", dest.ChannelID).Msg("dispatch: нет прав на отправку")
		metrics.DeliveryErrors.WithLabelValues(kind, "missing_permissions").Inc()
	default:
		logger.Error().Err(err).Msg("dispatch: ошибка доставки")
		metrics.DeliveryErrors.WithLabelValues(kind, "other").Inc()
	}
	return false
}
