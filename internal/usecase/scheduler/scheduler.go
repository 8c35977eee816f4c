// Package scheduler запускает независимые периодические тики. Каждый тик
// защищён от повторного входа: если тело ещё выполняется к моменту
// следующего срабатывания, новое срабатывание пропускается, а не
// запускается параллельно.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
)

// TickFunc — тело тика. Возвращённая ошибка источника данных означает,
// что тик прерван целиком и будет повторён по расписанию.
type TickFunc func(ctx context.Context, now time.Time) error

type tick struct {
	name     string
	interval time.Duration
	fn       TickFunc
	running  atomic.Bool
}

// Scheduler управляет набором тиков.
type Scheduler struct {
	logger zerolog.Logger
	ticks  []*tick
}

// New создаёт планировщик.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Add регистрирует тик. Вызывается до Run.
func (s *Scheduler) Add(name string, interval time.Duration, fn TickFunc) {
	s.ticks = append(s.ticks, &tick{name: name, interval: interval, fn: fn})
}

// Run запускает все тики и блокируется до отмены контекста. Тела тиков,
// выполняющиеся в момент отмены, дорабатывают до конца.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range s.ticks {
		wg.Add(1)
		go func(t *tick) {
			defer wg.Done()
			s.logger.Info().Str("tick", t.name).Dur("interval", t.interval).Msg("scheduler: тик запущен")
			ticker := time.NewTicker(t.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runTick(ctx, t)
				}
			}
		}(t)
	}
	wg.Wait()
}

func (s *Scheduler) runTick(ctx context.Context, t *tick) {
	if !t.running.CompareAndSwap(false, true) {
		metrics.TickSkipped.WithLabelValues(t.name).Inc()
		s.logger.Debug().Str("tick", t.name).Msg("scheduler: тело ещё выполняется, срабатывание пропущено")
		return
	}
	defer t.running.Store(false)

	start := time.Now()
	err := t.fn(ctx, start.UTC())
	metrics.ObserveTick(t.name, start, err)
	if err == nil {
		return
	}
	if domain.IsDataSource(err) {
		s.logger.Error().Err(err).Str("tick", t.name).Msg("scheduler: тик прерван источником данных")
		return
	}
	s.logger.Error().Err(err).Str("tick", t.name).Msg("scheduler: ошибка тика")
}
