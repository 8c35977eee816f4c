package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"bf1942-alert-bot/internal/infra/metrics"
)

// GetState читает значение ключа из bot_state и декодирует его в dst.
// Возвращает false, если ключа нет.
func (p *Postgres) GetState(ctx context.Context, key string, dst any) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var raw []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT value FROM bot_state WHERE key = $1`, key).Scan(&raw)
	metrics.ObserveNetworkRequest("postgres", "state_get", "bot_state", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetState сохраняет значение ключа в bot_state. Успешная запись видна
// следующему старту процесса.
func (p *Postgres) SetState(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO bot_state (key, value) VALUES ($1, $2::jsonb)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
`, key, raw)
	metrics.ObserveNetworkRequest("postgres", "state_set", "bot_state", start, err)
	return err
}
