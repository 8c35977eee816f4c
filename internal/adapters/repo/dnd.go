package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
)

// UpsertDNDRule сохраняет правило «не беспокоить»; на пользователя
// существует не более одного правила.
func (p *Postgres) UpsertDNDRule(ctx context.Context, rule domain.DNDRule) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	days := make([]int32, 0, len(rule.WeekdaysUTC))
	for _, d := range rule.WeekdaysUTC {
		days = append(days, int32(d))
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_dnd_rules (user_id, start_hour_utc, end_hour_utc, weekdays_utc, timezone)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE SET
    start_hour_utc = EXCLUDED.start_hour_utc,
    end_hour_utc = EXCLUDED.end_hour_utc,
    weekdays_utc = EXCLUDED.weekdays_utc,
    timezone = EXCLUDED.timezone
`, rule.UserID, rule.StartHourUTC, rule.EndHourUTC, days, rule.Timezone)
	metrics.ObserveNetworkRequest("postgres", "dnd_upsert", "user_dnd_rules", start, err)
	return err
}

// GetDNDRule возвращает правило пользователя или nil.
func (p *Postgres) GetDNDRule(ctx context.Context, userID int64) (*domain.DNDRule, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	rule := domain.DNDRule{UserID: userID}
	var days []int32
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT start_hour_utc, end_hour_utc, weekdays_utc, timezone
FROM user_dnd_rules WHERE user_id = $1
`, userID).Scan(&rule.StartHourUTC, &rule.EndHourUTC, &days, &rule.Timezone)
	metrics.ObserveNetworkRequest("postgres", "dnd_get", "user_dnd_rules", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rule.WeekdaysUTC = make([]int, 0, len(days))
	for _, d := range days {
		rule.WeekdaysUTC = append(rule.WeekdaysUTC, int(d))
	}
	return &rule, nil
}

// DeleteDNDRule удаляет правило пользователя.
func (p *Postgres) DeleteDNDRule(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM user_dnd_rules WHERE user_id = $1`, userID)
	metrics.ObserveNetworkRequest("postgres", "dnd_delete", "user_dnd_rules", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LoadBlocklist читает блоклист целиком; вызывается на старте процесса.
func (p *Postgres) LoadBlocklist(ctx context.Context) (domain.Blocklist, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	blocklist := domain.Blocklist{
		Users:  make(map[int64]struct{}),
		Guilds: make(map[int64]struct{}),
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT entity_type, entity_id FROM bot_blocklist`)
	metrics.ObserveNetworkRequest("postgres", "blocklist_load", "bot_blocklist", start, err)
	if err != nil {
		return blocklist, err
	}
	defer rows.Close()

	for rows.Next() {
		var entityType string
		var entityID int64
		if err := rows.Scan(&entityType, &entityID); err != nil {
			return blocklist, err
		}
		switch entityType {
		case "user":
			blocklist.Users[entityID] = struct{}{}
		case "guild":
			blocklist.Guilds[entityID] = struct{}{}
		}
	}
	return blocklist, rows.Err()
}
