// Package repo реализует репозитории, хранилище состояния и поллер
// поверх pgxpool. Таблицы серверов и раундов наполняет внешний инжест —
// здесь они только читаются; таблицы бота создаются миграциями ниже.
package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bf1942-alert-bot/internal/domain"
)

// Postgres реализует доменные интерфейсы на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.StateStore             = (*Postgres)(nil)
	_ domain.Poller                 = (*Postgres)(nil)
	_ domain.StatsSource            = (*Postgres)(nil)
	_ domain.SubscriptionRepo       = (*Postgres)(nil)
	_ domain.RoundSubscriptionRepo  = (*Postgres)(nil)
	_ domain.WatchlistRepo          = (*Postgres)(nil)
	_ domain.DigestSubscriptionRepo = (*Postgres)(nil)
	_ domain.DNDRepo                = (*Postgres)(nil)
	_ domain.BlocklistRepo          = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping проверяет доступность БД.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS subscriptions (
		user_id BIGINT NOT NULL,
		server_name TEXT NOT NULL,
		map_name TEXT NOT NULL,
		players_over INT DEFAULT 0,
		guild_id BIGINT,
		channel_id BIGINT,
		is_paused BOOLEAN DEFAULT false,
		PRIMARY KEY (user_id, server_name, map_name)
	)`,
	`CREATE TABLE IF NOT EXISTS user_dnd_rules (
		user_id BIGINT PRIMARY KEY,
		start_hour_utc INT NOT NULL,
		end_hour_utc INT NOT NULL,
		weekdays_utc INT[] NOT NULL,
		timezone TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS player_watchlist (
		user_id BIGINT,
		player_name TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (user_id, player_name)
	)`,
	`CREATE TABLE IF NOT EXISTS round_result_subscriptions (
		user_id BIGINT NOT NULL,
		server_name TEXT NOT NULL,
		guild_id BIGINT,
		channel_id BIGINT,
		PRIMARY KEY (user_id, server_name)
	)`,
	`CREATE TABLE IF NOT EXISTS digest_subscriptions (
		user_id BIGINT PRIMARY KEY,
		guild_id BIGINT,
		channel_id BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS bot_state (
		key TEXT PRIMARY KEY,
		value JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bot_blocklist (
		id SERIAL PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id BIGINT NOT NULL UNIQUE,
		reason TEXT
	)`,
}

// Migrate создаёт таблицы, принадлежащие боту.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
