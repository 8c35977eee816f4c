package repo

import (
	"context"
	"time"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
)

// AddWatch добавляет игрока в вотчлист; повторное добавление — no-op.
func (p *Postgres) AddWatch(ctx context.Context, userID int64, playerName string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO player_watchlist (user_id, player_name)
VALUES ($1, $2)
ON CONFLICT (user_id, player_name) DO NOTHING
`, userID, playerName)
	metrics.ObserveNetworkRequest("postgres", "watch_add", "player_watchlist", start, err)
	return err
}

// RemoveWatch убирает игрока из вотчлиста.
func (p *Postgres) RemoveWatch(ctx context.Context, userID int64, playerName string) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
DELETE FROM player_watchlist WHERE user_id = $1 AND player_name = $2
`, userID, playerName)
	metrics.ObserveNetworkRequest("postgres", "watch_remove", "player_watchlist", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListUserWatchlist возвращает вотчлист пользователя.
func (p *Postgres) ListUserWatchlist(ctx context.Context, userID int64) ([]domain.WatchlistEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT player_name FROM player_watchlist WHERE user_id = $1 ORDER BY player_name
`, userID)
	metrics.ObserveNetworkRequest("postgres", "watch_list", "player_watchlist", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.WatchlistEntry
	for rows.Next() {
		entry := domain.WatchlistEntry{UserID: userID}
		if err := rows.Scan(&entry.PlayerName); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// WatchCandidates возвращает наблюдателей за перечисленными игроками.
// Доставка вотчлиста идёт только в личные сообщения.
func (p *Postgres) WatchCandidates(ctx context.Context, playerNames []string) ([]domain.Candidate, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT w.user_id, w.player_name,
       dnd.start_hour_utc, dnd.end_hour_utc, dnd.weekdays_utc
FROM player_watchlist w
LEFT JOIN user_dnd_rules dnd ON w.user_id = dnd.user_id
WHERE w.player_name = ANY($1::text[])
`, playerNames)
	metrics.ObserveNetworkRequest("postgres", "watch_candidates", "player_watchlist", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var (
			cand      domain.Candidate
			startHour *int
			endHour   *int
			weekdays  []int32
		)
		if err := rows.Scan(&cand.UserID, &cand.PlayerName, &startHour, &endHour, &weekdays); err != nil {
			return nil, err
		}
		cand.Destination = domain.Destination{UserID: cand.UserID}
		cand.DND = dndRule(cand.UserID, startHour, endHour, weekdays)
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}
