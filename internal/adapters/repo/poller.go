package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
)

// ActiveServers возвращает снапшоты активных серверов, упорядоченные по
// числу игроков.
func (p *Postgres) ActiveServers(ctx context.Context, limit int) ([]domain.ServerSnapshot, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT current_server_name, COALESCE(current_map, ''), current_player_count, current_max_players, current_state
FROM servers
WHERE current_state IN ('ACTIVE', 'EMPTY')
ORDER BY current_player_count DESC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "active_servers", "servers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.ServerSnapshot
	for rows.Next() {
		var snap domain.ServerSnapshot
		if err := rows.Scan(&snap.Name, &snap.Map, &snap.PlayerCount, &snap.MaxPlayers, &snap.State); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// OnlinePlayers возвращает игроков, находящихся сейчас на активных серверах.
func (p *Postgres) OnlinePlayers(ctx context.Context) ([]domain.OnlinePlayer, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT lps.player_name, s.current_server_name
FROM live_player_snapshot lps
JOIN servers s ON lps.server_ip = s.ip AND lps.server_port = s.port
WHERE s.current_state = 'ACTIVE'
`)
	metrics.ObserveNetworkRequest("postgres", "online_players", "live_player_snapshot", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []domain.OnlinePlayer
	for rows.Next() {
		var pl domain.OnlinePlayer
		if err := rows.Scan(&pl.Name, &pl.Server); err != nil {
			return nil, err
		}
		players = append(players, pl)
	}
	return players, rows.Err()
}

// CompletedRoundsAfter возвращает завершённые раунды с id выше afterID
// по возрастанию id.
func (p *Postgres) CompletedRoundsAfter(ctx context.Context, afterID int64) ([]domain.RoundRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT r.round_id, sv.current_server_name, r.map_name, COALESCE(r.winner_team, 0),
       COALESCE(r.duration_seconds, 0), r.start_time, r.end_time
FROM rounds r
JOIN servers sv ON r.server_id = sv.server_id
WHERE r.round_id > $1 AND r.end_time IS NOT NULL
ORDER BY r.round_id ASC
`, afterID)
	metrics.ObserveNetworkRequest("postgres", "completed_rounds", "rounds", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.RoundRecord
	for rows.Next() {
		var rec domain.RoundRecord
		if err := rows.Scan(&rec.ID, &rec.ServerName, &rec.MapName, &rec.WinningTeam,
			&rec.DurationSeconds, &rec.StartTime, &rec.EndTime); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MaxRoundID возвращает максимальный id раунда; 0, если раундов нет.
func (p *Postgres) MaxRoundID(ctx context.Context) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var maxID int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(round_id), 0) FROM rounds`).Scan(&maxID)
	metrics.ObserveNetworkRequest("postgres", "max_round_id", "rounds", start, err)
	return maxID, err
}

// ServerDetails возвращает снапшот сервера по имени или nil.
func (p *Postgres) ServerDetails(ctx context.Context, serverName string) (*domain.ServerSnapshot, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var snap domain.ServerSnapshot
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT current_server_name, COALESCE(current_map, ''), current_player_count, current_max_players, current_state
FROM servers
WHERE current_server_name = $1 AND current_state IN ('ACTIVE', 'EMPTY')
`, serverName).Scan(&snap.Name, &snap.Map, &snap.PlayerCount, &snap.MaxPlayers, &snap.State)
	metrics.ObserveNetworkRequest("postgres", "server_details", "servers", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// LastRoundForServer возвращает последний завершённый раунд сервера или nil.
func (p *Postgres) LastRoundForServer(ctx context.Context, serverName string) (*domain.RoundRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var rec domain.RoundRecord
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT r.round_id, sv.current_server_name, r.map_name, COALESCE(r.winner_team, 0),
       COALESCE(r.duration_seconds, 0), r.start_time, r.end_time
FROM rounds r
JOIN servers sv ON r.server_id = sv.server_id
WHERE sv.current_server_name = $1 AND r.end_time IS NOT NULL
ORDER BY r.round_id DESC
LIMIT 1
`, serverName).Scan(&rec.ID, &rec.ServerName, &rec.MapName, &rec.WinningTeam,
		&rec.DurationSeconds, &rec.StartTime, &rec.EndTime)
	metrics.ObserveNetworkRequest("postgres", "last_round", "rounds", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RoundTopPlayers возвращает топ игроков раунда по очкам.
func (p *Postgres) RoundTopPlayers(ctx context.Context, roundID int64, limit int) ([]domain.RoundPlayer, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT p.canonical_name, rps.final_score, rps.final_kills, rps.final_deaths, rps.team
FROM round_player_stats rps
JOIN players p ON rps.player_id = p.player_id
WHERE rps.round_id = $1
ORDER BY rps.final_score DESC
LIMIT $2
`, roundID, limit)
	metrics.ObserveNetworkRequest("postgres", "round_top_players", "round_player_stats", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []domain.RoundPlayer
	for rows.Next() {
		var pl domain.RoundPlayer
		if err := rows.Scan(&pl.Name, &pl.Score, &pl.Kills, &pl.Deaths, &pl.Team); err != nil {
			return nil, err
		}
		players = append(players, pl)
	}
	return players, rows.Err()
}

// DigestStats возвращает агрегаты активности за последние сутки.
func (p *Postgres) DigestStats(ctx context.Context) (domain.DigestStats, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var stats domain.DigestStats
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT
    (SELECT COUNT(*) FROM rounds WHERE start_time >= NOW() - INTERVAL '24 hours'),
    (SELECT COUNT(DISTINCT rps.player_id)
     FROM round_player_stats rps
     JOIN rounds r ON rps.round_id = r.round_id
     WHERE r.start_time >= NOW() - INTERVAL '24 hours')
`).Scan(&stats.Rounds24h, &stats.UniquePlayers24h)
	metrics.ObserveNetworkRequest("postgres", "digest_stats", "rounds", start, err)
	return stats, err
}

// MostActiveServers24h возвращает серверы с наибольшим числом раундов за сутки.
func (p *Postgres) MostActiveServers24h(ctx context.Context, limit int) ([]domain.ServerActivity, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT sv.current_server_name, COUNT(*) AS round_count
FROM rounds r
JOIN servers sv ON r.server_id = sv.server_id
WHERE r.start_time >= NOW() - INTERVAL '24 hours'
GROUP BY sv.current_server_name
ORDER BY round_count DESC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "active_servers_24h", "rounds", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activity []domain.ServerActivity
	for rows.Next() {
		var act domain.ServerActivity
		if err := rows.Scan(&act.ServerName, &act.RoundCount); err != nil {
			return nil, err
		}
		activity = append(activity, act)
	}
	return activity, rows.Err()
}

// TopPlayers24h возвращает игроков с наибольшими очками за сутки.
func (p *Postgres) TopPlayers24h(ctx context.Context, limit int) ([]domain.PlayerActivity, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT p.canonical_name, SUM(rps.final_score) AS total_score, SUM(rps.final_kills) AS total_kills
FROM round_player_stats rps
JOIN players p ON rps.player_id = p.player_id
JOIN rounds r ON rps.round_id = r.round_id
WHERE r.start_time >= NOW() - INTERVAL '24 hours'
GROUP BY p.canonical_name
ORDER BY total_score DESC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "top_players_24h", "round_player_stats", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activity []domain.PlayerActivity
	for rows.Next() {
		var act domain.PlayerActivity
		if err := rows.Scan(&act.PlayerName, &act.TotalScore, &act.TotalKills); err != nil {
			return nil, err
		}
		activity = append(activity, act)
	}
	return activity, rows.Err()
}
