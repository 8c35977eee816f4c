package repo

import (
	"context"
	"time"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
)

// dndRule собирает правило из nullable-колонок LEFT JOIN user_dnd_rules.
func dndRule(userID int64, startHour, endHour *int, weekdays []int32) *domain.DNDRule {
	if startHour == nil || endHour == nil {
		return nil
	}
	days := make([]int, 0, len(weekdays))
	for _, d := range weekdays {
		days = append(days, int(d))
	}
	return &domain.DNDRule{
		UserID:       userID,
		StartHourUTC: *startHour,
		EndHourUTC:   *endHour,
		WeekdaysUTC:  days,
	}
}

func destination(userID int64, channelID *int64) domain.Destination {
	dest := domain.Destination{UserID: userID}
	if channelID != nil {
		dest.ChannelID = *channelID
	}
	return dest
}

// UpsertSubscription создаёт или обновляет подписку; пауза при этом
// снимается, как и при повторной подписке в оригинале.
func (p *Postgres) UpsertSubscription(ctx context.Context, sub domain.Subscription) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var channelID *int64
	if sub.ChannelID != 0 {
		channelID = &sub.ChannelID
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO subscriptions (user_id, server_name, map_name, players_over, guild_id, channel_id, is_paused)
VALUES ($1, $2, $3, $4, $5, $6, false)
ON CONFLICT (user_id, server_name, map_name)
DO UPDATE SET
    players_over = EXCLUDED.players_over,
    guild_id = EXCLUDED.guild_id,
    channel_id = EXCLUDED.channel_id,
    is_paused = false
`, sub.UserID, sub.ServerName, sub.MapName, sub.PlayersOver, sub.GuildID, channelID)
	metrics.ObserveNetworkRequest("postgres", "subscription_upsert", "subscriptions", start, err)
	return err
}

// ListUserSubscriptions возвращает подписки пользователя.
func (p *Postgres) ListUserSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT server_name, map_name, players_over, COALESCE(guild_id, 0), COALESCE(channel_id, 0), is_paused
FROM subscriptions
WHERE user_id = $1
ORDER BY server_name, map_name
`, userID)
	metrics.ObserveNetworkRequest("postgres", "subscription_list", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub := domain.Subscription{UserID: userID}
		if err := rows.Scan(&sub.ServerName, &sub.MapName, &sub.PlayersOver, &sub.GuildID, &sub.ChannelID, &sub.IsPaused); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteAllSubscriptions удаляет все подписки пользователя.
func (p *Postgres) DeleteAllSubscriptions(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM subscriptions WHERE user_id = $1`, userID)
	metrics.ObserveNetworkRequest("postgres", "subscription_delete_all", "subscriptions", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetSubscriptionsPaused ставит подписки пользователя на паузу или снимает её.
func (p *Postgres) SetSubscriptionsPaused(ctx context.Context, userID int64, paused bool) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE subscriptions SET is_paused = $1 WHERE user_id = $2`, paused, userID)
	metrics.ObserveNetworkRequest("postgres", "subscription_pause", "subscriptions", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MapCandidates возвращает непоставленные на паузу подписки сервера по
// точному имени карты либо wildcard, вместе с DND-правилами подписчиков.
func (p *Postgres) MapCandidates(ctx context.Context, serverName, mapName string) ([]domain.Candidate, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT s.user_id, COALESCE(s.guild_id, 0), s.channel_id, s.map_name, s.players_over,
       dnd.start_hour_utc, dnd.end_hour_utc, dnd.weekdays_utc
FROM subscriptions s
LEFT JOIN user_dnd_rules dnd ON s.user_id = dnd.user_id
WHERE s.server_name = $1
  AND s.is_paused = false
  AND (s.map_name = $2 OR s.map_name = $3)
`, serverName, mapName, domain.MapNameAll)
	metrics.ObserveNetworkRequest("postgres", "map_candidates", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var (
			cand      domain.Candidate
			channelID *int64
			startHour *int
			endHour   *int
			weekdays  []int32
		)
		if err := rows.Scan(&cand.UserID, &cand.GuildID, &channelID, &cand.MapName, &cand.PlayersOver,
			&startHour, &endHour, &weekdays); err != nil {
			return nil, err
		}
		cand.Destination = destination(cand.UserID, channelID)
		cand.DND = dndRule(cand.UserID, startHour, endHour, weekdays)
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// UpsertRoundSubscription создаёт или обновляет подписку на раунды.
func (p *Postgres) UpsertRoundSubscription(ctx context.Context, sub domain.RoundSubscription) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var channelID *int64
	if sub.ChannelID != 0 {
		channelID = &sub.ChannelID
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO round_result_subscriptions (user_id, server_name, guild_id, channel_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, server_name)
DO UPDATE SET guild_id = EXCLUDED.guild_id, channel_id = EXCLUDED.channel_id
`, sub.UserID, sub.ServerName, sub.GuildID, channelID)
	metrics.ObserveNetworkRequest("postgres", "round_sub_upsert", "round_result_subscriptions", start, err)
	return err
}

// DeleteRoundSubscription удаляет подписку на раунды сервера.
func (p *Postgres) DeleteRoundSubscription(ctx context.Context, userID int64, serverName string) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
DELETE FROM round_result_subscriptions WHERE user_id = $1 AND server_name = $2
`, userID, serverName)
	metrics.ObserveNetworkRequest("postgres", "round_sub_delete", "round_result_subscriptions", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RoundCandidates возвращает подписчиков результатов раундов сервера.
func (p *Postgres) RoundCandidates(ctx context.Context, serverName string) ([]domain.Candidate, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT rrs.user_id, COALESCE(rrs.guild_id, 0), rrs.channel_id,
       dnd.start_hour_utc, dnd.end_hour_utc, dnd.weekdays_utc
FROM round_result_subscriptions rrs
LEFT JOIN user_dnd_rules dnd ON rrs.user_id = dnd.user_id
WHERE rrs.server_name = $1
`, serverName)
	metrics.ObserveNetworkRequest("postgres", "round_candidates", "round_result_subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var (
			cand      domain.Candidate
			channelID *int64
			startHour *int
			endHour   *int
			weekdays  []int32
		)
		if err := rows.Scan(&cand.UserID, &cand.GuildID, &channelID, &startHour, &endHour, &weekdays); err != nil {
			return nil, err
		}
		cand.Destination = destination(cand.UserID, channelID)
		cand.DND = dndRule(cand.UserID, startHour, endHour, weekdays)
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// UpsertDigestSubscription создаёт или обновляет подписку на сводку.
func (p *Postgres) UpsertDigestSubscription(ctx context.Context, sub domain.DigestSubscription) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var channelID *int64
	if sub.ChannelID != 0 {
		channelID = &sub.ChannelID
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO digest_subscriptions (user_id, guild_id, channel_id)
VALUES ($1, $2, $3)
ON CONFLICT (user_id)
DO UPDATE SET guild_id = EXCLUDED.guild_id, channel_id = EXCLUDED.channel_id
`, sub.UserID, sub.GuildID, channelID)
	metrics.ObserveNetworkRequest("postgres", "digest_sub_upsert", "digest_subscriptions", start, err)
	return err
}

// DeleteDigestSubscription удаляет подписку на сводку.
func (p *Postgres) DeleteDigestSubscription(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM digest_subscriptions WHERE user_id = $1`, userID)
	metrics.ObserveNetworkRequest("postgres", "digest_sub_delete", "digest_subscriptions", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DigestCandidates возвращает всех подписчиков сводки с их DND-правилами.
func (p *Postgres) DigestCandidates(ctx context.Context) ([]domain.Candidate, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT ds.user_id, COALESCE(ds.guild_id, 0), ds.channel_id,
       dnd.start_hour_utc, dnd.end_hour_utc, dnd.weekdays_utc
FROM digest_subscriptions ds
LEFT JOIN user_dnd_rules dnd ON ds.user_id = dnd.user_id
`)
	metrics.ObserveNetworkRequest("postgres", "digest_candidates", "digest_subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var (
			cand      domain.Candidate
			channelID *int64
			startHour *int
			endHour   *int
			weekdays  []int32
		)
		if err := rows.Scan(&cand.UserID, &cand.GuildID, &channelID, &startHour, &endHour, &weekdays); err != nil {
			return nil, err
		}
		cand.Destination = destination(cand.UserID, channelID)
		cand.DND = dndRule(cand.UserID, startHour, endHour, weekdays)
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}
