package domain

import (
	"context"
	"time"
)

// StateStore — идемпотентное key/value хранилище состояния бота
// (last_known_maps, last_round_result_id, last_digest_date).
// Успешный Set обязан быть видимым после рестарта процесса.
type StateStore interface {
	GetState(ctx context.Context, key string, dst any) (bool, error)
	SetState(ctx context.Context, key string, value any) error
}

// Poller выдаёт снапшоты внешних сущностей. Реализуется поверх таблиц,
// которые наполняет внешний инжест; этот модуль их только читает.
type Poller interface {
	ActiveServers(ctx context.Context, limit int) ([]ServerSnapshot, error)
	OnlinePlayers(ctx context.Context) ([]OnlinePlayer, error)
	CompletedRoundsAfter(ctx context.Context, afterID int64) ([]RoundRecord, error)
	MaxRoundID(ctx context.Context) (int64, error)
}

// StatsSource отдаёт агрегаты для обогащения алертов и ежедневной сводки.
type StatsSource interface {
	ServerDetails(ctx context.Context, serverName string) (*ServerSnapshot, error)
	LastRoundForServer(ctx context.Context, serverName string) (*RoundRecord, error)
	RoundTopPlayers(ctx context.Context, roundID int64, limit int) ([]RoundPlayer, error)
	DigestStats(ctx context.Context) (DigestStats, error)
	MostActiveServers24h(ctx context.Context, limit int) ([]ServerActivity, error)
	TopPlayers24h(ctx context.Context, limit int) ([]PlayerActivity, error)
}

// SubscriptionRepo управляет подписками на смену карты.
type SubscriptionRepo interface {
	UpsertSubscription(ctx context.Context, sub Subscription) error
	ListUserSubscriptions(ctx context.Context, userID int64) ([]Subscription, error)
	DeleteAllSubscriptions(ctx context.Context, userID int64) (int64, error)
	SetSubscriptionsPaused(ctx context.Context, userID int64, paused bool) (int64, error)
	// MapCandidates возвращает непоставленные на паузу подписки сервера,
	// чья карта совпадает с новой картой или равна MapNameAll,
	// вместе с DND-правилами подписчиков.
	MapCandidates(ctx context.Context, serverName, mapName string) ([]Candidate, error)
}

// RoundSubscriptionRepo управляет подписками на результаты раундов.
type RoundSubscriptionRepo interface {
	UpsertRoundSubscription(ctx context.Context, sub RoundSubscription) error
	DeleteRoundSubscription(ctx context.Context, userID int64, serverName string) (int64, error)
	RoundCandidates(ctx context.Context, serverName string) ([]Candidate, error)
}

// WatchlistRepo управляет наблюдением за игроками.
type WatchlistRepo interface {
	AddWatch(ctx context.Context, userID int64, playerName string) error
	RemoveWatch(ctx context.Context, userID int64, playerName string) (int64, error)
	ListUserWatchlist(ctx context.Context, userID int64) ([]WatchlistEntry, error)
	WatchCandidates(ctx context.Context, playerNames []string) ([]Candidate, error)
}

// DigestSubscriptionRepo управляет подписками на ежедневную сводку.
type DigestSubscriptionRepo interface {
	UpsertDigestSubscription(ctx context.Context, sub DigestSubscription) error
	DeleteDigestSubscription(ctx context.Context, userID int64) (int64, error)
	DigestCandidates(ctx context.Context) ([]Candidate, error)
}

// DNDRepo управляет окнами «не беспокоить».
type DNDRepo interface {
	UpsertDNDRule(ctx context.Context, rule DNDRule) error
	GetDNDRule(ctx context.Context, userID int64) (*DNDRule, error)
	DeleteDNDRule(ctx context.Context, userID int64) (int64, error)
}

// BlocklistRepo читает блоклист при старте процесса.
type BlocklistRepo interface {
	LoadBlocklist(ctx context.Context) (Blocklist, error)
}

// Sink — транспорт уведомлений. CanPost возвращает false без ошибки,
// когда у бота нет прав «отправлять сообщения» и «вставлять вложения».
type Sink interface {
	CanPost(channelID int64) (bool, error)
	SendChannel(ctx context.Context, channelID int64, alert Alert) error
	SendDirect(ctx context.Context, userID int64, alert Alert) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
