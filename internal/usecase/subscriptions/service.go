// Package subscriptions управляет правилами подписок, вотчлистом и
// DND-расписаниями. Валидация происходит здесь, при создании правила:
// до пути матчинга некорректное правило не доходит.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/usecase/dnd"
)

var (
	// ErrEmptyServerName — не указано имя сервера.
	ErrEmptyServerName = errors.New("server name is empty")
	// ErrEmptyMapName — не указано имя карты.
	ErrEmptyMapName = errors.New("map name is empty")
	// ErrEmptyPlayerName — не указано имя игрока.
	ErrEmptyPlayerName = errors.New("player name is empty")
	// ErrNegativeThreshold — порог числа игроков меньше нуля.
	ErrNegativeThreshold = errors.New("players_over must be non-negative")
)

// Service реализует операции управления правилами.
type Service struct {
	subs    domain.SubscriptionRepo
	rounds  domain.RoundSubscriptionRepo
	watch   domain.WatchlistRepo
	digests domain.DigestSubscriptionRepo
	dndRepo domain.DNDRepo
	sink    domain.Sink
}

// NewService создаёт сервис управления подписками.
func NewService(subs domain.SubscriptionRepo, rounds domain.RoundSubscriptionRepo, watch domain.WatchlistRepo, digests domain.DigestSubscriptionRepo, dndRepo domain.DNDRepo, sink domain.Sink) *Service {
	return &Service{subs: subs, rounds: rounds, watch: watch, digests: digests, dndRepo: dndRepo, sink: sink}
}

// checkChannel проверяет права бота в канале назначения. Проверка
// выполняется один раз при создании подписки; при доставке канал без
// прав просто отбрасывается.
func (s *Service) checkChannel(channelID int64) error {
	if channelID == 0 {
		return nil
	}
	ok, err := s.sink.CanPost(channelID)
	if err != nil {
		return fmt.Errorf("проверка канала: %w", err)
	}
	if !ok {
		return domain.ErrMissingPermissions
	}
	return nil
}

// Subscribe создаёт или обновляет подписку на конкретную карту сервера.
// Имя карты приводится к нижнему регистру — так же оно матчится.
func (s *Service) Subscribe(ctx context.Context, userID int64, serverName, mapName string, playersOver int, guildID, channelID int64) error {
	serverName = strings.TrimSpace(serverName)
	if serverName == "" {
		return ErrEmptyServerName
	}
	mapName = strings.ToLower(strings.TrimSpace(mapName))
	if mapName == "" {
		return ErrEmptyMapName
	}
	if playersOver < 0 {
		return ErrNegativeThreshold
	}
	if err := s.checkChannel(channelID); err != nil {
		return err
	}
	return s.subs.UpsertSubscription(ctx, domain.Subscription{
		UserID:      userID,
		ServerName:  serverName,
		MapName:     mapName,
		PlayersOver: playersOver,
		GuildID:     guildID,
		ChannelID:   channelID,
	})
}

// SubscribeServer создаёт wildcard-подписку на все смены карт сервера.
func (s *Service) SubscribeServer(ctx context.Context, userID int64, serverName string, playersOver int, guildID, channelID int64) error {
	return s.Subscribe(ctx, userID, serverName, domain.MapNameAll, playersOver, guildID, channelID)
}

// ListSubscriptions возвращает подписки пользователя.
func (s *Service) ListSubscriptions(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	return s.subs.ListUserSubscriptions(ctx, userID)
}

// UnsubscribeAll удаляет все подписки пользователя и возвращает их число.
func (s *Service) UnsubscribeAll(ctx context.Context, userID int64) (int64, error) {
	return s.subs.DeleteAllSubscriptions(ctx, userID)
}

// SetPaused ставит все подписки пользователя на паузу или снимает её.
func (s *Service) SetPaused(ctx context.Context, userID int64, paused bool) (int64, error) {
	return s.subs.SetSubscriptionsPaused(ctx, userID, paused)
}

// SubscribeRounds подписывает на результаты раундов сервера.
func (s *Service) SubscribeRounds(ctx context.Context, userID int64, serverName string, guildID, channelID int64) error {
	serverName = strings.TrimSpace(serverName)
	if serverName == "" {
		return ErrEmptyServerName
	}
	if err := s.checkChannel(channelID); err != nil {
		return err
	}
	return s.rounds.UpsertRoundSubscription(ctx, domain.RoundSubscription{
		UserID:     userID,
		ServerName: serverName,
		GuildID:    guildID,
		ChannelID:  channelID,
	})
}

// UnsubscribeRounds снимает подписку на результаты раундов.
func (s *Service) UnsubscribeRounds(ctx context.Context, userID int64, serverName string) (int64, error) {
	return s.rounds.DeleteRoundSubscription(ctx, userID, serverName)
}

// Watch добавляет игрока в вотчлист пользователя.
func (s *Service) Watch(ctx context.Context, userID int64, playerName string) error {
	if strings.TrimSpace(playerName) == "" {
		return ErrEmptyPlayerName
	}
	return s.watch.AddWatch(ctx, userID, playerName)
}

// Unwatch убирает игрока из вотчлиста.
func (s *Service) Unwatch(ctx context.Context, userID int64, playerName string) (int64, error) {
	return s.watch.RemoveWatch(ctx, userID, playerName)
}

// Watchlist возвращает вотчлист пользователя.
func (s *Service) Watchlist(ctx context.Context, userID int64) ([]domain.WatchlistEntry, error) {
	return s.watch.ListUserWatchlist(ctx, userID)
}

// SubscribeDigest подписывает на ежедневную сводку.
func (s *Service) SubscribeDigest(ctx context.Context, userID, guildID, channelID int64) error {
	if err := s.checkChannel(channelID); err != nil {
		return err
	}
	return s.digests.UpsertDigestSubscription(ctx, domain.DigestSubscription{
		UserID:    userID,
		GuildID:   guildID,
		ChannelID: channelID,
	})
}

// UnsubscribeDigest снимает подписку на сводку.
func (s *Service) UnsubscribeDigest(ctx context.Context, userID int64) (int64, error) {
	return s.digests.DeleteDigestSubscription(ctx, userID)
}

// SetDND задаёт окно «не беспокоить»: локальные часы и дни пользователя
// конвертируются в UTC на момент создания правила.
func (s *Service) SetDND(ctx context.Context, userID int64, startHour, endHour int, days, timezone string) (domain.DNDRule, error) {
	localDays, err := dnd.ParseDays(days)
	if err != nil {
		return domain.DNDRule{}, err
	}
	rule, err := dnd.BuildRule(userID, startHour, endHour, localDays, timezone, time.Now().UTC())
	if err != nil {
		return domain.DNDRule{}, err
	}
	if err := s.dndRepo.UpsertDNDRule(ctx, rule); err != nil {
		return domain.DNDRule{}, fmt.Errorf("сохранение DND-правила: %w", err)
	}
	return rule, nil
}

// GetDND возвращает правило пользователя или nil.
func (s *Service) GetDND(ctx context.Context, userID int64) (*domain.DNDRule, error) {
	return s.dndRepo.GetDNDRule(ctx, userID)
}

// ClearDND удаляет правило и возвращает число удалённых.
func (s *Service) ClearDND(ctx context.Context, userID int64) (int64, error) {
	return s.dndRepo.DeleteDNDRule(ctx, userID)
}
