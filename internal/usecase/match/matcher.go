// Package match подбирает получателей для доменных событий.
package match

import (
	"context"
	"strings"

	"bf1942-alert-bot/internal/domain"
)

// Matcher выбирает кандидатов по правилам подписок.
type Matcher struct {
	subs   domain.SubscriptionRepo
	rounds domain.RoundSubscriptionRepo
	watch  domain.WatchlistRepo
}

// NewMatcher создаёт матчер.
func NewMatcher(subs domain.SubscriptionRepo, rounds domain.RoundSubscriptionRepo, watch domain.WatchlistRepo) *Matcher {
	return &Matcher{subs: subs, rounds: rounds, watch: watch}
}

// MapChange возвращает подписчиков смены карты: правило совпадает по
// точному имени карты либо по wildcard, не стоит на паузе, и число
// игроков строго больше порога правила (players_over=N требует N+1).
func (m *Matcher) MapChange(ctx context.Context, ev domain.MapChangedEvent) ([]domain.Candidate, error) {
	candidates, err := m.subs.MapCandidates(ctx, ev.ServerName, strings.ToLower(ev.NewMap))
	if err != nil {
		return nil, domain.NewDataSourceError("map candidates", err)
	}
	matched := candidates[:0]
	for _, c := range candidates {
		if ev.Snapshot.PlayerCount > c.PlayersOver {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// RoundCompleted возвращает подписчиков результатов раундов сервера.
// Порога по игрокам у раундовых подписок нет.
func (m *Matcher) RoundCompleted(ctx context.Context, serverName string) ([]domain.Candidate, error) {
	candidates, err := m.rounds.RoundCandidates(ctx, serverName)
	if err != nil {
		return nil, domain.NewDataSourceError("round candidates", err)
	}
	return candidates, nil
}

// PlayerJoined возвращает наблюдателей за только что зашедшими игроками.
func (m *Matcher) PlayerJoined(ctx context.Context, playerNames []string) ([]domain.Candidate, error) {
	if len(playerNames) == 0 {
		return nil, nil
	}
	candidates, err := m.watch.WatchCandidates(ctx, playerNames)
	if err != nil {
		return nil, domain.NewDataSourceError("watch candidates", err)
	}
	return candidates, nil
}
