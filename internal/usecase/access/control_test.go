package access

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
)

type fakeSink struct {
	canPost map[int64]bool
	err     error
}

func (f *fakeSink) CanPost(channelID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.canPost[channelID], nil
}
func (f *fakeSink) SendChannel(context.Context, int64, domain.Alert) error { return nil }
func (f *fakeSink) SendDirect(context.Context, int64, domain.Alert) error  { return nil }

func blocklist(users, guilds []int64) domain.Blocklist {
	b := domain.Blocklist{Users: make(map[int64]struct{}), Guilds: make(map[int64]struct{})}
	for _, id := range users {
		b.Users[id] = struct{}{}
	}
	for _, id := range guilds {
		b.Guilds[id] = struct{}{}
	}
	return b
}

func TestFilterDropsBlockedUser(t *testing.T) {
	c := NewController(blocklist([]int64{7}, nil), &fakeSink{}, zerolog.Nop())

	got := c.Filter("map_change", []domain.Candidate{
		{UserID: 7, Destination: domain.Destination{UserID: 7}},
		{UserID: 8, Destination: domain.Destination{UserID: 8}},
	})
	if len(got) != 1 || got[0].UserID != 8 {
		t.Fatalf("ожидали только незаблокированного кандидата, получили %v", got)
	}
}

func TestFilterDropsBlockedGuild(t *testing.T) {
	sink := &fakeSink{canPost: map[int64]bool{100: true, 200: true}}
	c := NewController(blocklist(nil, []int64{55}), sink, zerolog.Nop())

	got := c.Filter("map_change", []domain.Candidate{
		{UserID: 1, GuildID: 55, Destination: domain.Destination{ChannelID: 100, UserID: 1}},
		{UserID: 2, GuildID: 56, Destination: domain.Destination{ChannelID: 200, UserID: 2}},
	})
	if len(got) != 1 || got[0].UserID != 2 {
		t.Fatalf("ожидали только кандидата из незаблокированной гильдии, получили %v", got)
	}
}

func TestFilterDropsChannelWithoutPermissions(t *testing.T) {
	sink := &fakeSink{canPost: map[int64]bool{100: false}}
	c := NewController(blocklist(nil, nil), sink, zerolog.Nop())

	got := c.Filter("map_change", []domain.Candidate{
		{UserID: 1, Destination: domain.Destination{ChannelID: 100, UserID: 1}},
	})
	// Канал без прав именно отбрасывается, в ЛС алерт не уходит.
	if len(got) != 0 {
		t.Fatalf("ожидали пустой список, получили %v", got)
	}
}

func TestFilterDropsChannelOnLookupError(t *testing.T) {
	sink := &fakeSink{err: errors.New("gateway down")}
	c := NewController(blocklist(nil, nil), sink, zerolog.Nop())

	got := c.Filter("map_change", []domain.Candidate{
		{UserID: 1, Destination: domain.Destination{ChannelID: 100, UserID: 1}},
	})
	if len(got) != 0 {
		t.Fatalf("ожидали пустой список при недоступном канале, получили %v", got)
	}
}

func TestFilterSkipsPermissionCheckForDirect(t *testing.T) {
	sink := &fakeSink{err: errors.New("gateway down")}
	c := NewController(blocklist(nil, nil), sink, zerolog.Nop())

	got := c.Filter("watchlist", []domain.Candidate{
		{UserID: 1, Destination: domain.Destination{UserID: 1}},
	})
	if len(got) != 1 {
		t.Fatalf("ЛС-кандидат не должен проверяться на права канала")
	}
}
