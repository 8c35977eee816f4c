// Package discord реализует доставку алертов через Discord:
// сообщения с embed в каналы гильдий и в личные сообщения.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/metrics"
)

const embedColor = 0x2B6CB0

// Sink отправляет алерты через сессию discordgo.
type Sink struct {
	session *discordgo.Session
	logger  zerolog.Logger
}

var _ domain.Sink = (*Sink)(nil)

// NewSink создаёт сессию бота. Гейтвей не открывается до вызова Open.
func NewSink(token string, logger zerolog.Logger) (*Sink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	// Нужен только кэш гильдий и каналов для проверки прав.
	session.Identify.Intents = discordgo.IntentsGuilds
	return &Sink{session: session, logger: logger}, nil
}

// Open подключает гейтвей.
func (s *Sink) Open() error {
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	s.logger.Info().Str("bot_user", s.session.State.User.Username).Msg("discord gateway открыт")
	return nil
}

// Close закрывает гейтвей.
func (s *Sink) Close() error {
	return s.session.Close()
}

// CanPost проверяет, может ли бот писать в канал: каналу нужно
// существовать, а боту — иметь права на отправку сообщений и embed.
func (s *Sink) CanPost(channelID int64) (bool, error) {
	chID := strconv.FormatInt(channelID, 10)

	start := time.Now()
	channel, err := s.session.State.Channel(chID)
	if err != nil {
		channel, err = s.session.Channel(chID)
	}
	if err != nil {
		metrics.ObserveNetworkRequest("discord", "channel_lookup", "channel", start, err)
		if restStatus(err) == http.StatusNotFound || restStatus(err) == http.StatusForbidden {
			return false, nil
		}
		return false, err
	}

	perms, err := s.session.UserChannelPermissions(s.session.State.User.ID, channel.ID)
	metrics.ObserveNetworkRequest("discord", "channel_permissions", "channel", start, err)
	if err != nil {
		if restStatus(err) == http.StatusNotFound || restStatus(err) == http.StatusForbidden {
			return false, nil
		}
		return false, err
	}

	required := int64(discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks)
	return perms&required == required, nil
}

// SendChannel отправляет алерт в канал гильдии.
func (s *Sink) SendChannel(ctx context.Context, channelID int64, alert domain.Alert) error {
	chID := strconv.FormatInt(channelID, 10)

	start := time.Now()
	_, err := s.session.ChannelMessageSendComplex(chID, messageFor(alert), discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "send_channel", "channel", start, err)
	return mapChannelError(err)
}

// SendDirect отправляет алерт в личные сообщения пользователя.
func (s *Sink) SendDirect(ctx context.Context, userID int64, alert domain.Alert) error {
	uID := strconv.FormatInt(userID, 10)

	start := time.Now()
	dm, err := s.session.UserChannelCreate(uID, discordgo.WithContext(ctx))
	if err != nil {
		metrics.ObserveNetworkRequest("discord", "dm_create", "dm", start, err)
		return mapDirectError(err)
	}

	_, err = s.session.ChannelMessageSendComplex(dm.ID, messageFor(alert), discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "send_dm", "dm", start, err)
	return mapDirectError(err)
}

func messageFor(alert domain.Alert) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       alert.Title,
		Description: alert.Body,
		Color:       embedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	for _, f := range alert.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return &discordgo.MessageSend{
		Content: alert.Content,
		Embeds:  []*discordgo.MessageEmbed{embed},
	}
}

func restStatus(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

func mapChannelError(err error) error {
	switch restStatus(err) {
	case http.StatusNotFound:
		return domain.ErrChannelNotFound
	case http.StatusForbidden:
		return domain.ErrMissingPermissions
	}
	return err
}

func mapDirectError(err error) error {
	switch restStatus(err) {
	case http.StatusForbidden:
		return domain.ErrDMForbidden
	case http.StatusNotFound:
		return domain.ErrChannelNotFound
	}
	return err
}
