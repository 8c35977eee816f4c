// Package httpapi — JSON API управления правилами: подписки, вотчлист,
// сводка и окна «не беспокоить». Команды оригинального бота в чате сюда
// не переносятся; API служит тем же операциям поверх HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/usecase/subscriptions"
)

// Handler обслуживает маршруты управления правилами.
type Handler struct {
	rules  *subscriptions.Service
	logger zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(rules *subscriptions.Service, logger zerolog.Logger) *Handler {
	return &Handler{rules: rules, logger: logger}
}

// Router собирает маршруты API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/subscriptions", h.subscribe)
	r.Get("/subscriptions", h.listSubscriptions)
	r.Delete("/subscriptions", h.unsubscribeAll)
	r.Put("/subscriptions/pause", h.setPaused)

	r.Post("/rounds/subscriptions", h.subscribeRounds)
	r.Delete("/rounds/subscriptions", h.unsubscribeRounds)

	r.Post("/watchlist", h.watch)
	r.Get("/watchlist", h.listWatchlist)
	r.Delete("/watchlist", h.unwatch)

	r.Post("/digest/subscriptions", h.subscribeDigest)
	r.Delete("/digest/subscriptions", h.unsubscribeDigest)

	r.Put("/dnd", h.setDND)
	r.Get("/dnd", h.getDND)
	r.Delete("/dnd", h.clearDND)

	return r
}

type subscribeRequest struct {
	UserID      int64  `json:"user_id"`
	ServerName  string `json:"server_name"`
	MapName     string `json:"map_name"`
	PlayersOver int    `json:"players_over"`
	GuildID     int64  `json:"guild_id"`
	ChannelID   int64  `json:"channel_id"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decode(w, r, &req) {
		return
	}
	var err error
	if req.MapName == "" || req.MapName == domain.MapNameAll {
		err = h.rules.SubscribeServer(r.Context(), req.UserID, req.ServerName, req.PlayersOver, req.GuildID, req.ChannelID)
	} else {
		err = h.rules.Subscribe(r.Context(), req.UserID, req.ServerName, req.MapName, req.PlayersOver, req.GuildID, req.ChannelID)
	}
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	subs, err := h.rules.ListSubscriptions(r.Context(), userID)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(subs))
	for _, s := range subs {
		out = append(out, map[string]any{
			"server_name":  s.ServerName,
			"map_name":     s.MapName,
			"players_over": s.PlayersOver,
			"guild_id":     s.GuildID,
			"channel_id":   s.ChannelID,
			"is_paused":    s.IsPaused,
		})
	}
	writeJSON(w, map[string]any{"subscriptions": out})
}

func (h *Handler) unsubscribeAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	removed, err := h.rules.UnsubscribeAll(r.Context(), userID)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]int64{"removed": removed})
}

type pauseRequest struct {
	UserID int64 `json:"user_id"`
	Paused bool  `json:"paused"`
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.rules.SetPaused(r.Context(), req.UserID, req.Paused)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]int64{"updated": updated})
}

type roundSubscribeRequest struct {
	UserID     int64  `json:"user_id"`
	ServerName string `json:"server_name"`
	GuildID    int64  `json:"guild_id"`
	ChannelID  int64  `json:"channel_id"`
}

func (h *Handler) subscribeRounds(w http.ResponseWriter, r *http.Request) {
	var req roundSubscribeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.rules.SubscribeRounds(r.Context(), req.UserID, req.ServerName, req.GuildID, req.ChannelID); err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) unsubscribeRounds(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	removed, err := h.rules.UnsubscribeRounds(r.Context(), userID, r.URL.Query().Get("server_name"))
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]int64{"removed": removed})
}

type watchRequest struct {
	UserID     int64  `json:"user_id"`
	PlayerName string `json:"player_name"`
}

func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.rules.Watch(r.Context(), req.UserID, req.PlayerName); err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) listWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	entries, err := h.rules.Watchlist(r.Context(), userID)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.PlayerName)
	}
	writeJSON(w, map[string]any{"players": names})
}

func (h *Handler) unwatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	removed, err := h.rules.Unwatch(r.Context(), userID, r.URL.Query().Get("player_name"))
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]int64{"removed": removed})
}

type digestSubscribeRequest struct {
	UserID    int64 `json:"user_id"`
	GuildID   int64 `json:"guild_id"`
	ChannelID int64 `json:"channel_id"`
}

func (h *Handler) subscribeDigest(w http.ResponseWriter, r *http.Request) {
	var req digestSubscribeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.rules.SubscribeDigest(r.Context(), req.UserID, req.GuildID, req.ChannelID); err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) unsubscribeDigest(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	removed, err := h.rules.UnsubscribeDigest(r.Context(), userID)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]int64{"removed": removed})
}

type dndRequest struct {
	UserID    int64  `json:"user_id"`
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Days      string `json:"days"`
	Timezone  string `json:"timezone"`
}

func (h *Handler) setDND(w http.ResponseWriter, r *http.Request) {
	var req dndRequest
	if !decode(w, r, &req) {
		return
	}
	rule, err := h.rules.SetDND(r.Context(), req.UserID, req.StartHour, req.EndHour, req.Days, req.Timezone)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, dndResponse(rule))
}

func (h *Handler) getDND(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	rule, err := h.rules.GetDND(r.Context(), userID)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, "правило не найдено")
		return
	}
	writeJSON(w, dndResponse(*rule))
}

func (h *Handler) clearDND(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	removed, err := h.rules.ClearDND(r.Context(), userID)
	if err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, map[string]int64{"removed": removed})
}

func dndResponse(rule domain.DNDRule) map[string]any {
	return map[string]any{
		"start_hour_utc": rule.StartHourUTC,
		"end_hour_utc":   rule.EndHourUTC,
		"weekdays_utc":   rule.WeekdaysUTC,
		"timezone":       rule.Timezone,
	}
}

// writeRuleError переводит доменные ошибки в коды HTTP: ошибки конфигурации
// правил — 400, отсутствие прав в канале — 403, остальное — 500.
func (h *Handler) writeRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscriptions.ErrEmptyServerName),
		errors.Is(err, subscriptions.ErrEmptyMapName),
		errors.Is(err, subscriptions.ErrEmptyPlayerName),
		errors.Is(err, subscriptions.ErrNegativeThreshold),
		errors.Is(err, domain.ErrInvalidTimezone),
		errors.Is(err, domain.ErrInvalidWeekday),
		errors.Is(err, domain.ErrInvalidHour),
		errors.Is(err, domain.ErrEmptyWeekdays):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMissingPermissions):
		writeError(w, http.StatusForbidden, "у бота нет прав на отправку в канал")
	default:
		h.logger.Error().Err(err).Msg("httpapi: внутренняя ошибка")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "невалидное тело запроса")
		return false
	}
	return true
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, "требуется user_id")
		return 0, false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
