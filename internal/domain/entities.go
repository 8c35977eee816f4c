package domain

import "time"

// MapNameAll — зарезервированное имя карты для подписки «любая карта сервера».
const MapNameAll = "*all*"

// ServerSnapshot описывает последнее наблюдаемое состояние игрового сервера.
type ServerSnapshot struct {
	Name        string
	Map         string
	PlayerCount int
	MaxPlayers  int
	State       string
}

// OnlinePlayer описывает игрока, находящегося на сервере в момент опроса.
type OnlinePlayer struct {
	Name   string
	Server string
}

// RoundRecord описывает завершённый раунд.
type RoundRecord struct {
	ID              int64
	ServerName      string
	MapName         string
	WinningTeam     int
	DurationSeconds int
	StartTime       time.Time
	EndTime         time.Time
}

// RoundPlayer — строка из топа игроков раунда.
type RoundPlayer struct {
	Name   string
	Score  int
	Kills  int
	Deaths int
	Team   int
}

// Destination описывает цель доставки: канал, если ChannelID задан,
// иначе личные сообщения UserID.
type Destination struct {
	ChannelID int64
	UserID    int64
}

// IsDirect сообщает, что алерт уходит в личные сообщения.
func (d Destination) IsDirect() bool { return d.ChannelID == 0 }

// Subscription — подписка на смену карты. MapName хранится в нижнем
// регистре; MapNameAll означает подписку на все карты сервера.
type Subscription struct {
	UserID      int64
	ServerName  string
	MapName     string
	PlayersOver int
	GuildID     int64
	ChannelID   int64
	IsPaused    bool
}

// RoundSubscription — подписка на результаты раундов сервера.
type RoundSubscription struct {
	UserID     int64
	ServerName string
	GuildID    int64
	ChannelID  int64
}

// DigestSubscription — подписка на ежедневную сводку.
type DigestSubscription struct {
	UserID    int64
	GuildID   int64
	ChannelID int64
}

// WatchlistEntry — наблюдение за игроком.
type WatchlistEntry struct {
	UserID     int64
	PlayerName string
}

// DNDRule — окно «не беспокоить». Часы и дни недели хранятся уже в UTC,
// метка часового пояса сохраняется только для отображения.
type DNDRule struct {
	UserID       int64
	StartHourUTC int
	EndHourUTC   int
	WeekdaysUTC  []int
	Timezone     string
}

// Candidate — получатель алерта после выборки из БД: назначение доставки
// плюс DND-правило, если оно есть (LEFT JOIN).
type Candidate struct {
	UserID      int64
	GuildID     int64
	Destination Destination
	DND         *DNDRule

	// Поля, осмысленные только для кандидатов по смене карты.
	MapName     string
	PlayersOver int

	// Имя игрока; заполняется только для кандидатов вотчлиста.
	PlayerName string
}

// Blocklist хранит заблокированных пользователей и гильдии.
// Загружается один раз на старте процесса.
type Blocklist struct {
	Users  map[int64]struct{}
	Guilds map[int64]struct{}
}

// BlockedUser сообщает, заблокирован ли пользователь.
func (b Blocklist) BlockedUser(id int64) bool {
	_, ok := b.Users[id]
	return ok
}

// BlockedGuild сообщает, заблокирована ли гильдия.
func (b Blocklist) BlockedGuild(id int64) bool {
	_, ok := b.Guilds[id]
	return ok
}

// AlertField — пара имя/значение в теле алерта.
type AlertField struct {
	Name   string
	Value  string
	Inline bool
}

// Alert — готовое к доставке уведомление. Форматирование под конкретный
// транспорт выполняет sink.
type Alert struct {
	Title   string
	Body    string
	Content string
	Fields  []AlertField
}

// DigestStats — агрегаты активности за последние 24 часа.
type DigestStats struct {
	Rounds24h        int
	UniquePlayers24h int
}

// ServerActivity — сервер и число раундов за период.
type ServerActivity struct {
	ServerName string
	RoundCount int
}

// PlayerActivity — игрок и его суммарные очки за период.
type PlayerActivity struct {
	PlayerName string
	TotalScore int
	TotalKills int
}
