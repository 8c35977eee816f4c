package domain

// MapChangedEvent — на сервере началась новая карта. Появление
// наблюдаемого игрока и завершение раунда отдельных типов не требуют:
// первое описывается именем и сервером, второе — самим RoundRecord.
type MapChangedEvent struct {
	ServerName string
	OldMap     string
	NewMap     string
	Snapshot   ServerSnapshot
}
