// Package detect вычисляет доменные события по разнице между свежим
// опросом и последним известным состоянием.
package detect

import (
	"sort"

	"bf1942-alert-bot/internal/domain"
)

// MapChanges сравнивает свежий снапшот серверов с последним известным
// состоянием карт. Если previous пуст (первый тик после старта), проход
// считается приминг-проходом: события не порождаются, current принимается
// за базовую линию. Серверы, пропавшие из current, в next сохраняются —
// уход сервера в оффлайн не является сменой карты.
func MapChanges(previous map[string]string, current []domain.ServerSnapshot) ([]domain.MapChangedEvent, map[string]string) {
	next := make(map[string]string, len(previous)+len(current))
	for name, m := range previous {
		next[name] = m
	}
	for _, snap := range current {
		next[snap.Name] = snap.Map
	}

	if len(previous) == 0 {
		return nil, next
	}

	var events []domain.MapChangedEvent
	for _, snap := range current {
		old, known := previous[snap.Name]
		if snap.Map == "" {
			continue
		}
		if known && old == snap.Map {
			continue
		}
		events = append(events, domain.MapChangedEvent{
			ServerName: snap.Name,
			OldMap:     old,
			NewMap:     snap.Map,
			Snapshot:   snap,
		})
	}
	return events, next
}

// NewRounds отбирает завершённые раунды с идентификатором выше watermark
// и возвращает их по возрастанию id вместе с новым watermark. Watermark
// никогда не убывает.
func NewRounds(watermark int64, rounds []domain.RoundRecord) ([]domain.RoundRecord, int64) {
	var fresh []domain.RoundRecord
	next := watermark
	for _, r := range rounds {
		if r.ID <= watermark || r.EndTime.IsZero() {
			continue
		}
		fresh = append(fresh, r)
		if r.ID > next {
			next = r.ID
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })
	return fresh, next
}

// JoinedPlayers возвращает имена, появившиеся в current относительно
// previous. Пустой previous означает холодный старт: никто не считается
// «только что зашедшим».
func JoinedPlayers(previous, current map[string]struct{}) []string {
	if len(previous) == 0 {
		return nil
	}
	var joined []string
	for name := range current {
		if _, ok := previous[name]; !ok {
			joined = append(joined, name)
		}
	}
	sort.Strings(joined)
	return joined
}
