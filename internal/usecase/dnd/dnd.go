// Package dnd реализует окна «не беспокоить»: чистый предикат подавления
// и конвертацию локального расписания пользователя в UTC при создании
// правила.
package dnd

import (
	"strings"
	"time"

	"bf1942-alert-bot/internal/domain"
)

var dayAliases = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

// weekdayMon0 переводит time.Weekday (Вс=0) в принятую в хранилище
// нумерацию Пн=0..Вс=6.
func weekdayMon0(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// IsSuppressed сообщает, попадает ли момент now (UTC) в окно правила.
// Отсутствие правила означает «не подавлять». Конец окна исключающий;
// окно, пересекающее полночь (например 22→6), трактуется как
// «час ≥ start ИЛИ час < end».
func IsSuppressed(rule *domain.DNDRule, now time.Time) bool {
	if rule == nil {
		return false
	}
	now = now.UTC()

	dayOK := false
	wd := weekdayMon0(now)
	for _, d := range rule.WeekdaysUTC {
		if d == wd {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}

	h := now.Hour()
	if rule.StartHourUTC <= rule.EndHourUTC {
		return rule.StartHourUTC <= h && h < rule.EndHourUTC
	}
	return h >= rule.StartHourUTC || h < rule.EndHourUTC
}

// ParseDays разбирает пользовательский ввод дней недели: "all",
// "weekdays", "weekends" или перечисление вида "mon,wed,fri".
// Возвращает дни в нумерации Пн=0..Вс=6.
func ParseDays(input string) ([]int, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "all":
		return []int{0, 1, 2, 3, 4, 5, 6}, nil
	case "weekdays":
		return []int{0, 1, 2, 3, 4}, nil
	case "weekends":
		return []int{5, 6}, nil
	}

	var days []int
	seen := make(map[int]struct{})
	for _, part := range strings.Split(strings.ToLower(input), ",") {
		part = strings.TrimSpace(part)
		d, ok := dayAliases[part]
		if !ok {
			return nil, domain.ErrInvalidWeekday
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, domain.ErrEmptyWeekdays
	}
	return days, nil
}

// BuildRule конвертирует локальное расписание пользователя в UTC-правило.
// Локальные дни переводятся в UTC-дни по скользящему окну из 8 подряд
// идущих локальных календарных дат начиная с «сегодня»: локальная граница
// суток может приходиться на другой UTC-день недели. Соответствие
// вычисляется один раз на момент создания правила; смещение зоны может
// измениться при переходе на летнее время, и тогда правило остаётся со
// старым отображением до пересоздания.
func BuildRule(userID int64, startHour, endHour int, localDays []int, timezone string, now time.Time) (domain.DNDRule, error) {
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23 {
		return domain.DNDRule{}, domain.ErrInvalidHour
	}
	if len(localDays) == 0 {
		return domain.DNDRule{}, domain.ErrEmptyWeekdays
	}
	for _, d := range localDays {
		if d < 0 || d > 6 {
			return domain.DNDRule{}, domain.ErrInvalidWeekday
		}
	}
	timezone = strings.TrimSpace(timezone)
	if timezone == "" {
		return domain.DNDRule{}, domain.ErrInvalidTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return domain.DNDRule{}, domain.ErrInvalidTimezone
	}

	nowLocal := now.In(loc)
	startLocal := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), startHour, 0, 0, 0, loc)
	endLocal := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), endHour, 0, 0, 0, loc)

	wanted := make(map[int]struct{}, len(localDays))
	for _, d := range localDays {
		wanted[d] = struct{}{}
	}
	utcDaySet := make(map[int]struct{})
	for offset := 0; offset < 8; offset++ {
		candidate := startLocal.AddDate(0, 0, offset)
		if _, ok := wanted[weekdayMon0(candidate)]; ok {
			utcDaySet[weekdayMon0(candidate.UTC())] = struct{}{}
		}
	}
	utcDays := make([]int, 0, len(utcDaySet))
	for d := 0; d < 7; d++ {
		if _, ok := utcDaySet[d]; ok {
			utcDays = append(utcDays, d)
		}
	}

	return domain.DNDRule{
		UserID:       userID,
		StartHourUTC: startLocal.UTC().Hour(),
		EndHourUTC:   endLocal.UTC().Hour(),
		WeekdaysUTC:  utcDays,
		Timezone:     timezone,
	}, nil
}
