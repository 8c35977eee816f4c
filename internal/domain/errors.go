package domain

import (
	"errors"
	"fmt"
)

// Ошибки доставки: терминальны для одной попытки, не повторяются.
var (
	// ErrChannelNotFound — канал назначения не найден (удалён).
	ErrChannelNotFound = errors.New("channel not found")
	// ErrDMForbidden — пользователь закрыл личные сообщения.
	ErrDMForbidden = errors.New("direct messages forbidden")
	// ErrMissingPermissions — у бота нет прав на отправку в канал.
	ErrMissingPermissions = errors.New("missing channel permissions")
)

// Ошибки конфигурации правил: отклоняются при создании правила и
// никогда не доходят до пути матчинга.
var (
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidWeekday  = errors.New("invalid weekday")
	ErrInvalidHour     = errors.New("hour out of range")
	ErrEmptyWeekdays   = errors.New("weekday set is empty")
)

// DataSourceError сигнализирует о недоступности поллера или хранилища.
// Такая ошибка прерывает тело текущего тика целиком, не трогая
// watermark'и; следующий тик повторит работу естественным образом.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source: %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// NewDataSourceError оборачивает ошибку источника данных.
func NewDataSourceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DataSourceError{Op: op, Err: err}
}

// IsDataSource сообщает, относится ли ошибка к источнику данных.
func IsDataSource(err error) bool {
	var dse *DataSourceError
	return errors.As(err, &dse)
}
