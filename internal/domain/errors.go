package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	// ErrEntityNotFound — ссылочная ошибка: курация указывает на
	// несуществующую сущность
	ErrEntityNotFound = errors.New("entity not found")
	// ErrNoMatch возвращает условный UPDATE, когда ни одна строка не
	// подошла под (id, version). Вызывающий перечитывает запись, чтобы
	// отличить "нет записи" от конфликта версий.
	ErrNoMatch = errors.New("no matching record")
)

// VersionConflictError — несовпадение версии при условной записи.
// Current — актуальная версия в хранилище, Given — версия клиента.
type VersionConflictError struct {
	ID      string
	Current int
	Given   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, got %d", e.Current, e.Given)
}

// IsVersionConflict — удобная проверка для границы HTTP
func IsVersionConflict(err error) bool {
	var vc *VersionConflictError
	return errors.As(err, &vc)
}
