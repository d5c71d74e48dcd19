package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OpaqueJSON — произвольный JSON-документ без схемы (колонка jsonb)
type OpaqueJSON json.RawMessage

func (o OpaqueJSON) Value() (driver.Value, error) {
	if len(o) == 0 {
		return nil, nil
	}
	return []byte(o), nil
}

func (o *OpaqueJSON) Scan(src interface{}) error {
	if src == nil {
		*o = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected jsonb column type %T", src)
	}
	*o = append((*o)[0:0], b...)
	return nil
}

func (o OpaqueJSON) MarshalJSON() ([]byte, error) {
	if len(o) == 0 {
		return []byte("null"), nil
	}
	return []byte(o), nil
}

func (o *OpaqueJSON) UnmarshalJSON(b []byte) error {
	*o = append((*o)[0:0], b...)
	return nil
}

// Curation — структурированное мнение куратора об одной сущности.
// Удаляется мягко (is_deleted), жесткое удаление — отдельная операция.
type Curation struct {
	CurationID string     `json:"curation_id" db:"curation_id"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	CuratorID  string     `json:"curator_id" db:"curator_id"`
	Version    int        `json:"version" db:"version"`
	IsDeleted  bool       `json:"is_deleted" db:"is_deleted"`
	Category   string     `json:"category" db:"category"`
	Rating     *int       `json:"rating,omitempty" db:"rating"`
	Notes      string     `json:"notes" db:"notes"`
	Content    OpaqueJSON `json:"content,omitempty" db:"content"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// CurationPatch — частичное обновление кураторских полей
type CurationPatch struct {
	Category *string    `json:"category,omitempty"`
	Rating   *int       `json:"rating,omitempty"`
	Notes    *string    `json:"notes,omitempty"`
	Content  OpaqueJSON `json:"content,omitempty"`
}
