package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type EntityStatus string

const (
	EntityStatusActive  EntityStatus = "active"
	EntityStatusDraft   EntityStatus = "draft"
	EntityStatusDeleted EntityStatus = "deleted"
)

// MetadataEntry — одна запись в журнале метаданных сущности.
// Журнал только дополняется, записи никогда не переписываются.
type MetadataEntry struct {
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// MetadataLog хранится в колонке jsonb, порядок вставки = хронологический
type MetadataLog []MetadataEntry

func (m MetadataLog) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

func (m *MetadataLog) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected metadata column type %T", src)
	}
	return json.Unmarshal(b, m)
}

type Location struct {
	Address string  `json:"address,omitempty"`
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

func (l *Location) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *Location) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected location column type %T", src)
	}
	return json.Unmarshal(b, l)
}

type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
}

func (c *Contact) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *Contact) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected contact column type %T", src)
	}
	return json.Unmarshal(b, c)
}

// Entity — точка интереса (ресторан, отель и т.д.), версионируемая запись.
// Поле Version — токен оптимистической блокировки, растет ровно на 1
// при каждой успешной мутации.
type Entity struct {
	EntityID  string         `json:"entity_id" db:"entity_id"`
	Version   int            `json:"version" db:"version"`
	Status    EntityStatus   `json:"status" db:"status"`
	Name      string         `json:"name" db:"name"`
	Location  *Location      `json:"location,omitempty" db:"location"`
	Contact   *Contact       `json:"contact,omitempty" db:"contact"`
	Tags      pq.StringArray `json:"tags,omitempty" db:"tags"`
	Metadata  MetadataLog    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// EntityPatch — частичное обновление доменных полей сущности.
// nil-поле означает "не трогать". Version и updated_at патч не задает,
// ими владеет хранилище.
type EntityPatch struct {
	Name     *string        `json:"name,omitempty"`
	Status   *EntityStatus  `json:"status,omitempty"`
	Location *Location      `json:"location,omitempty"`
	Contact  *Contact       `json:"contact,omitempty"`
	Tags     pq.StringArray `json:"tags,omitempty"`
}
