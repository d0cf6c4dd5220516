package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Jingle is a generated term + lyrics + optional audio unit. Jingles have no
// independent identity; they are addressed by position in the parent set.
type Jingle struct {
	Term     string  `json:"term"`
	Lyrics   string  `json:"lyrics"`
	AudioURL *string `json:"audio_url,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Genre    *string `json:"genre,omitempty"`
}

// JingleList stores the ordered jingle list as a single JSONB column
type JingleList []Jingle

// Value implements driver.Valuer
func (l JingleList) Value() (driver.Value, error) {
	if l == nil {
		l = JingleList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *JingleList) Scan(src any) error {
	if src == nil {
		*l = JingleList{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported jingle list source type %T", src)
	}

	if len(data) == 0 {
		*l = JingleList{}
		return nil
	}
	return json.Unmarshal(data, l)
}

// StudySet is a named collection of jingles belonging to a user. The set is
// created empty and filled incrementally as jingles are generated one-by-one.
type StudySet struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Subject          string     `gorm:"type:text;not null" json:"subject"`
	Jingles          JingleList `gorm:"type:jsonb;not null;default:'[]'" json:"jingles"`
	StitchedAudioURL *string    `gorm:"column:stitched_audio_url" json:"stitched_audio_url,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName overrides the default pluralization
func (StudySet) TableName() string {
	return "study_sets"
}
