package database

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Run represents one sweep execution
type Run struct {
	ID          string     `gorm:"primarykey;size:36" json:"id"`
	Status      string     `gorm:"index;size:16;not null" json:"status"`
	Modulations string     `gorm:"size:64" json:"modulations"` // comma separated names
	SNRStart    float64    `json:"snr_start"`
	SNRStop     float64    `json:"snr_stop"`
	SNRStep     float64    `json:"snr_step"`
	InfoBits    int        `gorm:"not null" json:"info_bits"`
	Trials      int        `gorm:"not null" json:"trials"`
	Seed        Seed       `gorm:"type:integer" json:"seed"`
	StartedAt   time.Time  `gorm:"index;not null" json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	PointCount  int        `gorm:"default:0" json:"point_count"`
	Points      []Point    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Seed is a sweep seed. SQLite integers are signed, so the full uint64 range
// is stored as its int64 bit pattern.
type Seed uint64

// Value implements driver.Valuer
func (s Seed) Value() (driver.Value, error) {
	return int64(s), nil
}

// Scan implements sql.Scanner
func (s *Seed) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*s = Seed(uint64(v))
	case nil:
		*s = 0
	default:
		return fmt.Errorf("cannot scan %T into Seed", src)
	}
	return nil
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}

// BeforeCreate hook to ensure the ID and StartedAt are set
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	return nil
}

// Duration returns the wall time of a finished run, or zero while running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Point represents the aggregate BER at one operating point of a run
type Point struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	RunID      string    `gorm:"index;size:36;not null" json:"run_id"`
	Modulation string    `gorm:"index;size:8;not null" json:"modulation"`
	EbN0dB     float64   `gorm:"column:ebn0_db;not null" json:"ebn0_db"`
	Coded      bool      `gorm:"index" json:"coded"`
	Trials     int       `gorm:"not null" json:"trials"`
	Bits       int64     `gorm:"not null" json:"bits"`
	Errors     int64     `gorm:"not null" json:"errors"`
	BER        float64   `gorm:"column:ber" json:"ber"`
	TheoryBER  float64   `gorm:"column:theory_ber" json:"theory_ber"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for Point
func (Point) TableName() string {
	return "points"
}

// BeforeCreate hook to ensure CreatedAt is set
func (p *Point) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return nil
}
