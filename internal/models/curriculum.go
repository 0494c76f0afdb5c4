package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Curriculum grid dimensions shared by the schedule generator and the aggregator.
const (
	WeeksPerUnit  = 10
	BlocksPerWeek = 4
	BlocksPerUnit = WeeksPerUnit * BlocksPerWeek
)

// BlockParts lists the sub-unit designators of a week in order.
var BlockParts = [BlocksPerWeek]string{"A", "B", "C", "D"}

// HalfDesignator selects which numbering space a curriculum unit uses.
type HalfDesignator int

const (
	// HalfFirst numbers blocks H1..H10.
	HalfFirst HalfDesignator = iota
	// HalfSecond numbers blocks H11..H20 while presenting the same ten weeks.
	HalfSecond
)

// BlockOffset returns the block number offset applied to every week.
func (h HalfDesignator) BlockOffset() int {
	switch h {
	case HalfSecond:
		return WeeksPerUnit
	default:
		return 0
	}
}

// String renders the storage representation.
func (h HalfDesignator) String() string {
	switch h {
	case HalfSecond:
		return "second"
	default:
		return "first"
	}
}

// ParseHalfDesignator converts a stored designator. Unknown values return HalfFirst together
// with an error so strict callers such as the catalog loader can reject them.
func ParseHalfDesignator(raw string) (HalfDesignator, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "first", "1", "first_half":
		return HalfFirst, nil
	case "second", "2", "second_half":
		return HalfSecond, nil
	default:
		return HalfFirst, fmt.Errorf("unknown half designator %q", raw)
	}
}

// Scan implements sql.Scanner. Unrecognised text scans as HalfFirst so one bad row cannot fail
// a whole progress read.
func (h *HalfDesignator) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*h = HalfFirst
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case int64:
		if v == 2 {
			*h = HalfSecond
		} else {
			*h = HalfFirst
		}
		return nil
	default:
		return fmt.Errorf("unsupported half designator type %T", src)
	}
	*h, _ = ParseHalfDesignator(raw)
	return nil
}

// Value implements driver.Valuer.
func (h HalfDesignator) Value() (driver.Value, error) {
	return h.String(), nil
}

// MarshalText implements encoding.TextMarshaler.
func (h HalfDesignator) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HalfDesignator) UnmarshalText(text []byte) error {
	parsed, err := ParseHalfDesignator(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// CurriculumUnit is a fixed page range a learner memorises over ten weeks.
type CurriculumUnit struct {
	Code      string         `db:"code" json:"code" yaml:"code"`
	Name      string         `db:"name" json:"name" yaml:"name"`
	StartPage int            `db:"start_page" json:"start_page" yaml:"start_page"`
	EndPage   int            `db:"end_page" json:"end_page" yaml:"end_page"`
	Half      HalfDesignator `db:"half" json:"half" yaml:"half"`
}

// Block is one generated sub-unit of a curriculum unit. Completion is always derived.
type Block struct {
	Code      string `json:"code"`
	Week      int    `json:"week"`
	Part      string `json:"part"`
	Page      int    `json:"page"`
	Completed bool   `json:"completed"`
	Count     int    `json:"count"`
}

// LearnerUnitAssignment binds a learner to the unit they are currently confirmed on.
type LearnerUnitAssignment struct {
	LearnerID string `db:"learner_id" json:"learner_id"`
	UnitCode  string `db:"unit_code" json:"unit_code"`
	Status    string `db:"status" json:"status"`
}

// LearnerUnitStatusConfirmed marks the assignment used for progress computation.
const LearnerUnitStatusConfirmed = "confirmed"
