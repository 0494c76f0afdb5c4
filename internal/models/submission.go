package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// BlockRefKind tags the shape of a raw block identifier.
type BlockRefKind int

const (
	BlockRefAbsent BlockRefKind = iota
	BlockRefSingle
	BlockRefList
)

// BlockRef is the decoded form of the legacy block_code column. Legacy rows hold either a
// single code ("H3A", "3A"), a JSON list (`["H3A","3B"]`), a Postgres array literal
// (`{H3A,H3B}`) or NULL.
type BlockRef struct {
	Kind  BlockRefKind
	Codes []string
	Raw   string
}

// ParseBlockRef decodes a raw identifier. A list that fails to decode falls back to a single
// code carrying the original text.
func ParseBlockRef(raw *string) BlockRef {
	if raw == nil {
		return BlockRef{Kind: BlockRefAbsent}
	}
	text := strings.TrimSpace(*raw)
	if text == "" {
		return BlockRef{Kind: BlockRefAbsent, Raw: *raw}
	}

	switch text[0] {
	case '[':
		var items []string
		if err := json.Unmarshal([]byte(text), &items); err == nil {
			return BlockRef{Kind: BlockRefList, Codes: compactCodes(items), Raw: text}
		}
	case '{':
		var items pq.StringArray
		if err := items.Scan(text); err == nil {
			return BlockRef{Kind: BlockRefList, Codes: compactCodes(items), Raw: text}
		}
	}
	return BlockRef{Kind: BlockRefSingle, Codes: []string{text}, Raw: text}
}

// SingleBlockRef wraps one code.
func SingleBlockRef(code string) BlockRef {
	return ParseBlockRef(&code)
}

// ListBlockRef wraps many codes.
func ListBlockRef(codes ...string) BlockRef {
	return BlockRef{Kind: BlockRefList, Codes: compactCodes(codes)}
}

// First returns the first code when one exists.
func (r BlockRef) First() (string, bool) {
	if len(r.Codes) == 0 {
		return "", false
	}
	return r.Codes[0], true
}

// Scan implements sql.Scanner so repositories decode the variant at the boundary.
func (r *BlockRef) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = BlockRef{Kind: BlockRefAbsent}
	case string:
		*r = ParseBlockRef(&v)
	case []byte:
		s := string(v)
		*r = ParseBlockRef(&s)
	default:
		return fmt.Errorf("unsupported block ref type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (r BlockRef) Value() (driver.Value, error) {
	switch r.Kind {
	case BlockRefAbsent:
		return nil, nil
	case BlockRefSingle:
		if code, ok := r.First(); ok {
			return code, nil
		}
		return nil, nil
	default:
		payload, err := json.Marshal(r.Codes)
		if err != nil {
			return nil, err
		}
		return string(payload), nil
	}
}

// MarshalJSON renders single refs as strings and lists as arrays.
func (r BlockRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case BlockRefAbsent:
		return []byte("null"), nil
	case BlockRefSingle:
		code, _ := r.First()
		return json.Marshal(code)
	default:
		return json.Marshal(r.Codes)
	}
}

func compactCodes(items []string) []string {
	codes := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			codes = append(codes, trimmed)
		}
	}
	return codes
}

// SubmissionRecord is one memorisation deposit made by a learner.
type SubmissionRecord struct {
	ID          string    `db:"id" json:"id"`
	LearnerID   string    `db:"learner_id" json:"learner_id"`
	UnitCode    string    `db:"unit_code" json:"unit_code"`
	BlockRef    BlockRef  `db:"block_code" json:"block_code"`
	SubmittedOn time.Time `db:"submitted_on" json:"submitted_on"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
