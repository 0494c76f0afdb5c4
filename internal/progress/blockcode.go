// Package progress turns raw memorisation deposits into the weekly completion grid of a
// curriculum unit and decides the next rung of the warning ladder. Everything here is pure
// and safe for concurrent use.
package progress

import (
	"regexp"
	"strconv"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

var (
	canonicalPrefix = regexp.MustCompile(`^H[0-9]`)
	prefixedNumber  = regexp.MustCompile(`^H([0-9]+)`)
	bareNumber      = regexp.MustCompile(`^([0-9]+)`)
)

// NormalizeBlockCode canonicalises one raw code. List-shaped input is returned untouched;
// callers decode lists first (see models.ParseBlockRef).
func NormalizeBlockCode(raw string) string {
	if raw == "" {
		return raw
	}
	if canonicalPrefix.MatchString(raw) {
		return raw
	}
	if raw[0] == '[' || raw[0] == '{' {
		return raw
	}
	return "H" + raw
}

// NormalizeBlockRef normalises every code carried by ref.
func NormalizeBlockRef(ref models.BlockRef) []string {
	if len(ref.Codes) == 0 {
		return nil
	}
	codes := make([]string, len(ref.Codes))
	for i, code := range ref.Codes {
		codes[i] = NormalizeBlockCode(code)
	}
	return codes
}

// DeriveWeek maps a block reference to its week (1..10). Lists use their first element.
func DeriveWeek(ref models.BlockRef) (int, bool) {
	code, ok := ref.First()
	if !ok {
		return 0, false
	}
	return weekFromCode(NormalizeBlockCode(code))
}

// DeriveWeekFromRaw is DeriveWeek over an undecoded column value.
func DeriveWeekFromRaw(raw *string) (int, bool) {
	return DeriveWeek(models.ParseBlockRef(raw))
}

func weekFromCode(code string) (int, bool) {
	n, ok := blockNumber(code)
	if !ok {
		return 0, false
	}
	switch {
	case n >= 1 && n <= models.WeeksPerUnit:
		return n, true
	case n > models.WeeksPerUnit && n <= 2*models.WeeksPerUnit:
		return n - models.WeeksPerUnit, true
	default:
		return 0, false
	}
}

func blockNumber(code string) (int, bool) {
	match := prefixedNumber.FindStringSubmatch(code)
	if match == nil {
		match = bareNumber.FindStringSubmatch(code)
	}
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
