package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

func TestNormalizeBlockCode(t *testing.T) {
	cases := map[string]string{
		"":          "",
		"3A":        "H3A",
		"12D":       "H12D",
		"H3A":       "H3A",
		"H20D":      "H20D",
		"HX":        "HHX",
		`["3A"]`:    `["3A"]`,
		"{H1A,H1B}": "{H1A,H1B}",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeBlockCode(raw), "raw=%q", raw)
	}
}

func TestNormalizeBlockCodeIdempotent(t *testing.T) {
	for _, raw := range []string{"1A", "H1A", "20D", "H11C"} {
		once := NormalizeBlockCode(raw)
		assert.Equal(t, once, NormalizeBlockCode(once))
	}
}

func TestDeriveWeek(t *testing.T) {
	str := func(s string) *string { return &s }
	cases := []struct {
		name string
		raw  *string
		want int
		ok   bool
	}{
		{"first half", str("H1A"), 1, true},
		{"second half maps back", str("H11A"), 1, true},
		{"last block", str("H20D"), 10, true},
		{"unprefixed", str("7C"), 7, true},
		{"out of range", str("21A"), 0, false},
		{"zero", str("H0A"), 0, false},
		{"absent", nil, 0, false},
		{"empty", str(""), 0, false},
		{"json list", str(`["H5B","H6A"]`), 5, true},
		{"unprefixed list", str(`["15B"]`), 5, true},
		{"pg array", str("{H9A,H9B}"), 9, true},
		{"empty list", str("[]"), 0, false},
		{"broken list", str(`["H5B"`), 0, false},
		{"garbage", str("ABC"), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			week, ok := DeriveWeekFromRaw(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, week)
		})
	}
}

func TestDeriveWeekFromListVariant(t *testing.T) {
	week, ok := DeriveWeek(models.ListBlockRef("H5B"))
	assert.True(t, ok)
	assert.Equal(t, 5, week)
}

func TestNormalizeBlockRefMixedList(t *testing.T) {
	raw := `["3A", "H3B", " 3C "]`
	ref := models.ParseBlockRef(&raw)
	assert.Equal(t, models.BlockRefList, ref.Kind)
	assert.Equal(t, []string{"H3A", "H3B", "H3C"}, NormalizeBlockRef(ref))
}

func TestNormalizeBlockRefBrokenListFallsBackToRawText(t *testing.T) {
	raw := `["3A",`
	ref := models.ParseBlockRef(&raw)
	assert.Equal(t, models.BlockRefSingle, ref.Kind)
	assert.Equal(t, []string{`["3A",`}, NormalizeBlockRef(ref))
}
