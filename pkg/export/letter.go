package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Letter carries the printable content of a warning letter.
type Letter struct {
	Reference   string
	IssuerName  string
	LearnerName string
	LearnerID   string
	UnitName    string
	Level       int
	WeekNumber  int
	Reason      string
	IssuedAt    time.Time
	Cancelled   bool
	Terminal    bool
}

// LetterRenderer prints warning letters as single-page PDFs.
type LetterRenderer struct{}

// NewLetterRenderer constructs the renderer.
func NewLetterRenderer() *LetterRenderer {
	return &LetterRenderer{}
}

// Render produces the PDF bytes of a letter.
func (r *LetterRenderer) Render(letter Letter) ([]byte, error) {
	if letter.Level < 1 {
		return nil, fmt.Errorf("letter requires a level")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle(fmt.Sprintf("Warning Letter %d", letter.Level), true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 7, tr(letter.IssuerName), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, tr("Ref: "+letter.Reference), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, letter.IssuedAt.Format("2 January 2006"), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, fmt.Sprintf("WARNING LETTER %d", letter.Level), "", 1, "C", false, 0, "")
	if letter.Cancelled {
		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(180, 0, 0)
		pdf.CellFormat(0, 7, "CANCELLED", "", 1, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 11)
	rows := [][2]string{
		{"Learner", letter.LearnerName},
		{"Learner ID", letter.LearnerID},
		{"Unit", letter.UnitName},
		{"Week", fmt.Sprintf("%d", letter.WeekNumber)},
	}
	for _, row := range rows {
		pdf.CellFormat(40, 7, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, tr(": "+row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.MultiCell(0, 6, tr(fmt.Sprintf("This letter records that the memorisation target for week %d was not met. %s", letter.WeekNumber, letter.Reason)), "", "L", false)
	pdf.Ln(4)
	if letter.Terminal {
		pdf.SetFont("Arial", "B", 11)
		pdf.MultiCell(0, 6, "This is the final warning. The learner has been placed on the program blacklist.", "", "L", false)
	} else {
		pdf.MultiCell(0, 6, fmt.Sprintf("Further missed weeks will escalate to warning letter %d.", letter.Level+1), "", "L", false)
	}

	pdf.Ln(20)
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, tr(letter.IssuerName), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render letter: %w", err)
	}
	return buf.Bytes(), nil
}
