package sheet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf/contrib/barcode"
	"github.com/zeebo/blake3"

	"github.com/lvillar/railpass"
)

// column defines one manifest column. A zero width fills the remaining
// space.
type column struct {
	Header string
	Width  float64
	Align  string // "L", "C", "R"
}

var manifestColumns = []column{
	{Header: "#", Width: 8, Align: "C"},
	{Header: "Train", Width: 20},
	{Header: "Route", Width: 42},
	{Header: "Date", Width: 30},
	{Header: "Passenger", Width: 28},
	{Header: "Class", Width: 16, Align: "C"},
	{Header: "ID"},
}

// ManifestRows returns the manifest cells for tickets. The identity number
// is redacted.
func ManifestRows(tickets []railpass.Ticket) [][]string {
	rows := make([][]string, len(tickets))
	for i, t := range tickets {
		rows[i] = []string{
			fmt.Sprint(i + 1),
			t.TrainNumber,
			t.DepartureStation + " - " + t.ArrivalStation,
			strings.TrimSpace(t.Date + " " + t.DepartureTime),
			t.PassengerName,
			t.SeatType,
			railpass.RedactID(t.IDNumber),
		}
	}
	return rows
}

// BatchStamp returns the payload of the PDF417 stamp printed under the
// manifest: the ticket count and a BLAKE3 digest of the manifest rows.
func BatchStamp(rows [][]string) string {
	h := blake3.New()
	for _, r := range rows {
		h.Write([]byte(strings.Join(r, "\x1f")))
		h.Write([]byte{'\n'})
	}
	sum := h.Sum(nil)
	return fmt.Sprintf("RAILPASS;N=%d;B3=%s", len(rows), hex.EncodeToString(sum[:16]))
}

const (
	manifestRowH   = 7.0
	manifestFont   = 9.0
	manifestTitleH = 12.0
	stampW, stampH = 70.0, 22.0
)

var (
	headerFill = RGBColor{44, 82, 130}
	evenFill   = RGBColor{240, 244, 250}
	oddFill    = RGBColor{255, 255, 255}
)

// drawManifest appends the manifest: a table of the batch with a header
// row repeated on every page and alternating row fills, followed by the
// batch stamp.
func (b *Builder) drawManifest(tickets []railpass.Ticket) {
	pdf := b.pdf
	rows := ManifestRows(tickets)
	widths := b.columnWidths()

	pdf.AddPage()
	pdf.SetFont(b.family, b.style("B"), 14)
	pdf.SetXY(b.leftMargin(), 10)
	pdf.CellFormat(0, manifestTitleH, b.tr(fmt.Sprintf("Manifest - %d tickets", len(tickets))), "", 1, "L", false, 0, "")

	b.manifestHeader(widths)
	pdf.SetFont(b.family, "", manifestFont)
	for i, r := range rows {
		if pdf.GetY()+manifestRowH > b.grid.PageH-10 {
			pdf.AddPage()
			pdf.SetY(10)
			b.manifestHeader(widths)
			pdf.SetFont(b.family, "", manifestFont)
		}
		fill := evenFill
		if i%2 == 1 {
			fill = oddFill
		}
		b.manifestRow(r, widths, fill, false)
	}

	if pdf.GetY()+stampH+6 > b.grid.PageH-10 {
		pdf.AddPage()
		pdf.SetY(10)
	}
	key := barcode.RegisterPdf417(pdf, BatchStamp(rows), 8, 2)
	barcode.Barcode(pdf, key, b.grid.PageW-10-stampW, pdf.GetY()+6, stampW, stampH, false)
}

func (b *Builder) leftMargin() float64 {
	l, _, _, _ := b.pdf.GetMargins()
	return l
}

// columnWidths computes final column widths, giving auto columns an equal
// share of what the fixed ones leave.
func (b *Builder) columnWidths() []float64 {
	l, _, r, _ := b.pdf.GetMargins()
	total := b.grid.PageW - l - r

	widths := make([]float64, len(manifestColumns))
	fixed, auto := 0.0, 0
	for i, c := range manifestColumns {
		if c.Width > 0 {
			widths[i] = c.Width
			fixed += c.Width
		} else {
			auto++
		}
	}
	if auto > 0 {
		share := (total - fixed) / float64(auto)
		if share < 10 {
			share = 10
		}
		for i, c := range manifestColumns {
			if c.Width == 0 {
				widths[i] = share
			}
		}
	}
	return widths
}

func (b *Builder) manifestHeader(widths []float64) {
	cells := make([]string, len(manifestColumns))
	for i, c := range manifestColumns {
		cells[i] = c.Header
	}
	b.pdf.SetFont(b.family, b.style("B"), manifestFont)
	b.manifestRow(cells, widths, headerFill, true)
}

// manifestRow draws one row at the cursor and moves below it.
func (b *Builder) manifestRow(cells []string, widths []float64, fill RGBColor, header bool) {
	pdf := b.pdf
	x := b.leftMargin()
	y := pdf.GetY()

	pdf.SetFillColor(fill.R, fill.G, fill.B)
	pdf.SetDrawColor(190, 190, 190)
	pdf.SetLineWidth(0.2)
	if header {
		pdf.SetTextColor(255, 255, 255)
	} else {
		pdf.SetTextColor(0, 0, 0)
	}

	for i, text := range cells {
		if i >= len(widths) {
			break
		}
		align := manifestColumns[i].Align
		if align == "" {
			align = "L"
		}
		pdf.SetXY(x, y)
		pdf.CellFormat(widths[i], manifestRowH, b.fit(text, widths[i]-2), "1", 0, align, true, 0, "")
		x += widths[i]
	}

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetFillColor(0, 0, 0)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(b.leftMargin(), y+manifestRowH)
}

// fit translates text for the active font, truncating it with ".." so
// that it fits w.
func (b *Builder) fit(text string, w float64) string {
	if s := b.tr(text); b.pdf.GetStringWidth(s) <= w {
		return s
	}
	rs := []rune(text)
	for len(rs) > 0 && b.pdf.GetStringWidth(b.tr(string(rs)+"..")) > w {
		rs = rs[:len(rs)-1]
	}
	return b.tr(string(rs) + "..")
}
