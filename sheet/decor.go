package sheet

import (
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
)

// Position specifies where to place a page label.
type Position int

const (
	BottomCenter Position = iota
	BottomLeft
	BottomRight
	TopLeft
	TopCenter
	TopRight
)

var positionNames = [...]string{
	BottomCenter: "bottom-center",
	BottomLeft:   "bottom-left",
	BottomRight:  "bottom-right",
	TopLeft:      "top-left",
	TopCenter:    "top-center",
	TopRight:     "top-right",
}

func (p Position) String() string {
	if p < 0 || int(p) >= len(positionNames) {
		return fmt.Sprintf("Position(%d)", int(p))
	}
	return positionNames[p]
}

// ParsePosition parses a position name such as "bottom-center". The empty
// string is BottomCenter.
func ParsePosition(s string) (Position, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BottomCenter, nil
	}
	for i, name := range positionNames {
		if name == s {
			return Position(i), nil
		}
	}
	return 0, fmt.Errorf("sheet: unknown position %q", s)
}

// RGBColor represents an RGB color value.
type RGBColor struct {
	R, G, B int
}

// Watermark is text drawn diagonally across every ticket page.
type Watermark struct {
	Text     string   // watermark text
	FontSize float64  // font size in points (default: 28)
	Color    RGBColor // text color (default: grey)
	Opacity  float64  // 0.0 to 1.0 (default: 0.18)
	Angle    float64  // rotation angle in degrees (default: 30)
}

// SouvenirText is the default watermark.
const SouvenirText = "SOUVENIR ONLY - NOT VALID FOR TRAVEL"

func (wm Watermark) withDefaults() Watermark {
	if wm.Text == "" {
		wm.Text = SouvenirText
	}
	if wm.FontSize == 0 {
		wm.FontSize = 28
	}
	if wm.Opacity == 0 {
		wm.Opacity = 0.18
	}
	if wm.Angle == 0 {
		wm.Angle = 30
	}
	if wm.Color == (RGBColor{}) {
		wm.Color = RGBColor{120, 120, 120}
	}
	return wm
}

// drawWatermark renders the watermark centred on the current page.
func (b *Builder) drawWatermark(wm Watermark) {
	pdf := b.pdf
	pdf.SetFont(b.family, b.style("B"), wm.FontSize)
	pdf.SetTextColor(wm.Color.R, wm.Color.G, wm.Color.B)
	pdf.SetAlpha(wm.Opacity, "Normal")

	text := b.tr(wm.Text)
	textW := pdf.GetStringWidth(text)
	cx, cy := b.grid.PageW/2, b.grid.PageH/2

	pdf.TransformBegin()
	pdf.TransformRotate(wm.Angle, cx, cy)
	// Font size is in points; convert to mm for vertical centring.
	pdf.Text(cx-textW/2, cy+wm.FontSize*0.3528/3, text)
	pdf.TransformEnd()

	pdf.SetAlpha(1.0, "Normal")
	pdf.SetTextColor(0, 0, 0)
}

// drawCutMarks outlines a cell with a thin dashed line.
func drawCutMarks(pdf *gofpdf.Fpdf, x, y, w, h float64) {
	pdf.SetDrawColor(150, 150, 150)
	pdf.SetLineWidth(0.1)
	pdf.SetDashPattern([]float64{1, 1}, 0)
	pdf.Rect(x, y, w, h, "D")
	pdf.SetDashPattern([]float64{}, 0)
	pdf.SetDrawColor(0, 0, 0)
}

const labelFontSize = 8

// drawPageLabel writes the page label in the configured position.
func (b *Builder) drawPageLabel(text string) {
	pdf := b.pdf
	pdf.SetFont(b.family, "", labelFontSize)
	pdf.SetTextColor(100, 100, 100)
	text = b.tr(text)
	x, y := calculatePosition(b.cfg.labelPos, b.grid.PageW, b.grid.PageH,
		pdf.GetStringWidth(text), labelFontSize*0.3528, b.cfg.labelMargin)
	pdf.Text(x, y, text)
	pdf.SetTextColor(0, 0, 0)
}

// calculatePosition returns x, y coordinates for text placement.
func calculatePosition(pos Position, pageW, pageH, textW, textH, margin float64) (x, y float64) {
	switch pos {
	case TopLeft:
		return margin, margin + textH
	case TopCenter:
		return (pageW - textW) / 2, margin + textH
	case TopRight:
		return pageW - textW - margin, margin + textH
	case BottomLeft:
		return margin, pageH - margin
	case BottomRight:
		return pageW - textW - margin, pageH - margin
	default: // BottomCenter
		return (pageW - textW) / 2, pageH - margin
	}
}
