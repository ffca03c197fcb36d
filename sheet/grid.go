// Package sheet assembles rasterized tickets into a multi-up PDF.
//
// Tickets are packed into a grid of fixed-size cells, centred on the page,
// filling rows left to right and starting a new page when the grid is full.
// Optional extras are drawn on top: cut marks, a souvenir watermark, page
// labels, a stationery background imported from an existing PDF, and a
// manifest page listing the batch.
package sheet

import (
	"fmt"
	"math"
)

// Grid is the page and cell geometry in millimetres.
type Grid struct {
	PageW, PageH float64
	CellW, CellH float64
	Gutter       float64
}

// A4 dimensions and the printed size of a ticket, in mm.
const (
	A4Width      = 210
	A4Height     = 297
	TicketWidth  = 86
	TicketHeight = 54
	TicketGutter = 4
)

// A4 returns the default layout: 86×54 mm tickets with a 4 mm gutter on
// portrait A4, which fits 2 columns by 5 rows.
func A4() Grid {
	return Grid{
		PageW:  A4Width,
		PageH:  A4Height,
		CellW:  TicketWidth,
		CellH:  TicketHeight,
		Gutter: TicketGutter,
	}
}

// Validate reports whether at least one cell fits on the page.
func (g Grid) Validate() error {
	if g.PageW <= 0 || g.PageH <= 0 || g.CellW <= 0 || g.CellH <= 0 || g.Gutter < 0 {
		return fmt.Errorf("sheet: invalid grid %+v", g)
	}
	if g.PerPage() == 0 {
		return fmt.Errorf("sheet: a %gx%g mm cell does not fit a %gx%g mm page", g.CellW, g.CellH, g.PageW, g.PageH)
	}
	return nil
}

// Cols is ⌊PageW / (CellW + Gutter)⌋.
func (g Grid) Cols() int {
	return int(math.Floor(g.PageW / (g.CellW + g.Gutter)))
}

// Rows is ⌊PageH / (CellH + Gutter)⌋.
func (g Grid) Rows() int {
	return int(math.Floor(g.PageH / (g.CellH + g.Gutter)))
}

// PerPage is the number of cells on one page.
func (g Grid) PerPage() int {
	return g.Cols() * g.Rows()
}

// Pages returns how many pages n tickets need.
func (g Grid) Pages(n int) int {
	per := g.PerPage()
	if n <= 0 || per == 0 {
		return 0
	}
	return (n + per - 1) / per
}

// Origin returns the top-left corner of the first cell, which centres the
// whole grid on the page.
func (g Grid) Origin() (x, y float64) {
	cols, rows := float64(g.Cols()), float64(g.Rows())
	x = (g.PageW - (cols*g.CellW + (cols-1)*g.Gutter)) / 2
	y = (g.PageH - (rows*g.CellH + (rows-1)*g.Gutter)) / 2
	return x, y
}

// Place returns the zero-based page and the top-left corner of ticket i.
func (g Grid) Place(i int) (page int, x, y float64) {
	per := g.PerPage()
	page = i / per
	pos := i % per
	row, col := pos/g.Cols(), pos%g.Cols()
	x0, y0 := g.Origin()
	x = x0 + float64(col)*(g.CellW+g.Gutter)
	y = y0 + float64(row)*(g.CellH+g.Gutter)
	return page, x, y
}
