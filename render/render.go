// Package render substitutes a ticket record into template markup.
//
// Slots are elements identified by class name. Each slot is filled
// independently: a slot missing from the template is skipped, an empty
// field leaves its slot empty and applies no layout compensation.
//
// Rendering parses the fragment once, mutates the node tree, and writes it
// back out, so the same template and record always produce the same bytes.
package render

import (
	"context"

	"github.com/lvillar/railpass"
	"github.com/lvillar/railpass/layout"
	"github.com/lvillar/railpass/tplstore"
)

// Slot class names.
const (
	ClassTicketNumber       = "ticket-number"
	ClassDepartureStation   = "departure-station"
	ClassArrivalStation     = "arrival-station"
	ClassDepartureLabel     = "departure-label"
	ClassArrivalLabel       = "arrival-label"
	ClassDepartureContainer = "departure-container"
	ClassArrivalContainer   = "arrival-container"
	ClassTrainNumber        = "train-number"
	ClassDepartureTime      = "departure-time"
	ClassSeatInfo           = "seat-info"
	ClassPriceLabel         = "price-label"
	ClassPriceUnit          = "price-unit"
	ClassSeatType           = "seat-type"
	ClassSerialNumber       = "serial-number"
	ClassNameLabel          = "name-label"
)

type textSlot struct {
	class string
	text  func(railpass.Ticket) string
}

var textSlots = []textSlot{
	{ClassTicketNumber, func(t railpass.Ticket) string { return t.TicketNumber }},
	{ClassDepartureStation, func(t railpass.Ticket) string { return t.DepartureStation }},
	{ClassArrivalStation, func(t railpass.Ticket) string { return t.ArrivalStation }},
	{ClassTrainNumber, func(t railpass.Ticket) string { return t.TrainNumber }},
	{ClassDepartureTime, DepartureTimeText},
	{ClassSeatInfo, SeatInfoText},
	{ClassPriceLabel, func(t railpass.Ticket) string { return t.Price }},
	{ClassSeatType, func(t railpass.Ticket) string { return t.SeatType }},
	{ClassNameLabel, func(t railpass.Ticket) string { return t.PassengerName }},
	{ClassDepartureLabel, func(t railpass.Ticket) string { return t.DepartureLabel }},
	{ClassArrivalLabel, func(t railpass.Ticket) string { return t.ArrivalLabel }},
	{ClassSerialNumber, func(t railpass.Ticket) string { return railpass.RedactID(t.IDNumber) }},
}

type styleSlot struct {
	class string
	prop  string
	value func(railpass.Ticket) string
}

var styleSlots = []styleSlot{
	{ClassDepartureContainer, "transform", func(t railpass.Ticket) string {
		return layout.TranslateX(layout.StationShift(t.DepartureStation, layout.Departure))
	}},
	{ClassArrivalContainer, "transform", func(t railpass.Ticket) string {
		return layout.TranslateX(layout.StationShift(t.ArrivalStation, layout.Arrival))
	}},
	{ClassDepartureLabel, "transform", func(t railpass.Ticket) string {
		return layout.TranslateX(layout.LabelShift(t.DepartureLabel, layout.Departure))
	}},
	{ClassArrivalLabel, "transform", func(t railpass.Ticket) string {
		return layout.TranslateX(layout.LabelShift(t.ArrivalLabel, layout.Arrival))
	}},
	{ClassPriceUnit, "left", func(t railpass.Ticket) string {
		if t.Price == "" {
			return ""
		}
		return layout.Left(layout.PriceUnitLeft(t.Price))
	}},
}

// DepartureTimeText composes the departure-time slot, "{date} {time}开".
// A record with neither date nor time yields "".
func DepartureTimeText(t railpass.Ticket) string {
	if t.Date == "" && t.DepartureTime == "" {
		return ""
	}
	return t.Date + " " + t.DepartureTime + "开"
}

// SeatInfoText composes the seat-info slot, "{car}车{seat}号".
// A record with neither car nor seat yields "".
func SeatInfoText(t railpass.Ticket) string {
	if t.CarNumber == "" && t.SeatNumber == "" {
		return ""
	}
	return t.CarNumber + "车" + t.SeatNumber + "号"
}

// Render fills tpl with t.
func Render(tpl *tplstore.Template, t railpass.Ticket) (string, error) {
	return RenderMarkup(tpl.Markup, tpl.AssetBase, t)
}

// RenderMarkup fills raw template markup with t. Relative asset references
// are rewritten against assetBase; an empty assetBase leaves them alone.
func RenderMarkup(markup, assetBase string, t railpass.Ticket) (string, error) {
	doc, err := Parse(markup)
	if err != nil {
		return "", railpass.NewError("render", "", err)
	}
	Fill(doc, assetBase, t)
	out, err := doc.String()
	if err != nil {
		return "", railpass.NewError("render", "", err)
	}
	return out, nil
}

// Fill applies t to an already parsed document.
func Fill(doc *Document, assetBase string, t railpass.Ticket) {
	if assetBase != "" {
		doc.RewriteAssets(assetBase)
	}
	for _, s := range textSlots {
		doc.SetText(s.class, s.text(t))
	}
	for _, s := range styleSlots {
		if v := s.value(t); v != "" {
			doc.SetStyle(s.class, s.prop, v)
		}
	}
}

// Resolver is the part of tplstore.Store a Renderer needs.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*tplstore.Template, error)
}

// Result is a rendered ticket together with the template it was rendered
// from.
type Result struct {
	Template *tplstore.Template
	Markup   string
}

// Renderer resolves each record's template before rendering it.
type Renderer struct {
	templates Resolver
}

// NewRenderer returns a Renderer backed by templates.
func NewRenderer(templates Resolver) *Renderer {
	return &Renderer{templates: templates}
}

// Render resolves t.TemplateID and renders t into it.
func (r *Renderer) Render(ctx context.Context, t railpass.Ticket) (*Result, error) {
	tpl, err := r.templates.Resolve(ctx, t.TemplateID)
	if err != nil {
		return nil, err
	}
	markup, err := Render(tpl, t)
	if err != nil {
		return nil, err
	}
	return &Result{Template: tpl, Markup: markup}, nil
}
