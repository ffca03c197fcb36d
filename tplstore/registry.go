// Package tplstore holds the ticket templates: a static registry that maps
// template ids to HTML/CSS markup assets, and the sources those assets are
// read from (the compiled-in set, a directory on disk, or an HTTP server).
//
// A registry is a YAML document:
//
//	default: blue
//	templates:
//	  - id: blue
//	    name: 蓝色磁介质车票
//	    file: blue/ticket.html
//	    canvas:
//	      width: 1810
//	      height: 1140
//	      slots:
//	        - {class: ticket-number, x: 110, y: 130, size: 64}
//
// The canvas section is only read by the raster package; the renderer works
// on the markup alone.
package tplstore

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Canvas defaults, in px.
const (
	DefaultWidth  = 1810
	DefaultHeight = 1140
)

// Registry is the static list of templates.
type Registry struct {
	Default   string   `yaml:"default" json:"default" validate:"required"`
	Templates []Config `yaml:"templates" json:"templates" validate:"required,min=1,dive"`
}

// Config describes one visual template.
type Config struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Name        string `yaml:"name" json:"name" validate:"required"`
	Description string `yaml:"description" json:"description,omitempty"`
	File        string `yaml:"file" json:"file" validate:"required"`
	Preview     string `yaml:"preview,omitempty" json:"preview,omitempty"`
	Canvas      Canvas `yaml:"canvas" json:"canvas"`
}

// Canvas is the raster description of a template.
type Canvas struct {
	Width      int    `yaml:"width" json:"width" validate:"gte=0"`
	Height     int    `yaml:"height" json:"height" validate:"gte=0"`
	Background string `yaml:"background" json:"background,omitempty" validate:"omitempty,hexcolor"`
	Border     string `yaml:"border" json:"border,omitempty" validate:"omitempty,hexcolor"`
	Image      string `yaml:"image" json:"image,omitempty"`
	Slots      []Slot `yaml:"slots" json:"slots,omitempty" validate:"dive"`
	QR         *Box   `yaml:"qr" json:"qr,omitempty"`
}

// Size returns the canvas size with defaults applied.
func (c Canvas) Size() (w, h int) {
	w, h = c.Width, c.Height
	if w == 0 {
		w = DefaultWidth
	}
	if h == 0 {
		h = DefaultHeight
	}
	return w, h
}

// Slot places the text of the first element carrying Class. Y is the text
// baseline.
type Slot struct {
	Class string  `yaml:"class" json:"class" validate:"required"`
	X     int     `yaml:"x" json:"x"`
	Y     int     `yaml:"y" json:"y"`
	Size  float64 `yaml:"size" json:"size" validate:"gt=0"`
	Color string  `yaml:"color" json:"color,omitempty" validate:"omitempty,hexcolor"`
	Align string  `yaml:"align" json:"align,omitempty" validate:"omitempty,oneof=left center right"`
}

// Box is a square area on the canvas.
type Box struct {
	X    int `yaml:"x" json:"x"`
	Y    int `yaml:"y" json:"y"`
	Size int `yaml:"size" json:"size" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseRegistry decodes and validates a YAML registry.
func ParseRegistry(data []byte) (Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("tplstore: parsing registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return Registry{}, err
	}
	return reg, nil
}

// Validate checks field constraints and id uniqueness. It does not require
// the default id to be registered; Resolve reports that case.
func (r Registry) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("tplstore: invalid registry: %w", err)
	}
	seen := make(map[string]bool, len(r.Templates))
	for _, t := range r.Templates {
		if seen[t.ID] {
			return fmt.Errorf("tplstore: invalid registry: duplicate template id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}
