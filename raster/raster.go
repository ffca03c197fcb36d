// Package raster draws rendered ticket markup onto an image.
//
// It does not implement CSS. Each template declares its canvas geometry in
// the registry: a position, size and colour per slot class. The painter
// reads slot text out of the rendered markup, applies the horizontal layout
// compensation the renderer injected (an inline left and any translateX on
// the slot or its ancestors), and draws the result. That is enough to
// reproduce the fixed-size ticket faithfully for export.
package raster

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"

	"github.com/lvillar/railpass"
	"github.com/lvillar/railpass/render"
	"github.com/lvillar/railpass/tplstore"
)

// DefaultPreviewScale is the on-screen preview factor.
const DefaultPreviewScale = 0.15

// Canvas defaults.
const (
	DefaultBackground  = "#ffffff"
	DefaultTextColor   = "#1b1b1b"
	DefaultBorderWidth = 6
)

// AssetReader reads template-relative assets such as a background image.
// *tplstore.Store implements it.
type AssetReader interface {
	ReadAsset(ctx context.Context, tpl *tplstore.Template, ref string) ([]byte, error)
}

// Painter rasterizes rendered tickets. It is safe for concurrent use.
type Painter struct {
	assets AssetReader
	text   textDrawer
	qr     bool
	logger *logrus.Logger

	fontData []byte
	fontPath string
}

// Option configures a Painter.
type Option func(*Painter)

// WithAssets sets where background images are read from.
func WithAssets(a AssetReader) Option {
	return func(p *Painter) { p.assets = a }
}

// WithFontFile draws text with the TrueType/OpenType font (or collection)
// at path. Without a font the built-in bitmap face is used, which has no
// CJK glyphs.
func WithFontFile(path string) Option {
	return func(p *Painter) { p.fontPath = path }
}

// WithFontData is WithFontFile for an in-memory font.
func WithFontData(data []byte) Option {
	return func(p *Painter) { p.fontData = data }
}

// WithQR toggles the QR code for templates that declare a QR box. On by
// default.
func WithQR(enabled bool) Option {
	return func(p *Painter) { p.qr = enabled }
}

// WithLogger sets the painter's logger.
func WithLogger(l *logrus.Logger) Option {
	return func(p *Painter) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Painter. It fails only if a configured font cannot be read
// or parsed.
func New(opts ...Option) (*Painter, error) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	p := &Painter{qr: true, logger: l, text: basicDrawer{}}
	for _, opt := range opts {
		opt(p)
	}
	if p.fontPath != "" && p.fontData == nil {
		data, err := os.ReadFile(p.fontPath)
		if err != nil {
			return nil, fmt.Errorf("raster: reading font: %w", err)
		}
		p.fontData = data
	}
	if p.fontData != nil {
		d, err := newFaceDrawer(p.fontData)
		if err != nil {
			return nil, err
		}
		p.text = d
	} else {
		p.logger.Debug("no font configured, using built-in bitmap face")
	}
	return p, nil
}

// Placement is one positioned line of slot text.
type Placement struct {
	Class string
	Text  string
	X     int // left edge after alignment
	Y     int // baseline
	Size  float64
	Color color.NRGBA
}

// Layout positions every slot of tpl's canvas that is present in markup
// and has text. Slots are returned in canvas order.
func (p *Painter) Layout(tpl *tplstore.Template, markup string) ([]Placement, error) {
	doc, err := render.Parse(markup)
	if err != nil {
		return nil, rasterErr(tpl, err)
	}
	var out []Placement
	for _, s := range tpl.Canvas.Slots {
		n := doc.Find(s.Class)
		if n == nil {
			continue
		}
		text := strings.TrimSpace(render.Text(n))
		if text == "" {
			continue
		}
		col := s.Color
		if col == "" {
			col = DefaultTextColor
		}
		c, err := ParseColor(col)
		if err != nil {
			return nil, rasterErr(tpl, err)
		}

		x := s.X
		if left, ok := inlineLeft(n); ok {
			x = left
		}
		x += translateX(n)
		switch s.Align {
		case "center":
			x -= p.text.measure(text, s.Size) / 2
		case "right":
			x -= p.text.measure(text, s.Size)
		}
		out = append(out, Placement{Class: s.Class, Text: text, X: x, Y: s.Y, Size: s.Size, Color: c})
	}
	return out, nil
}

// Paint draws the rendered markup of tpl at full canvas size.
func (p *Painter) Paint(ctx context.Context, tpl *tplstore.Template, markup string) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, rasterErr(tpl, err)
	}
	placements, err := p.Layout(tpl, markup)
	if err != nil {
		return nil, err
	}

	w, h := tpl.Canvas.Size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	bgHex := tpl.Canvas.Background
	if bgHex == "" {
		bgHex = DefaultBackground
	}
	bg, err := ParseColor(bgHex)
	if err != nil {
		return nil, rasterErr(tpl, err)
	}
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	if tpl.Canvas.Image != "" {
		if err := p.drawBackground(ctx, img, tpl); err != nil {
			return nil, rasterErr(tpl, err)
		}
	}
	if tpl.Canvas.Border != "" {
		c, err := ParseColor(tpl.Canvas.Border)
		if err != nil {
			return nil, rasterErr(tpl, err)
		}
		drawBorder(img, c, DefaultBorderWidth)
	}

	for _, pl := range placements {
		p.text.draw(img, pl.Text, pl.X, pl.Y, pl.Size, pl.Color)
	}

	if p.qr && tpl.Canvas.QR != nil {
		if err := drawQR(img, *tpl.Canvas.QR, Payload(placements)); err != nil {
			return nil, rasterErr(tpl, err)
		}
	}
	p.logger.WithFields(logrus.Fields{
		"template": tpl.ID,
		"slots":    len(placements),
	}).Debug("ticket rasterized")
	return img, nil
}

func (p *Painter) drawBackground(ctx context.Context, dst *image.RGBA, tpl *tplstore.Template) error {
	if p.assets == nil {
		return fmt.Errorf("background %q: no asset reader configured", tpl.Canvas.Image)
	}
	data, err := p.assets.ReadAsset(ctx, tpl, tpl.Canvas.Image)
	if err != nil {
		return err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("background %q: %w", tpl.Canvas.Image, err)
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return nil
}

func drawBorder(dst *image.RGBA, c color.Color, width int) {
	b := dst.Bounds()
	u := image.NewUniform(c)
	for _, r := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+width),
		image.Rect(b.Min.X, b.Max.Y-width, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Max.Y),
		image.Rect(b.Max.X-width, b.Min.Y, b.Max.X, b.Max.Y),
	} {
		draw.Draw(dst, r, u, image.Point{}, draw.Src)
	}
}

// Payload returns the QR payload for a set of placements: the hex BLAKE3
// digest of their text, one slot per line. The identity number only ever
// enters it in redacted form.
func Payload(placements []Placement) string {
	h := blake3.New()
	for _, pl := range placements {
		io.WriteString(h, pl.Class)
		io.WriteString(h, "=")
		io.WriteString(h, pl.Text)
		io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}

func drawQR(dst *image.RGBA, box tplstore.Box, payload string) error {
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		return fmt.Errorf("encoding QR: %w", err)
	}
	code, err = barcode.Scale(code, box.Size, box.Size)
	if err != nil {
		return fmt.Errorf("scaling QR: %w", err)
	}
	r := image.Rect(box.X, box.Y, box.X+box.Size, box.Y+box.Size)
	draw.Draw(dst, r, code, code.Bounds().Min, draw.Src)
	return nil
}

// ValidPreviewScale reports whether scale is a usable preview factor. A
// preview never enlarges the ticket.
func ValidPreviewScale(scale float64) bool {
	return scale > 0 && scale <= 1
}

// Preview downsamples img by scale with Catmull-Rom resampling. A zero scale
// means DefaultPreviewScale; anything else outside (0, 1] is rejected.
func Preview(img image.Image, scale float64) (*image.RGBA, error) {
	if scale == 0 {
		scale = DefaultPreviewScale
	}
	if !ValidPreviewScale(scale) {
		return nil, fmt.Errorf("preview scale %v out of range (0, 1]", scale)
	}
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst, nil
}

// EncodePNG writes img as a PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("%w: encoding PNG: %w", railpass.ErrRasterize, err)
	}
	return nil
}

// ParseColor parses #rgb, #rgba, #rrggbb or #rrggbbaa.
func ParseColor(s string) (color.NRGBA, error) {
	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	h := s[1:]
	if len(h) == 3 || len(h) == 4 {
		long := make([]byte, 0, 2*len(h))
		for i := 0; i < len(h); i++ {
			long = append(long, h[i], h[i])
		}
		h = string(long)
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

var (
	pxLength  = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)px$`)
	translate = regexp.MustCompile(`translateX\(\s*(-?\d+(?:\.\d+)?)px\s*\)`)
)

// inlineLeft returns the slot's inline left position, if one is set.
func inlineLeft(n *html.Node) (int, bool) {
	for _, d := range render.ParseStyle(render.Attr(n, "style")) {
		if d.Prop != "left" {
			continue
		}
		if m := pxLength.FindStringSubmatch(d.Value); m != nil {
			v, _ := strconv.ParseFloat(m[1], 64)
			return int(math.Round(v)), true
		}
	}
	return 0, false
}

// translateX sums inline translateX shifts on n and its ancestors.
func translateX(n *html.Node) int {
	total := 0.0
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, d := range render.ParseStyle(render.Attr(n, "style")) {
			if d.Prop != "transform" {
				continue
			}
			for _, m := range translate.FindAllStringSubmatch(d.Value, -1) {
				v, _ := strconv.ParseFloat(m[1], 64)
				total += v
			}
		}
	}
	return int(math.Round(total))
}

func rasterErr(tpl *tplstore.Template, err error) error {
	return railpass.NewError("rasterize", tpl.ID, fmt.Errorf("%w: %w", railpass.ErrRasterize, err))
}
