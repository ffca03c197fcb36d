package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// textDrawer measures and draws a single line of text at a pixel size.
type textDrawer interface {
	measure(text string, size float64) int
	draw(dst draw.Image, text string, x, baseline int, size float64, c color.Color)
}

// faceDrawer draws with an OpenType font, caching one face per size.
type faceDrawer struct {
	font *opentype.Font

	mu    sync.Mutex
	faces map[float64]font.Face
}

func newFaceDrawer(data []byte) (*faceDrawer, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		coll, cerr := opentype.ParseCollection(data)
		if cerr != nil {
			return nil, fmt.Errorf("raster: parsing font: %w", err)
		}
		if coll.NumFonts() == 0 {
			return nil, fmt.Errorf("raster: font collection is empty")
		}
		if f, err = coll.Font(0); err != nil {
			return nil, fmt.Errorf("raster: parsing font: %w", err)
		}
	}
	return &faceDrawer{font: f, faces: make(map[float64]font.Face)}, nil
}

func (d *faceDrawer) face(size float64) font.Face {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(d.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		// Only fails for a non-positive size, which the registry rejects.
		f = basicfont.Face7x13
	}
	d.faces[size] = f
	return f
}

func (d *faceDrawer) measure(text string, size float64) int {
	return font.MeasureString(d.face(size), text).Ceil()
}

func (d *faceDrawer) draw(dst draw.Image, text string, x, baseline int, size float64, c color.Color) {
	dr := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: d.face(size),
		Dot:  fixed.P(x, baseline),
	}
	dr.DrawString(text)
}

// basicDrawer scales the built-in 7x13 bitmap face. It only covers Latin
// glyphs; other characters are skipped.
type basicDrawer struct{}

const (
	basicHeight = 13
	basicAscent = 11
)

func (basicDrawer) scale(size float64) float64 {
	return size / basicHeight
}

func (b basicDrawer) measure(text string, size float64) int {
	w := font.MeasureString(basicfont.Face7x13, text).Ceil()
	return int(math.Round(float64(w) * b.scale(size)))
}

func (b basicDrawer) draw(dst draw.Image, text string, x, baseline int, size float64, c color.Color) {
	w := font.MeasureString(basicfont.Face7x13, text).Ceil()
	if w == 0 {
		return
	}
	small := image.NewAlpha(image.Rect(0, 0, w, basicHeight))
	dr := font.Drawer{
		Dst:  small,
		Src:  image.Opaque,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(0, basicAscent),
	}
	dr.DrawString(text)

	k := b.scale(size)
	top := baseline - int(math.Round(basicAscent*k))
	r := image.Rect(x, top, x+int(math.Round(float64(w)*k)), top+int(math.Round(basicHeight*k)))
	mask := image.NewAlpha(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.NearestNeighbor.Scale(mask, mask.Bounds(), small, small.Bounds(), draw.Src, nil)
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)
}
