package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/lvillar/railpass"
	"github.com/lvillar/railpass/render"
	"github.com/lvillar/railpass/tplstore"
)

func blueTemplate(t *testing.T) (*tplstore.Store, *tplstore.Template) {
	t.Helper()
	s, err := tplstore.Embedded()
	if err != nil {
		t.Fatal(err)
	}
	tpl, err := s.Resolve(context.Background(), "blue")
	if err != nil {
		t.Fatal(err)
	}
	return s, tpl
}

func scenario() railpass.Ticket {
	rec := railpass.DefaultTicket()
	rec.IDNumber = "150102199001011234"
	return rec
}

func renderScenario(t *testing.T, tpl *tplstore.Template, rec railpass.Ticket) string {
	t.Helper()
	markup, err := render.Render(tpl, rec)
	if err != nil {
		t.Fatal(err)
	}
	return markup
}

func placementsByClass(ps []Placement) map[string]Placement {
	m := make(map[string]Placement, len(ps))
	for _, p := range ps {
		m[p.Class] = p
	}
	return m
}

func TestLayoutAppliesCompensation(t *testing.T) {
	_, tpl := blueTemplate(t)
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	ps, err := p.Layout(tpl, renderScenario(t, tpl, scenario()))
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	got := placementsByClass(ps)

	if pl := got[render.ClassPriceUnit]; pl.X != 253 || pl.Text != "元" {
		t.Errorf("price unit = %+v, want x=253", pl)
	}
	dep := got[render.ClassDepartureStation]
	if want := 500 - 45 - p.text.measure("北京南", 110)/2; dep.X != want {
		t.Errorf("departure x = %d, want %d", dep.X, want)
	}
	arr := got[render.ClassArrivalStation]
	if want := 1350 + 50 - p.text.measure("天津", 110)/2; arr.X != want {
		t.Errorf("arrival x = %d, want %d", arr.X, want)
	}
	if pl := got[render.ClassSerialNumber]; pl.Text != "150***********1234" {
		t.Errorf("serial = %q", pl.Text)
	}
	if pl := got[render.ClassTicketNumber]; pl.X != 110 || pl.Color != (color.NRGBA{0xd2, 0x32, 0x2d, 0xff}) {
		t.Errorf("ticket number = %+v", pl)
	}
	if _, ok := got[render.ClassDepartureLabel]; ok {
		t.Error("empty label slot should not be placed")
	}
}

func TestPaint(t *testing.T) {
	store, tpl := blueTemplate(t)
	p, err := New(WithAssets(store))
	if err != nil {
		t.Fatal(err)
	}
	img, err := p.Paint(context.Background(), tpl, renderScenario(t, tpl, scenario()))
	if err != nil {
		t.Fatalf("Paint: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1810 || b.Dy() != 1140 {
		t.Fatalf("bounds = %v", b)
	}
	if c := img.RGBAAt(0, 0); c != (color.RGBA{0x8f, 0xb8, 0xd6, 0xff}) {
		t.Errorf("border pixel = %v", c)
	}
	if c := img.RGBAAt(50, 50); c != (color.RGBA{0xcf, 0xe7, 0xf5, 0xff}) {
		t.Errorf("background pixel = %v", c)
	}

	box := tpl.Canvas.QR
	dark, light := 0, 0
	for y := box.Y; y < box.Y+box.Size; y += 3 {
		for x := box.X; x < box.X+box.Size; x += 3 {
			if img.RGBAAt(x, y).R < 0x80 {
				dark++
			} else {
				light++
			}
		}
	}
	if dark == 0 || light == 0 {
		t.Errorf("QR area not drawn: dark=%d light=%d", dark, light)
	}
}

func TestPaintWithoutQR(t *testing.T) {
	_, tpl := blueTemplate(t)
	p, err := New(WithQR(false))
	if err != nil {
		t.Fatal(err)
	}
	img, err := p.Paint(context.Background(), tpl, renderScenario(t, tpl, scenario()))
	if err != nil {
		t.Fatal(err)
	}
	box := tpl.Canvas.QR
	if c := img.RGBAAt(box.X+box.Size/2, box.Y+box.Size/2); c != (color.RGBA{0xcf, 0xe7, 0xf5, 0xff}) {
		t.Errorf("QR centre = %v, want background", c)
	}
}

func TestPaintWithFont(t *testing.T) {
	_, tpl := blueTemplate(t)
	p, err := New(WithFontData(goregular.TTF))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := scenario()
	rec.TrainNumber = "G1234"
	img, err := p.Paint(context.Background(), tpl, renderScenario(t, tpl, rec))
	if err != nil {
		t.Fatal(err)
	}
	bg := color.RGBA{0xcf, 0xe7, 0xf5, 0xff}
	inked := false
	for y := 220; y < 300 && !inked; y++ {
		for x := 800; x < 1010; x++ {
			if img.RGBAAt(x, y) != bg {
				inked = true
				break
			}
		}
	}
	if !inked {
		t.Error("train number not drawn")
	}
}

func TestNewRejectsBadFont(t *testing.T) {
	if _, err := New(WithFontData([]byte("not a font"))); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New(WithFontFile("/does/not/exist.ttf")); err == nil {
		t.Fatal("expected error")
	}
}

type memAssets map[string][]byte

func (m memAssets) ReadAsset(_ context.Context, _ *tplstore.Template, ref string) ([]byte, error) {
	data, ok := m[ref]
	if !ok {
		return nil, errors.New("no such asset")
	}
	return data, nil
}

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPaintBackgroundImage(t *testing.T) {
	red := color.RGBA{0xff, 0, 0, 0xff}
	tpl := &tplstore.Template{Config: tplstore.Config{
		ID:     "img",
		Canvas: tplstore.Canvas{Width: 40, Height: 20, Image: "./bg.png"},
	}}

	p, _ := New(WithAssets(memAssets{"./bg.png": solidPNG(t, red)}))
	img, err := p.Paint(context.Background(), tpl, "")
	if err != nil {
		t.Fatalf("Paint: %v", err)
	}
	if c := img.RGBAAt(20, 10); c != red {
		t.Errorf("pixel = %v, want red", c)
	}

	p, _ = New(WithAssets(memAssets{"./bg.png": []byte("garbage")}))
	if _, err := p.Paint(context.Background(), tpl, ""); !errors.Is(err, railpass.ErrRasterize) {
		t.Errorf("bad image error = %v", err)
	}

	p, _ = New()
	if _, err := p.Paint(context.Background(), tpl, ""); !errors.Is(err, railpass.ErrRasterize) {
		t.Errorf("no reader error = %v", err)
	}
}

func TestPaintCanceled(t *testing.T) {
	_, tpl := blueTemplate(t)
	p, _ := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Paint(ctx, tpl, "")
	if !errors.Is(err, railpass.ErrRasterize) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v", err)
	}
}

func TestPayloadOnlySeesRedactedID(t *testing.T) {
	_, tpl := blueTemplate(t)
	p, _ := New()

	a := scenario()
	b := scenario()
	b.IDNumber = "150999999999991234"
	c := scenario()
	c.IDNumber = "150102199001019999"

	payload := func(rec railpass.Ticket) string {
		ps, err := p.Layout(tpl, renderScenario(t, tpl, rec))
		if err != nil {
			t.Fatal(err)
		}
		return Payload(ps)
	}
	if payload(a) != payload(b) {
		t.Error("payload depends on the hidden middle of the id")
	}
	if payload(a) == payload(c) {
		t.Error("payload ignores the visible id suffix")
	}
	if len(payload(a)) != 64 {
		t.Errorf("payload length = %d", len(payload(a)))
	}
}

func TestPreview(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1810, 1140))
	got, err := Preview(src, DefaultPreviewScale)
	if err != nil {
		t.Fatal(err)
	}
	if b := got.Bounds(); b.Dx() != 272 || b.Dy() != 171 {
		t.Fatalf("preview bounds = %v", b)
	}
	got, err = Preview(src, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b := got.Bounds(); b.Dx() != 272 {
		t.Fatalf("zero scale should use default, got %v", b)
	}
	got, err = Preview(src, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds() != src.Bounds() {
		t.Fatalf("unit scale bounds = %v", got.Bounds())
	}
}

func TestPreviewRejectsScale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1810, 1140))
	for _, scale := range []float64{-0.5, 1.01, 20, 1e9, math.Inf(1), math.NaN()} {
		if img, err := Preview(src, scale); err == nil {
			t.Errorf("Preview(%v) = %v, want error", scale, img.Bounds())
		}
	}
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#fff", color.NRGBA{0xff, 0xff, 0xff, 0xff}, true},
		{"#cfe7f5", color.NRGBA{0xcf, 0xe7, 0xf5, 0xff}, true},
		{"#00000080", color.NRGBA{0, 0, 0, 0x80}, true},
		{"#f008", color.NRGBA{0xff, 0, 0, 0x88}, true},
		{"cfe7f5", color.NRGBA{}, false},
		{"#xyz", color.NRGBA{}, false},
		{"#12345", color.NRGBA{}, false},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseColor(%q) = %v, %v", tt.in, got, err)
		}
	}
}
