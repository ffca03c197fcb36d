package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/phpdave11/gofpdf/contrib/gofpdi"
	"github.com/sirupsen/logrus"

	"github.com/lvillar/railpass"
)

// DefaultPageLabel is the page label format used by WithPageLabels("").
// {page} is replaced by the page number and {nb} by the page count.
const DefaultPageLabel = "railpass  {page} / {nb}"

type config struct {
	grid        Grid
	cutMarks    bool
	watermark   *Watermark
	labelFormat string
	labelPos    Position
	labelMargin float64
	stationery  string
	fontData    []byte
	title       string
	created     time.Time
	manifest    []railpass.Ticket
	logger      *logrus.Logger
}

// Option configures a Builder.
type Option func(*config)

// WithGrid sets the page and cell geometry. Default A4().
func WithGrid(g Grid) Option {
	return func(c *config) { c.grid = g }
}

// WithCutMarks outlines every ticket with a dashed cutting guide.
func WithCutMarks(on bool) Option {
	return func(c *config) { c.cutMarks = on }
}

// WithWatermark draws wm across every ticket page. Zero fields take
// defaults.
func WithWatermark(wm Watermark) Option {
	return func(c *config) {
		w := wm.withDefaults()
		c.watermark = &w
	}
}

// WithPageLabels numbers the ticket pages. format may use the {page} and
// {nb} placeholders; an empty format selects DefaultPageLabel.
func WithPageLabels(format string, pos Position) Option {
	return func(c *config) {
		if format == "" {
			format = DefaultPageLabel
		}
		c.labelFormat = format
		c.labelPos = pos
	}
}

// WithStationery draws the first page of the PDF at path behind every
// ticket page.
func WithStationery(path string) Option {
	return func(c *config) { c.stationery = path }
}

// WithFont embeds a UTF-8 TrueType font for all text. Without one the core
// Helvetica font is used and characters outside cp1252 print as "?".
func WithFont(ttf []byte) Option {
	return func(c *config) { c.fontData = ttf }
}

// WithTitle sets the document title.
func WithTitle(title string) Option {
	return func(c *config) { c.title = title }
}

// WithCreationDate fixes the document creation date, for reproducible
// output.
func WithCreationDate(t time.Time) Option {
	return func(c *config) { c.created = t }
}

// WithManifest appends a manifest page listing tickets.
func WithManifest(tickets []railpass.Ticket) Option {
	return func(c *config) { c.manifest = tickets }
}

// WithLogger sets the builder's logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Builder places ticket images on consecutive grid cells of a PDF.
type Builder struct {
	pdf    *gofpdf.Fpdf
	grid   Grid
	cfg    config
	count  int
	family string
	utf8   bool
	tr     func(string) string

	imp           *gofpdi.Importer
	stationeryTpl int

	// ticketPages counts pages opened by Add. Later pages belong to the
	// manifest and are not decorated.
	ticketPages int
}

const fontFamily = "railpass"

// New returns an empty Builder.
func New(opts ...Option) (*Builder, error) {
	cfg := config{
		grid:        A4(),
		labelMargin: 5,
		title:       "railpass",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logrus.New()
		cfg.logger.SetOutput(io.Discard)
	}
	if err := cfg.grid.Validate(); err != nil {
		return nil, err
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: cfg.grid.PageW, Ht: cfg.grid.PageH},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(10, 10, 10)
	pdf.AliasNbPages("")
	pdf.SetTitle(cfg.title, true)
	pdf.SetCreator("railpass", true)
	if !cfg.created.IsZero() {
		pdf.SetCreationDate(cfg.created)
	}

	b := &Builder{pdf: pdf, grid: cfg.grid, cfg: cfg}
	if cfg.fontData != nil {
		pdf.AddUTF8FontFromBytes(fontFamily, "", cfg.fontData)
		b.family, b.utf8 = fontFamily, true
		b.tr = func(s string) string { return s }
	} else {
		b.family = "Helvetica"
		b.tr = pdf.UnicodeTranslatorFromDescriptor("")
	}

	if cfg.stationery != "" {
		if err := b.importStationery(cfg.stationery); err != nil {
			return nil, err
		}
	}
	pdf.SetHeaderFunc(b.header)
	pdf.SetFooterFunc(b.footer)

	if pdf.Err() {
		return nil, fmt.Errorf("sheet: %w", pdf.Error())
	}
	return b, nil
}

// style maps a core-font style to what the active font supports.
func (b *Builder) style(s string) string {
	if b.utf8 {
		return ""
	}
	return s
}

func (b *Builder) importStationery(path string) (err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sheet: reading stationery: %w", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return fmt.Errorf("sheet: stationery %s is not a PDF", path)
	}
	// The importer panics on malformed input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sheet: importing stationery %s: %v", path, r)
		}
	}()
	b.imp = gofpdi.NewImporter()
	b.stationeryTpl = b.imp.ImportPage(b.pdf, path, 1, "/MediaBox")
	return nil
}

func (b *Builder) decorated() bool {
	return b.pdf.PageNo() <= b.ticketPages
}

func (b *Builder) header() {
	if b.decorated() && b.imp != nil {
		b.imp.UseImportedTemplate(b.pdf, b.stationeryTpl, 0, 0, b.grid.PageW, b.grid.PageH)
	}
}

func (b *Builder) footer() {
	if !b.decorated() {
		return
	}
	if b.cfg.watermark != nil {
		b.drawWatermark(*b.cfg.watermark)
	}
	if b.cfg.labelFormat != "" {
		b.drawPageLabel(pageLabel(b.cfg.labelFormat, b.pdf.PageNo()))
	}
}

// pageLabel fills the {page} placeholder. Everything else, {nb} included,
// is printed as written.
func pageLabel(format string, page int) string {
	return strings.ReplaceAll(format, "{page}", strconv.Itoa(page))
}

// Add places one PNG-encoded ticket in the next free cell, starting a new
// page when the current one is full.
func (b *Builder) Add(png []byte) error {
	page, x, y := b.grid.Place(b.count)
	if b.count%b.grid.PerPage() == 0 {
		b.ticketPages++
		b.pdf.AddPage()
	}
	name := fmt.Sprintf("ticket-%03d", b.count)
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	b.pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(png))
	b.pdf.ImageOptions(name, x, y, b.grid.CellW, b.grid.CellH, false, opt, 0, "")
	if b.cfg.cutMarks {
		drawCutMarks(b.pdf, x, y, b.grid.CellW, b.grid.CellH)
	}
	if b.pdf.Err() {
		return fmt.Errorf("sheet: ticket %d: %w", b.count+1, b.pdf.Error())
	}
	b.cfg.logger.WithFields(logrus.Fields{
		"ticket": b.count + 1,
		"page":   page + 1,
	}).Debug("ticket placed")
	b.count++
	return nil
}

// Count returns the number of tickets placed so far.
func (b *Builder) Count() int { return b.count }

// Pages returns the number of pages so far, the manifest excluded.
func (b *Builder) Pages() int { return b.grid.Pages(b.count) }

// ErrEmpty is returned when writing a sheet with no tickets.
var ErrEmpty = errors.New("sheet: no tickets placed")

// Write finishes the document, appending the manifest if configured, and
// writes it to w. The Builder cannot be used afterwards.
func (b *Builder) Write(w io.Writer) error {
	if b.count == 0 {
		return ErrEmpty
	}
	if len(b.cfg.manifest) > 0 {
		b.drawManifest(b.cfg.manifest)
	}
	if b.pdf.Err() {
		return fmt.Errorf("sheet: %w", b.pdf.Error())
	}
	if err := b.pdf.Output(w); err != nil {
		return fmt.Errorf("sheet: %w", err)
	}
	return nil
}
