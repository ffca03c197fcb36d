// Package export turns a batch of ticket records into a downloadable
// artifact: a single PNG, a ZIP of PNGs, or a multi-up PDF sheet.
//
// Records are processed strictly one at a time: resolve the template,
// render, rasterize. The first failure aborts the whole batch and no
// artifact is produced. A Pipeline runs one batch at a time; a second
// request while one is running is refused, not queued.
package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"github.com/lvillar/railpass"
	"github.com/lvillar/railpass/raster"
	"github.com/lvillar/railpass/render"
	"github.com/lvillar/railpass/sheet"
	"github.com/lvillar/railpass/tplstore"
)

// Format is an output format.
type Format string

const (
	FormatPNG Format = "png"
	FormatZIP Format = "zip"
	FormatPDF Format = "pdf"
)

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPNG, FormatZIP, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("export: unknown format %q (want png, zip or pdf)", s)
}

// TimestampLayout formats the export time in file names.
const TimestampLayout = "2006-01-02T15-04-05"

// Artifact is a finished export.
type Artifact struct {
	Name      string
	MediaType string
	Format    Format
	Tickets   int
	Pages     int // PDF only
	Data      []byte
}

// WriteTo writes the artifact bytes to w.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(a.Data)
	return int64(n), err
}

// Painter rasterizes rendered markup. *raster.Painter implements it.
type Painter interface {
	Paint(ctx context.Context, tpl *tplstore.Template, markup string) (*image.RGBA, error)
}

// Pipeline exports batches of tickets.
type Pipeline struct {
	templates render.Resolver
	painter   Painter
	sheetOpts []sheet.Option
	manifest  bool
	now       func() time.Time
	logger    *logrus.Logger
	metrics   *Metrics

	busy atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSheetOptions passes options to every PDF sheet the pipeline builds.
func WithSheetOptions(opts ...sheet.Option) Option {
	return func(p *Pipeline) { p.sheetOpts = append(p.sheetOpts, opts...) }
}

// WithManifest appends a manifest page to PDF exports.
func WithManifest(on bool) Option {
	return func(p *Pipeline) { p.manifest = on }
}

// WithClock sets the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *logrus.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records batch outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New returns a pipeline that resolves templates through templates and
// rasterizes with painter.
func New(templates render.Resolver, painter Painter, opts ...Option) *Pipeline {
	l := logrus.New()
	l.SetOutput(io.Discard)
	p := &Pipeline{
		templates: templates,
		painter:   painter,
		now:       time.Now,
		logger:    l,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Busy reports whether a batch is running.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Export runs one batch to completion.
func (p *Pipeline) Export(ctx context.Context, tickets []railpass.Ticket, format Format) (*Artifact, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, railpass.NewError("export", "", railpass.ErrExportInProgress)
	}
	defer p.busy.Store(false)
	return p.run(ctx, tickets, format)
}

// Start runs one batch in the background. The tickets slice is copied.
func (p *Pipeline) Start(ctx context.Context, tickets []railpass.Ticket, format Format) (*Task, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, railpass.NewError("export", "", railpass.ErrExportInProgress)
	}
	batch := make([]railpass.Ticket, len(tickets))
	copy(batch, tickets)

	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		defer p.busy.Store(false)
		t.artifact, t.err = p.run(ctx, batch, format)
	}()
	return t, nil
}

// Task is a batch running in the background.
type Task struct {
	cancel   context.CancelFunc
	done     chan struct{}
	artifact *Artifact
	err      error
}

// Cancel asks the batch to stop. It takes effect between records; a
// cancelled batch fails like any other and produces no artifact.
func (t *Task) Cancel() { t.cancel() }

// Done is closed when the batch has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the batch has finished and returns its result.
func (t *Task) Wait() (*Artifact, error) {
	<-t.done
	return t.artifact, t.err
}

type frame struct {
	ticket railpass.Ticket
	png    []byte
}

func (p *Pipeline) run(ctx context.Context, tickets []railpass.Ticket, format Format) (art *Artifact, err error) {
	start := time.Now()
	if format == FormatPNG && len(tickets) > 1 {
		format = FormatZIP
	}
	log := p.logger.WithFields(logrus.Fields{"format": format, "tickets": len(tickets)})
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			log.WithError(err).Error("export failed")
		} else {
			log.WithField("file", art.Name).Info("export finished")
		}
		p.metrics.observe(format, result, time.Since(start).Seconds())
	}()

	if len(tickets) == 0 {
		return nil, railpass.NewError("export", "", railpass.ErrQueueEmpty)
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, railpass.NewError("export", "", err)
	}

	frames := make([]frame, 0, len(tickets))
	templates := make(map[string]*tplstore.Template)
	for i, t := range tickets {
		if err := ctx.Err(); err != nil {
			return nil, railpass.NewError("export", fmt.Sprintf("ticket %d", i+1), err)
		}
		png, err := p.rasterize(ctx, templates, t)
		if err != nil {
			return nil, railpass.NewError("export", fmt.Sprintf("ticket %d", i+1), err)
		}
		frames = append(frames, frame{ticket: t, png: png})
		p.metrics.ticket()
		log.WithField("ticket", i+1).Debug("ticket rasterized")
	}

	stamp := p.now().UTC().Format(TimestampLayout)
	switch format {
	case FormatPNG:
		return &Artifact{
			Name:      PNGName(frames[0].ticket),
			MediaType: "image/png",
			Format:    FormatPNG,
			Tickets:   1,
			Data:      frames[0].png,
		}, nil
	case FormatZIP:
		return p.zip(frames, stamp)
	default:
		return p.pdf(frames, stamp)
	}
}

// rasterize renders one ticket and encodes it as PNG.
func (p *Pipeline) rasterize(ctx context.Context, cache map[string]*tplstore.Template, t railpass.Ticket) ([]byte, error) {
	tpl, ok := cache[t.TemplateID]
	if !ok {
		var err error
		tpl, err = p.templates.Resolve(ctx, t.TemplateID)
		if err != nil {
			return nil, err
		}
		cache[t.TemplateID] = tpl
	}
	markup, err := render.Render(tpl, t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", railpass.ErrRasterize, err)
	}
	img, err := p.painter.Paint(ctx, tpl, markup)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Pipeline) zip(frames []frame, stamp string) (*Artifact, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, f := range frames {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     fmt.Sprintf("%02d_%s", i+1, PNGName(f.ticket)),
			Method:   zip.Store,
			Modified: p.now(),
		})
		if err != nil {
			return nil, assemblyErr(err)
		}
		if _, err := w.Write(f.png); err != nil {
			return nil, assemblyErr(err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, assemblyErr(err)
	}
	return &Artifact{
		Name:      fmt.Sprintf("火车票_%d张_%s.zip", len(frames), stamp),
		MediaType: "application/zip",
		Format:    FormatZIP,
		Tickets:   len(frames),
		Data:      buf.Bytes(),
	}, nil
}

func (p *Pipeline) pdf(frames []frame, stamp string) (*Artifact, error) {
	opts := append([]sheet.Option{
		sheet.WithCreationDate(p.now()),
		sheet.WithLogger(p.logger),
	}, p.sheetOpts...)
	if p.manifest {
		tickets := make([]railpass.Ticket, len(frames))
		for i, f := range frames {
			tickets[i] = f.ticket
		}
		opts = append(opts, sheet.WithManifest(tickets))
	}
	b, err := sheet.New(opts...)
	if err != nil {
		return nil, assemblyErr(err)
	}
	for _, f := range frames {
		if err := b.Add(f.png); err != nil {
			return nil, assemblyErr(err)
		}
	}
	var buf bytes.Buffer
	if err := b.Write(&buf); err != nil {
		return nil, assemblyErr(err)
	}
	return &Artifact{
		Name:      fmt.Sprintf("火车票批量_%d张_%s.pdf", len(frames), stamp),
		MediaType: "application/pdf",
		Format:    FormatPDF,
		Tickets:   len(frames),
		Pages:     b.Pages(),
		Data:      buf.Bytes(),
	}, nil
}

func assemblyErr(err error) error {
	return fmt.Errorf("%w: %w", railpass.ErrExportAssembly, err)
}

// PNGName is the file name of a single exported ticket,
// "{train}_{departure}-{arrival}.png".
func PNGName(t railpass.Ticket) string {
	return fmt.Sprintf("%s_%s-%s.png", safeName(t.TrainNumber), safeName(t.DepartureStation), safeName(t.ArrivalStation))
}

var unsafeChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

func safeName(s string) string {
	return unsafeChars.Replace(strings.TrimSpace(s))
}
