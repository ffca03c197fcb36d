package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lvillar/railpass"
	"github.com/lvillar/railpass/raster"
	"github.com/lvillar/railpass/tplstore"
)

var fixedNow = time.Date(2024, 6, 22, 11, 44, 0, 0, time.FixedZone("CST", 8*3600))

// stubPainter returns a small blank image. It fails on call number fail
// (1-based) and, when gate is set, blocks every call until gate is closed.
type stubPainter struct {
	calls   atomic.Int32
	fail    int32
	started chan struct{}
	gate    chan struct{}
}

func (s *stubPainter) Paint(ctx context.Context, tpl *tplstore.Template, markup string) (*image.RGBA, error) {
	n := s.calls.Add(1)
	if s.started != nil && n == 1 {
		close(s.started)
	}
	if s.gate != nil {
		<-s.gate
	}
	if n == s.fail {
		return nil, railpass.NewError("rasterize", tpl.ID, railpass.ErrRasterize)
	}
	return image.NewRGBA(image.Rect(0, 0, 172, 108)), nil
}

func store(t *testing.T) *tplstore.Store {
	t.Helper()
	s, err := tplstore.Embedded()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func batch(n int) []railpass.Ticket {
	out := make([]railpass.Ticket, n)
	for i := range out {
		out[i] = railpass.DefaultTicket()
	}
	return out
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"png", FormatPNG, true},
		{"ZIP", FormatZIP, true},
		{" pdf ", FormatPDF, true},
		{"gif", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestPNGName(t *testing.T) {
	rec := railpass.DefaultTicket()
	if got := PNGName(rec); got != "C2241_北京南-天津.png" {
		t.Fatalf("PNGName = %q", got)
	}
	rec.TrainNumber = "G1/2"
	rec.ArrivalStation = " 上海:虹桥 "
	if got := PNGName(rec); got != "G1_2_北京南-上海_虹桥.png" {
		t.Fatalf("PNGName = %q", got)
	}
}

func TestExportSinglePNG(t *testing.T) {
	painter, err := raster.New(raster.WithQR(false))
	if err != nil {
		t.Fatal(err)
	}
	p := New(store(t), painter)
	art, err := p.Export(context.Background(), batch(1), FormatPNG)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if art.Name != "C2241_北京南-天津.png" || art.MediaType != "image/png" || art.Tickets != 1 {
		t.Fatalf("artifact = %s %s %d", art.Name, art.MediaType, art.Tickets)
	}
	if !bytes.HasPrefix(art.Data, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatal("data is not a PNG")
	}
	var buf bytes.Buffer
	if n, err := art.WriteTo(&buf); err != nil || n != int64(len(art.Data)) {
		t.Fatalf("WriteTo = %d, %v", n, err)
	}
}

func TestExportZIP(t *testing.T) {
	tickets := batch(3)
	tickets[1].TrainNumber = "G1"
	p := New(store(t), &stubPainter{}, WithClock(func() time.Time { return fixedNow }))

	// More than one record asked for as PNG is delivered as an archive.
	art, err := p.Export(context.Background(), tickets, FormatPNG)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if art.Format != FormatZIP || art.Name != "火车票_3张_2024-06-22T03-44-00.zip" {
		t.Fatalf("artifact = %s %s", art.Format, art.Name)
	}

	zr, err := zip.NewReader(bytes.NewReader(art.Data), int64(len(art.Data)))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	want := []string{
		"01_C2241_北京南-天津.png",
		"02_G1_北京南-天津.png",
		"03_C2241_北京南-天津.png",
	}
	if len(zr.File) != len(want) {
		t.Fatalf("entries = %d", len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != want[i] {
			t.Errorf("entry %d = %q, want %q", i, f.Name, want[i])
		}
	}
}

var pageObject = regexp.MustCompile(`/Type /Page[^s]`)

func TestExportPDF(t *testing.T) {
	p := New(store(t), &stubPainter{},
		WithClock(func() time.Time { return fixedNow }),
		WithManifest(true),
	)
	art, err := p.Export(context.Background(), batch(11), FormatPDF)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if art.Name != "火车票批量_11张_2024-06-22T03-44-00.pdf" {
		t.Fatalf("name = %q", art.Name)
	}
	if art.Pages != 2 {
		t.Fatalf("ticket pages = %d", art.Pages)
	}
	if !bytes.HasPrefix(art.Data, []byte("%PDF")) {
		t.Fatal("data is not a PDF")
	}
	if got := len(pageObject.FindAll(art.Data, -1)); got != 3 {
		t.Fatalf("pages in document = %d, want 2 ticket pages and a manifest", got)
	}
}

func TestExportEmpty(t *testing.T) {
	p := New(store(t), &stubPainter{})
	art, err := p.Export(context.Background(), nil, FormatPDF)
	if !errors.Is(err, railpass.ErrQueueEmpty) || art != nil {
		t.Fatalf("Export = %v, %v", art, err)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	p := New(store(t), &stubPainter{})
	if _, err := p.Export(context.Background(), batch(1), Format("gif")); err == nil {
		t.Fatal("expected error")
	}
}

func TestExportAbortsOnFailure(t *testing.T) {
	painter := &stubPainter{fail: 2}
	p := New(store(t), painter)
	art, err := p.Export(context.Background(), batch(4), FormatZIP)
	if art != nil {
		t.Fatal("partial artifact returned")
	}
	if !errors.Is(err, railpass.ErrRasterize) {
		t.Fatalf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "ticket 2") {
		t.Fatalf("error does not name the record: %v", err)
	}
	if n := painter.calls.Load(); n != 2 {
		t.Fatalf("painter called %d times after failure", n)
	}
	if p.Busy() {
		t.Fatal("pipeline still busy")
	}
}

func TestExportInProgress(t *testing.T) {
	painter := &stubPainter{started: make(chan struct{}), gate: make(chan struct{})}
	p := New(store(t), painter)

	task, err := p.Start(context.Background(), batch(2), FormatZIP)
	if err != nil {
		t.Fatal(err)
	}
	<-painter.started
	if !p.Busy() {
		t.Fatal("pipeline not busy")
	}
	if _, err := p.Export(context.Background(), batch(1), FormatPNG); !errors.Is(err, railpass.ErrExportInProgress) {
		t.Fatalf("second Export = %v", err)
	}
	if _, err := p.Start(context.Background(), batch(1), FormatPNG); !errors.Is(err, railpass.ErrExportInProgress) {
		t.Fatalf("second Start = %v", err)
	}

	close(painter.gate)
	art, err := task.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if art.Tickets != 2 {
		t.Fatalf("tickets = %d", art.Tickets)
	}
	if p.Busy() {
		t.Fatal("pipeline still busy")
	}
}

func TestTaskCancel(t *testing.T) {
	painter := &stubPainter{started: make(chan struct{}), gate: make(chan struct{})}
	p := New(store(t), painter)

	task, err := p.Start(context.Background(), batch(3), FormatPDF)
	if err != nil {
		t.Fatal(err)
	}
	<-painter.started
	task.Cancel()
	close(painter.gate)

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish")
	}
	art, err := task.Wait()
	if art != nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, %v", art, err)
	}
	if n := painter.calls.Load(); n != 1 {
		t.Fatalf("painter called %d times after cancel", n)
	}
}

func TestExportMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p := New(store(t), &stubPainter{}, WithMetrics(m))

	if _, err := p.Export(context.Background(), batch(3), FormatPDF); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Export(context.Background(), nil, FormatPDF); err == nil {
		t.Fatal("expected error")
	}

	if got := testutil.ToFloat64(m.exports.WithLabelValues("pdf", "ok")); got != 1 {
		t.Errorf("ok exports = %v", got)
	}
	if got := testutil.ToFloat64(m.exports.WithLabelValues("pdf", "error")); got != 1 {
		t.Errorf("failed exports = %v", got)
	}
	if got := testutil.ToFloat64(m.tickets); got != 3 {
		t.Errorf("tickets = %v", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("duration series = %d", n)
	}
}
