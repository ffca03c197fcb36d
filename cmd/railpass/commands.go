package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/lvillar/railpass"
	"github.com/lvillar/railpass/export"
	"github.com/lvillar/railpass/queue"
	"github.com/lvillar/railpass/raster"
	"github.com/lvillar/railpass/record"
	"github.com/lvillar/railpass/render"
	"github.com/lvillar/railpass/tplstore"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	idStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

func (e *env) logger() (*logrus.Logger, error) {
	return e.cfg.Log.Logger(e.stderr)
}

func (e *env) store(logger *logrus.Logger) (*tplstore.Store, error) {
	return e.cfg.OpenStore(e.ctx, logger)
}

// readFile reads path, or stdin for "-".
func (e *env) readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(e.stdin)
	}
	return os.ReadFile(path)
}

// readTickets parses every record in paths, in order.
func (e *env) readTickets(paths []string) ([]railpass.Ticket, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input files")
	}
	var out []railpass.Ticket
	for _, p := range paths {
		data, err := e.readFile(p)
		if err != nil {
			return nil, err
		}
		tickets, err := record.ParseBatch(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, tickets...)
	}
	if len(out) == 0 {
		return nil, errors.New("no records in input")
	}
	return out, nil
}

// overrideTemplate sets the template id of every ticket when id is given.
func overrideTemplate(tickets []railpass.Ticket, id string) {
	if id == "" {
		return
	}
	for i := range tickets {
		tickets[i].TemplateID = id
	}
}

// pick returns the index-th ticket, 1-based.
func pick(tickets []railpass.Ticket, index int) (railpass.Ticket, error) {
	if index < 1 || index > len(tickets) {
		return railpass.Ticket{}, fmt.Errorf("--index %d out of range (1-%d)", index, len(tickets))
	}
	return tickets[index-1], nil
}

func templateCmd(fs *pflag.FlagSet) func(*env, []string) error {
	return func(e *env, args []string) error {
		_, err := e.stdout.Write(record.TemplateJSON())
		return err
	}
}

func templatesCmd(fs *pflag.FlagSet) func(*env, []string) error {
	return func(e *env, args []string) error {
		logger, err := e.logger()
		if err != nil {
			return err
		}
		s, err := e.store(logger)
		if err != nil {
			return err
		}
		for _, cfg := range s.List() {
			marker := "  "
			if cfg.ID == s.DefaultID() {
				marker = okStyle.Render("* ")
			}
			fmt.Fprintf(e.stdout, "%s%s  %s\n", marker, idStyle.Render(cfg.ID), cfg.Name)
			if cfg.Description != "" {
				fmt.Fprintf(e.stdout, "    %s\n", dimStyle.Render(cfg.Description))
			}
		}
		return nil
	}
}

func validateCmd(fs *pflag.FlagSet) func(*env, []string) error {
	return func(e *env, args []string) error {
		if len(args) == 0 {
			return errors.New("no input files")
		}
		failed := 0
		for _, p := range args {
			data, err := e.readFile(p)
			if err == nil {
				var tickets []railpass.Ticket
				tickets, err = record.ParseBatch(data)
				if err == nil {
					fmt.Fprintf(e.stdout, "%s %s: %d records\n", okStyle.Render("ok"), p, len(tickets))
					continue
				}
			}
			failed++
			fmt.Fprintf(e.stdout, "%s %s: %v\n", failStyle.Render("FAIL"), p, err)
		}
		if failed > 0 {
			return exitCode(1)
		}
		return nil
	}
}

func renderCmd(fs *pflag.FlagSet) func(*env, []string) error {
	output := fs.StringP("output", "o", "", "write the HTML here instead of stdout")
	index := fs.IntP("index", "n", 1, "which record to render, 1-based")
	templateID := fs.StringP("template", "t", "", "override the records' template id")
	return func(e *env, args []string) error {
		tickets, err := e.readTickets(args)
		if err != nil {
			return err
		}
		overrideTemplate(tickets, *templateID)
		t, err := pick(tickets, *index)
		if err != nil {
			return err
		}
		logger, err := e.logger()
		if err != nil {
			return err
		}
		s, err := e.store(logger)
		if err != nil {
			return err
		}
		res, err := render.NewRenderer(s).Render(e.ctx, t)
		if err != nil {
			return err
		}
		if *output == "" {
			_, err = fmt.Fprintln(e.stdout, res.Markup)
			return err
		}
		return os.WriteFile(*output, []byte(res.Markup), 0o644)
	}
}

func previewCmd(fs *pflag.FlagSet) func(*env, []string) error {
	output := fs.StringP("output", "o", "", "output PNG path (default: named after the ticket)")
	index := fs.IntP("index", "n", 1, "which record to preview, 1-based")
	templateID := fs.StringP("template", "t", "", "override the records' template id")
	scale := fs.Float64P("scale", "s", 0, "preview scale (default from config)")
	full := fs.Bool("full", false, "write the full-size image instead of a preview")
	return func(e *env, args []string) error {
		sc := *scale
		if sc == 0 {
			sc = e.cfg.Render.PreviewScale
		}
		if !*full && !raster.ValidPreviewScale(sc) {
			return fmt.Errorf("--scale %v out of range (0, 1]", sc)
		}
		tickets, err := e.readTickets(args)
		if err != nil {
			return err
		}
		overrideTemplate(tickets, *templateID)
		t, err := pick(tickets, *index)
		if err != nil {
			return err
		}
		logger, err := e.logger()
		if err != nil {
			return err
		}
		s, err := e.store(logger)
		if err != nil {
			return err
		}
		painter, err := e.cfg.NewPainter(s, logger)
		if err != nil {
			return err
		}
		res, err := render.NewRenderer(s).Render(e.ctx, t)
		if err != nil {
			return err
		}
		img, err := painter.Paint(e.ctx, res.Template, res.Markup)
		if err != nil {
			return err
		}
		out := img
		if !*full {
			if out, err = raster.Preview(img, sc); err != nil {
				return err
			}
		}
		var buf bytes.Buffer
		if err := raster.EncodePNG(&buf, out); err != nil {
			return err
		}
		path := *output
		if path == "" {
			path = export.PNGName(t)
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return err
		}
		b := out.Bounds()
		fmt.Fprintf(e.stdout, "%s %s (%dx%d)\n", okStyle.Render("wrote"), path, b.Dx(), b.Dy())
		return nil
	}
}

func exportCmd(fs *pflag.FlagSet) func(*env, []string) error {
	format := fs.StringP("format", "f", "pdf", "output format: png, zip or pdf")
	output := fs.StringP("output", "o", ".", "output file, or a directory to write the default file name into")
	templateID := fs.StringP("template", "t", "", "override the records' template id")
	manifest := fs.Bool("manifest", false, "append a manifest page to PDF exports")
	return func(e *env, args []string) error {
		f, err := export.ParseFormat(*format)
		if err != nil {
			return err
		}
		tickets, err := e.readTickets(args)
		if err != nil {
			return err
		}
		overrideTemplate(tickets, *templateID)

		logger, err := e.logger()
		if err != nil {
			return err
		}
		// Records go through the queue so the capacity and completeness
		// rules match the interactive tools.
		session := queue.NewSession(queue.WithLogger(logger))
		for i, t := range tickets {
			_, err := session.Add(t)
			if errors.Is(err, railpass.ErrQueueFull) {
				fmt.Fprintf(e.stderr, "%s %s (%d of %d records skipped)\n",
					warnStyle.Render("warning:"), session.State().Notice, len(tickets)-i, len(tickets))
				break
			}
			if err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
		}

		s, err := e.store(logger)
		if err != nil {
			return err
		}
		painter, err := e.cfg.NewPainter(s, logger)
		if err != nil {
			return err
		}
		if *manifest {
			e.cfg.Export.Manifest = true
		}
		pipeline, err := e.cfg.NewPipeline(s, painter, logger, nil)
		if err != nil {
			return err
		}
		art, err := pipeline.Export(e.ctx, session.Tickets(), f)
		if err != nil {
			return err
		}

		path := *output
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = filepath.Join(path, art.Name)
		}
		if err := os.WriteFile(path, art.Data, 0o644); err != nil {
			return err
		}
		detail := fmt.Sprintf("%d tickets, %d bytes", art.Tickets, len(art.Data))
		if art.Pages > 0 {
			detail = fmt.Sprintf("%d tickets on %d pages, %d bytes", art.Tickets, art.Pages, len(art.Data))
		}
		fmt.Fprintf(e.stdout, "%s %s %s\n", okStyle.Render("exported"), path, dimStyle.Render("("+detail+")"))
		return nil
	}
}
