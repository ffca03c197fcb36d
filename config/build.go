package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvillar/railpass/export"
	"github.com/lvillar/railpass/raster"
	"github.com/lvillar/railpass/sheet"
	"github.com/lvillar/railpass/tplstore"
)

// OpenStore opens the configured template source: a directory, a base URL,
// or the embedded templates.
func (c *Config) OpenStore(ctx context.Context, logger *logrus.Logger) (*tplstore.Store, error) {
	opts := []tplstore.Option{tplstore.WithLogger(logger)}
	if c.Templates.DefaultID != "" {
		opts = append(opts, tplstore.WithDefaultID(c.Templates.DefaultID))
	}

	var src tplstore.Source
	switch {
	case c.Templates.Dir != "":
		s, err := tplstore.DirSource(c.Templates.Dir)
		if err != nil {
			return nil, err
		}
		src = s
	case c.Templates.BaseURL != "":
		s, err := tplstore.NewHTTPSource(c.Templates.BaseURL, &http.Client{Timeout: 30 * time.Second})
		if err != nil {
			return nil, err
		}
		src = s
	default:
		src = tplstore.EmbeddedSource()
	}
	return tplstore.Open(ctx, src, opts...)
}

// NewPainter returns a rasterizer reading background images from store.
func (c *Config) NewPainter(store *tplstore.Store, logger *logrus.Logger) (*raster.Painter, error) {
	opts := []raster.Option{
		raster.WithAssets(store),
		raster.WithQR(!c.Render.DisableQR),
		raster.WithLogger(logger),
	}
	if c.Render.FontFile != "" {
		opts = append(opts, raster.WithFontFile(c.Render.FontFile))
	}
	return raster.New(opts...)
}

// SheetOptions translates the export settings into PDF sheet options.
func (c *Config) SheetOptions() ([]sheet.Option, error) {
	e := c.Export
	grid := sheet.Grid{
		PageW:  e.PageWidth,
		PageH:  e.PageHeight,
		CellW:  e.CellWidth,
		CellH:  e.CellHeight,
		Gutter: e.Gutter,
	}
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	opts := []sheet.Option{
		sheet.WithGrid(grid),
		sheet.WithCutMarks(e.CutMarks),
	}
	if e.Watermark != "" {
		wm := sheet.Watermark{
			Text:     e.Watermark,
			FontSize: e.WatermarkFontSize,
			Opacity:  e.WatermarkOpacity,
			Angle:    e.WatermarkAngle,
		}
		if e.WatermarkColor != "" {
			c, err := raster.ParseColor(e.WatermarkColor)
			if err != nil {
				return nil, fmt.Errorf("config error: watermark colour: %w", err)
			}
			wm.Color = sheet.RGBColor{R: int(c.R), G: int(c.G), B: int(c.B)}
		}
		opts = append(opts, sheet.WithWatermark(wm))
	}
	if e.PageLabels {
		pos, err := sheet.ParsePosition(e.PageLabelPosition)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
		opts = append(opts, sheet.WithPageLabels(e.PageLabelFormat, pos))
	}
	if e.Stationery != "" {
		opts = append(opts, sheet.WithStationery(e.Stationery))
	}
	if c.Render.FontFile != "" {
		ttf, err := os.ReadFile(c.Render.FontFile)
		if err != nil {
			return nil, fmt.Errorf("config error: reading font: %w", err)
		}
		opts = append(opts, sheet.WithFont(ttf))
	}
	return opts, nil
}

// NewPipeline wires an export pipeline from the configuration. metrics may
// be nil.
func (c *Config) NewPipeline(store *tplstore.Store, painter *raster.Painter, logger *logrus.Logger, metrics *export.Metrics) (*export.Pipeline, error) {
	sheetOpts, err := c.SheetOptions()
	if err != nil {
		return nil, err
	}
	return export.New(store, painter,
		export.WithSheetOptions(sheetOpts...),
		export.WithManifest(c.Export.Manifest),
		export.WithLogger(logger),
		export.WithMetrics(metrics),
	), nil
}
