// Package config loads the settings shared by the railpass binaries from
// a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sirupsen/logrus"
)

// Config is the full railpass configuration. Every field can be set in
// the YAML file or overridden from the environment.
type Config struct {
	Templates Templates `yaml:"templates"`
	Render    Render    `yaml:"render"`
	Export    Export    `yaml:"export"`
	Log       Log       `yaml:"log"`
	Metrics   Metrics   `yaml:"metrics"`
}

// Templates selects where ticket templates are loaded from.
type Templates struct {
	// Dir overrides the embedded templates with a directory on disk.
	Dir string `yaml:"dir" env:"RAILPASS_TEMPLATES_DIR"`
	// BaseURL fetches templates over HTTP instead. Dir wins if both are set.
	BaseURL   string `yaml:"base_url" env:"RAILPASS_TEMPLATES_URL" validate:"omitempty,url"`
	DefaultID string `yaml:"default_id" env:"RAILPASS_TEMPLATE_DEFAULT"`
}

// Render tunes ticket rasterization and previews.
type Render struct {
	FontFile     string  `yaml:"font_file" env:"RAILPASS_FONT_FILE"`
	PreviewScale float64 `yaml:"preview_scale" env:"RAILPASS_PREVIEW_SCALE" env-default:"0.15" validate:"gt=0,lte=1"`
	// DisableQR leaves the QR code off the ticket image.
	DisableQR bool `yaml:"disable_qr" env:"RAILPASS_DISABLE_QR"`
}

// Export sets the PDF sheet geometry and decorations. Lengths are in
// millimetres.
type Export struct {
	PageWidth  float64 `yaml:"page_width" env:"RAILPASS_PAGE_WIDTH" env-default:"210" validate:"gt=0"`
	PageHeight float64 `yaml:"page_height" env:"RAILPASS_PAGE_HEIGHT" env-default:"297" validate:"gt=0"`
	CellWidth  float64 `yaml:"cell_width" env:"RAILPASS_CELL_WIDTH" env-default:"86" validate:"gt=0"`
	CellHeight float64 `yaml:"cell_height" env:"RAILPASS_CELL_HEIGHT" env-default:"54" validate:"gt=0"`
	Gutter     float64 `yaml:"gutter" env:"RAILPASS_GUTTER" env-default:"4" validate:"gte=0"`
	CutMarks   bool    `yaml:"cut_marks" env:"RAILPASS_CUT_MARKS" env-default:"false"`
	Manifest   bool    `yaml:"manifest" env:"RAILPASS_MANIFEST" env-default:"false"`
	Stationery string  `yaml:"stationery" env:"RAILPASS_STATIONERY"`

	// Watermark is drawn across every ticket page when set. Zero style
	// fields keep the sheet defaults.
	Watermark         string  `yaml:"watermark" env:"RAILPASS_WATERMARK"`
	WatermarkColor    string  `yaml:"watermark_color" env:"RAILPASS_WATERMARK_COLOR" validate:"omitempty,hexcolor"`
	WatermarkFontSize float64 `yaml:"watermark_font_size" env:"RAILPASS_WATERMARK_FONT_SIZE" validate:"gte=0"`
	WatermarkOpacity  float64 `yaml:"watermark_opacity" env:"RAILPASS_WATERMARK_OPACITY" validate:"gte=0,lte=1"`
	WatermarkAngle    float64 `yaml:"watermark_angle" env:"RAILPASS_WATERMARK_ANGLE"`

	// PageLabels numbers the ticket pages. PageLabelFormat may use {page}
	// and {nb}.
	PageLabels        bool   `yaml:"page_labels" env:"RAILPASS_PAGE_LABELS" env-default:"false"`
	PageLabelFormat   string `yaml:"page_label_format" env:"RAILPASS_PAGE_LABEL_FORMAT"`
	PageLabelPosition string `yaml:"page_label_position" env:"RAILPASS_PAGE_LABEL_POSITION" env-default:"bottom-center" validate:"oneof=bottom-center bottom-left bottom-right top-left top-center top-right"`
}

// Log configures the logrus logger.
type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text" validate:"oneof=text json"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `yaml:"addr" env:"RAILPASS_METRICS_ADDR" validate:"omitempty,hostname_port"`
}

// Load reads path, applies environment overrides and validates the result.
// An empty path, or a file that does not exist, leaves only the
// environment and the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		err := cleanenv.ReadConfig(path, cfg)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			path = ""
		default:
			return nil, fmt.Errorf("config error: %w", err)
		}
	}
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// Logger builds a logger writing to w at the configured level and format.
func (l Log) Logger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	if strings.EqualFold(l.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// Usage writes the environment variables Load understands to w.
func Usage(w io.Writer) {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return
	}
	fmt.Fprintln(w, desc)
}

// DefaultPath is the config file the binaries read when none is given.
func DefaultPath() string {
	if p := os.Getenv("RAILPASS_CONFIG"); p != "" {
		return p
	}
	return "railpass.yaml"
}
