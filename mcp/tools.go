package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/lvillar/railpass"
	"github.com/lvillar/railpass/export"
	"github.com/lvillar/railpass/queue"
	"github.com/lvillar/railpass/raster"
	"github.com/lvillar/railpass/record"
	"github.com/lvillar/railpass/render"
	"github.com/lvillar/railpass/tplstore"
)

// Service holds what the tools operate on. One Service backs one client
// session.
type Service struct {
	Store        *tplstore.Store
	Painter      *raster.Painter
	Pipeline     *export.Pipeline
	Session      *queue.Session
	PreviewScale float64
	Logger       *logrus.Logger
}

func (svc *Service) logger() *logrus.Logger {
	if svc.Logger != nil {
		return svc.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Register adds all railpass tools and resources to the server.
func (svc *Service) Register(s *Server) {
	for _, t := range svc.tools() {
		s.AddTool(t)
	}
	for _, r := range svc.resources() {
		s.AddResource(r)
	}
}

func (svc *Service) tools() []Tool {
	return []Tool{
		{
			Name:        "list_templates",
			Description: "List the registered ticket templates with their ids and names. The default template is marked.",
			InputSchema: objectSchema(nil),
			Handler:     svc.handleListTemplates,
		},
		{
			Name:        "json_template",
			Description: "Return a JSON record skeleton with every field and a placeholder value, for filling in by hand.",
			InputSchema: objectSchema(nil),
			Handler:     svc.handleJSONTemplate,
		},
		{
			Name:        "validate_record",
			Description: "Check that a ticket record has every required field as a string. Values are not checked for plausibility.",
			InputSchema: objectSchema(map[string]any{"record": recordSchema}, "record"),
			Handler:     svc.handleValidateRecord,
		},
		{
			Name:        "redact_id",
			Description: "Mask the middle of an identity number the way it is printed on a ticket: first 3 and last 4 characters kept.",
			InputSchema: objectSchema(map[string]any{
				"id": stringProp("Identity number"),
			}, "id"),
			Handler: svc.handleRedactID,
		},
		{
			Name:        "render_ticket",
			Description: "Fill a template with a ticket record and return the resulting HTML markup.",
			InputSchema: objectSchema(map[string]any{"record": recordSchema}, "record"),
			Handler:     svc.handleRenderTicket,
		},
		{
			Name:        "preview_ticket",
			Description: "Rasterize a ticket record and return a scaled PNG preview. With outputPath the full-size PNG is also written to disk.",
			InputSchema: objectSchema(map[string]any{
				"record":     recordSchema,
				"scale":      map[string]any{"type": "number", "description": "Preview scale factor, greater than 0 and at most 1; default 0.15"},
				"outputPath": stringProp("Optional file path for the full-size PNG"),
			}, "record"),
			Handler: svc.handlePreviewTicket,
		},
		{
			Name:        "queue_add",
			Description: fmt.Sprintf("Add a ticket record to the export queue. The queue holds at most %d tickets; ticket number and both stations are required.", queue.MaxSize),
			InputSchema: objectSchema(map[string]any{"record": recordSchema}, "record"),
			Handler:     svc.handleQueueAdd,
		},
		{
			Name:        "queue_remove",
			Description: "Remove one ticket from the export queue by its id.",
			InputSchema: objectSchema(map[string]any{
				"id": stringProp("Queue entry id, as returned by queue_add"),
			}, "id"),
			Handler: svc.handleQueueRemove,
		},
		{
			Name:        "queue_list",
			Description: "List the queued tickets in insertion order.",
			InputSchema: objectSchema(nil),
			Handler:     svc.handleQueueList,
		},
		{
			Name:        "queue_clear",
			Description: "Remove every ticket from the export queue.",
			InputSchema: objectSchema(nil),
			Handler:     svc.handleQueueClear,
		},
		{
			Name:        "export_queue",
			Description: "Export the queued tickets as png (one ticket), zip (one PNG per ticket) or pdf (tickets laid out on A4 sheets). Returns base64 unless outputPath is given.",
			InputSchema: objectSchema(map[string]any{
				"format": map[string]any{
					"type":        "string",
					"enum":        []string{"png", "zip", "pdf"},
					"description": "Output format, default pdf",
				},
				"outputPath": stringProp("Optional file or directory path to save the export"),
			}),
			Handler: svc.handleExportQueue,
		},
	}
}

var recordSchema = map[string]any{
	"description": "Ticket record: a JSON object, or a string holding one",
	"oneOf": []any{
		map[string]any{"type": "object"},
		map[string]any{"type": "string"},
	},
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// recordArg decodes the "record" argument, given either as an object or as
// JSON text.
func recordArg(args map[string]any) (railpass.Ticket, error) {
	switch v := args["record"].(type) {
	case map[string]any:
		return record.FromObject(v)
	case string:
		return record.Parse([]byte(v))
	case nil:
		return railpass.Ticket{}, fmt.Errorf("missing 'record' argument")
	default:
		return railpass.Ticket{}, fmt.Errorf("'record' must be an object or a JSON string")
	}
}

func jsonResult(v any) (ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ToolResult{}, fmt.Errorf("encoding result: %w", err)
	}
	return ToolResult{Content: []ContentBlock{{Type: "text", Text: string(data)}}}, nil
}

type templateInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

func (svc *Service) handleListTemplates(ctx context.Context, args map[string]any) (ToolResult, error) {
	list := svc.Store.List()
	out := make([]templateInfo, len(list))
	for i, cfg := range list {
		out[i] = templateInfo{
			ID:          cfg.ID,
			Name:        cfg.Name,
			Description: cfg.Description,
			Default:     cfg.ID == svc.Store.DefaultID(),
		}
	}
	return jsonResult(out)
}

func (svc *Service) handleJSONTemplate(ctx context.Context, args map[string]any) (ToolResult, error) {
	return ToolResult{Content: []ContentBlock{{Type: "text", Text: string(record.TemplateJSON())}}}, nil
}

func (svc *Service) handleValidateRecord(ctx context.Context, args map[string]any) (ToolResult, error) {
	t, err := recordArg(args)
	if err != nil {
		if record.IsValidation(err) {
			// A failed validation is a result, not a tool failure.
			return ToolResult{
				Content: []ContentBlock{{Type: "text", Text: "Invalid record: " + err.Error()}},
				IsError: true,
			}, nil
		}
		return ToolResult{}, err
	}
	return TextResult("Valid record: %s %s, %s", t.TrainNumber, t.Route(), t.Date), nil
}

func (svc *Service) handleRedactID(ctx context.Context, args map[string]any) (ToolResult, error) {
	id, ok := args["id"].(string)
	if !ok {
		return ToolResult{}, fmt.Errorf("missing 'id' argument")
	}
	return TextResult("%s", railpass.RedactID(id)), nil
}

func (svc *Service) handleRenderTicket(ctx context.Context, args map[string]any) (ToolResult, error) {
	t, err := recordArg(args)
	if err != nil {
		return ToolResult{}, err
	}
	res, err := render.NewRenderer(svc.Store).Render(ctx, t)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Content: []ContentBlock{{
		Type:     "text",
		MIMEType: "text/html",
		Text:     res.Markup,
	}}}, nil
}

func (svc *Service) handlePreviewTicket(ctx context.Context, args map[string]any) (ToolResult, error) {
	t, err := recordArg(args)
	if err != nil {
		return ToolResult{}, err
	}
	scale := svc.PreviewScale
	if v, ok := args["scale"]; ok {
		f, ok := v.(float64)
		if !ok || !raster.ValidPreviewScale(f) {
			return ToolResult{}, fmt.Errorf("'scale' must be a number greater than 0 and at most 1")
		}
		scale = f
	}
	res, err := render.NewRenderer(svc.Store).Render(ctx, t)
	if err != nil {
		return ToolResult{}, err
	}
	img, err := svc.Painter.Paint(ctx, res.Template, res.Markup)
	if err != nil {
		return ToolResult{}, err
	}

	var content []ContentBlock
	if outputPath, ok := args["outputPath"].(string); ok && outputPath != "" {
		var full bytes.Buffer
		if err := raster.EncodePNG(&full, img); err != nil {
			return ToolResult{}, err
		}
		if err := os.WriteFile(outputPath, full.Bytes(), 0o644); err != nil {
			return ToolResult{}, fmt.Errorf("writing file: %w", err)
		}
		content = append(content, ContentBlock{
			Type: "text",
			Text: fmt.Sprintf("Ticket written to %s (%dx%d, %d bytes)", outputPath, img.Bounds().Dx(), img.Bounds().Dy(), full.Len()),
		})
	}

	preview, err := raster.Preview(img, scale)
	if err != nil {
		return ToolResult{}, err
	}
	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf, preview); err != nil {
		return ToolResult{}, err
	}
	content = append(content, ContentBlock{
		Type:     "image",
		MIMEType: "image/png",
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	return ToolResult{Content: content}, nil
}

func (svc *Service) handleQueueAdd(ctx context.Context, args map[string]any) (ToolResult, error) {
	t, err := recordArg(args)
	if err != nil {
		return ToolResult{}, err
	}
	e, err := svc.Session.Add(t)
	switch {
	case errors.Is(err, railpass.ErrQueueFull):
		return ToolResult{}, errors.New(svc.Session.State().Notice)
	case errors.Is(err, queue.ErrIncomplete):
		return ToolResult{}, fmt.Errorf("ticketNumber, departureStation and arrivalStation are required to queue a ticket")
	case err != nil:
		return ToolResult{}, err
	}
	n := svc.Session.State().Queue.Len()
	return TextResult("Queued %s (%s), %d/%d", e.ID, e.Ticket.Route(), n, queue.MaxSize), nil
}

func (svc *Service) handleQueueRemove(ctx context.Context, args map[string]any) (ToolResult, error) {
	id, ok := args["id"].(string)
	if !ok {
		return ToolResult{}, fmt.Errorf("missing 'id' argument")
	}
	if !svc.Session.Remove(id) {
		return ToolResult{}, fmt.Errorf("no queued ticket with id %q", id)
	}
	return TextResult("Removed %s, %d left", id, svc.Session.State().Queue.Len()), nil
}

func (svc *Service) handleQueueList(ctx context.Context, args map[string]any) (ToolResult, error) {
	return jsonResult(svc.Session.State().Queue.Entries())
}

func (svc *Service) handleQueueClear(ctx context.Context, args map[string]any) (ToolResult, error) {
	n := svc.Session.State().Queue.Len()
	svc.Session.Clear()
	return TextResult("Cleared %d tickets", n), nil
}

func (svc *Service) handleExportQueue(ctx context.Context, args map[string]any) (ToolResult, error) {
	format := export.FormatPDF
	if v, ok := args["format"].(string); ok && v != "" {
		f, err := export.ParseFormat(v)
		if err != nil {
			return ToolResult{}, err
		}
		format = f
	}

	art, err := svc.Pipeline.Export(ctx, svc.Session.Tickets(), format)
	if err != nil {
		return ToolResult{}, err
	}
	svc.logger().WithFields(logrus.Fields{
		"file":    art.Name,
		"tickets": art.Tickets,
		"bytes":   len(art.Data),
	}).Info("queue exported")

	if outputPath, ok := args["outputPath"].(string); ok && outputPath != "" {
		if fi, err := os.Stat(outputPath); err == nil && fi.IsDir() {
			outputPath = filepath.Join(outputPath, art.Name)
		}
		if err := os.WriteFile(outputPath, art.Data, 0o644); err != nil {
			return ToolResult{}, fmt.Errorf("writing file: %w", err)
		}
		return TextResult("Exported %d tickets to %s (%d bytes)", art.Tickets, outputPath, len(art.Data)), nil
	}

	encoded := base64.StdEncoding.EncodeToString(art.Data)
	return TextResult("Exported %d tickets as %s (%s, %d bytes). Base64 data:\n%s", art.Tickets, art.Name, art.MediaType, len(art.Data), encoded), nil
}
