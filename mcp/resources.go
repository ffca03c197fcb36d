package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lvillar/railpass/render"
	"github.com/lvillar/railpass/tplstore"
)

// resourceKey strips the query from uri, so template://markup?id=red
// selects the template://markup resource.
func resourceKey(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}

// queryParam returns the named query parameter of uri.
func queryParam(uri, name string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Query().Get(name)
}

func (svc *Service) resources() []Resource {
	return []Resource{
		{
			URI:         "template://registry",
			Name:        "Template Registry",
			Description: "The registered templates and their canvas geometry, as YAML.",
			MIMEType:    "application/yaml",
			Handler:     svc.handleRegistryResource,
		},
		{
			URI:         "template://markup",
			Name:        "Template Markup",
			Description: "The unfilled HTML of a template with asset references resolved. Select the template with a query parameter: template://markup?id=red. Without one the default template is returned.",
			MIMEType:    "text/html",
			Handler:     svc.handleMarkupResource,
		},
		{
			URI:         "queue://entries",
			Name:        "Export Queue",
			Description: "The tickets waiting for export, in insertion order.",
			MIMEType:    "application/json",
			Handler:     svc.handleQueueResource,
		},
	}
}

func (svc *Service) handleRegistryResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	reg := tplstore.Registry{
		Default:   svc.Store.DefaultID(),
		Templates: svc.Store.List(),
	}
	data, err := yaml.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("encoding registry: %w", err)
	}
	return []ResourceContent{{
		URI:      uri,
		MIMEType: "application/yaml",
		Text:     string(data),
	}}, nil
}

func (svc *Service) handleMarkupResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	id := queryParam(uri, "id")
	if id != "" {
		// Resolve would fall back to the default; a resource read should not.
		if _, err := svc.Store.Lookup(id); err != nil {
			return nil, err
		}
	}
	tpl, err := svc.Store.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := render.Parse(tpl.Markup)
	if err != nil {
		return nil, err
	}
	doc.RewriteAssets(tpl.AssetBase)
	markup, err := doc.String()
	if err != nil {
		return nil, err
	}
	return []ResourceContent{{
		URI:      uri,
		MIMEType: "text/html",
		Text:     markup,
	}}, nil
}

func (svc *Service) handleQueueResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	data, err := json.MarshalIndent(svc.Session.State().Queue.Entries(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding queue: %w", err)
	}
	return []ResourceContent{{
		URI:      uri,
		MIMEType: "application/json",
		Text:     string(data),
	}}, nil
}
