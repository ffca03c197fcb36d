// Package record imports and exports ticket records as JSON.
//
// Validation is structural only: every required key must be present and
// hold a string. Values are accepted verbatim, so an impossible date or a
// non-numeric price still produces a record. Comments and trailing commas
// are tolerated in input.
package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/lvillar/railpass"
)

// Parse validates one JSON object and returns the record it describes.
// Unknown keys are ignored. Optional keys are read when they hold strings.
func Parse(data []byte) (railpass.Ticket, error) {
	var obj map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &obj); err != nil {
		return railpass.Ticket{}, railpass.NewError("parse", "", fmt.Errorf("%w: %w", railpass.ErrMalformedJSON, err))
	}
	if obj == nil {
		return railpass.Ticket{}, railpass.NewError("parse", "", fmt.Errorf("%w: not an object", railpass.ErrMalformedJSON))
	}
	return FromObject(obj)
}

// FromObject validates an already decoded JSON object.
func FromObject(obj map[string]any) (railpass.Ticket, error) {
	var t railpass.Ticket
	for _, key := range railpass.RequiredFields {
		v, ok := obj[key]
		if !ok {
			return railpass.Ticket{}, railpass.NewError("parse", key, railpass.ErrMissingField)
		}
		s, ok := v.(string)
		if !ok {
			return railpass.Ticket{}, railpass.NewError("parse", key, fmt.Errorf("%w: got %s", railpass.ErrWrongType, jsonType(v)))
		}
		t.SetField(key, s)
	}
	for _, key := range railpass.OptionalFields {
		if s, ok := obj[key].(string); ok {
			t.SetField(key, s)
		}
	}
	return t, nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// ParseBatch reads a JSON array of records, a single record, or JSON Lines
// with one record per line. The first invalid element aborts the batch; the
// error names its position, an array index or a line number.
func ParseBatch(data []byte) ([]railpass.Ticket, error) {
	clean := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(clean) == 0 {
		return nil, nil
	}
	if clean[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(clean, &items); err != nil {
			return nil, railpass.NewError("batch", "", fmt.Errorf("%w: %w", railpass.ErrMalformedJSON, err))
		}
		out := make([]railpass.Ticket, 0, len(items))
		for i, item := range items {
			t, err := Parse(item)
			if err != nil {
				return nil, railpass.NewError("batch", fmt.Sprintf("[%d]", i), err)
			}
			out = append(out, t)
		}
		return out, nil
	}
	if json.Valid(clean) {
		t, err := Parse(clean)
		if err != nil {
			return nil, err
		}
		return []railpass.Ticket{t}, nil
	}

	var out []railpass.Ticket
	sc := bufio.NewScanner(bytes.NewReader(clean))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		t, err := Parse(text)
		if err != nil {
			return nil, railpass.NewError("batch", fmt.Sprintf("line %d", line), err)
		}
		out = append(out, t)
	}
	if err := sc.Err(); err != nil {
		return nil, railpass.NewError("batch", "", fmt.Errorf("%w: %w", railpass.ErrMalformedJSON, err))
	}
	return out, nil
}

// Marshal encodes t as indented JSON, the clipboard export format.
func Marshal(t railpass.Ticket) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalBatch encodes tickets as an indented JSON array.
func MarshalBatch(tickets []railpass.Ticket) ([]byte, error) {
	if tickets == nil {
		tickets = []railpass.Ticket{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tickets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Template returns a record whose fields hold human-readable placeholders.
func Template() railpass.Ticket {
	return railpass.Ticket{
		TicketNumber:     "请输入票号",
		DepartureStation: "如：北京南",
		ArrivalStation:   "如：上海虹桥",
		TrainNumber:      "如：G1",
		DepartureTime:    "如：09:00",
		Date:             "如：2024年06月22日",
		SeatNumber:       "如：01A",
		CarNumber:        "如：01",
		Price:            "如：553.0",
		SeatType:         "如：" + railpass.SeatSecondClass,
		PassengerName:    "请输入乘客姓名",
		IDNumber:         "请输入身份证号",
	}
}

// TemplateJSON returns Template encoded by Marshal.
func TemplateJSON() []byte {
	data, err := Marshal(Template())
	if err != nil {
		// A struct of strings always encodes.
		panic(err)
	}
	return data
}

// IsValidation reports whether err is one of the structural validation
// failures Parse returns.
func IsValidation(err error) bool {
	return errors.Is(err, railpass.ErrMalformedJSON) ||
		errors.Is(err, railpass.ErrMissingField) ||
		errors.Is(err, railpass.ErrWrongType)
}
