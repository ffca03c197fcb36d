package railpass

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestRedactID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"12345", "12345"},
		{"123456", "123456"},
		{"1234567", "1234567"},
		{"12345678", "123*5678"},
		{"150301199001011234", "150***********1234"},
		{"11010519491231002X", "110***********002X"},
	}
	for _, tt := range tests {
		if got := RedactID(tt.in); got != tt.want {
			t.Errorf("RedactID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactIDProperties(t *testing.T) {
	inputs := []string{
		"abcdef", "abcdefg", "abcdefgh", "0123456789",
		"150301199001011234", "身份证号码一二三四五六",
	}
	for _, in := range inputs {
		got := RedactID(in)
		r, g := []rune(in), []rune(got)
		if len(g) != len(r) {
			t.Errorf("RedactID(%q) changed length: %d -> %d", in, len(r), len(g))
			continue
		}
		if string(g[:3]) != string(r[:3]) {
			t.Errorf("RedactID(%q) prefix = %q", in, string(g[:3]))
		}
		if string(g[len(g)-4:]) != string(r[len(r)-4:]) {
			t.Errorf("RedactID(%q) suffix = %q", in, string(g[len(g)-4:]))
		}
		if len(r) > 7 {
			mid := string(g[3 : len(g)-4])
			if strings.Trim(mid, "*") != "" {
				t.Errorf("RedactID(%q) middle = %q, want all '*'", in, mid)
			}
		}
	}
}

func TestTicketFieldRoundTrip(t *testing.T) {
	var tk Ticket
	keys := append(append([]string{}, RequiredFields...), OptionalFields...)
	for i, k := range keys {
		if !tk.SetField(k, k+string(rune('a'+i))) {
			t.Fatalf("SetField(%q) reported unknown key", k)
		}
	}
	for i, k := range keys {
		v, ok := tk.Field(k)
		if !ok || v != k+string(rune('a'+i)) {
			t.Errorf("Field(%q) = %q, %v", k, v, ok)
		}
	}
	if tk.SetField("bogus", "x") {
		t.Error("SetField accepted unknown key")
	}
	if _, ok := tk.Field("bogus"); ok {
		t.Error("Field accepted unknown key")
	}
}

func TestHasRoute(t *testing.T) {
	tk := DefaultTicket()
	if !tk.HasRoute() {
		t.Fatal("default ticket should have a route")
	}
	tk.ArrivalStation = ""
	if tk.HasRoute() {
		t.Fatal("ticket without arrival should not have a route")
	}
}

func TestDateRoundTrip(t *testing.T) {
	d := time.Date(2024, 6, 22, 0, 0, 0, 0, time.UTC)
	s := DateFromTime(d)
	if s != "2024年06月22日" {
		t.Fatalf("DateFromTime = %q", s)
	}
	back, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !back.Equal(d) {
		t.Fatalf("ParseDate = %v, want %v", back, d)
	}
	if _, err := ParseDate("2024-06-22"); err == nil {
		t.Fatal("expected error for ISO date")
	}
}

func TestErrorWrapping(t *testing.T) {
	err := NewError("parse", "price", ErrWrongType)
	if !errors.Is(err, ErrWrongType) {
		t.Fatal("errors.Is failed through Error")
	}
	if got := err.Error(); got != "railpass.parse: price: railpass: wrong type" {
		t.Fatalf("Error() = %q", got)
	}
	bare := &Error{Op: "export"}
	if got := bare.Error(); got != "railpass.export: unknown error" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestSeatTypes(t *testing.T) {
	for _, st := range SeatTypes {
		if !IsKnownSeatType(st) {
			t.Errorf("%q not known", st)
		}
		if !utf8.ValidString(st) {
			t.Errorf("%q not valid UTF-8", st)
		}
	}
	if IsKnownSeatType("无座") {
		t.Error("unexpected known seat type")
	}
}
