// Package railpass holds the ticket record model shared by the rendering,
// queueing and export packages, together with the sentinel errors they
// return and the identity-number redaction used on every rendered ticket.
//
// The tickets produced by this module are souvenirs. They are not valid for
// travel or reimbursement.
package railpass

import (
	"fmt"
	"time"
)

// Ticket is one train-ticket record. Every field is free text; nothing is
// validated beyond presence and type when imported from JSON.
type Ticket struct {
	TicketNumber     string `json:"ticketNumber"`
	DepartureStation string `json:"departureStation"`
	ArrivalStation   string `json:"arrivalStation"`
	TrainNumber      string `json:"trainNumber"`
	DepartureTime    string `json:"departureTime"`
	Date             string `json:"date"`
	SeatNumber       string `json:"seatNumber"`
	CarNumber        string `json:"carNumber"`
	Price            string `json:"price"`
	SeatType         string `json:"seatType"`
	PassengerName    string `json:"passengerName"`
	IDNumber         string `json:"idNumber"`

	// Latin-script station labels. Templates without label slots ignore them.
	DepartureLabel string `json:"departureLabel,omitempty"`
	ArrivalLabel   string `json:"arrivalLabel,omitempty"`

	// TemplateID selects the visual template. Empty means the store default.
	TemplateID string `json:"templateId,omitempty"`
}

// RequiredFields lists the JSON keys a serialized record must carry.
var RequiredFields = []string{
	"ticketNumber",
	"departureStation",
	"arrivalStation",
	"trainNumber",
	"departureTime",
	"date",
	"seatNumber",
	"carNumber",
	"price",
	"seatType",
	"passengerName",
	"idNumber",
}

// OptionalFields lists the JSON keys that are read when present.
var OptionalFields = []string{
	"departureLabel",
	"arrivalLabel",
	"templateId",
}

// Field returns the value stored under a JSON key, and false for unknown keys.
func (t Ticket) Field(key string) (string, bool) {
	if p := t.fieldPtr(key); p != nil {
		return *p, true
	}
	return "", false
}

// SetField stores v under a JSON key. Unknown keys are ignored and reported
// with false.
func (t *Ticket) SetField(key, v string) bool {
	p := t.fieldPtr(key)
	if p == nil {
		return false
	}
	*p = v
	return true
}

func (t *Ticket) fieldPtr(key string) *string {
	switch key {
	case "ticketNumber":
		return &t.TicketNumber
	case "departureStation":
		return &t.DepartureStation
	case "arrivalStation":
		return &t.ArrivalStation
	case "trainNumber":
		return &t.TrainNumber
	case "departureTime":
		return &t.DepartureTime
	case "date":
		return &t.Date
	case "seatNumber":
		return &t.SeatNumber
	case "carNumber":
		return &t.CarNumber
	case "price":
		return &t.Price
	case "seatType":
		return &t.SeatType
	case "passengerName":
		return &t.PassengerName
	case "idNumber":
		return &t.IDNumber
	case "departureLabel":
		return &t.DepartureLabel
	case "arrivalLabel":
		return &t.ArrivalLabel
	case "templateId":
		return &t.TemplateID
	}
	return nil
}

// HasRoute reports whether the record carries the minimum a ticket needs to
// be queued: a ticket number and both stations.
func (t Ticket) HasRoute() bool {
	return t.TicketNumber != "" && t.DepartureStation != "" && t.ArrivalStation != ""
}

// Route returns "departure-arrival".
func (t Ticket) Route() string {
	return t.DepartureStation + "-" + t.ArrivalStation
}

// Seat classes offered by the ticket form.
const (
	SeatSecondClass = "二等座"
	SeatFirstClass  = "一等座"
	SeatBusiness    = "商务座"
	SeatHard        = "硬座"
	SeatHardSleeper = "硬卧"
	SeatSoftSleeper = "软卧"
)

// SeatTypes lists the seat classes in form order.
var SeatTypes = []string{
	SeatSecondClass,
	SeatFirstClass,
	SeatBusiness,
	SeatHard,
	SeatHardSleeper,
	SeatSoftSleeper,
}

// IsKnownSeatType reports whether s is one of SeatTypes. Records with other
// values are still rendered as-is.
func IsKnownSeatType(s string) bool {
	for _, st := range SeatTypes {
		if st == s {
			return true
		}
	}
	return false
}

// DefaultTicket returns the sample record the form starts with.
func DefaultTicket() Ticket {
	return Ticket{
		TicketNumber:     "D010570",
		DepartureStation: "北京南",
		ArrivalStation:   "天津",
		TrainNumber:      "C2241",
		DepartureTime:    "11:44",
		Date:             "2024年06月22日",
		SeatNumber:       "04F",
		CarNumber:        "03",
		Price:            "54.5",
		SeatType:         SeatSecondClass,
		PassengerName:    "damesck",
		IDNumber:         "150***************",
	}
}

const dateLayout = "2006年01月02日"

// DateFromTime formats t the way the ticket prints service dates.
func DateFromTime(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses a service date in the printed format.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("railpass: parsing date %q: %w", s, err)
	}
	return t, nil
}
