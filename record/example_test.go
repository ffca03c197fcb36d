package record_test

import (
	"errors"
	"fmt"

	"github.com/lvillar/railpass"
	"github.com/lvillar/railpass/record"
)

func ExampleParse() {
	_, err := record.Parse([]byte(`{"ticketNumber": "D010570"}`))
	fmt.Println(errors.Is(err, railpass.ErrMissingField))
	fmt.Println(err)
	// Output:
	// true
	// railpass.parse: departureStation: railpass: missing field
}
