package render_test

import (
	"fmt"

	"github.com/lvillar/railpass"
	"github.com/lvillar/railpass/render"
)

func ExampleRenderMarkup() {
	markup := `<div class="departure-container"><div class="departure-station"></div></div>` +
		`<div class="serial-number"></div>`

	out, err := render.RenderMarkup(markup, "", railpass.Ticket{
		DepartureStation: "北京南",
		IDNumber:         "150102199001011234",
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(out)
	// Output:
	// <div class="departure-container" style="transform: translateX(-45px);"><div class="departure-station">北京南</div></div><div class="serial-number">150***********1234</div>
}
