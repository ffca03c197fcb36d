package layout

import "testing"

func TestStationTier(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"", 0},
		{"京", 0},
		{"天津", 50},
		{"北京南", 90},
		{"上海虹桥", 150},
		{"乌鲁木齐南", 220},
		{"呼和浩特东站", 300},
		{"阿拉山口国际口岸", 300},
	}
	for _, tt := range tests {
		if got := StationTier(tt.name); got != tt.want {
			t.Errorf("StationTier(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestStationShiftHalvesDeparture(t *testing.T) {
	names := []string{"", "京", "天津", "北京南", "上海虹桥", "乌鲁木齐南", "呼和浩特东站"}
	prev := -1
	for _, n := range names {
		arr := StationShift(n, Arrival)
		dep := StationShift(n, Departure)
		if dep != -(arr / 2) {
			t.Errorf("%q: departure %d, arrival %d", n, dep, arr)
		}
		if arr < prev {
			t.Errorf("%q: tier %d decreased from %d", n, arr, prev)
		}
		prev = arr
	}
	if StationShift("", Departure) != 0 || StationShift("", Arrival) != 0 {
		t.Error("empty station must not move")
	}
}

func TestLabelTier(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"", 0},
		{"Tianjin", 0},
		{"Beijingnanzh", 0},          // 12
		{"Shanghaihongq", 20},        // 13
		{"Shijiazhuangbei", 20},      // 15
		{"Shijiazhuangbeix", 40},     // 16
		{"Wulumuqinanzhanxxxxx", 40}, // 20
		{"Wulumuqinanzhanxxxxxx", 60},
		{"Alashankouguojikouanzhan!", 60}, // 25
		{"Alashankouguojikouanzhan!!", 80},
	}
	for _, tt := range tests {
		if got := LabelTier(tt.label); got != tt.want {
			t.Errorf("LabelTier(%q) = %d, want %d", tt.label, got, tt.want)
		}
	}
	if LabelShift("Shanghaihongqiao", Departure) != -40 || LabelShift("Shanghaihongqiao", Arrival) != 40 {
		t.Error("label shift direction wrong")
	}
}

func TestPriceUnitLeft(t *testing.T) {
	tests := []struct {
		price string
		want  int
	}{
		{"54.5", 253},
		{"553.0", 150 + 30*4 + 15 - 2},
		{"1", 178},
		{".", 163},
		{"", 148},
	}
	for _, tt := range tests {
		if got := PriceUnitLeft(tt.price); got != tt.want {
			t.Errorf("PriceUnitLeft(%q) = %d, want %d", tt.price, got, tt.want)
		}
	}
}

func TestPriceUnitLeftFormula(t *testing.T) {
	for _, p := range []string{"0", "12.50", "1234.5", "免费", "¥99"} {
		want := 150 - 2
		for _, c := range p {
			if c == '.' {
				want += 15
			} else {
				want += 30
			}
		}
		if got := PriceUnitLeft(p); got != want {
			t.Errorf("PriceUnitLeft(%q) = %d, want %d", p, got, want)
		}
	}
}

func TestTranslateX(t *testing.T) {
	if TranslateX(0) != "" {
		t.Error("zero shift should produce no declaration")
	}
	if got := TranslateX(-45); got != "translateX(-45px)" {
		t.Errorf("TranslateX(-45) = %q", got)
	}
	if got := Left(253); got != "253px" {
		t.Errorf("Left(253) = %q", got)
	}
}
