package weather

import "strings"

// Asset is the backdrop shown for a weather condition.
type Asset struct {
	Name  string
	Glyph string
	Color string // lipgloss colour
}

var (
	Clear        = Asset{Name: "clear", Glyph: "☀", Color: "220"}
	Clouds       = Asset{Name: "clouds", Glyph: "☁", Color: "250"}
	Rain         = Asset{Name: "rain", Glyph: "☂", Color: "39"}
	Snow         = Asset{Name: "snow", Glyph: "❄", Color: "195"}
	Thunderstorm = Asset{Name: "thunderstorm", Glyph: "⚡", Color: "129"}
	Drizzle      = Asset{Name: "drizzle", Glyph: "☔", Color: "81"}
	Other        = Asset{Name: "other", Glyph: "◌", Color: "245"}
)

// assetRules are checked in order; the first keyword found wins.
var assetRules = []struct {
	keyword string
	asset   Asset
}{
	{"clear", Clear},
	{"cloud", Clouds},
	{"rain", Rain},
	{"snow", Snow},
	{"thunderstorm", Thunderstorm},
	{"drizzle", Drizzle},
}

// AssetFor picks the backdrop for a condition description or a full report.
func AssetFor(text string) Asset {
	lower := strings.ToLower(text)
	for _, r := range assetRules {
		if strings.Contains(lower, r.keyword) {
			return r.asset
		}
	}
	return Other
}

// Weatherman is the presenter glyph: mouth open while voiced.
func Weatherman(voiced bool) string {
	if voiced {
		return "(ᵔ◡ᵔ)🗩"
	}
	return "(ᵔ_ᵔ) "
}
