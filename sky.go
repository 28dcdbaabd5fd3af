package main

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sunnyside/weather"
)

const (
	skyCharsW = 44
	skyCharsH = 15
	skyPixW   = skyCharsW
	skyPixH   = skyCharsH * 2
)

// palette indexes: 1-3 sun from core outwards, 4-5 cloud face and shadow,
// 6 precipitation, 7 accent (rays, flakes, bolt), 8 haze
type palette struct {
	fg [9]lipgloss.Style
	bg [9][9]lipgloss.Style
}

var paletteColors = map[string][]string{
	"clear":        {"", "230", "227", "214", "255", "250", "75", "220", "187"},
	"clouds":       {"", "230", "228", "221", "255", "247", "75", "252", "244"},
	"rain":         {"", "230", "228", "221", "250", "241", "39", "81", "244"},
	"drizzle":      {"", "230", "228", "221", "252", "244", "116", "152", "245"},
	"snow":         {"", "231", "230", "224", "255", "250", "231", "195", "252"},
	"thunderstorm": {"", "230", "228", "221", "245", "237", "69", "226", "240"},
	"other":        {"", "224", "217", "181", "252", "245", "110", "187", "138"},
}

// Pre-computed styles per condition to avoid allocations in the render loop.
var palettes = map[string]*palette{}

func init() {
	for name, colors := range paletteColors {
		p := &palette{}
		for i, c := range colors {
			if c != "" {
				p.fg[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
			}
		}
		for i, fg := range colors {
			for j, bg := range colors {
				if fg != "" && bg != "" {
					p.bg[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg))
				}
			}
		}
		palettes[name] = p
	}
}

func paletteFor(a weather.Asset) *palette {
	if p, ok := palettes[a.Name]; ok {
		return p
	}
	return palettes["other"]
}

// sky is a canvas of half-block pixels holding palette indexes; 0 is empty.
type sky [skyPixH][skyPixW]int

func (s *sky) set(x, y, c int) {
	if x >= 0 && x < skyPixW && y >= 0 && y < skyPixH {
		s[y][x] = c
	}
}

func (s *sky) ellipse(cx, cy, rx, ry float64, c int) {
	for y := 0; y < skyPixH; y++ {
		for x := 0; x < skyPixW; x++ {
			dx := (float64(x) - cx) / rx
			dy := (float64(y) - cy) / ry
			if dx*dx+dy*dy <= 1 {
				s[y][x] = c
			}
		}
	}
}

func (s *sky) line(x0, y0, x1, y1 float64, c int) {
	steps := int(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))*2) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		s.set(int(math.Round(x0+(x1-x0)*t)), int(math.Round(y0+(y1-y0)*t)), c)
	}
}

// sun draws a shaded disc of radius r with the core offset towards the
// upper left.
func (s *sky) sun(cx, cy, r float64) {
	s.ellipse(cx, cy, r, r, 3)
	s.ellipse(cx-r*0.1, cy-r*0.1, r*0.75, r*0.75, 2)
	s.ellipse(cx-r*0.2, cy-r*0.2, r*0.4, r*0.4, 1)
}

func (s *sky) rays(cx, cy, r float64, frame int) {
	for k := 0; k < 12; k++ {
		angle := float64(k)*math.Pi/6 + float64(frame)*0.02
		outer := r + 4 + float64((k+frame/8)%2)
		for d := r + 2; d < outer; d += 0.5 {
			s.set(int(cx+math.Cos(angle)*d), int(cy+math.Sin(angle)*d), 7)
		}
	}
}

var cloudPuffs = []struct{ ox, oy, rx, ry float64 }{
	{-8, 1.5, 5.5, 3.5},
	{-3, -2, 6, 5},
	{4, -1, 6, 4.5},
	{9, 1.5, 4.5, 3},
	{0, 2.5, 12, 2.5},
}

// cloud draws a puffy cloud centred on cx, cy and returns the row just
// below its base.
func (s *sky) cloud(cx, cy, scale float64, face, shadow int) int {
	for _, p := range cloudPuffs {
		s.ellipse(cx+p.ox*scale, cy+p.oy*scale+1, p.rx*scale, p.ry*scale, shadow)
	}
	for _, p := range cloudPuffs {
		s.ellipse(cx+p.ox*scale, cy+p.oy*scale, p.rx*scale, p.ry*scale, face)
	}
	return int(cy + 6*scale)
}

// streaks draws slanted falling lines every spacing columns between left
// and right, from top to the bottom edge.
func (s *sky) streaks(left, right, top, frame, spacing, length, speed int) {
	span := skyPixH - top
	if span <= 0 {
		return
	}
	for i, x := 0, left; x <= right; i, x = i+1, x+spacing {
		head := (frame*speed + i*7) % span
		for j := 0; j < length; j++ {
			y := (head + j) % span
			c := 6
			if j == length-1 {
				c = 7
			}
			s.set(x-y/5, top+y, c)
		}
	}
}

func (s *sky) flakes(left, right, top, frame int) {
	span := skyPixH - top
	if span <= 0 {
		return
	}
	for i, x := 0, left; x <= right; i, x = i+1, x+4 {
		sway := int(math.Round(math.Sin(float64(frame)*0.15 + float64(i))))
		c := 6 + i%2
		s.set(x+sway, top+(frame/2+i*5)%span, c)
		s.set(x+2-sway, top+(frame/2+i*5+span/2)%span, c)
	}
}

func (s *sky) bolt(x, top float64) {
	pts := [][2]float64{{x, top}, {x - 3, top + 5}, {x + 1, top + 5}, {x - 4, top + 12}}
	for i := 1; i < len(pts); i++ {
		s.line(pts[i-1][0], pts[i-1][1], pts[i][0], pts[i][1], 7)
	}
}

func (s *sky) haze(frame int) {
	for row, y := 0, 6; y < skyPixH-2; row, y = row+1, y+4 {
		shift := int(math.Sin(float64(frame)*0.05+float64(row)) * 4)
		left := 4 + shift + row%2*3
		right := skyPixW - 4 + shift - (row+1)%2*5
		c := 8
		if row%2 == 1 {
			c = 5
		}
		for x := left; x < right; x++ {
			s.set(x, y, c)
			if row%2 == 0 {
				s.set(x, y+1, c)
			}
		}
	}
}

// renderCondition draws the backdrop for asset in half-block pixels. While
// the weatherman speaks the main shape swells with the voice level.
func renderCondition(frame int, level float64, asset weather.Asset, narrating bool) string {
	var swell float64
	if narrating {
		swell = math.Min(level*10, 1) + math.Sin(float64(frame)*0.1)*0.15
	}
	drift := math.Sin(float64(frame)*0.03) * 3
	cx := float64(skyPixW) / 2

	var s sky
	switch asset.Name {
	case weather.Clear.Name:
		r := 7 + swell*1.5
		s.sun(cx, 15, r)
		s.rays(cx, 15, r, frame)
	case weather.Clouds.Name:
		s.sun(31, 8, 5)
		s.cloud(9+drift/2, 5, 0.5, 5, 5)
		s.cloud(cx+drift, 16, 1+swell*0.1, 4, 5)
	case weather.Rain.Name:
		base := s.cloud(cx+drift/2, 8, 1+swell*0.1, 4, 5)
		s.streaks(10, 38, base, frame, 3, 3, 2)
	case weather.Drizzle.Name:
		base := s.cloud(cx+drift/2, 8, 1+swell*0.1, 4, 5)
		s.streaks(11, 37, base, frame, 5, 1, 1)
	case weather.Snow.Name:
		base := s.cloud(cx+drift/2, 8, 1+swell*0.1, 4, 5)
		s.flakes(8, 36, base, frame)
	case weather.Thunderstorm.Name:
		base := s.cloud(cx+drift/2, 8, 1+swell*0.1, 5, 4)
		s.streaks(8, 40, base, frame, 4, 4, 3)
		if frame%40 < 4 || level > 0.05 {
			s.bolt(cx+drift/2+2, float64(base-1))
		}
	default:
		s.sun(cx, 10, 5+swell)
		s.haze(frame)
	}

	p := paletteFor(asset)

	var result strings.Builder
	for row := 0; row < skyCharsH; row++ {
		for col := 0; col < skyCharsW; col++ {
			top := s[row*2][col]
			bot := s[row*2+1][col]
			switch {
			case top == 0 && bot == 0:
				result.WriteString(" ")
			case top == bot:
				result.WriteString(p.fg[top].Render("█"))
			case bot == 0:
				result.WriteString(p.fg[top].Render("▀"))
			case top == 0:
				result.WriteString(p.fg[bot].Render("▄"))
			default:
				result.WriteString(p.bg[top][bot].Render("▀"))
			}
		}
		result.WriteString("\n")
	}
	return result.String()
}
