package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sunnyside/typeahead"
	"sunnyside/weather"
	"sunnyside/widget"
)

// TUI message types
type ViewMsg struct{ View widget.View }
type SubmitDoneMsg struct{ Err error }
type CopyDoneMsg struct{ Err error }
type tickMsg time.Time

type tuiModel struct {
	ctx        context.Context
	w          *widget.Widget
	input      textinput.Model
	view       widget.View
	frame      int
	level      float64
	width      int
	height     int
	deviceLine string
	notice     string // transient status, e.g. "[✓ copied]"
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

func newTUIModel(ctx context.Context, w *widget.Widget, deviceLine string) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "Enter city name"
	ti.Prompt = "City: "
	ti.CharLimit = 80
	ti.Width = 32
	ti.Focus()
	return tuiModel{ctx: ctx, w: w, input: ti, view: w.View(), deviceLine: deviceLine}
}

func NewTUIProgram(ctx context.Context, w *widget.Widget, deviceLine string) *tea.Program {
	return tea.NewProgram(newTUIModel(ctx, w, deviceLine), tea.WithAltScreen(), tea.WithContext(ctx))
}

// viewPump forwards widget views to the program. The widget renders with its
// lock held, possibly from inside Update, so sends happen on a separate
// goroutine and only the latest view is delivered.
type viewPump struct {
	mu     sync.Mutex
	latest widget.View
	kick   chan struct{}
}

func newViewPump(ctx context.Context) *viewPump {
	vp := &viewPump{kick: make(chan struct{}, 1)}
	go vp.run(ctx)
	return vp
}

func (vp *viewPump) Render(v widget.View) {
	vp.mu.Lock()
	vp.latest = v
	vp.mu.Unlock()
	select {
	case vp.kick <- struct{}{}:
	default:
	}
}

func (vp *viewPump) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-vp.kick:
		}
		vp.mu.Lock()
		v := vp.latest
		vp.mu.Unlock()
		tuiSend(ViewMsg{View: v})
	}
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(tuiTick(), textinput.Blink)
}

func (m tuiModel) submit() tea.Cmd {
	w, ctx := m.w, m.ctx
	return func() tea.Msg {
		return SubmitDoneMsg{Err: w.Submit(ctx)}
	}
}

func (m tuiModel) copyReport() tea.Cmd {
	w := m.w
	return func() tea.Msg {
		return CopyDoneMsg{Err: w.Copy()}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+y":
			return m, m.copyReport()
		case "down":
			m.w.Key(typeahead.KeyDown)
			return m, nil
		case "up":
			m.w.Key(typeahead.KeyUp)
			return m, nil
		case "esc":
			if !m.w.Key(typeahead.KeyEscape) {
				m.w.StopNarration()
			}
			return m, nil
		case "enter":
			if m.w.Key(typeahead.KeyEnter) {
				// a suggestion was picked; mirror it into the field
				m.input.SetValue(m.w.View().City)
				m.input.CursorEnd()
				return m, nil
			}
			m.notice = ""
			return m, m.submit()
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if v := m.input.Value(); v != before {
			m.w.Input(v)
		}
		return m, cmd

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case ViewMsg:
		m.view = msg.View
		if m.view.Voiced {
			m.level = m.level*0.6 + m.view.Level*0.4
		} else {
			m.level *= 0.6
		}
		return m, nil

	case SubmitDoneMsg:
		return m, nil

	case CopyDoneMsg:
		switch {
		case msg.Err == nil:
			m.notice = "[✓ copied]"
		case errors.Is(msg.Err, widget.ErrNothingToCopy):
			m.notice = "[nothing to copy]"
		default:
			m.notice = "[copy failed]"
		}
		return m, nil

	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const sunWidth = 45
	v := m.view

	sun := renderCondition(m.frame, m.level, v.Asset, v.Narrating)

	var infoLines []string
	presenter := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	if v.Voiced {
		presenter = presenter.Bold(true).Foreground(lipgloss.Color("220"))
	}
	infoLines = append(infoLines, "  "+presenter.Render(weather.Weatherman(v.Voiced)))

	if v.Narrating {
		infoLines = append(infoLines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Render(fmt.Sprintf("● ON AIR %s", levelBar(v.Level, 12))))
	} else {
		infoLines = append(infoLines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render("○ STANDBY"))
	}

	if m.deviceLine != "" {
		infoLines = append(infoLines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render(m.deviceLine))
	}

	infoLines = append(infoLines, "")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	infoLines = append(infoLines,
		boldStyle.Render("Enter")+helpStyle.Render(" look up  ")+
			boldStyle.Render("↑/↓")+helpStyle.Render(" suggestions"))
	infoLines = append(infoLines,
		boldStyle.Render("Esc")+helpStyle.Render(" close/silence  ")+
			boldStyle.Render("Ctrl+Y")+helpStyle.Render(" copy"))
	infoLines = append(infoLines, helpStyle.Render("sunnyside "+version))

	for _, line := range infoLines {
		sun += line + "\n"
	}
	sunLines := strings.Split(sun, "\n")

	panelWidth := m.width - sunWidth - 1
	if panelWidth < 20 {
		panelWidth = 20
	}
	wrapWidth := panelWidth - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	var panel strings.Builder
	panel.WriteString(m.input.View() + "\n")

	if v.PanelOpen {
		normal := lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
		selected := lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220"))
		for i, s := range v.Suggestions {
			if i == v.Highlighted {
				panel.WriteString("  " + selected.Render(" "+s+" ") + "\n")
			} else {
				panel.WriteString("   " + normal.Render(s) + "\n")
			}
		}
	}
	panel.WriteString("\n")

	switch {
	case v.Loading:
		panel.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Render("Fetching weather"+strings.Repeat(".", m.frame/5%4)) + "\n")
	case v.ErrorText != "":
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		for _, line := range wrapText(v.ErrorText, wrapWidth) {
			panel.WriteString(errStyle.Render(line) + "\n")
		}
	case v.WeatherText != "":
		title := lipgloss.NewStyle().
			Foreground(lipgloss.Color(v.Asset.Color)).
			Bold(true).
			Render(v.Asset.Glyph + "  " + v.City)
		panel.WriteString(title + "\n\n")
		textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
		lines := strings.Split(v.WeatherText, "\n")
		for i, line := range lines {
			panel.WriteString(textStyle.Render(line))
			if i == len(lines)-1 && m.notice != "" {
				panel.WriteString(" " + lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render(m.notice))
			}
			panel.WriteString("\n")
		}
	default:
		panel.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render("No report yet") + "\n")
	}

	rightPanel := lipgloss.NewStyle().
		Width(panelWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(panel.String())

	sunPadded := make([]string, m.height)
	for i := range sunPadded {
		if i < len(sunLines) {
			sunPadded[i] = sunLines[i]
		} else {
			sunPadded[i] = strings.Repeat(" ", sunWidth-1)
		}
	}

	sunPanel := lipgloss.NewStyle().
		Width(sunWidth - 1).
		Height(m.height).
		Render(strings.Join(sunPadded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, sunPanel, rightPanel)
}

func levelBar(level float64, width int) string {
	n := int(math.Round(level * 10 * float64(width)))
	n = max(0, min(n, width))
	return strings.Repeat("▮", n) + strings.Repeat("▯", width-n)
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
