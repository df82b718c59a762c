package viz

import (
	"errors"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/regime/internal/config"
	"github.com/san-kum/regime/internal/engine"
	"github.com/san-kum/regime/internal/grid"
	"github.com/san-kum/regime/internal/offload"
)

const historyLen = 60

type resultMsg struct{ resp *offload.Response }

type errMsg struct{ err error }

type closedMsg struct{}

// field is one adjustable grid parameter.
type field struct {
	name string
	step float64
	get  func(p *grid.Params) float64
	set  func(p *grid.Params, v float64)
}

var fields = []field{
	{"eta", 0.1, func(p *grid.Params) float64 { return p.Eta }, func(p *grid.Params, v float64) { p.Eta = math.Max(v, -1) }},
	{"X", 0.05, func(p *grid.Params) float64 { return p.Composition.X }, func(p *grid.Params, v float64) { p.Composition.X = clamp01(v) }},
	{"Y", 0.05, func(p *grid.Params) float64 { return p.Composition.Y }, func(p *grid.Params, v float64) { p.Composition.Y = clamp01(v) }},
	{"Z", 0.01, func(p *grid.Params) float64 { return p.Composition.Z }, func(p *grid.Params, v float64) { p.Composition.Z = clamp01(v) }},
	{"log T min", 0.5, func(p *grid.Params) float64 { return p.LogTMin }, func(p *grid.Params, v float64) { p.LogTMin = v }},
	{"log T max", 0.5, func(p *grid.Params) float64 { return p.LogTMax }, func(p *grid.Params, v float64) { p.LogTMax = v }},
	{"log ρ min", 0.5, func(p *grid.Params) float64 { return p.LogRhoMin }, func(p *grid.Params, v float64) { p.LogRhoMin = v }},
	{"log ρ max", 0.5, func(p *grid.Params) float64 { return p.LogRhoMax }, func(p *grid.Params, v float64) { p.LogRhoMax = v }},
	{"cols", 8, func(p *grid.Params) float64 { return float64(p.Columns) }, func(p *grid.Params, v float64) { p.Columns = uint32(math.Max(v, 1)) }},
	{"rows", 4, func(p *grid.Params) float64 { return float64(p.Rows) }, func(p *grid.Params, v float64) { p.Rows = uint32(math.Max(v, 1)) }},
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// Explorer is the interactive caller of a session. Every parameter change
// dispatches immediately; the view only ever shows the newest accepted
// result.
type Explorer struct {
	session  *engine.Session
	params   grid.Params
	sent     map[uint64]grid.Params
	shown    grid.Params
	presets  []string
	preset   int
	theme    int
	outline  bool
	cursor   int
	current  *offload.Response
	history  []float64
	lastErr  error
	closed   bool
	width    int
	height   int
	quitting bool
}

func NewExplorer(session *engine.Session, params grid.Params) Explorer {
	return Explorer{
		session: session,
		params:  params,
		sent:    make(map[uint64]grid.Params),
		presets: config.ListPresets(),
		preset:  -1,
		width:   100,
		height:  40,
	}
}

// Init sends the first spec. Init cannot change the model, so a failed
// dispatch comes back as a message.
func (m Explorer) Init() tea.Cmd {
	m.dispatch()
	if err := m.lastErr; err != nil {
		return func() tea.Msg { return errMsg{err: err} }
	}
	return m.wait()
}

// wait blocks on the session's mailboxes. Exactly one wait is outstanding
// at a time; each delivered message schedules the next.
func (m Explorer) wait() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		select {
		case resp := <-s.Accepted():
			return resultMsg{resp: resp}
		case err := <-s.Errors():
			return errMsg{err: err}
		case <-s.Done():
			return closedMsg{}
		}
	}
}

func (m *Explorer) dispatch() {
	seq, err := m.session.Dispatch(m.params)
	if err != nil {
		m.lastErr = err
		if errors.Is(err, offload.ErrClosed) {
			m.closed = true
		}
		return
	}
	m.sent[seq] = m.params
}

func (m Explorer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case resultMsg:
		m.current.Release()
		m.current = msg.resp
		m.shown = m.sent[msg.resp.Seq]
		for seq := range m.sent {
			if seq <= msg.resp.Seq {
				delete(m.sent, seq)
			}
		}
		m.lastErr = nil
		m.history = append(m.history, msg.resp.ElapsedMillis())
		if len(m.history) > historyLen {
			m.history = m.history[len(m.history)-historyLen:]
		}
		return m, m.wait()
	case errMsg:
		m.lastErr = msg.err
		var reqErr *engine.RequestError
		if !errors.As(msg.err, &reqErr) {
			// protocol violation: the session is unusable
			m.closed = true
			return m, nil
		}
		return m, m.wait()
	case closedMsg:
		m.closed = true
		return m, nil
	}
	return m, nil
}

func (m Explorer) handleKey(msg tea.KeyMsg) (Explorer, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		m.current.Release()
		m.current = nil
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(fields)-1 {
			m.cursor++
		}
	case "left", "h":
		m.adjust(-1)
	case "right", "l":
		m.adjust(1)
	case "p":
		m.preset = (m.preset + 1) % len(m.presets)
		p, err := config.GetPreset(m.presets[m.preset])
		if err != nil {
			m.lastErr = err
			return m, nil
		}
		m.params = p.Grid
		m.dispatch()
	case "t":
		m.theme = (m.theme + 1) % len(Themes)
	case "b":
		m.outline = !m.outline
	case "r":
		m.dispatch()
	}
	return m, nil
}

func (m *Explorer) adjust(dir float64) {
	f := fields[m.cursor]
	f.set(&m.params, f.get(&m.params)+dir*f.step)
	m.dispatch()
}

func (m Explorer) View() string {
	if m.quitting {
		return ""
	}
	theme := Themes[m.theme]

	var b strings.Builder
	b.WriteString("\n  " + Title.Render("REGIME") + "  " + Subtle.Render("dominant pressure across (T, ρ)") + "\n\n")

	left := Subtle.Render("waiting for first result…")
	if m.current != nil {
		r := grid.Raster{Data: m.current.Raster, Columns: m.current.Columns, Rows: m.current.Rows}
		if m.outline {
			left = lipgloss.NewStyle().Foreground(theme.Accent).Render(OutlineRaster(r).String()) +
				"\n" + Subtle.Render("regime boundaries, log ρ ↑")
		} else {
			left = RenderRaster(r, m.shown, theme) + "\n\n" + Legend(theme)
		}
	}
	b.WriteString(Panel.Render(left))
	b.WriteString("\n")
	b.WriteString(Panel.Render(m.viewSide(theme)))
	b.WriteString("\n  " + m.viewKeys() + "\n")
	return b.String()
}

func (m Explorer) viewSide(theme Theme) string {
	var b strings.Builder
	for i, f := range fields {
		val := fmt.Sprintf("%8.2f", f.get(&m.params))
		if i == m.cursor {
			b.WriteString(Selected.Render(fmt.Sprintf("▸ %-10s %s", f.name, val)) + "\n")
		} else {
			b.WriteString(MetricLabel.Render(fmt.Sprintf("  %-10s %s", f.name, val)) + "\n")
		}
	}

	preset := "custom"
	if m.preset >= 0 {
		preset = m.presets[m.preset]
	}
	b.WriteString("\n" + MetricLabel.Render("preset ") + MetricValue.Render(preset))
	b.WriteString("  " + MetricLabel.Render("theme ") + MetricValue.Render(theme.Name) + "\n")

	stats := m.session.Stats()
	shownSeq := uint64(0)
	if m.current != nil {
		shownSeq = m.current.Seq
	}
	status := StatusIdle.Render("idle")
	switch {
	case m.closed:
		status = StatusError.Render("closed")
	case shownSeq < stats.Dispatch.Latest:
		status = StatusBusy.Render("evaluating")
	}
	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s\n",
		MetricLabel.Render("latest"), MetricValue.Render(fmt.Sprint(stats.Dispatch.Latest)),
		MetricLabel.Render("shown"), MetricValue.Render(fmt.Sprint(shownSeq)),
		status))
	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s\n",
		MetricLabel.Render("accepted"), MetricValue.Render(fmt.Sprint(stats.Dispatch.Accepted)),
		MetricLabel.Render("dropped"), MetricValue.Render(fmt.Sprint(stats.Dispatch.Dropped)),
		MetricLabel.Render("pending"), MetricValue.Render(fmt.Sprint(stats.Channel.Pending))))

	if n := len(m.history); n > 0 {
		b.WriteString(MetricLabel.Render("elapsed ") + MetricValue.Render(fmt.Sprintf("%.2fms", m.history[n-1])) + "\n")
	}
	b.WriteString(Sparkline(m.history, 30))

	if m.current != nil {
		b.WriteString("\n\n" + HistogramBars(m.current.Raster, theme, 20))
	}
	if m.lastErr != nil {
		b.WriteString("\n\n" + StatusError.Render(m.lastErr.Error()))
	}
	return b.String()
}

func (m Explorer) viewKeys() string {
	keys := []struct{ key, desc string }{
		{"j/k", "select"}, {"h/l", "adjust"}, {"p", "preset"}, {"t", "theme"}, {"b", "outline"}, {"r", "redispatch"}, {"q", "quit"},
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = Title.Render(k.key) + KeyHint.Render(" "+k.desc)
	}
	return strings.Join(parts, "  ")
}

// RunExplorer blocks until the user quits.
func RunExplorer(session *engine.Session, params grid.Params) error {
	_, err := tea.NewProgram(NewExplorer(session, params), tea.WithAltScreen()).Run()
	return err
}
