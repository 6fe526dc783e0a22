package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"parla/history"
)

// tuiReady closes once the program's event loop is running, so
// Send calls made during startup cannot race program start.
var (
	tuiReady     = make(chan struct{})
	tuiReadyOnce sync.Once
)

// TUI message types
type RecordingStartMsg struct{}
type RecordingStopMsg struct{}
type RecordingTickMsg struct{ Duration float64 }
type AudioLevelMsg struct{ Level float64 }
type PreviewMsg struct{ Text string }
type TranscriptionMsg struct {
	Text     string
	Metrics  []string
	Copied   bool
	NoSpeech bool
}
type HistoryMsg struct{ Entries []history.Entry }
type EngineLineMsg struct{ Text string }
type DeviceLineMsg struct{ Text string }
type NoticeMsg struct{ Text string }
type tickMsg time.Time

// TUIAction is a user command raised from the TUI key handler and
// served by the main loop.
type TUIAction int

const (
	ActionCopyLast TUIAction = iota
)

type tuiState int

const (
	tuiStateIdle tuiState = iota
	tuiStateRecording
	tuiStateBusy
)

const (
	panelWidth  = 45
	meterWidth  = 42
	historyRows = 8
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Pre-computed meter styles, green through red by amplitude.
var (
	meterColors = []string{"22", "28", "34", "40", "46", "190", "208", "196"}
	meterStyles [8]lipgloss.Style
	meterIdle   lipgloss.Style
)

func init() {
	for i, c := range meterColors {
		meterStyles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	meterIdle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
}

type tuiModel struct {
	state         tuiState
	frame         int
	duration      float64
	levels        []float64 // most recent capture levels, oldest first
	peakLevel     float64
	preview       string
	msgCount      int
	width, height int
	engineLine    string
	deviceLine    string
	notice        string
	lastText      string
	lastMetrics   []string
	copied        bool
	noSpeech      bool
	entries       []history.Entry
	actions       chan<- TUIAction
}

// NewTUIProgram builds the full-screen program. Key-initiated
// commands are reported on actions.
func NewTUIProgram(actions chan<- TUIAction) *tea.Program {
	m := tuiModel{actions: actions}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	tuiReadyOnce.Do(func() { close(tuiReady) })
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if m.actions != nil {
				select {
				case m.actions <- ActionCopyLast:
				default:
				}
			}
		}

	case tickMsg:
		m.frame++
		if m.state != tuiStateRecording && len(m.levels) > 0 {
			// Scroll the old waveform out after the session ends.
			m.levels = pushLevel(m.levels, 0)
			if flatline(m.levels) {
				m.levels = nil
			}
		}
		return m, tuiTick()

	case RecordingStartMsg:
		m.state = tuiStateRecording
		m.duration = 0
		m.peakLevel = 0
		m.preview = ""
		m.notice = ""
		m.levels = nil

	case RecordingStopMsg:
		m.state = tuiStateBusy

	case RecordingTickMsg:
		m.duration = msg.Duration

	case AudioLevelMsg:
		if m.state == tuiStateRecording {
			m.levels = pushLevel(m.levels, msg.Level)
			if msg.Level > m.peakLevel {
				m.peakLevel = msg.Level
			}
		}

	case PreviewMsg:
		if m.state == tuiStateRecording {
			m.preview = msg.Text
		}

	case TranscriptionMsg:
		m.state = tuiStateIdle
		m.preview = ""
		if msg.Text != "" {
			m.msgCount++
			m.lastText = msg.Text
			m.lastMetrics = msg.Metrics
			m.copied = msg.Copied
			m.noSpeech = msg.NoSpeech
		}

	case HistoryMsg:
		m.entries = msg.Entries

	case EngineLineMsg:
		m.engineLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case NoticeMsg:
		m.notice = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var left []string
	left = append(left, "")
	left = append(left, lipgloss.NewStyle().Bold(true).Render("  parla"))
	left = append(left, "")

	for _, row := range renderMeter(m.levels, m.state == tuiStateRecording) {
		left = append(left, "  "+row)
	}
	left = append(left, "")

	switch m.state {
	case tuiStateRecording:
		status := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Render(fmt.Sprintf("● REC %.1fs", m.duration))
		left = append(left, "  "+status)
		if m.duration > 1.0 && m.peakLevel < 0.02 {
			warn := lipgloss.NewStyle().
				Foreground(lipgloss.Color("208")).
				Render("⚠ no voice detected")
			left = append(left, "  "+warn)
		}
	case tuiStateBusy:
		status := lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Render(spinnerFrames[m.frame%len(spinnerFrames)] + " transcribing")
		left = append(left, "  "+status)
	default:
		status := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render("○ STANDBY")
		left = append(left, "  "+status)
	}
	left = append(left, "")

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimmer := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	if m.engineLine != "" {
		left = append(left, "  "+dim.Render(m.engineLine))
	}
	if m.deviceLine != "" {
		left = append(left, "  "+dimmer.Render(m.deviceLine))
	}

	if m.preview != "" {
		left = append(left, "")
		pvStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
		for _, line := range wrapText(m.preview, panelWidth-5) {
			left = append(left, "  "+pvStyle.Render(line))
		}
	}

	if m.notice != "" {
		left = append(left, "")
		left = append(left, "  "+lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Render(m.notice))
	}

	left = append(left, "")
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldHelp := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	left = append(left, "  "+boldHelp.Render("Ctrl+Shift+Space")+helpStyle.Render(" record"))
	left = append(left, "  "+helpStyle.Render("c copy last · q quit"))
	left = append(left, "  "+helpStyle.Render("parla "+version))

	rightWidth := m.width - panelWidth - 1
	if rightWidth < 20 {
		rightWidth = 20
	}
	right := m.renderRight(rightWidth - 2)

	leftPadded := make([]string, m.height)
	for i := range leftPadded {
		if i < len(left) {
			leftPadded[i] = left[i]
		}
	}

	leftPanel := lipgloss.NewStyle().
		Width(panelWidth - 1).
		Height(m.height).
		Render(strings.Join(leftPadded, "\n"))

	rightPanel := lipgloss.NewStyle().
		Width(rightWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(right)

	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func (m tuiModel) renderRight(wrapWidth int) string {
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	var b strings.Builder
	if m.lastText == "" {
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render("No transcriptions yet"))
		return b.String()
	}

	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("246")).
		Render(fmt.Sprintf("Last transcription (#%d)", m.msgCount))
	b.WriteString(title + "\n\n")

	var textStyle lipgloss.Style
	if m.noSpeech {
		textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	} else {
		textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	}
	lines := wrapText(m.lastText, wrapWidth)
	for i, line := range lines {
		b.WriteString(textStyle.Render(line))
		if i == len(lines)-1 && m.copied && !m.noSpeech {
			b.WriteString(" " + lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("[✓ copied]"))
		}
		b.WriteString("\n")
	}

	if len(m.lastMetrics) > 0 {
		b.WriteString("\n")
		metricsStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		for _, metric := range m.lastMetrics {
			b.WriteString(metricsStyle.Render(metric) + "\n")
		}
	}

	if len(m.entries) > 1 {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Render("History") + "\n")
		histStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		// Skip the newest entry, it is already shown above.
		shown := 0
		for _, e := range m.entries[1:] {
			if shown >= historyRows {
				break
			}
			line := fmt.Sprintf("%s  %s", e.Time.Format("15:04:05"), e.Text)
			b.WriteString(histStyle.Render(truncateLine(line, wrapWidth)) + "\n")
			shown++
		}
	}
	return b.String()
}

// renderMeter draws the recent level history as a two-row bar
// waveform, 16 vertical steps per column.
func renderMeter(levels []float64, recording bool) [2]string {
	blocks := []rune("▁▂▃▄▅▆▇█")

	var top, bottom strings.Builder
	pad := meterWidth - len(levels)
	for i := 0; i < pad; i++ {
		top.WriteString(" ")
		bottom.WriteString(meterIdle.Render("▁"))
	}
	for _, lvl := range levels {
		// Typical speech RMS sits well under 0.25 of full scale.
		v := int(lvl * 64)
		if v > 16 {
			v = 16
		}
		color := v / 2
		if color > 7 {
			color = 7
		}
		style := meterStyles[color]
		if !recording {
			style = meterIdle
		}
		botN := v
		if botN > 8 {
			botN = 8
		}
		topN := v - 8
		if topN < 0 {
			topN = 0
		}
		if topN == 0 {
			top.WriteString(" ")
		} else {
			top.WriteString(style.Render(string(blocks[topN-1])))
		}
		if botN == 0 {
			bottom.WriteString(style.Render("▁"))
		} else {
			bottom.WriteString(style.Render(string(blocks[botN-1])))
		}
	}
	return [2]string{top.String(), bottom.String()}
}

func pushLevel(levels []float64, v float64) []float64 {
	levels = append(levels, v)
	if len(levels) > meterWidth {
		levels = levels[len(levels)-meterWidth:]
	}
	return levels
}

func flatline(levels []float64) bool {
	for _, v := range levels {
		if v != 0 {
			return false
		}
	}
	return true
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

func truncateLine(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width < 2 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}

// tuiSink forwards recording events into the running program.
type tuiSink struct {
	p *tea.Program
}

func (s tuiSink) RecordingStart()       { s.p.Send(RecordingStartMsg{}) }
func (s tuiSink) RecordingStop()        { s.p.Send(RecordingStopMsg{}) }
func (s tuiSink) RecordingTick(d float64) {
	s.p.Send(RecordingTickMsg{Duration: d})
}
func (s tuiSink) AudioLevel(level float64) {
	s.p.Send(AudioLevelMsg{Level: level})
}
func (s tuiSink) LivePreview(text string) {
	s.p.Send(PreviewMsg{Text: text})
}
func (s tuiSink) Transcription(text string, metrics []string, copied, noSpeech bool) {
	s.p.Send(TranscriptionMsg{Text: text, Metrics: metrics, Copied: copied, NoSpeech: noSpeech})
}
func (s tuiSink) History(entries []history.Entry) {
	s.p.Send(HistoryMsg{Entries: entries})
}
func (s tuiSink) EngineLine(text string)        { s.p.Send(EngineLineMsg{Text: text}) }
func (s tuiSink) DeviceLine(text string)        { s.p.Send(DeviceLineMsg{Text: text}) }
func (s tuiSink) Notice(text string)            { s.p.Send(NoticeMsg{Text: text}) }
