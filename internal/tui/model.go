package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragkit/internal/pipeline"
)

// PipelinePort is the TUI-facing subset of the pipeline.
type PipelinePort interface {
	Query(question string, opts pipeline.QueryOptions) (pipeline.Response, error)
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	pipeline PipelinePort
	input    textinput.Model
	viewport viewport.Model
	response *pipeline.Response
	status   string
	ready    bool
	sources  bool
	chat     bool
}

// Options selects the query mode used for every question.
type Options struct {
	IncludeSources   bool
	ConversationMode bool
}

// New creates a new TUI model instance.
func New(p PipelinePort, opts Options, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		pipeline: p,
		input:    ti,
		viewport: vp,
		status:   summary,
		sources:  opts.IncludeSources,
		chat:     opts.ConversationMode,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around answer and query boxes
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header + status + query box + spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderResponse())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				res, err := m.pipeline.Query(q, pipeline.QueryOptions{
					IncludeSources:   m.sources,
					ConversationMode: m.chat,
				})
				if err != nil {
					m.status = "Error: " + err.Error()
					m.response = nil
				} else {
					m.status = fmt.Sprintf("Answered in %s (%d documents)", res.TotalTime.Round(time.Millisecond), res.RetrievedDocsCount)
					m.response = &res
					m.input.SetValue("")
				}
				m.viewport.SetContent(m.renderResponse())
				return m, nil
			}
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("ragkit")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	answer := answerBoxStyle.Render(m.viewport.View())
	return header + "\n" + answer + "\n" + input + "\n" + status
}

func (m Model) renderResponse() string {
	if m.response == nil {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(questionStyle.Render("Q: " + m.response.Question))
	b.WriteString("\n\n")
	b.WriteString(m.response.Answer)
	if len(m.response.Sources) > 0 {
		b.WriteString("\n\n")
		b.WriteString(sourceHeadStyle.Render("Sources"))
		for _, src := range m.response.Sources {
			b.WriteString(fmt.Sprintf("\n%s %s (%.3f)", src.ID, src.Name, src.RelevanceScore))
		}
	}
	return b.String()
}

var (
	answerBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceHeadStyle = lipgloss.NewStyle().Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
