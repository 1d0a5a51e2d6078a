package render

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/tidewatch/tidewatch/pkg/events"
	"github.com/tidewatch/tidewatch/pkg/session"
)

// Formatter renders session messages for terminal output
type Formatter struct {
	userLabelStyle  lipgloss.Style
	agentLabelStyle lipgloss.Style
	reasoningStyle  lipgloss.Style
	toolStyle       lipgloss.Style
	interruptStyle  lipgloss.Style
	citationStyle   lipgloss.Style

	chromaFormatter chroma.Formatter
	width           int
}

// NewFormatter creates a formatter with terminal-friendly styling
func NewFormatter(width int) *Formatter {
	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	return &Formatter{
		width:           width,
		chromaFormatter: formatter,

		userLabelStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5FAFFF")),

		agentLabelStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87D787")),

		reasoningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true),

		toolStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D7AF5F")),

		interruptStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#D75F5F")).
			Padding(0, 1),

		citationStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5F87AF")).
			Underline(true),
	}
}

// FormatMessage renders one message, including its reasoning block and
// tool invocations
func (f *Formatter) FormatMessage(msg *session.Message, showReasoning bool) string {
	var b strings.Builder

	b.WriteString(f.label(msg))
	b.WriteString("\n")

	if showReasoning && msg.Reasoning != "" {
		b.WriteString(f.reasoningStyle.Render(msg.Reasoning))
		b.WriteString("\n")
	}

	for _, tc := range msg.ToolCalls {
		line := fmt.Sprintf("⚙ %s", tc.Name)
		if tc.Result != "" {
			line += " ✓"
		}
		b.WriteString(f.toolStyle.Render(line))
		b.WriteString("\n")
	}

	if msg.Content != "" {
		if msg.Streaming {
			b.WriteString(msg.Content)
		} else {
			b.WriteString(f.highlightCodeBlocks(msg.Content))
		}
		b.WriteString("\n")
	}

	if msg.IsInterrupted() && len(msg.Options) > 0 {
		var opts []string
		for _, opt := range msg.Options {
			opts = append(opts, fmt.Sprintf("[%s] %s", opt.Value, opt.Text))
		}
		b.WriteString(f.interruptStyle.Render(strings.Join(opts, "\n")))
		b.WriteString("\n")
	}

	return b.String()
}

// FormatCitations renders a research unit's citation list
func (f *Formatter) FormatCitations(citations []events.Citation) string {
	if len(citations) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Sources:\n")
	for i, c := range citations {
		title := c.Title
		if title == "" {
			title = c.URL
		}
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, f.citationStyle.Render(title)))
		if c.Title != "" {
			b.WriteString(fmt.Sprintf("     %s\n", c.URL))
		}
	}
	return b.String()
}

func (f *Formatter) label(msg *session.Message) string {
	if msg.IsUser() {
		return f.userLabelStyle.Render("you")
	}
	name := msg.Agent
	if name == "" {
		name = "assistant"
	}
	return f.agentLabelStyle.Render(name)
}

// highlightCodeBlocks applies syntax highlighting to fenced code blocks
// in finished message bodies, leaving surrounding prose untouched
func (f *Formatter) highlightCodeBlocks(content string) string {
	parts := strings.Split(content, "```")
	if len(parts) < 3 {
		return content
	}

	var b strings.Builder
	for i, part := range parts {
		if i%2 == 0 {
			b.WriteString(part)
			continue
		}

		lang := ""
		code := part
		if idx := strings.Index(part, "\n"); idx >= 0 {
			lang = strings.TrimSpace(part[:idx])
			code = part[idx+1:]
		}
		b.WriteString(f.highlight(code, lang))
	}
	return b.String()
}

func (f *Formatter) highlight(code, lang string) string {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := f.chromaFormatter.Format(&buf, styles.Get("monokai"), iterator); err != nil {
		return code
	}
	return buf.String()
}
