package agent

import (
	"fmt"
	"io"
	"log/slog"

	"proactive/internal/suggest"

	"github.com/charmbracelet/lipgloss"
)

// Messages shown for the non-actionable outcomes.
const (
	NothingNotice = "Nenhuma sugestão proativa no momento."
	ErrorNotice   = "Ocorreu um erro ao gerar sugestão: "
	InvalidNotice = "Sugestão recebida está vazia ou inválida."

	suggestionHeader = "--- Sugestão do Agente Proativo ---"
	suggestionFooter = "-----------------------------------"
)

// Presenter writes suggestions for the user.
type Presenter struct {
	out    io.Writer
	logger *slog.Logger
	header lipgloss.Style
	notice lipgloss.Style
	errors lipgloss.Style
}

// NewPresenter creates a Presenter writing to out. Styles degrade to plain
// text when out is not a terminal.
func NewPresenter(out io.Writer, logger *slog.Logger) *Presenter {
	r := lipgloss.NewRenderer(out)
	return &Presenter{
		out:    out,
		logger: logger,
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		notice: r.NewStyle().Faint(true),
		errors: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Present classifies suggestion and prints it accordingly.
func (p *Presenter) Present(suggestion string) suggest.Kind {
	kind := suggest.Classify(suggestion)
	switch kind {
	case suggest.KindActionable:
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, p.header.Render(suggestionHeader))
		fmt.Fprintln(p.out, suggestion)
		fmt.Fprintln(p.out, p.header.Render(suggestionFooter))
		fmt.Fprintln(p.out)
	case suggest.KindNothing:
		fmt.Fprintln(p.out, p.notice.Render(NothingNotice))
	case suggest.KindError:
		fmt.Fprintln(p.out, p.errors.Render(ErrorNotice+suggestion))
	default:
		p.logger.Warn("Suggestion is empty or invalid.", "length", len(suggestion))
		fmt.Fprintln(p.out, p.errors.Render(InvalidNotice))
	}
	return kind
}
