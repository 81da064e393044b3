package suggest

import "strings"

// Fixed replies the presentation logic matches exactly.
const (
	NothingToReport  = "Tudo parece em ordem."
	ErrorPrefix      = "Erro:"
	ModelUnavailable = "Erro: Modelo de IA não disponível."
	GenerationFailed = "Erro: Falha ao gerar sugestão de IA."
)

// Kind is the presentation path a suggestion takes.
type Kind int

const (
	KindInvalid Kind = iota
	KindActionable
	KindNothing
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindActionable:
		return "actionable"
	case KindNothing:
		return "nothing"
	case KindError:
		return "error"
	default:
		return "invalid"
	}
}

// Classify decides how a suggestion is presented. It depends only on the text.
func Classify(s string) Kind {
	t := strings.TrimSpace(s)
	switch {
	case t == "":
		return KindInvalid
	case t == NothingToReport:
		return KindNothing
	case strings.HasPrefix(t, ErrorPrefix):
		return KindError
	default:
		return KindActionable
	}
}
