package suggest

import (
	"fmt"
	"strings"
	"time"

	"proactive/internal/models"
)

// Phrases rendered for a category with nothing in it.
const (
	NoEvents = "Nenhum evento recente."
	NoEmails = "Nenhum email recente."
	NoFiles  = "Nenhum arquivo recente no Drive."
)

const unknownDate = "Data desconhecida"

const promptTemplate = `
Você é um agente proativo que analisa a atividade recente do usuário em seus serviços Google (Agenda, Gmail, Drive)
e oferece sugestões úteis e concisas.

Analise os seguintes dados:

Eventos do Google Calendar (próximas 24h):
%s

Emails recentes do Gmail (últimos 10):
%s

Arquivos recentes do Google Drive (últimos 10 modificados nos últimos 30 dias):
%s

Com base nesses dados, identifique:
- Conflitos de agenda ou eventos importantes próximos.
- Possíveis itens de ação implícitos em emails (ex: responder a um email, seguir uma instrução).
- Oportunidades para ser proativo com base em arquivos recentes (ex: revisar um documento modificado recentemente, continuar trabalhando em um projeto).
- Qualquer outra informação relevante que possa exigir atenção do usuário.

Gere uma ou mais sugestões concisas para o usuário.
Se não houver sugestões claras ou nada relevante for encontrado, diga apenas "%s"

Formato da sugestão (use bullet points):
- [Tipo de Sugestão, ex: Agenda, Email, Drive, Geral]: [Texto da Sugestão]

Exemplos:
- Agenda: Você tem um evento importante "Reunião de Projeto" em 30 minutos.
- Email: O email com assunto "Feedback sobre o relatório" pode exigir uma resposta.
- Drive: O arquivo "Plano de Marketing Q3" foi modificado recentemente, talvez queira revisá-lo.
- Geral: Considere reservar um tempo para revisar os emails não lidos.
`

const structuredSuffix = `
Responda somente com JSON. Use "status": "suggestions" e uma lista "suggestions" com "category"
(Agenda, Email, Drive ou Geral) e "text" para cada sugestão, ou "status": "nothing" com a lista vazia
quando não houver nada relevante.
`

// RenderEvents renders one line per event.
func RenderEvents(events []models.CalendarEvent) string {
	if len(events) == 0 {
		return NoEvents
	}
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, fmt.Sprintf("- %s em %s", e.Title, formatStart(e)))
	}
	return strings.Join(lines, "\n")
}

// RenderEmails renders one line per message.
func RenderEmails(emails []models.EmailSummary) string {
	if len(emails) == 0 {
		return NoEmails
	}
	lines := make([]string, 0, len(emails))
	for _, e := range emails {
		lines = append(lines, fmt.Sprintf("- Assunto: %s (De: %s)", e.Subject, e.Sender))
	}
	return strings.Join(lines, "\n")
}

// RenderFiles renders one line per file.
func RenderFiles(files []models.DriveFile) string {
	if len(files) == 0 {
		return NoFiles
	}
	lines := make([]string, 0, len(files))
	for _, f := range files {
		modified := unknownDate
		if !f.ModifiedTime.IsZero() {
			modified = f.ModifiedTime.Format(time.RFC3339)
		}
		lines = append(lines, fmt.Sprintf("- %s (Modificado em: %s)", f.Name, modified))
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt embeds the rendered bundle in the instruction template.
func BuildPrompt(bundle models.ContextBundle, structured bool) string {
	prompt := fmt.Sprintf(promptTemplate,
		RenderEvents(bundle.Events),
		RenderEmails(bundle.Emails),
		RenderFiles(bundle.Files),
		NothingToReport,
	)
	if structured {
		prompt += structuredSuffix
	}
	return prompt
}

func formatStart(e models.CalendarEvent) string {
	switch {
	case e.Start.IsZero():
		return unknownDate
	case e.AllDay:
		return e.Start.Format(time.DateOnly)
	default:
		return e.Start.Format(time.RFC3339)
	}
}
