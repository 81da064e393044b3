package google

import (
	"context"
	"fmt"
	"log/slog"

	"proactive/internal/models"
	"proactive/internal/source"

	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user = "me"

	noSubject     = "Sem Assunto"
	unknownSender = "Remetente Desconhecido"
	unknownDate   = "Data Desconhecida"
	noSnippet     = "Sem snippet"
)

// Gmail quota units are scarce; detail requests are paced well below the limit.
const (
	gmailRequestsPerSecond = 2.0
	gmailBurst             = 5
)

// MailClient reads metadata of the most recent messages.
type MailClient struct {
	srv     *gmail.Service
	logger  *slog.Logger
	count   int64
	limiter *rate.Limiter
}

// NewMailClient creates a Gmail client that fetches count messages per call.
func NewMailClient(ctx context.Context, logger *slog.Logger, count int64, opts ...option.ClientOption) (*MailClient, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &MailClient{
		srv:     srv,
		logger:  logger,
		count:   count,
		limiter: rate.NewLimiter(rate.Limit(gmailRequestsPerSecond), gmailBurst),
	}, nil
}

// Recent lists the latest messages and fetches each one's headers and snippet.
// A message whose detail request fails is skipped.
func (c *MailClient) Recent(ctx context.Context) ([]models.EmailSummary, error) {
	c.logger.Debug("Fetching recent messages", "count", c.count)
	list, err := c.srv.Users.Messages.List(user).MaxResults(c.count).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve list of messages: %w", err)
	}

	out := make([]models.EmailSummary, 0, len(list.Messages))
	for _, m := range list.Messages {
		if err := c.limiter.Wait(ctx); err != nil {
			return out, nil
		}
		msg, err := c.srv.Users.Messages.Get(user, m.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Date").
			Context(ctx).
			Do()
		if err != nil {
			c.logger.Warn("Unable to retrieve message details, skipping.", "id", m.Id, "kind", Classify(err), "error", err)
			continue
		}
		out = append(out, toEmailSummary(m.Id, msg))
	}
	return out, nil
}

func toEmailSummary(id string, msg *gmail.Message) models.EmailSummary {
	email := models.EmailSummary{
		ID:      id,
		Subject: noSubject,
		Sender:  unknownSender,
		Date:    unknownDate,
		Snippet: msg.Snippet,
	}
	if email.Snippet == "" {
		email.Snippet = noSnippet
	}
	if msg.Payload == nil {
		return email
	}
	for _, header := range msg.Payload.Headers {
		if header.Value == "" {
			continue
		}
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.Sender = header.Value
		case "Date":
			email.Date = header.Value
		}
	}
	return email
}

// MailSource adapts client to a Source. A nil client yields an uninitialized source.
func MailSource(logger *slog.Logger, client *MailClient) *source.Adapter[models.EmailSummary] {
	var fetch source.FetchFunc[models.EmailSummary]
	if client != nil {
		fetch = client.Recent
	}
	return source.NewAdapter("mail", fetch, logger, Classify)
}
