package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	logger     *slog.Logger
}

var _ Sender = (*SendGridSender)(nil)

// NewSendGridSender returns a sender using API key key. Mail goes out from
// fromEmail under appName, and every subject is prefixed "[appName] ".
func NewSendGridSender(key, appName, fromEmail string, logger *slog.Logger) *SendGridSender {
	return &SendGridSender{
		key:        key,
		host:       sendgridHost,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
		logger:     logger,
	}
}

// prepare builds the v3 payload: one personalization, HTML content only.
func (s *SendGridSender) prepare(subject, recipient, htmlBody string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + subject
	p.AddTos(sgmail.NewEmail("", recipient))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/html", htmlBody))
	return m
}

// Send posts the message. SendGrid answers 202 when it accepts it; any 4xx
// or 5xx is an error. The API client takes no context, so ctx only gates
// the call.
func (s *SendGridSender) Send(ctx context.Context, subject, recipient, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(subject, recipient, htmlBody))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("mail: sending to %s: %w", recipient, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("mail: sendgrid rejected message to %s: status %d: %s", recipient, res.StatusCode, res.Body)
	}

	s.logger.Info("mail sent",
		slog.String("to", recipient),
		slog.String("subject", subject),
	)
	return nil
}
