package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer emails the signed contract to the customer.
type SendGridMailer struct {
	client sendClient
	from   *mail.Email
}

func NewSendGridMailer(apiKey, fromAddress, fromName string) (*SendGridMailer, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if fromAddress == "" {
		return nil, errors.New("sender address is required")
	}
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromAddress),
	}, nil
}

func (m *SendGridMailer) SendSignedContract(ctx context.Context, to, name, subject, htmlBody string) error {
	if to == "" {
		return errors.New("recipient is required")
	}
	recipient := mail.NewEmail(name, to)
	message := mail.NewSingleEmail(m.from, subject, recipient, subject, htmlBody)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
