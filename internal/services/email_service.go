package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// ReminderEmail carries the event facts and pre-built links for one reminder
type ReminderEmail struct {
	EventTitle     string
	EventLocation  string
	EventStart     time.Time // already localized to the association timezone
	RSVPURL        string
	UnsubscribeURL string
}

// EmailService defines the interface for sending emails. The reminder worker
// treats any returned error as retryable on a later tick.
type EmailService interface {
	SendEventReminder(ctx context.Context, recipient string, reminder ReminderEmail) error
	SendPasswordReset(ctx context.Context, recipient, resetURL string, expiresAt time.Time) error
	SendContactMessage(ctx context.Context, fromEmail, fromName, message string) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	contactTo   string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, contactTo string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		contactTo:   contactTo,
		logger:      logger,
	}, nil
}

// SendEventReminder delivers an upcoming-event reminder with RSVP and
// unsubscribe links
func (s *AWSSESEmailService) SendEventReminder(ctx context.Context, recipient string, reminder ReminderEmail) error {
	when := reminder.EventStart.Format("Monday, 02 Jan 2006 at 15:04")

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .button { display: inline-block; background-color: #2e7d32; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Upcoming Event: %s</h1>
        </div>
        <div class="content">
            <p><strong>When:</strong> %s<br>
            <strong>Where:</strong> %s</p>
            <p>Will you attend? Let us know:</p>
            <p><a href="%s" class="button">Respond Now</a></p>
            <p>Or copy and paste this link in your browser:<br>
            <code>%s</code></p>
        </div>
        <div class="footer">
            <p>You are receiving this because event reminders are enabled on your account.</p>
            <p><a href="%s">Unsubscribe from event reminders</a></p>
        </div>
    </div>
</body>
</html>
`, reminder.EventTitle, when, reminder.EventLocation, reminder.RSVPURL, reminder.RSVPURL, reminder.UnsubscribeURL)

	textBody := fmt.Sprintf(`Upcoming Event: %s

When: %s
Where: %s

Will you attend? Let us know:
%s

You are receiving this because event reminders are enabled on your account.
Unsubscribe from event reminders:
%s
`, reminder.EventTitle, when, reminder.EventLocation, reminder.RSVPURL, reminder.UnsubscribeURL)

	subject := fmt.Sprintf("Reminder: %s on %s", reminder.EventTitle, reminder.EventStart.Format("02 Jan"))

	return s.send(ctx, recipient, subject, htmlBody, textBody)
}

// SendPasswordReset delivers a password reset link
func (s *AWSSESEmailService) SendPasswordReset(ctx context.Context, recipient, resetURL string, expiresAt time.Time) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body>
    <p>A password reset was requested for your account.</p>
    <p><a href="%s">Reset your password</a></p>
    <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
    <p>This link expires at %s. If you did not request a reset, you can ignore this email.</p>
</body>
</html>
`, resetURL, resetURL, expiresAt.Format(time.RFC1123))

	textBody := fmt.Sprintf(`A password reset was requested for your account.

%s

This link expires at %s. If you did not request a reset, you can ignore this email.
`, resetURL, expiresAt.Format(time.RFC1123))

	return s.send(ctx, recipient, "Reset your password", htmlBody, textBody)
}

// SendContactMessage relays a contact form submission to the club inbox
func (s *AWSSESEmailService) SendContactMessage(ctx context.Context, fromEmail, fromName, message string) error {
	if s.contactTo == "" {
		return fmt.Errorf("no contact recipient configured")
	}

	textBody := fmt.Sprintf("From: %s <%s>\n\n%s\n", fromName, fromEmail, message)
	htmlBody := fmt.Sprintf("<p>From: %s &lt;%s&gt;</p><p>%s</p>", fromName, fromEmail, message)

	return s.send(ctx, s.contactTo, "Contact form message from "+fromName, htmlBody, textBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, recipient, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("recipient", recipient),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("recipient", recipient),
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
