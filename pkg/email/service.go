package email

import (
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Service handles email sending
type Service struct {
	fromEmail    string
	fromName     string
	supportInbox string
	sendGridKey  string
	useSendGrid  bool
}

// NewService creates a new email service.
// If sendGridAPIKey is provided, emails are sent via SendGrid;
// otherwise they are logged to console (development mode).
func NewService(fromEmail, fromName, supportInbox, sendGridAPIKey string) *Service {
	useSendGrid := sendGridAPIKey != ""
	if useSendGrid {
		log.Printf("✅ Email service initialized with SendGrid")
	} else {
		log.Printf("⚠️  Email service in console-only mode (set SENDGRID_API_KEY for production)")
	}

	return &Service{
		fromEmail:    fromEmail,
		fromName:     fromName,
		supportInbox: supportInbox,
		sendGridKey:  sendGridAPIKey,
		useSendGrid:  useSendGrid,
	}
}

// SendSupportEmail forwards a user's support inquiry to the support inbox
func (s *Service) SendSupportEmail(userEmail, subject, message string) error {
	fullSubject := fmt.Sprintf("[Support] %s", subject)
	safeMessage := html.EscapeString(message)
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>Support inquiry</h2>
			<p><strong>From:</strong> %s</p>
			<p><strong>Subject:</strong> %s</p>
			<hr>
			<p>%s</p>
		</body>
		</html>
	`, html.EscapeString(userEmail), html.EscapeString(subject), strings.ReplaceAll(safeMessage, "\n", "<br>"))

	plainText := fmt.Sprintf(`
Support inquiry

From: %s
Subject: %s

%s
	`, userEmail, subject, message)

	if s.useSendGrid {
		return s.sendViaSendGrid(s.supportInbox, "Noomo Support", fullSubject, body, plainText)
	}

	return s.logEmailToConsole(s.supportInbox, "Noomo Support", fullSubject, userEmail)
}

// sendViaSendGrid sends email using SendGrid API
func (s *Service) sendViaSendGrid(toEmail, toName, subject, htmlBody, plainTextBody string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)

	message := mail.NewSingleEmail(from, subject, to, plainTextBody, htmlBody)

	client := sendgrid.NewSendClient(s.sendGridKey)
	response, err := client.Send(message)

	if err != nil {
		log.Printf("❌ SendGrid error: %v", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		log.Printf("❌ SendGrid returned error status %d: %s", response.StatusCode, response.Body)
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	log.Printf("✅ Email sent successfully to %s (SendGrid status: %d)", toEmail, response.StatusCode)
	return nil
}

// logEmailToConsole logs email details to console (development mode)
func (s *Service) logEmailToConsole(toEmail, toName, subject, replyTo string) error {
	log.Printf("📧 [EMAIL] %s", subject)
	log.Printf("   To: %s <%s>", toName, toEmail)
	log.Printf("   From: %s <%s>", s.fromName, s.fromEmail)
	log.Printf("   Reply-To: %s", replyTo)
	log.Printf("   ---")
	log.Printf("   ⚠️  Email NOT sent (development mode)")
	log.Printf("   Set SENDGRID_API_KEY environment variable to enable email sending")
	log.Printf("   ---")
	return nil
}
