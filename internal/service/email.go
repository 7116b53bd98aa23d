package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
)

type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	SignupURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
}

// emailService sends through SendGrid when an API key is configured, through
// SMTP when only a host is configured, and only logs the message otherwise.
type emailService struct {
	cfg    EmailConfig
	client *sendgrid.Client
	dialer *gomail.Dialer
}

func NewEmailService(cfg EmailConfig) Notifier {
	s := &emailService{cfg: cfg}
	switch {
	case cfg.APIKey != "":
		s.client = sendgrid.NewSendClient(cfg.APIKey)
		logger.Info("Email service initialized with SendGrid", "from", cfg.FromEmail)
	case cfg.SMTPHost != "":
		s.dialer = gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
		logger.Info("Email service initialized with SMTP", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
	default:
		logger.Warn("Email service in log-only mode, set SENDGRID_API_KEY or SMTP_HOST to deliver mail")
	}
	return s
}

func (s *emailService) send(ctx context.Context, toEmail, toName, subject, plainText, html string) error {
	switch {
	case s.client != nil:
		return s.sendGrid(ctx, toEmail, toName, subject, plainText, html)
	case s.dialer != nil:
		return s.sendSMTP(toEmail, toName, subject, plainText, html)
	}
	logger.InfoContext(ctx, "Email (not sent)", "to", toEmail, "subject", subject)
	return nil
}

func (s *emailService) sendSMTP(toEmail, toName, subject, plainText, html string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromEmail, s.cfg.FromName)
	m.SetAddressHeader("To", toEmail, toName)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainText)
	m.AddAlternative("text/html", html)

	logger.ExternalServiceCall("smtp", "send", "subject", subject)
	err := s.dialer.DialAndSend(m)
	logger.ExternalServiceResult("smtp", "send", err)
	if err != nil {
		return fmt.Errorf("failed to send email via gomail: %w", err)
	}
	return nil
}

func (s *emailService) sendGrid(ctx context.Context, toEmail, toName, subject, plainText, html string) error {
	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromEmail)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail(toName, toEmail), plainText, html)

	logger.ExternalServiceCall("sendgrid", "send", "subject", subject)
	response, err := s.client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "send", err)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *emailService) SendReferralInvite(ctx context.Context, affiliate *domain.User, invite *domain.EmailReferral) error {
	link := fmt.Sprintf("%s?ref=%s&invite=%s", s.cfg.SignupURL, affiliate.ReferralCode, invite.Token)
	name := invite.Name
	if name == "" {
		name = "there"
	}
	subject := fmt.Sprintf("%s invited you to join", affiliate.Name)
	plain := fmt.Sprintf("Hi %s,\n\n%s invited you to sign up. Use referral code %s or open:\n\n%s\n\nThis invitation expires on %s.\n",
		name, affiliate.Name, affiliate.ReferralCode, link, invite.ExpiresAt.Format("2006-01-02"))
	html := fmt.Sprintf(`<p>Hi %s,</p><p>%s invited you to sign up.</p><p>Referral code: <strong>%s</strong></p><p><a href="%s">Accept the invitation</a></p><p>This invitation expires on %s.</p>`,
		name, affiliate.Name, affiliate.ReferralCode, link, invite.ExpiresAt.Format("2006-01-02"))
	return s.send(ctx, invite.Email, invite.Name, subject, plain, html)
}

func (s *emailService) SendCommissionEarned(ctx context.Context, affiliate *domain.User, record *domain.CommissionRecord) error {
	amount := record.Amount.StringFixed(domain.MoneyScale)
	subject := fmt.Sprintf("You earned a level %d commission of %s", record.Level, amount)
	plain := fmt.Sprintf("Hi %s,\n\nA level %d referral purchase earned you %s (%s%% of %s). It is pending approval.\n",
		affiliate.Name, record.Level, amount, record.Rate.String(), record.BaseAmount.StringFixed(domain.MoneyScale))
	html := fmt.Sprintf(`<p>Hi %s,</p><p>A level %d referral purchase earned you <strong>%s</strong>. It is pending approval.</p>`,
		affiliate.Name, record.Level, amount)
	return s.send(ctx, affiliate.Email, affiliate.Name, subject, plain, html)
}

func (s *emailService) SendPayoutProcessed(ctx context.Context, affiliate *domain.User, payout *domain.PayoutRequest) error {
	amount := payout.Amount.StringFixed(domain.MoneyScale)
	subject := fmt.Sprintf("Payout of %s processed", amount)
	plain := fmt.Sprintf("Hi %s,\n\nYour payout of %s was processed on %s.\n",
		affiliate.Name, amount, payout.ProcessedAt.Format("2006-01-02"))
	html := fmt.Sprintf(`<p>Hi %s,</p><p>Your payout of <strong>%s</strong> was processed on %s.</p>`,
		affiliate.Name, amount, payout.ProcessedAt.Format("2006-01-02"))
	return s.send(ctx, affiliate.Email, affiliate.Name, subject, plain, html)
}
