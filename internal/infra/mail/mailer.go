package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	"sync"
	texttemplate "text/template"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/infra/config"
	"github.com/acara/acara-auth/internal/infra/logger"
)

// ActivationSubject is the subject line of activation emails.
const ActivationSubject = "Aktivasi akun anda"

//go:embed templates/*
var templateFS embed.FS

var (
	activationHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/activation.html"))
	activationText = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/activation.txt"))
)

// Transport delivers composed messages. *gomail.Client satisfies it.
type Transport interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// ActivationData feeds the activation templates.
type ActivationData struct {
	ServiceName    string
	FullName       string
	UserName       string
	Email          string
	CreatedAt      time.Time
	ActivationLink string
}

// Mailer renders and sends transactional emails over SMTP.
type Mailer struct {
	transport   Transport
	from        string
	serviceName string
	clientHost  string
	log         *zap.Logger
}

// NewSMTPTransport builds a go-mail client from settings. Secure selects
// implicit TLS; otherwise STARTTLS is required, matching the legacy
// nodemailer requireTLS setup.
func NewSMTPTransport(cfg config.MailSettings) (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(15 * time.Second),
	}
	if cfg.Secure {
		opts = append(opts, gomail.WithSSLPort(false))
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return client, nil
}

// NewMailer wires a Mailer. clientHost is the front-end origin activation links point at.
func NewMailer(transport Transport, cfg config.MailSettings, clientHost string, log *zap.Logger) (*Mailer, error) {
	if transport == nil {
		return nil, errors.New("mail transport is required")
	}
	if _, err := url.Parse(clientHost); err != nil {
		return nil, fmt.Errorf("parse client host: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{
		transport:   transport,
		from:        cfg.Sender(),
		serviceName: cfg.ServiceName,
		clientHost:  strings.TrimRight(clientHost, "/"),
		log:         log,
	}, nil
}

// ActivationLink points the user at the front-end activation page.
func (m *Mailer) ActivationLink(code string) string {
	return m.clientHost + "/auth/activation?code=" + url.QueryEscape(code)
}

// Render produces the HTML and plain-text bodies for notice.
func (m *Mailer) Render(notice domain.ActivationNotice) (string, string, error) {
	data := ActivationData{
		ServiceName:    m.serviceName,
		FullName:       notice.FullName,
		UserName:       notice.UserName,
		Email:          notice.Email,
		CreatedAt:      notice.CreatedAt,
		ActivationLink: m.ActivationLink(notice.Code),
	}

	var html, text bytes.Buffer
	if err := activationHTML.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render activation html: %w", err)
	}
	if err := activationText.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf("render activation text: %w", err)
	}
	return html.String(), text.String(), nil
}

// SendActivation composes and delivers the activation email.
func (m *Mailer) SendActivation(ctx context.Context, notice domain.ActivationNotice) error {
	html, text, err := m.Render(notice)
	if err != nil {
		return err
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(m.serviceName, m.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(notice.Email); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(ActivationSubject)
	msg.SetDate()
	msg.SetBodyString(gomail.TypeTextHTML, html)
	msg.AddAlternativeString(gomail.TypeTextPlain, text)

	if err := m.transport.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send activation email: %w", err)
	}

	m.log.Info("activation email sent",
		zap.String("user_id", notice.UserID),
		zap.String("email", logger.MaskEmail(notice.Email)),
	)
	return nil
}

// SendTimeout bounds one background delivery of the inline Notifier.
const SendTimeout = 30 * time.Second

// DeliveryRecorder counts email outcomes. Optional.
type DeliveryRecorder interface {
	RecordEmail(outcome string)
}

// Notifier delivers activation emails off the request path, for deployments
// without a job queue. Deliveries outlive the caller's context.
type Notifier struct {
	mailer   *Mailer
	recorder DeliveryRecorder
	timeout  time.Duration
	inflight sync.WaitGroup
}

// NotifierOption customises a Notifier.
type NotifierOption func(*Notifier)

// WithDeliveryRecorder counts each background delivery.
func WithDeliveryRecorder(r DeliveryRecorder) NotifierOption {
	return func(n *Notifier) { n.recorder = r }
}

// WithSendTimeout overrides SendTimeout.
func WithSendTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// NewNotifier adapts m to port.ActivationNotifier.
func NewNotifier(m *Mailer, opts ...NotifierOption) *Notifier {
	n := &Notifier{mailer: m, timeout: SendTimeout}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyActivation starts the delivery and returns at once. Failures are
// logged and counted, never returned.
func (n *Notifier) NotifyActivation(ctx context.Context, notice domain.ActivationNotice) error {
	// keeps request values (trace, request id) but not the cancellation
	detached := context.WithoutCancel(ctx)

	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()

		sendCtx, cancel := context.WithTimeout(detached, n.timeout)
		defer cancel()

		if err := n.mailer.SendActivation(sendCtx, notice); err != nil {
			n.record("error")
			n.mailer.log.Warn("activation email failed",
				zap.String("user_id", notice.UserID),
				zap.String("email", logger.MaskEmail(notice.Email)),
				zap.Error(err),
			)
			return
		}
		n.record("success")
	}()
	return nil
}

// Close waits for in-flight deliveries until ctx ends.
func (n *Notifier) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for activation emails: %w", ctx.Err())
	}
}

func (n *Notifier) record(outcome string) {
	if n.recorder != nil {
		n.recorder.RecordEmail(outcome)
	}
}

// LogNotifier only logs the activation link. Used when mail is disabled.
type LogNotifier struct {
	mailer *Mailer
	log    *zap.Logger
}

// NewLogNotifier logs links built with clientHost.
func NewLogNotifier(clientHost string, log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{
		mailer: &Mailer{clientHost: strings.TrimRight(clientHost, "/")},
		log:    log,
	}
}

// NotifyActivation writes the link to the debug log.
func (n *LogNotifier) NotifyActivation(_ context.Context, notice domain.ActivationNotice) error {
	n.log.Debug("mail disabled, activation link not sent",
		zap.String("user_id", notice.UserID),
		zap.String("email", logger.MaskEmail(notice.Email)),
		zap.String("activation_link", n.mailer.ActivationLink(notice.Code)),
	)
	return nil
}

// SendActivation lets a LogNotifier stand in for the Mailer in the job worker.
func (n *LogNotifier) SendActivation(ctx context.Context, notice domain.ActivationNotice) error {
	return n.NotifyActivation(ctx, notice)
}

var (
	_ port.ActivationNotifier = (*Notifier)(nil)
	_ port.ActivationNotifier = (*LogNotifier)(nil)
)
