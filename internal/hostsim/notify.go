package hostsim

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/rakunlabs/wasmsvc/internal/config"
	"github.com/wneessen/go-mail"
)

// Notifier delivers a guest-emitted event to the "notify-email" handler
// named in an `emit_with_handler` call (§6), adapted directly from
// internal/service/workflow/nodes/email.go's SMTP client wiring,
// generalized from a templated workflow node to a fixed event
// envelope (method, event name, JSON payload).
type Notifier struct {
	cfg config.Notify
}

// NewNotifier builds a Notifier from the host simulator's Notify
// config. A zero-value cfg (no SMTPHost) makes NotifyEvent a no-op,
// so the notify-email handler is safe to leave unconfigured in tests.
func NewNotifier(cfg config.Notify) *Notifier {
	return &Notifier{cfg: cfg}
}

// NotifyEvent sends one plain-text email reporting an emitted event to
// recipient. event is the event name declared in the ABI manifest;
// payloadJSON is its already-JSON-encoded payload.
func (n *Notifier) NotifyEvent(recipient, event string, payloadJSON []byte) error {
	if n.cfg.SMTPHost == "" {
		return nil
	}

	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return fmt.Errorf("hostsim: notify: set from: %w", err)
	}
	if err := m.To(recipient); err != nil {
		return fmt.Errorf("hostsim: notify: set to: %w", err)
	}
	m.Subject(fmt.Sprintf("wasmsvc event: %s", event))
	m.SetBodyString(mail.ContentType("text/plain"), string(payloadJSON))

	opts := []mail.Option{
		mail.WithPort(n.cfg.SMTPPort),
		mail.WithTimeout(30 * time.Second),
		mail.WithTLSConfig(&tls.Config{ServerName: n.cfg.SMTPHost}),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if n.cfg.Username != "" || n.cfg.Password != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain), mail.WithUsername(n.cfg.Username), mail.WithPassword(n.cfg.Password))
	}

	c, err := mail.NewClient(n.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("hostsim: notify: create client: %w", err)
	}

	if err := c.DialAndSend(m); err != nil {
		return fmt.Errorf("hostsim: notify: send: %w", err)
	}
	return nil
}
