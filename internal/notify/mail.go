// Package notify dispatches transactional email: order confirmations and
// onboarding decisions. Delivery is best effort; callers log failures and
// move on.
package notify

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	mail "github.com/wneessen/go-mail"

	"github.com/terangacraft/marketplace/internal/domain/artisan"
	"github.com/terangacraft/marketplace/internal/domain/order"
)

// Dispatcher is the notification collaborator consumed by the domain services.
type Dispatcher interface {
	OrderConfirmed(ctx context.Context, o *order.Order) error
	ArtisanValidated(ctx context.Context, a *artisan.Artisan) error
	ArtisanSuspended(ctx context.Context, a *artisan.Artisan) error
}

// Config holds SMTP settings. An empty Host disables dispatch.
type Config struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// Mailer sends notifications over SMTP.
type Mailer struct {
	cfg Config
}

var _ Dispatcher = (*Mailer)(nil)

// NewMailer creates an SMTP-backed dispatcher.
func NewMailer(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// OrderConfirmed sends the buyer an order confirmation. The buyer key is an
// opaque identity; only keys that look like addresses are deliverable.
func (m *Mailer) OrderConfirmed(ctx context.Context, o *order.Order) error {
	subject := fmt.Sprintf("Commande %s confirmée", o.ID)
	body := fmt.Sprintf("Votre commande de %s FCFA a été confirmée. Merci !", o.Total.StringFixed(0))
	return m.send(ctx, o.BuyerKey, subject, body)
}

// ArtisanValidated notifies an artisan that their boutique is live.
func (m *Mailer) ArtisanValidated(ctx context.Context, a *artisan.Artisan) error {
	subject := "Votre boutique est validée"
	body := fmt.Sprintf("Félicitations, la boutique %q peut désormais vendre sur la plateforme.", a.BoutiqueName)
	return m.send(ctx, a.IdentityKey, subject, body)
}

// ArtisanSuspended notifies an artisan of a suspension.
func (m *Mailer) ArtisanSuspended(ctx context.Context, a *artisan.Artisan) error {
	subject := "Votre boutique est suspendue"
	body := fmt.Sprintf("La boutique %q a été suspendue. Contactez le support pour plus de détails.", a.BoutiqueName)
	return m.send(ctx, a.IdentityKey, subject, body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return errors.Wrap(err, "set from")
	}
	if err := msg.To(to); err != nil {
		return errors.Wrap(err, "set recipient")
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return errors.Wrap(err, "smtp client")
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// Noop is the dispatcher used when SMTP is not configured.
type Noop struct{}

var _ Dispatcher = Noop{}

func (Noop) OrderConfirmed(context.Context, *order.Order) error       { return nil }
func (Noop) ArtisanValidated(context.Context, *artisan.Artisan) error { return nil }
func (Noop) ArtisanSuspended(context.Context, *artisan.Artisan) error { return nil }
