//go:generate mockgen -source=sender.go -destination=mock_sender.go -package=mailer

package mailer

import (
	"context"
	"errors"
)

// Email is a rendered-on-send message: Template names a registered body and
// Replacements fills its placeholders.
type Email struct {
	To           []string          `json:"to" validate:"required,min=1,dive,required,email"`
	Subject      string            `json:"subject" validate:"required"`
	Template     string            `json:"template" validate:"required"`
	Replacements map[string]string `json:"replacements"`
}

// Sender delivers one email. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// ErrInvalidEmail marks an email that can never be delivered; retrying is pointless.
var ErrInvalidEmail = errors.New("invalid email")
