package mailer

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/go-playground/validator/v10"
)

// template names
const (
	TemplateCheckout             = "checkout"
	TemplateReturn               = "return"
	TemplateRenewal              = "renewal"
	TemplateOverdue              = "overdue"
	TemplateReservationAllocated = "reservation_allocated"
	TemplateReservationCancelled = "reservation_cancelled"
	TemplateMembershipChanged    = "membership_changed"
	TemplateMembershipExpiring   = "membership_expiring"
	TemplatePenalty              = "penalty"
)

var bodies = map[string]string{
	TemplateCheckout: `Hello {{.Name}},

You borrowed "{{.BookTitle}}". Please return it by {{.DueDate}}.`,
	TemplateReturn: `Hello {{.Name}},

We received "{{.BookTitle}}" back on {{.ReturnDate}}. Thank you.`,
	TemplateRenewal: `Hello {{.Name}},

"{{.BookTitle}}" is renewed. The new due date is {{.DueDate}} (renewal {{.RenewCount}}).`,
	TemplateOverdue: `Hello {{.Name}},

"{{.BookTitle}}" was due on {{.DueDate}} and is now overdue. A late fee of {{.Amount}} has been charged so far.`,
	TemplateReservationAllocated: `Hello {{.Name}},

The following reserved books are ready for pickup until {{.PickupBy}}:
{{.Books}}`,
	TemplateReservationCancelled: `Hello {{.Name}},

Your reservation for "{{.BookTitle}}" was cancelled ({{.Reason}}).`,
	TemplateMembershipChanged: `Hello {{.Name}},

Your {{.MembershipName}} membership runs from {{.StartDate}} to {{.ExpirationDate}}.`,
	TemplateMembershipExpiring: `Hello {{.Name}},

Your {{.MembershipName}} membership expires on {{.ExpirationDate}}.`,
	TemplatePenalty: `Hello {{.Name}},

A {{.PenaltyType}} penalty of {{.Amount}} was recorded on your account: {{.Description}}`,
}

var (
	templates = template.Must(parseTemplates())
	validate  = validator.New()
)

func parseTemplates() (*template.Template, error) {
	root := template.New("mail").Option("missingkey=zero")
	for name, body := range bodies {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// Validate rejects emails that can never be sent.
func Validate(email Email) error {
	if err := validate.Struct(email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	if templates.Lookup(email.Template) == nil {
		return fmt.Errorf("%w: unknown template %q", ErrInvalidEmail, email.Template)
	}
	return nil
}

// Render produces the plain-text body.
func Render(email Email) (string, error) {
	if err := Validate(email); err != nil {
		return "", err
	}
	data := email.Replacements
	if data == nil {
		data = map[string]string{}
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, email.Template, data); err != nil {
		return "", fmt.Errorf("render %s: %w", email.Template, err)
	}
	return buf.String(), nil
}
