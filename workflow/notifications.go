package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/mailer"
	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Recipient is captured when the event happens so delivery needs no lookups.
type Recipient struct {
	UserId int    `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func recipientOf(u *models.User) Recipient {
	return Recipient{UserId: u.ID, Name: u.Name, Email: u.Email}
}

func (r Recipient) email(subject, template string, replacements map[string]string) mailer.Email {
	replacements["Name"] = r.Name
	return mailer.Email{
		To:           []string{r.Email},
		Subject:      subject,
		Template:     template,
		Replacements: replacements,
	}
}

// Notification is one typed outbox payload.
type Notification interface {
	Type() models.OutboxMessageType
	UserID() int
	Render() mailer.Email
}

type CheckoutNotification struct {
	To            Recipient `json:"to"`
	TransactionId int       `json:"transaction_id"`
	BookTitle     string    `json:"book_title"`
	DueDate       time.Time `json:"due_date"`
}

func (n CheckoutNotification) Type() models.OutboxMessageType {
	return models.OutboxMessageTypeCheckout
}
func (n CheckoutNotification) UserID() int { return n.To.UserId }
func (n CheckoutNotification) Render() mailer.Email {
	return n.To.email("Book borrowed: "+n.BookTitle, mailer.TemplateCheckout, map[string]string{
		"BookTitle": n.BookTitle,
		"DueDate":   n.DueDate.Format(dateLayout),
	})
}

type ReturnNotification struct {
	To            Recipient `json:"to"`
	TransactionId int       `json:"transaction_id"`
	BookTitle     string    `json:"book_title"`
	ReturnDate    time.Time `json:"return_date"`
}

func (n ReturnNotification) Type() models.OutboxMessageType { return models.OutboxMessageTypeReturn }
func (n ReturnNotification) UserID() int                    { return n.To.UserId }
func (n ReturnNotification) Render() mailer.Email {
	return n.To.email("Book returned: "+n.BookTitle, mailer.TemplateReturn, map[string]string{
		"BookTitle":  n.BookTitle,
		"ReturnDate": n.ReturnDate.Format(dateLayout),
	})
}

type RenewalNotification struct {
	To            Recipient `json:"to"`
	TransactionId int       `json:"transaction_id"`
	BookTitle     string    `json:"book_title"`
	DueDate       time.Time `json:"due_date"`
	RenewCount    int       `json:"renew_count"`
}

func (n RenewalNotification) Type() models.OutboxMessageType { return models.OutboxMessageTypeRenewal }
func (n RenewalNotification) UserID() int                    { return n.To.UserId }
func (n RenewalNotification) Render() mailer.Email {
	return n.To.email("Book renewed: "+n.BookTitle, mailer.TemplateRenewal, map[string]string{
		"BookTitle":  n.BookTitle,
		"DueDate":    n.DueDate.Format(dateLayout),
		"RenewCount": strconv.Itoa(n.RenewCount),
	})
}

type OverdueNotification struct {
	To            Recipient       `json:"to"`
	TransactionId int             `json:"transaction_id"`
	BookTitle     string          `json:"book_title"`
	DueDate       time.Time       `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
}

func (n OverdueNotification) Type() models.OutboxMessageType { return models.OutboxMessageTypeOverdue }
func (n OverdueNotification) UserID() int                    { return n.To.UserId }
func (n OverdueNotification) Render() mailer.Email {
	return n.To.email("Overdue: "+n.BookTitle, mailer.TemplateOverdue, map[string]string{
		"BookTitle": n.BookTitle,
		"DueDate":   n.DueDate.Format(dateLayout),
		"Amount":    n.Amount.StringFixed(2),
	})
}

type ReservationAllocatedNotification struct {
	To            Recipient `json:"to"`
	ReservationId int       `json:"reservation_id"`
	BookTitle     string    `json:"book_title"`
	PickupBy      time.Time `json:"pickup_by"`
}

func (n ReservationAllocatedNotification) Type() models.OutboxMessageType {
	return models.OutboxMessageTypeReservationAllocated
}
func (n ReservationAllocatedNotification) UserID() int { return n.To.UserId }
func (n ReservationAllocatedNotification) Render() mailer.Email {
	return renderAllocations([]ReservationAllocatedNotification{n})
}

// renderAllocations builds one pickup email for several allocations to the same user.
func renderAllocations(ns []ReservationAllocatedNotification) mailer.Email {
	titles := make([]string, 0, len(ns))
	pickupBy := ns[0].PickupBy
	for _, n := range ns {
		titles = append(titles, "- "+n.BookTitle)
		if n.PickupBy.Before(pickupBy) {
			pickupBy = n.PickupBy
		}
	}
	subject := "Reserved book ready: " + ns[0].BookTitle
	if len(ns) > 1 {
		subject = fmt.Sprintf("%d reserved books ready for pickup", len(ns))
	}
	return ns[0].To.email(subject, mailer.TemplateReservationAllocated, map[string]string{
		"Books":    strings.Join(titles, "\n"),
		"PickupBy": pickupBy.Format(dateLayout),
	})
}

type ReservationCancelledNotification struct {
	To            Recipient `json:"to"`
	ReservationId int       `json:"reservation_id"`
	BookTitle     string    `json:"book_title"`
	Reason        string    `json:"reason"`
}

func (n ReservationCancelledNotification) Type() models.OutboxMessageType {
	return models.OutboxMessageTypeReservationCancelled
}
func (n ReservationCancelledNotification) UserID() int { return n.To.UserId }
func (n ReservationCancelledNotification) Render() mailer.Email {
	return n.To.email("Reservation cancelled: "+n.BookTitle, mailer.TemplateReservationCancelled, map[string]string{
		"BookTitle": n.BookTitle,
		"Reason":    n.Reason,
	})
}

type MembershipChangedNotification struct {
	To             Recipient `json:"to"`
	MappingId      int       `json:"mapping_id"`
	MembershipName string    `json:"membership_name"`
	StartDate      time.Time `json:"start_date"`
	ExpirationDate time.Time `json:"expiration_date"`
}

func (n MembershipChangedNotification) Type() models.OutboxMessageType {
	return models.OutboxMessageTypeMembershipChanged
}
func (n MembershipChangedNotification) UserID() int { return n.To.UserId }
func (n MembershipChangedNotification) Render() mailer.Email {
	return n.To.email("Membership updated", mailer.TemplateMembershipChanged, map[string]string{
		"MembershipName": n.MembershipName,
		"StartDate":      n.StartDate.Format(dateLayout),
		"ExpirationDate": n.ExpirationDate.Format(dateLayout),
	})
}

type MembershipExpiringNotification struct {
	To             Recipient `json:"to"`
	MappingId      int       `json:"mapping_id"`
	MembershipName string    `json:"membership_name"`
	ExpirationDate time.Time `json:"expiration_date"`
}

func (n MembershipExpiringNotification) Type() models.OutboxMessageType {
	return models.OutboxMessageTypeMembershipExpiring
}
func (n MembershipExpiringNotification) UserID() int { return n.To.UserId }
func (n MembershipExpiringNotification) Render() mailer.Email {
	return n.To.email("Membership expiring soon", mailer.TemplateMembershipExpiring, map[string]string{
		"MembershipName": n.MembershipName,
		"ExpirationDate": n.ExpirationDate.Format(dateLayout),
	})
}

type PenaltyNotification struct {
	To          Recipient          `json:"to"`
	PenaltyId   int                `json:"penalty_id"`
	PenaltyType models.PenaltyType `json:"penalty_type"`
	Amount      decimal.Decimal    `json:"amount"`
	Description string             `json:"description"`
}

func (n PenaltyNotification) Type() models.OutboxMessageType { return models.OutboxMessageTypePenalty }
func (n PenaltyNotification) UserID() int                    { return n.To.UserId }
func (n PenaltyNotification) Render() mailer.Email {
	return n.To.email("Penalty recorded", mailer.TemplatePenalty, map[string]string{
		"PenaltyType": string(n.PenaltyType),
		"Amount":      n.Amount.StringFixed(2),
		"Description": n.Description,
	})
}

// DecodeNotification turns a stored payload back into its typed form.
// Unknown types and bad JSON are BadRequest: retrying cannot fix them.
func DecodeNotification(t models.OutboxMessageType, payload []byte) (Notification, error) {
	switch t {
	case models.OutboxMessageTypeCheckout:
		return decodeAs[CheckoutNotification](t, payload)
	case models.OutboxMessageTypeReturn:
		return decodeAs[ReturnNotification](t, payload)
	case models.OutboxMessageTypeRenewal:
		return decodeAs[RenewalNotification](t, payload)
	case models.OutboxMessageTypeOverdue:
		return decodeAs[OverdueNotification](t, payload)
	case models.OutboxMessageTypeReservationAllocated:
		return decodeAs[ReservationAllocatedNotification](t, payload)
	case models.OutboxMessageTypeReservationCancelled:
		return decodeAs[ReservationCancelledNotification](t, payload)
	case models.OutboxMessageTypeMembershipChanged:
		return decodeAs[MembershipChangedNotification](t, payload)
	case models.OutboxMessageTypeMembershipExpiring:
		return decodeAs[MembershipExpiringNotification](t, payload)
	case models.OutboxMessageTypePenalty:
		return decodeAs[PenaltyNotification](t, payload)
	}
	return nil, utils.NewBadRequestError("unknown notification type %q", t)
}

func decodeAs[T Notification](t models.OutboxMessageType, payload []byte) (Notification, error) {
	var n T
	if err := utils.UnmarshalFromJSON(payload, &n); err != nil {
		return nil, utils.NewBadRequestError("decode %s payload: %v", t, err)
	}
	return n, nil
}
