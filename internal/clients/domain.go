package clients

import (
	"fmt"
	"strings"
	"time"

	"github.com/printhub/backoffice/internal/shared"
)

// Client is a customer company with its credit terms.
type Client struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	BusinessNo         string    `json:"business_no"`
	CreditDays         *int      `json:"credit_days,omitempty"`
	PaymentDay         *int      `json:"payment_day,omitempty"`
	DuplicateCheckDays *int      `json:"duplicate_check_days,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ErrClientNotFound indicates missing client.
var ErrClientNotFound = fmt.Errorf("%w: client", shared.ErrNotFound)

// DueDate derives the payment due date for a sale on the given day. A credit
// window of N days takes precedence over a fixed day of next month; with
// neither configured the sale is due on receipt and nil is returned.
func (c Client) DueDate(day time.Time) *time.Time {
	base := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	switch {
	case c.CreditDays != nil:
		due := base.AddDate(0, 0, *c.CreditDays)
		return &due
	case c.PaymentDay != nil && *c.PaymentDay > 0:
		firstOfNext := time.Date(base.Year(), base.Month()+1, 1, 0, 0, 0, 0, base.Location())
		lastDay := firstOfNext.AddDate(0, 1, -1).Day()
		d := *c.PaymentDay
		if d > lastDay {
			d = lastDay
		}
		due := time.Date(firstOfNext.Year(), firstOfNext.Month(), d, 0, 0, 0, 0, base.Location())
		return &due
	default:
		return nil
	}
}

// DuplicateWindow returns the client's duplicate-check window or def.
func (c Client) DuplicateWindow(def int) int {
	if c.DuplicateCheckDays != nil && *c.DuplicateCheckDays > 0 {
		return *c.DuplicateCheckDays
	}
	return def
}

// Input carries create and update fields.
type Input struct {
	Name               string `json:"name" validate:"required,max=200"`
	BusinessNo         string `json:"business_no" validate:"max=20"`
	CreditDays         *int   `json:"credit_days" validate:"omitempty,gte=0,lte=365"`
	PaymentDay         *int   `json:"payment_day" validate:"omitempty,gte=1,lte=31"`
	DuplicateCheckDays *int   `json:"duplicate_check_days" validate:"omitempty,gte=1,lte=365"`
}

func (in Input) normalised() Input {
	in.Name = strings.TrimSpace(in.Name)
	in.BusinessNo = strings.TrimSpace(in.BusinessNo)
	return in
}
