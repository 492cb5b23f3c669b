package event

import (
	"strings"
	"time"
)

type UserRegistered struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (UserRegistered) Type() Type             { return TypeUserRegistered }
func (e UserRegistered) PartitionKey() string { return e.UserID }

func (e UserRegistered) Validate() []FieldError {
	var errs fieldErrors
	errs.require("user_id", e.UserID)
	errs.require("email", e.Email)
	if e.Email != "" {
		errs.check(strings.Contains(e.Email, "@"), "email", "must be a valid email address")
	}
	return errs
}

type UserProfileUpdated struct {
	UserID        string    `json:"user_id"`
	ChangedFields []string  `json:"changed_fields"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (UserProfileUpdated) Type() Type             { return TypeUserProfileUpdated }
func (e UserProfileUpdated) PartitionKey() string { return e.UserID }

func (e UserProfileUpdated) Validate() []FieldError {
	var errs fieldErrors
	errs.require("user_id", e.UserID)
	errs.check(len(e.ChangedFields) > 0, "changed_fields", "must list at least one field")
	return errs
}

type OrderCreated struct {
	OrderID  string  `json:"order_id"`
	UserID   string  `json:"user_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (OrderCreated) Type() Type             { return TypeOrderCreated }
func (e OrderCreated) PartitionKey() string { return e.OrderID }

func (e OrderCreated) Validate() []FieldError {
	var errs fieldErrors
	errs.require("order_id", e.OrderID)
	errs.require("user_id", e.UserID)
	errs.check(e.Amount > 0, "amount", "must be positive")
	errs.check(len(e.Currency) == 3, "currency", "must be a 3-letter ISO code")
	return errs
}

type PaymentProcessed struct {
	PaymentID     string  `json:"payment_id"`
	OrderID       string  `json:"order_id"`
	UserID        string  `json:"user_id"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transaction_id"`
}

func (PaymentProcessed) Type() Type { return TypePaymentProcessed }

// PartitionKey keys payments by order so they follow the order's own events.
func (e PaymentProcessed) PartitionKey() string { return e.OrderID }

func (e PaymentProcessed) Validate() []FieldError {
	var errs fieldErrors
	errs.require("payment_id", e.PaymentID)
	errs.require("order_id", e.OrderID)
	errs.require("transaction_id", e.TransactionID)
	errs.check(e.Amount > 0, "amount", "must be positive")
	return errs
}

type PaymentFailed struct {
	PaymentID string  `json:"payment_id"`
	OrderID   string  `json:"order_id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}

func (PaymentFailed) Type() Type             { return TypePaymentFailed }
func (e PaymentFailed) PartitionKey() string { return e.OrderID }

func (e PaymentFailed) Validate() []FieldError {
	var errs fieldErrors
	errs.require("order_id", e.OrderID)
	errs.require("reason", e.Reason)
	return errs
}

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// SystemAlertRaised has no owning entity, so it is partitioned by event id.
type SystemAlertRaised struct {
	Source   string        `json:"source"`
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
}

func (SystemAlertRaised) Type() Type           { return TypeSystemAlertRaised }
func (SystemAlertRaised) PartitionKey() string { return "" }

func (e SystemAlertRaised) Validate() []FieldError {
	var errs fieldErrors
	errs.require("source", e.Source)
	errs.require("message", e.Message)
	switch e.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		errs = append(errs, FieldError{Field: "severity", Message: "must be one of info, warning, critical"})
	}
	return errs
}
