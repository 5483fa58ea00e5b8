package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pitchflow-api/models"
)

// Invoicer abstracts the payment gateway. The engine only ever needs an
// invoice reference back; settlement itself is reported asynchronously through
// the payment-status operations.
type Invoicer interface {
	// CreateInvoice opens an invoice for the given amount and returns the
	// gateway reference to store on the milestone or pitch.
	CreateInvoice(pitch *models.Pitch, amount decimal.Decimal, description string) (string, error)
}

// ManualInvoicer issues MANUAL_ references for deployments without a gateway.
// Payments recorded against these references carry zero commission and release
// immediately.
type ManualInvoicer struct{}

func (ManualInvoicer) CreateInvoice(_ *models.Pitch, amount decimal.Decimal, _ string) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", &ValidationError{Field: "amount", Reason: "invoice amount must be positive"}
	}
	return models.ManualPaymentPrefix + strings.ToUpper(uuid.NewString()[:12]), nil
}

// IsManualReference reports whether a payment reference was issued outside the
// gateway.
func IsManualReference(ref string) bool {
	return strings.HasPrefix(ref, models.ManualPaymentPrefix)
}

// PayoutReference builds the reference string recorded when a payout schedule
// completes.
func PayoutReference(payoutID uint) string {
	return fmt.Sprintf("payout_%d_%s", payoutID, uuid.NewString()[:8])
}
