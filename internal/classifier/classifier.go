// Package classifier maps payment-processor webhook envelopes to alert
// decisions. Classification is total: malformed or partial payloads degrade to
// sentinel values and never produce an error.
package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmehdipour/payment-alerts/internal/model"
)

const (
	EventPaymentCreated = "payment.created"
	EventPaymentUpdated = "payment.updated"
	EventRefundCreated  = "refund.created"
	EventDisputeCreated = "dispute.created"
	EventDisputeUpdated = "dispute.updated"
	EventOrderCreated   = "order.created"

	unknown        = "UNKNOWN"
	disputePending = "PENDING"
)

// alertingPaymentStatuses trigger an alert regardless of amount.
var alertingPaymentStatuses = map[string]struct{}{
	"VOIDED":   {},
	"REFUNDED": {},
	"DISPUTED": {},
	"CANCELED": {},
}

// Classify returns the decision for one envelope.
func Classify(env model.EventEnvelope) model.Decision {
	d := model.Decision{EventType: env.Type}
	obj := env.Object

	switch env.Type {
	case EventPaymentCreated, EventPaymentUpdated:
		payment := object(obj, "payment")
		cents := minorUnits(lookup(payment, "amount_money", "amount"))
		status := strings.ToUpper(stringOr(lookup(payment, "status"), unknown))
		receipt := stringOr(lookup(payment, "receipt_number"), unknown)

		_, bad := alertingPaymentStatuses[status]
		if bad || cents == 0 {
			d.Alert = true
			d.Message = fmt.Sprintf("Receipt #%s was %s for $%s.", receipt, status, FormatAmount(cents))
		}

	case EventRefundCreated:
		refund := object(obj, "refund")
		id := stringOr(lookup(refund, "id"), unknown)
		cents := minorUnits(lookup(refund, "amount_money", "amount"))
		d.Alert = true
		d.Message = fmt.Sprintf("Refund %s created for $%s.", id, FormatAmount(cents))

	case EventDisputeCreated, EventDisputeUpdated:
		dispute := object(obj, "dispute")
		id := stringOr(lookup(dispute, "id"), unknown)
		reason := stringOr(lookup(dispute, "reason"), unknown)
		status := stringOr(lookup(dispute, "status"), disputePending)
		d.Alert = true
		d.Message = fmt.Sprintf("Dispute %s. Reason: %s. Status: %s.", id, reason, status)

	case EventOrderCreated:
		order := object(obj, "order")
		id := stringOr(lookup(order, "id"), unknown)
		d.Alert = true
		d.Message = fmt.Sprintf("New order created: %s.", id)

	default:
		d.Message = fmt.Sprintf("No action for event type: %s", env.Type)
	}

	return d
}

// FormatAmount renders minor units as major units with exactly two decimals.
func FormatAmount(cents float64) string {
	return strconv.FormatFloat(cents/100, 'f', 2, 64)
}

func object(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

// lookup walks nested objects; any missing or non-object hop yields nil.
func lookup(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

// stringOr returns v when it is a non-empty string, def otherwise.
func stringOr(v any, def string) string {
	switch s := v.(type) {
	case string:
		if s != "" {
			return s
		}
	case json.Number:
		return s.String()
	}
	return def
}

// minorUnits accepts JSON numbers and numeric strings; everything else is 0.
func minorUnits(v any) float64 {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return float64(i)
		}
		f, _ = n.Float64()
	case float64:
		f = n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	// "NaN", "Inf" and overflowing numbers parse without error
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Handled reports whether eventType has a classification rule.
func Handled(eventType string) bool {
	switch eventType {
	case EventPaymentCreated, EventPaymentUpdated, EventRefundCreated,
		EventDisputeCreated, EventDisputeUpdated, EventOrderCreated:
		return true
	}
	return false
}
