package intake

import (
	"math"
	"strings"
)

// MaxPayments is the number of payment slots on the form and in the table.
const MaxPayments = 4

// Payment statuses stored in medical_records.payment_status.
const (
	StatusPending    = "Pendiente"
	StatusIncomplete = "Incompleto"
	StatusComplete   = "Completado"
	StatusUnknown    = "N/A"
)

// bolivarMethods are the payment methods whose amounts are entered in VES.
// Keys are lower-cased.
var bolivarMethods = map[string]bool{
	"pago móvil":     true,
	"pago movil":     true,
	"transferencia":  true,
	"punto de venta": true,
	"efectivo bs":    true,
	"biopago":        true,
}

// IsBolivarMethod reports whether amounts paid with method are in bolívares.
// Every other method is treated as USD.
func IsBolivarMethod(method string) bool {
	return bolivarMethods[strings.ToLower(strings.TrimSpace(method))]
}

// PaymentDetails summarizes how far the payments cover the total, in USD.
type PaymentDetails struct {
	PaymentStatus string  `json:"payment_status"`
	MissingAmount float64 `json:"missing_amount"`
	PaidUSD       float64 `json:"paid_usd"`
	Surplus       float64 `json:"surplus"`
	// Degraded is set when a bolívar payment was counted without a usable
	// exchange rate, at face value.
	Degraded bool `json:"degraded"`
}

// CalculatePaymentDetails converts the received payments to USD and compares
// them against total at cent precision. Bolívar amounts are divided by rate;
// when rate is nil or not positive they count at face value and the result
// is marked degraded. Only the first MaxPayments entries are considered.
func CalculatePaymentDetails(payments []Payment, total float64, rate *float64) PaymentDetails {
	var d PaymentDetails
	convert := rate != nil && *rate > 0

	var paid float64
	for i, p := range payments {
		if i == MaxPayments {
			break
		}
		if p.Amount == nil || *p.Amount <= 0 {
			continue
		}
		amount := *p.Amount
		if IsBolivarMethod(p.Method) {
			if convert {
				amount /= *rate
			} else {
				d.Degraded = true
			}
		}
		paid += amount
	}

	paid = round2(paid)
	total = round2(total)
	d.PaidUSD = paid

	switch {
	case paid <= 0:
		d.PaymentStatus = StatusPending
		d.MissingAmount = total
	case paid < total:
		d.PaymentStatus = StatusIncomplete
		d.MissingAmount = round2(total - paid)
	default:
		d.PaymentStatus = StatusComplete
		d.Surplus = round2(paid - total)
	}
	return d
}

// MapPaymentColumns flattens payments into the twelve payment_* columns.
// Blank methods and references become null; a nil amount becomes null but a
// zero amount is kept. Entries past MaxPayments are ignored.
func MapPaymentColumns(payments []Payment) PaymentColumns {
	var (
		methods    [MaxPayments]*string
		amounts    [MaxPayments]*float64
		references [MaxPayments]*string
	)
	for i := 0; i < MaxPayments && i < len(payments); i++ {
		p := payments[i]
		methods[i] = optional(p.Method)
		if p.Amount != nil {
			amount := *p.Amount
			amounts[i] = &amount
		}
		references[i] = optional(p.Reference)
	}

	return PaymentColumns{
		PaymentMethod1: methods[0], PaymentAmount1: amounts[0], PaymentReference1: references[0],
		PaymentMethod2: methods[1], PaymentAmount2: amounts[1], PaymentReference2: references[1],
		PaymentMethod3: methods[2], PaymentAmount3: amounts[2], PaymentReference3: references[2],
		PaymentMethod4: methods[3], PaymentAmount4: amounts[3], PaymentReference4: references[3],
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
