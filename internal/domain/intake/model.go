package intake

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ISOLayout is the wire format of the date column: UTC with milliseconds.
const ISOLayout = "2006-01-02T15:04:05.000Z"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Payment is one entry of the form's payment list. Amount is nil when the
// field was left blank; zero is a real amount.
type Payment struct {
	Method    string   `json:"method"`
	Amount    *float64 `json:"amount"`
	Reference string   `json:"reference"`
}

// PaymentColumns is the fixed-width flattening of up to four payments.
// Every key is always serialized, absent slots as null.
type PaymentColumns struct {
	PaymentMethod1    *string  `json:"payment_method_1"`
	PaymentAmount1    *float64 `json:"payment_amount_1"`
	PaymentReference1 *string  `json:"payment_reference_1"`
	PaymentMethod2    *string  `json:"payment_method_2"`
	PaymentAmount2    *float64 `json:"payment_amount_2"`
	PaymentReference2 *string  `json:"payment_reference_2"`
	PaymentMethod3    *string  `json:"payment_method_3"`
	PaymentAmount3    *float64 `json:"payment_amount_3"`
	PaymentReference3 *string  `json:"payment_reference_3"`
	PaymentMethod4    *string  `json:"payment_method_4"`
	PaymentAmount4    *float64 `json:"payment_amount_4"`
	PaymentReference4 *string  `json:"payment_reference_4"`
}

// DateInput holds the form's date as either a time value or a string typed
// by the client.
type DateInput struct {
	t   time.Time
	raw string
}

func DateFromTime(t time.Time) DateInput { return DateInput{t: t} }

func DateFromString(s string) DateInput { return DateInput{raw: s} }

func (d DateInput) IsZero() bool {
	return d.t.IsZero() && strings.TrimSpace(d.raw) == ""
}

// ISO renders the date in ISOLayout. Strings that match none of the
// accepted layouts are returned unchanged.
func (d DateInput) ISO() string {
	if !d.t.IsZero() {
		return d.t.UTC().Format(ISOLayout)
	}
	if t, ok := parseDate(d.raw); ok {
		return t.UTC().Format(ISOLayout)
	}
	return d.raw
}

// Valid reports whether the date is a time value or a parseable string.
func (d DateInput) Valid() bool {
	if !d.t.IsZero() {
		return true
	}
	_, ok := parseDate(d.raw)
	return ok
}

func (d *DateInput) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = DateInput{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*d = DateFromString(s)
	return nil
}

func (d DateInput) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.ISO())
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormValues is the typed snapshot of the intake form at submission time.
type FormValues struct {
	FullName        string    `json:"full_name"`
	IDNumber        string    `json:"id_number"`
	Phone           string    `json:"phone"`
	Age             *int      `json:"age"`
	Email           string    `json:"email"`
	ExamType        string    `json:"exam_type"`
	Origin          string    `json:"origin"`
	TreatingDoctor  string    `json:"treating_doctor"`
	SampleType      string    `json:"sample_type"`
	NumberOfSamples *int      `json:"number_of_samples"`
	Relationship    string    `json:"relationship"`
	Branch          string    `json:"branch"`
	Date            DateInput `json:"date"`
	TotalAmount     float64   `json:"total_amount"`
	Comments        string    `json:"comments"`
	Payments        []Payment `json:"payments"`
}

// Submission is the row written to medical_records. JSON keys are the
// column names.
type Submission struct {
	FullName        string   `json:"full_name"`
	IDNumber        string   `json:"id_number"`
	Phone           *string  `json:"phone"`
	Age             *int     `json:"age"`
	Email           *string  `json:"email"`
	ExamType        *string  `json:"exam_type"`
	Origin          *string  `json:"origin"`
	TreatingDoctor  *string  `json:"treating_doctor"`
	SampleType      *string  `json:"sample_type"`
	NumberOfSamples *int     `json:"number_of_samples"`
	Relationship    *string  `json:"relationship"`
	Branch          *string  `json:"branch"`
	Date            string   `json:"date"`
	TotalAmount     float64  `json:"total_amount"`
	Comments        *string  `json:"comments"`
	ExchangeRate    *float64 `json:"exchange_rate"`
	PaymentStatus   string   `json:"payment_status"`
	Remaining       float64  `json:"remaining"`
	PaymentColumns
}

// Record is a stored submission.
type Record struct {
	ID uuid.UUID `json:"id"`
	Submission
	CreatedBy *string   `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows record listings. Zero values match everything; To is
// exclusive.
type ListFilter struct {
	Branch        string
	PaymentStatus string
	Query         string
	From          *time.Time
	To            *time.Time
}

// DayCount is one cell of the calendar view.
type DayCount struct {
	Day   string `json:"day"`
	Total int    `json:"total"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
