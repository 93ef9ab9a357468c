package intake

import (
	"encoding/json"
	"testing"
	"time"
)

func baseForm() FormValues {
	return FormValues{
		FullName:    "Ana Pérez",
		IDNumber:    "V-12345678",
		Phone:       "0412-1234567",
		ExamType:    "Biopsia",
		Branch:      "Centro",
		Date:        DateFromString("2024-03-05T14:30:00Z"),
		TotalAmount: 50,
	}
}

func TestPrepareSubmissionData_ExactPaymentCompletes(t *testing.T) {
	for _, rate := range []*float64{nil, amt(0), amt(36.5), amt(1000)} {
		v := baseForm()
		v.Payments = []Payment{{Method: "Zelle", Amount: amt(25)}, {Method: "Efectivo $", Amount: amt(25)}}
		sub := PrepareSubmissionData(v, rate)
		if sub.PaymentStatus != StatusComplete {
			t.Errorf("rate %v: status = %q, want Completado", rate, sub.PaymentStatus)
		}
		if sub.Remaining != 0 {
			t.Errorf("rate %v: remaining = %v, want 0", rate, sub.Remaining)
		}
	}
}

func TestPrepareSubmissionData_RemainingFollowsMissing(t *testing.T) {
	v := baseForm()
	v.Payments = []Payment{{Method: "Pago Móvil", Amount: amt(720)}}
	sub := PrepareSubmissionData(v, amt(36))
	if sub.PaymentStatus != StatusIncomplete {
		t.Fatalf("status = %q, want Incompleto", sub.PaymentStatus)
	}
	if sub.Remaining != 30 {
		t.Errorf("remaining = %v, want 30", sub.Remaining)
	}

	sub = PrepareSubmissionData(baseForm(), amt(36))
	if sub.PaymentStatus != StatusPending || sub.Remaining != 50 {
		t.Errorf("no payments: got %q / %v", sub.PaymentStatus, sub.Remaining)
	}
}

func TestPrepareSubmissionData_ExchangeRate(t *testing.T) {
	sub := PrepareSubmissionData(baseForm(), nil)
	if sub.ExchangeRate != nil {
		t.Errorf("exchange_rate = %v, want nil", *sub.ExchangeRate)
	}

	rate := amt(36.25)
	sub = PrepareSubmissionData(baseForm(), rate)
	if sub.ExchangeRate == nil || *sub.ExchangeRate != 36.25 {
		t.Fatalf("exchange_rate = %v, want 36.25", sub.ExchangeRate)
	}
	*rate = 1
	if *sub.ExchangeRate != 36.25 {
		t.Error("exchange_rate must not alias the caller's value")
	}

	raw, _ := json.Marshal(PrepareSubmissionData(baseForm(), nil))
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	if v, ok := m["exchange_rate"]; !ok || v != nil {
		t.Errorf("expected exchange_rate: null in payload, got %v (present=%v)", v, ok)
	}
}

func TestPrepareSubmissionData_DateNormalization(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	caracas := time.FixedZone("VET", -4*3600)

	inputs := map[string]DateInput{
		"time":            DateFromTime(ts),
		"time other zone": DateFromTime(ts.In(caracas)),
		"iso string":      DateFromString("2024-03-05T14:30:00.000Z"),
		"rfc3339 offset":  DateFromString("2024-03-05T10:30:00-04:00"),
		"naive string":    DateFromString("2024-03-05T14:30:00"),
	}
	for name, in := range inputs {
		v := baseForm()
		v.Date = in
		if got := PrepareSubmissionData(v, nil).Date; got != "2024-03-05T14:30:00.000Z" {
			t.Errorf("%s: date = %q", name, got)
		}
	}

	v := baseForm()
	v.Date = DateFromString("2024-03-05")
	if got := PrepareSubmissionData(v, nil).Date; got != "2024-03-05T00:00:00.000Z" {
		t.Errorf("date only: got %q", got)
	}

	v.Date = DateFromString("next tuesday")
	if got := PrepareSubmissionData(v, nil).Date; got != "next tuesday" {
		t.Errorf("unparseable date should pass through, got %q", got)
	}
}

func TestPrepareSubmissionData_OptionalFields(t *testing.T) {
	v := baseForm()
	v.Email = ""
	v.Comments = "   "
	age := 0
	v.Age = &age

	sub := PrepareSubmissionData(v, nil)
	if sub.Email != nil || sub.Comments != nil {
		t.Error("blank strings must be stored as null")
	}
	if sub.Age == nil || *sub.Age != 0 {
		t.Error("zero age must be preserved")
	}
	if sub.Phone == nil || *sub.Phone != "0412-1234567" {
		t.Errorf("phone = %v", sub.Phone)
	}
	if sub.FullName != "Ana Pérez" || sub.IDNumber != "V-12345678" {
		t.Errorf("identity fields not copied: %+v", sub)
	}
}

func TestPrepare_ReturnsDetails(t *testing.T) {
	v := baseForm()
	v.Payments = []Payment{{Method: "Zelle", Amount: amt(70)}}
	sub, details := prepare(v, nil)
	if details.Surplus != 20 || sub.Remaining != 0 {
		t.Errorf("surplus = %v remaining = %v", details.Surplus, sub.Remaining)
	}
	if sub.PaymentAmount1 == nil || *sub.PaymentAmount1 != 70 {
		t.Error("payment columns not embedded")
	}
}

func TestDateInput_JSON(t *testing.T) {
	var v FormValues
	if err := json.Unmarshal([]byte(`{"date":"2024-03-05T14:30:00Z"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Date.ISO() != "2024-03-05T14:30:00.000Z" || !v.Date.Valid() {
		t.Errorf("date = %q", v.Date.ISO())
	}

	if err := json.Unmarshal([]byte(`{"date":null}`), &v); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !v.Date.IsZero() {
		t.Error("null date should be zero")
	}

	if err := json.Unmarshal([]byte(`{"date":12}`), &v); err == nil {
		t.Error("expected error for numeric date")
	}

	raw, _ := json.Marshal(struct {
		D DateInput `json:"d"`
	}{DateFromTime(time.Date(2024, 1, 2, 3, 4, 5, 6e6, time.UTC))})
	if string(raw) != `{"d":"2024-01-02T03:04:05.006Z"}` {
		t.Errorf("marshal = %s", raw)
	}
}
