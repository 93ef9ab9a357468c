package intake

// PrepareSubmissionData builds the medical_records row from the form. rate
// is the USD to VES rate at submission time, nil when it could not be
// fetched. It performs no I/O and never fails.
func PrepareSubmissionData(values FormValues, rate *float64) Submission {
	sub, _ := prepare(values, rate)
	return sub
}

func prepare(v FormValues, rate *float64) (Submission, PaymentDetails) {
	details := CalculatePaymentDetails(v.Payments, v.TotalAmount, rate)

	status := details.PaymentStatus
	if status == "" {
		status = StatusUnknown
	}
	remaining := details.MissingAmount
	if status == StatusComplete {
		remaining = 0
	}

	var exchangeRate *float64
	if rate != nil {
		r := *rate
		exchangeRate = &r
	}

	return Submission{
		FullName:        v.FullName,
		IDNumber:        v.IDNumber,
		Phone:           optional(v.Phone),
		Age:             v.Age,
		Email:           optional(v.Email),
		ExamType:        optional(v.ExamType),
		Origin:          optional(v.Origin),
		TreatingDoctor:  optional(v.TreatingDoctor),
		SampleType:      optional(v.SampleType),
		NumberOfSamples: v.NumberOfSamples,
		Relationship:    optional(v.Relationship),
		Branch:          optional(v.Branch),
		Date:            v.Date.ISO(),
		TotalAmount:     v.TotalAmount,
		Comments:        optional(v.Comments),
		ExchangeRate:    exchangeRate,
		PaymentStatus:   status,
		Remaining:       remaining,
		PaymentColumns:  MapPaymentColumns(v.Payments),
	}, details
}
