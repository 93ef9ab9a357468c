package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medintake/intake/internal/platform/db"
)

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const recordCols = `id, full_name, id_number, phone, age, email, exam_type, origin,
	treating_doctor, sample_type, number_of_samples, relationship, branch, date,
	total_amount::float8, comments, exchange_rate, payment_status, remaining::float8,
	payment_method_1, payment_amount_1::float8, payment_reference_1,
	payment_method_2, payment_amount_2::float8, payment_reference_2,
	payment_method_3, payment_amount_3::float8, payment_reference_3,
	payment_method_4, payment_amount_4::float8, payment_reference_4,
	created_by, created_at`

func (r *recordRepoPG) scanRow(row pgx.Row) (*Record, error) {
	var rec Record
	var date time.Time
	s := &rec.Submission
	err := row.Scan(&rec.ID, &s.FullName, &s.IDNumber, &s.Phone, &s.Age, &s.Email, &s.ExamType, &s.Origin,
		&s.TreatingDoctor, &s.SampleType, &s.NumberOfSamples, &s.Relationship, &s.Branch, &date,
		&s.TotalAmount, &s.Comments, &s.ExchangeRate, &s.PaymentStatus, &s.Remaining,
		&s.PaymentMethod1, &s.PaymentAmount1, &s.PaymentReference1,
		&s.PaymentMethod2, &s.PaymentAmount2, &s.PaymentReference2,
		&s.PaymentMethod3, &s.PaymentAmount3, &s.PaymentReference3,
		&s.PaymentMethod4, &s.PaymentAmount4, &s.PaymentReference4,
		&rec.CreatedBy, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Date = date.UTC().Format(ISOLayout)
	return &rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, sub Submission, createdBy string) (*Record, error) {
	date, err := time.Parse(time.RFC3339Nano, sub.Date)
	if err != nil {
		return nil, fmt.Errorf("record date %q: %w", sub.Date, err)
	}

	id := uuid.New()
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_records (id, full_name, id_number, phone, age, email, exam_type, origin,
			treating_doctor, sample_type, number_of_samples, relationship, branch, date,
			total_amount, comments, exchange_rate, payment_status, remaining,
			payment_method_1, payment_amount_1, payment_reference_1,
			payment_method_2, payment_amount_2, payment_reference_2,
			payment_method_3, payment_amount_3, payment_reference_3,
			payment_method_4, payment_amount_4, payment_reference_4,
			created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
			$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)
		RETURNING `+recordCols,
		id, sub.FullName, sub.IDNumber, sub.Phone, sub.Age, sub.Email, sub.ExamType, sub.Origin,
		sub.TreatingDoctor, sub.SampleType, sub.NumberOfSamples, sub.Relationship, sub.Branch, date,
		sub.TotalAmount, sub.Comments, sub.ExchangeRate, sub.PaymentStatus, sub.Remaining,
		sub.PaymentMethod1, sub.PaymentAmount1, sub.PaymentReference1,
		sub.PaymentMethod2, sub.PaymentAmount2, sub.PaymentReference2,
		sub.PaymentMethod3, sub.PaymentAmount3, sub.PaymentReference3,
		sub.PaymentMethod4, sub.PaymentAmount4, sub.PaymentReference4,
		optional(createdBy))
	rec, err := r.scanRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert medical record: %w", err)
	}
	return rec, nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM medical_records WHERE id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return rec, nil
}

// likeEscaper makes LIKE wildcards in a search term match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// buildWhere returns the WHERE clause for f and its positional args.
func buildWhere(f ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Branch != "" {
		add("branch = $%d", f.Branch)
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", f.PaymentStatus)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(full_name ILIKE $%d ESCAPE '\' OR id_number ILIKE $%d ESCAPE '\')`, n, n))
	}
	if f.From != nil {
		add("date >= $%d", *f.From)
	}
	if f.To != nil {
		add("date < $%d", *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *recordRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Record, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medical_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medical records: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+recordCols+` FROM medical_records%s ORDER BY date DESC, created_at DESC LIMIT $%d OFFSET $%d`, where, n+1, n+2),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medical records: %w", err)
	}
	defer rows.Close()

	items := []*Record{}
	for rows.Next() {
		rec, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *recordRepoPG) CountByDay(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(date AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM medical_records
		WHERE date >= $1 AND date < $2
		GROUP BY day ORDER BY day`, from, to)
	if err != nil {
		return nil, fmt.Errorf("count records by day: %w", err)
	}
	defer rows.Close()

	days := []DayCount{}
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Day, &d.Total); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
