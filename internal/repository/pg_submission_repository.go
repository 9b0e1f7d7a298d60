package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solarhub/backend/internal/model"
)

// PgSubmissionRepository is the PostgreSQL implementation of SubmissionRepository.
type PgSubmissionRepository struct {
	pool        *pgxpool.Pool
	dedupWindow time.Duration
}

// NewPgSubmissionRepository creates a PgSubmissionRepository backed by the given pool.
// A submission with the same phone and message as one stored within
// dedupWindow is rejected with ErrDuplicate; zero disables the check.
func NewPgSubmissionRepository(pool *pgxpool.Pool, dedupWindow time.Duration) *PgSubmissionRepository {
	return &PgSubmissionRepository{pool: pool, dedupWindow: dedupWindow}
}

// Ensure PgSubmissionRepository implements SubmissionRepository at compile time.
var _ SubmissionRepository = (*PgSubmissionRepository)(nil)

// Ping checks the pool.
func (r *PgSubmissionRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Create inserts a contact_submissions row unless an identical one was stored
// within the duplicate window, and populates ID and CreatedAt from RETURNING.
func (r *PgSubmissionRepository) Create(ctx context.Context, s *model.ContactSubmission) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO contact_submissions (
		     name, email, phone, company, location, subject, message,
		     form_type, user_type, source,
		     system_type, monthly_bill, business_type, power_consumption, industrial_scale,
		     metadata)
		 SELECT $1::text, NULLIF($2::text, ''), $3::text, NULLIF($4::text, ''), NULLIF($5::text, ''), $6::text, $7::text,
		        $8::text, $9::text, $10::text,
		        NULLIF($11::text, ''), NULLIF($12::text, ''), NULLIF($13::text, ''), NULLIF($14::text, ''), NULLIF($15::text, ''),
		        $16::jsonb
		 WHERE $17::float8 = 0 OR NOT EXISTS (
		     SELECT 1 FROM contact_submissions
		     WHERE phone = $3::text AND message = $7::text
		       AND created_at > now() - make_interval(secs => $17::float8))
		 RETURNING id, created_at`,
		s.Name, s.Email, s.Phone, s.Company, s.Location, s.Subject, s.Message,
		s.FormType, s.UserType, s.Source,
		s.SystemType, s.MonthlyBill, s.BusinessType, s.PowerConsumption, s.IndustrialScale,
		s.Metadata,
		r.dedupWindow.Seconds(),
	).Scan(&s.ID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	return classifyPgError(err)
}

const submissionSelectCols = `id, name, COALESCE(email, ''), phone, COALESCE(company, ''), COALESCE(location, ''),
	subject, message, form_type, user_type, source,
	COALESCE(system_type, ''), COALESCE(monthly_bill, ''), COALESCE(business_type, ''),
	COALESCE(power_consumption, ''), COALESCE(industrial_scale, ''),
	metadata, created_at`

// FindByID returns the submission with the given ID or ErrNotFound.
func (r *PgSubmissionRepository) FindByID(ctx context.Context, id string) (*model.ContactSubmission, error) {
	var s model.ContactSubmission
	err := r.pool.QueryRow(ctx,
		`SELECT `+submissionSelectCols+` FROM contact_submissions WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.Company, &s.Location,
		&s.Subject, &s.Message, &s.FormType, &s.UserType, &s.Source,
		&s.SystemType, &s.MonthlyBill, &s.BusinessType, &s.PowerConsumption, &s.IndustrialScale,
		&s.Metadata, &s.CreatedAt)
	if err != nil {
		return nil, classifyPgError(err)
	}
	return &s, nil
}
