package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/solarhub/backend/internal/model"
	"gorm.io/gorm"
)

// submissionRecord is the gorm row shape of a ContactSubmission.
type submissionRecord struct {
	ID               string `gorm:"primaryKey;size:36"`
	Name             string `gorm:"not null"`
	Email            string `gorm:"index"`
	Phone            string `gorm:"not null;index:idx_contact_submissions_dedup,priority:1"`
	Company          string
	Location         string
	Subject          string `gorm:"not null"`
	Message          string `gorm:"type:text;not null"`
	FormType         string `gorm:"not null"`
	UserType         string `gorm:"not null"`
	Source           string `gorm:"not null"`
	SystemType       string
	MonthlyBill      string
	BusinessType     string
	PowerConsumption string
	IndustrialScale  string
	Metadata         model.Metadata `gorm:"serializer:json;type:text"`
	CreatedAt        time.Time      `gorm:"index:idx_contact_submissions_dedup,priority:2"`
}

// TableName specifies the table name for submissionRecord
func (submissionRecord) TableName() string {
	return "contact_submissions"
}

// BeforeCreate assigns the server-side identifier.
func (r *submissionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func toRecord(s *model.ContactSubmission) *submissionRecord {
	return &submissionRecord{
		Name:             s.Name,
		Email:            s.Email,
		Phone:            s.Phone,
		Company:          s.Company,
		Location:         s.Location,
		Subject:          s.Subject,
		Message:          s.Message,
		FormType:         s.FormType,
		UserType:         s.UserType,
		Source:           s.Source,
		SystemType:       s.SystemType,
		MonthlyBill:      s.MonthlyBill,
		BusinessType:     s.BusinessType,
		PowerConsumption: s.PowerConsumption,
		IndustrialScale:  s.IndustrialScale,
		Metadata:         s.Metadata,
	}
}

func (r *submissionRecord) toModel() *model.ContactSubmission {
	return &model.ContactSubmission{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		Phone:            r.Phone,
		Company:          r.Company,
		Location:         r.Location,
		Subject:          r.Subject,
		Message:          r.Message,
		FormType:         r.FormType,
		UserType:         r.UserType,
		Source:           r.Source,
		SystemType:       r.SystemType,
		MonthlyBill:      r.MonthlyBill,
		BusinessType:     r.BusinessType,
		PowerConsumption: r.PowerConsumption,
		IndustrialScale:  r.IndustrialScale,
		Metadata:         r.Metadata,
		CreatedAt:        r.CreatedAt,
	}
}

// GormSubmissionRepository stores submissions through gorm. It backs the
// SQLite deployment used in development and on single-box installs.
type GormSubmissionRepository struct {
	db          *gorm.DB
	dedupWindow time.Duration
}

// NewGormSubmissionRepository creates a GormSubmissionRepository.
func NewGormSubmissionRepository(db *gorm.DB, dedupWindow time.Duration) *GormSubmissionRepository {
	return &GormSubmissionRepository{db: db, dedupWindow: dedupWindow}
}

var _ SubmissionRepository = (*GormSubmissionRepository)(nil)

// Migrate creates or updates the contact_submissions table.
func (r *GormSubmissionRepository) Migrate() error {
	return r.db.AutoMigrate(&submissionRecord{})
}

// Ping checks the underlying connection.
func (r *GormSubmissionRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Create stores s, rejecting it with ErrDuplicate when the same phone and
// message were stored within the duplicate window.
func (r *GormSubmissionRepository) Create(ctx context.Context, s *model.ContactSubmission) error {
	rec := toRecord(s)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.dedupWindow > 0 {
			var n int64
			since := tx.NowFunc().Add(-r.dedupWindow)
			if err := tx.Model(&submissionRecord{}).
				Where("phone = ? AND message = ? AND created_at > ?", rec.Phone, rec.Message, since).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrDuplicate
			}
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return classifyGormError(err)
	}
	s.ID = rec.ID
	s.CreatedAt = rec.CreatedAt
	return nil
}

// FindByID returns the submission with the given ID or ErrNotFound.
func (r *GormSubmissionRepository) FindByID(ctx context.Context, id string) (*model.ContactSubmission, error) {
	var rec submissionRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, classifyGormError(err)
	}
	return rec.toModel(), nil
}

func classifyGormError(err error) error {
	switch {
	case errors.Is(err, ErrDuplicate):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case strings.Contains(err.Error(), "database is locked"), strings.Contains(err.Error(), "SQLITE_BUSY"):
		// sqlite reports busy_timeout expiry only as text
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
