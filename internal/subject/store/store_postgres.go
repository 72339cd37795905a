package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"veriflow/internal/subject/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// PostgresStore persists subjects in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed subject store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, subject *models.Subject) error {
	query := `
		INSERT INTO kyb_subjects (
			id, full_name, role, verification_status, risk_tier,
			last_session_id, verified_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(subject.ID),
		subject.FullName,
		nullString(subject.Role),
		string(subject.VerificationStatus),
		nullString(subject.RiskTier),
		nullSessionID(subject.LastSessionID),
		subject.VerifiedAt,
		subject.CreatedAt,
		subject.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	query := `
		SELECT id, full_name, role, verification_status, risk_tier,
		       last_session_id, verified_at, created_at, updated_at
		FROM kyb_subjects
		WHERE id = $1
	`
	var (
		subject       models.Subject
		sid           uuid.UUID
		role          sql.NullString
		tier          sql.NullString
		lastSessionID sql.Null[uuid.UUID]
		verifiedAt    sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(subjectID)).Scan(
		&sid,
		&subject.FullName,
		&role,
		&subject.VerificationStatus,
		&tier,
		&lastSessionID,
		&verifiedAt,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find subject by id: %w", err)
	}
	subject.ID = id.SubjectID(sid)
	subject.Role = role.String
	subject.RiskTier = tier.String
	if lastSessionID.Valid {
		last := id.SessionID(lastSessionID.V)
		subject.LastSessionID = &last
	}
	if verifiedAt.Valid {
		subject.VerifiedAt = &verifiedAt.Time
	}
	return &subject, nil
}

func (s *PostgresStore) ApplyOutcome(ctx context.Context, subjectID id.SubjectID, outcome models.Outcome) error {
	query := `
		UPDATE kyb_subjects SET
			verification_status = $2,
			risk_tier = $3,
			last_session_id = $4,
			verified_at = CASE WHEN $2 = 'verified' THEN $5 ELSE verified_at END,
			updated_at = $5
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(subjectID),
		string(outcome.Status),
		nullString(outcome.RiskTier),
		uuid.UUID(outcome.SessionID),
		outcome.At,
	)
	if err != nil {
		return fmt.Errorf("apply subject outcome: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply subject outcome rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullSessionID(sessionID *id.SessionID) sql.Null[uuid.UUID] {
	if sessionID == nil {
		return sql.Null[uuid.UUID]{}
	}
	return sql.Null[uuid.UUID]{V: uuid.UUID(*sessionID), Valid: true}
}
