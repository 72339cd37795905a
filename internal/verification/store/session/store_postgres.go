package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"veriflow/internal/verification/models"
	id "veriflow/pkg/domain"
	"veriflow/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `
	id, provider_session_id, request_id, subject_id, flow_type, subject_type,
	status, verification_result, risk_tier, extracted_data, verification_url,
	expires_at, completed_at, webhook_received_at, raw_webhook_payload,
	created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, session *models.Session) error {
	extracted, err := marshalExtracted(session.ExtractedData)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO kyc_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(session.ID),
		session.ProviderSessionID,
		uuid.UUID(session.RequestID),
		nullSubjectID(session.SubjectID),
		string(session.FlowType),
		string(session.SubjectType),
		string(session.Status),
		nullString(string(session.VerificationResult)),
		nullString(string(session.RiskTier)),
		extracted,
		nullString(session.VerificationURL),
		nullTime(session.ExpiresAt),
		nullTime(session.CompletedAt),
		nullTime(session.WebhookReceivedAt),
		nullRaw(session.RawWebhookPayload),
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, session *models.Session) error {
	extracted, err := marshalExtracted(session.ExtractedData)
	if err != nil {
		return err
	}
	query := `
		UPDATE kyc_sessions SET
			subject_id = $2,
			status = $3,
			verification_result = $4,
			risk_tier = $5,
			extracted_data = $6,
			completed_at = $7,
			webhook_received_at = $8,
			raw_webhook_payload = $9,
			updated_at = $10
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(session.ID),
		nullSubjectID(session.SubjectID),
		string(session.Status),
		nullString(string(session.VerificationResult)),
		nullString(string(session.RiskTier)),
		extracted,
		nullTime(session.CompletedAt),
		nullTime(session.WebhookReceivedAt),
		nullRaw(session.RawWebhookPayload),
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM kyc_sessions WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(sessionID)), "find session by id")
}

func (s *PostgresStore) FindByProviderSessionID(ctx context.Context, providerSessionID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM kyc_sessions WHERE provider_session_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, providerSessionID), "find session by provider id")
}

func (s *PostgresStore) FindLatestByRequestID(ctx context.Context, requestID id.RequestID) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM kyc_sessions
		WHERE request_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(requestID)), "find latest session by request")
}

func (s *PostgresStore) ListPendingReview(ctx context.Context) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM kyc_sessions
		WHERE status = 'completed' AND verification_result = 'pending_review'
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending review sessions: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func (s *PostgresStore) ListInProgressBefore(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM kyc_sessions
		WHERE status IN ('not_started', 'in_progress') AND created_at < $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row rowScanner, op string) (*models.Session, error) {
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return session, nil
}

func scanAll(rows *sql.Rows) ([]*models.Session, error) {
	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session           models.Session
		sessionID         uuid.UUID
		requestID         uuid.UUID
		subjectID         sql.Null[uuid.UUID]
		result            sql.NullString
		tier              sql.NullString
		extracted         []byte
		verificationURL   sql.NullString
		expiresAt         sql.NullTime
		completedAt       sql.NullTime
		webhookReceivedAt sql.NullTime
		rawPayload        []byte
	)
	err := row.Scan(
		&sessionID,
		&session.ProviderSessionID,
		&requestID,
		&subjectID,
		&session.FlowType,
		&session.SubjectType,
		&session.Status,
		&result,
		&tier,
		&extracted,
		&verificationURL,
		&expiresAt,
		&completedAt,
		&webhookReceivedAt,
		&rawPayload,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	session.ID = id.SessionID(sessionID)
	session.RequestID = id.RequestID(requestID)
	if subjectID.Valid {
		sid := id.SubjectID(subjectID.V)
		session.SubjectID = &sid
	}
	session.VerificationResult = models.Result(result.String)
	session.RiskTier = models.RiskTier(tier.String)
	session.VerificationURL = verificationURL.String
	if expiresAt.Valid {
		session.ExpiresAt = &expiresAt.Time
	}
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	if webhookReceivedAt.Valid {
		session.WebhookReceivedAt = &webhookReceivedAt.Time
	}
	if len(extracted) > 0 {
		var data models.ExtractedIdentityData
		if err := json.Unmarshal(extracted, &data); err != nil {
			return nil, fmt.Errorf("unmarshal extracted data: %w", err)
		}
		session.ExtractedData = &data
	}
	if len(rawPayload) > 0 {
		session.RawWebhookPayload = json.RawMessage(rawPayload)
	}
	return &session, nil
}

func marshalExtracted(data *models.ExtractedIdentityData) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal extracted data: %w", err)
	}
	return out, nil
}

func nullSubjectID(subjectID *id.SubjectID) sql.Null[uuid.UUID] {
	if subjectID == nil {
		return sql.Null[uuid.UUID]{}
	}
	return sql.Null[uuid.UUID]{V: uuid.UUID(*subjectID), Valid: true}
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func nullRaw(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
