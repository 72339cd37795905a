package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "veriflow/pkg/domain"
)

// PostgresStore persists audit events for querying. The non-identifier fields
// land in a JSONB details column so the table survives event shape changes.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type eventDetails struct {
	ProviderSessionID string `json:"provider_session_id,omitempty"`
	FromStatus        string `json:"from_status,omitempty"`
	ToStatus          string `json:"to_status,omitempty"`
	Result            string `json:"result,omitempty"`
	RiskTier          string `json:"risk_tier,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	details, err := json.Marshal(eventDetails{
		ProviderSessionID: event.ProviderSessionID,
		FromStatus:        event.FromStatus,
		ToStatus:          event.ToStatus,
		Result:            event.Result,
		RiskTier:          event.RiskTier,
		Reason:            event.Reason,
	})
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	var sessionID, requestID *uuid.UUID
	if !event.SessionID.IsNil() {
		sid := uuid.UUID(event.SessionID)
		sessionID = &sid
	}
	if !event.RequestID.IsNil() {
		rid := uuid.UUID(event.RequestID)
		requestID = &rid
	}

	query := `
		INSERT INTO audit_events (id, action, session_id, request_id, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		string(event.Action),
		sessionID,
		requestID,
		details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySession returns events for one session in occurrence order.
func (s *PostgresStore) ListBySession(ctx context.Context, sessionID id.SessionID) ([]Event, error) {
	query := `
		SELECT action, session_id, request_id, details, occurred_at
		FROM audit_events
		WHERE session_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event      Event
			sid, rid   *uuid.UUID
			rawDetails []byte
		)
		if err := rows.Scan(&event.Action, &sid, &rid, &rawDetails, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if sid != nil {
			event.SessionID = id.SessionID(*sid)
		}
		if rid != nil {
			event.RequestID = id.RequestID(*rid)
		}
		if len(rawDetails) > 0 {
			var details eventDetails
			if err := json.Unmarshal(rawDetails, &details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
			event.ProviderSessionID = details.ProviderSessionID
			event.FromStatus = details.FromStatus
			event.ToStatus = details.ToStatus
			event.Result = details.Result
			event.RiskTier = details.RiskTier
			event.Reason = details.Reason
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
