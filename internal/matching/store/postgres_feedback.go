package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/common/logger"
	"carejoa-matching/internal/common/metrics"
	"carejoa-matching/internal/models"
)

const DefaultFeedbackTable = "match_feedback"

// PostgresFeedback is the append-only feedback log. Rows whose JSON columns
// cannot be decoded are skipped on read and counted.
type PostgresFeedback struct {
	db     *sql.DB
	table  string
	logger logger.Logger
}

func NewPostgresFeedback(db *sql.DB, table string, log logger.Logger) *PostgresFeedback {
	if table == "" {
		table = DefaultFeedbackTable
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PostgresFeedback{db: db, table: table, logger: log}
}

func (s *PostgresFeedback) AppendFeedback(ctx context.Context, rec *models.FeedbackRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	signature, err := json.Marshal(rec.Signature)
	if err != nil {
		return fmt.Errorf("encode signature: %w", err)
	}
	chosenScores, err := encodeScores(rec.ChosenScores)
	if err != nil {
		return err
	}
	baselineScores, err := encodeScores(rec.BaselineScores)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, fingerprint, facility_type, sido, sigungu, signature,
		                chosen_facility_id, rating, chosen_scores, baseline_scores,
		                profile_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Fingerprint, string(rec.Signature.FacilityType), rec.Signature.Sido, rec.Signature.Sigungu,
		signature, nullString(rec.ChosenFacilityID), nullInt(rec.Rating), chosenScores, baselineScores,
		rec.ProfileVersion, rec.Timestamp.UTC(),
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("append_feedback", err)
	}
	return nil
}

// GetRecentFeedback returns the newest records for one region and type.
func (s *PostgresFeedback) GetRecentFeedback(ctx context.Context, facilityType models.FacilityType, sido, sigungu string, windowSize int) ([]models.FeedbackRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE facility_type = $1 AND sido = $2 AND sigungu = $3
		ORDER BY created_at DESC
		LIMIT $4`, feedbackColumns, s.table)
	return s.query(ctx, "recent_feedback", query, string(facilityType), sido, sigungu, windowSize)
}

// GetFeedbackHistory returns records newer than since, newest first.
func (s *PostgresFeedback) GetFeedbackHistory(ctx context.Context, since time.Time, limit int) ([]models.FeedbackRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2`, feedbackColumns, s.table)
	return s.query(ctx, "feedback_history", query, since.UTC(), limit)
}

const feedbackColumns = `id::text, fingerprint, signature, chosen_facility_id, rating,
		       chosen_scores, baseline_scores, profile_version, created_at`

func (s *PostgresFeedback) query(ctx context.Context, name, query string, args ...interface{}) ([]models.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError(name, err)
	}
	defer rows.Close()

	var out []models.FeedbackRecord
	for rows.Next() {
		var (
			rec                    models.FeedbackRecord
			signature              []byte
			chosenID               sql.NullString
			rating                 sql.NullInt64
			chosenScores, baseline []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Fingerprint, &signature, &chosenID, &rating,
			&chosenScores, &baseline, &rec.ProfileVersion, &rec.Timestamp); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError(name, err)
		}
		if err := decodeRow(&rec, signature, chosenScores, baseline); err != nil {
			metrics.FeedbackRowsSkipped.WithLabelValues(name).Inc()
			s.logger.Warn("Skipping undecodable feedback row", map[string]interface{}{
				"query": name,
				"id":    rec.ID,
				"error": err,
			})
			continue
		}
		if chosenID.Valid {
			id := chosenID.String
			rec.ChosenFacilityID = &id
		}
		if rating.Valid {
			r := int(rating.Int64)
			rec.Rating = &r
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError(name, err)
	}
	return out, nil
}

func decodeRow(rec *models.FeedbackRecord, signature, chosenScores, baseline []byte) error {
	if len(signature) > 0 {
		if err := json.Unmarshal(signature, &rec.Signature); err != nil {
			return fmt.Errorf("decode signature: %w", err)
		}
	}
	var err error
	if rec.ChosenScores, err = decodeScores(chosenScores); err != nil {
		return err
	}
	if rec.BaselineScores, err = decodeScores(baseline); err != nil {
		return err
	}
	return nil
}

func encodeScores(scores map[models.SubScoreName]float64) (interface{}, error) {
	if len(scores) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("encode scores: %w", err)
	}
	return b, nil
}

func decodeScores(b []byte) (map[models.SubScoreName]float64, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var scores map[models.SubScoreName]float64
	if err := json.Unmarshal(b, &scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	return scores, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
