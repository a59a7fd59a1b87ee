package recordmatchfeedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/common/logger"
	"carejoa-matching/internal/matching"
	"carejoa-matching/internal/models"
)

type captureSink struct {
	records []models.FeedbackRecord
	err     error
}

func (s *captureSink) AppendFeedback(_ context.Context, rec *models.FeedbackRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, *rec)
	return nil
}

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func createTestHandler(t *testing.T, sink *captureSink) *Handler {
	engine := matching.NewEngine(matching.DefaultEngineConfig(), nil, nil, matching.WithFeedback(nil, sink))
	h, err := NewHandler(DefaultConfig(), engine, logger.NewTestLogger(t))
	require.NoError(t, err)
	h.now = func() time.Time { return fixedNow }
	return h
}

func shownResults() []models.MatchResult {
	breakdown := func(distance, price float64) []models.SubScore {
		return []models.SubScore{
			{Name: models.SubScoreDistance, Raw: distance, Weight: 0.3},
			{Name: models.SubScorePrice, Raw: price, Weight: 0.2},
		}
	}
	return []models.MatchResult{
		{FacilityID: "11", Score: 80, Breakdown: breakdown(0.9, 0.4)},
		{FacilityID: "12", Score: 70, Breakdown: breakdown(0.5, 0.6)},
		{FacilityID: "13", Score: 60, Breakdown: breakdown(0.3, 0.8)},
	}
}

func signature() models.QuerySignature {
	return models.QuerySignature{FacilityType: models.FacilityTypeNursingHome, Sido: "서울특별시", Sigungu: "강남구"}
}

func TestHandler_Execute_WithSelection(t *testing.T) {
	sink := &captureSink{}
	chosen, rating := "11", 5

	out, err := createTestHandler(t, sink).Execute(context.Background(), &Input{
		Signature:        signature(),
		Results:          shownResults(),
		ChosenFacilityID: &chosen,
		Rating:           &rating,
		ProfileVersion:   4,
	})
	require.NoError(t, err)
	assert.True(t, out.FeedbackRecorded)
	assert.True(t, out.HasSelection)
	assert.NotEmpty(t, out.FeedbackID)
	assert.Equal(t, matching.Fingerprint(signature()), out.Fingerprint)

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, int64(4), rec.ProfileVersion)
	assert.Equal(t, fixedNow, rec.Timestamp)
	assert.Equal(t, 0.9, rec.ChosenScores[models.SubScoreDistance])
	assert.InDelta(t, 0.4, rec.BaselineScores[models.SubScoreDistance], 1e-9)
	assert.InDelta(t, 0.7, rec.BaselineScores[models.SubScorePrice], 1e-9)
}

func TestHandler_Execute_NoSelection(t *testing.T) {
	sink := &captureSink{}

	out, err := createTestHandler(t, sink).Execute(context.Background(), &Input{
		Signature: signature(),
		Results:   shownResults(),
	})
	require.NoError(t, err)
	assert.False(t, out.HasSelection)
	require.Len(t, sink.records, 1)
	assert.Nil(t, sink.records[0].ChosenScores)
}

func TestHandler_Execute_Errors(t *testing.T) {
	stranger := "99"
	badRating := 9

	tests := []struct {
		name     string
		sinkErr  error
		input    *Input
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "chosen facility was not shown",
			input:    &Input{Signature: signature(), Results: shownResults(), ChosenFacilityID: &stranger},
			wantCode: apperrors.ErrCodeMalformedFeedback,
		},
		{
			name:     "rating out of range",
			input:    &Input{Signature: signature(), Results: shownResults(), Rating: &badRating},
			wantCode: apperrors.ErrCodeMalformedFeedback,
		},
		{
			name:     "store down",
			sinkErr:  errors.New("pq: connection refused"),
			input:    &Input{Signature: signature(), Results: shownResults()},
			wantCode: apperrors.ErrCodeDataUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureSink{err: tt.sinkErr}
			_, err := createTestHandler(t, sink).Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.ToStandardError(err).Code)
			assert.Empty(t, sink.records)
		})
	}
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name      string
		variables string
		wantCode  apperrors.ErrorCode
	}{
		{
			name:      "match output with choice",
			variables: `{"matchSignature":{"facilityType":"요양원","sido":"서울특별시"},"matchResults":[{"facilityId":"11","score":80}],"chosenFacilityId":"11","rating":4,"profileVersion":2}`,
		},
		{
			name:      "explicit nulls",
			variables: `{"matchSignature":{"facilityType":"요양원","sido":"서울특별시"},"matchResults":[],"chosenFacilityId":null,"rating":null}`,
		},
		{
			name:      "missing signature",
			variables: `{"matchResults":[]}`,
			wantCode:  apperrors.ErrCodeMalformedFeedback,
		},
		{
			name:      "rating too high",
			variables: `{"matchSignature":{"facilityType":"요양원","sido":"서울특별시"},"matchResults":[],"rating":6}`,
			wantCode:  apperrors.ErrCodeMalformedFeedback,
		},
		{
			name:      "empty chosen id",
			variables: `{"matchSignature":{"facilityType":"요양원","sido":"서울특별시"},"matchResults":[],"chosenFacilityId":""}`,
			wantCode:  apperrors.ErrCodeMalformedFeedback,
		},
		{
			name:      "broken json",
			variables: `[`,
			wantCode:  apperrors.ErrCodeInputParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ParseInput(tt.variables)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.ToStandardError(err).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "서울특별시", in.Signature.Sido)
		})
	}
}
