package matching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"carejoa-matching/internal/common/config"
	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/common/logger"
	"carejoa-matching/internal/common/metrics"
	"carejoa-matching/internal/common/observability"
	"carejoa-matching/internal/models"
)

// CatalogSource supplies facility snapshots already narrowed by region and type.
type CatalogSource interface {
	GetCandidates(ctx context.Context, facilityType models.FacilityType, sido, sigungu string) ([]models.Facility, error)
}

// FeedbackSource returns the newest feedback for a region and type.
type FeedbackSource interface {
	GetRecentFeedback(ctx context.Context, facilityType models.FacilityType, sido, sigungu string, windowSize int) ([]models.FeedbackRecord, error)
}

// FeedbackSink persists one feedback record.
type FeedbackSink interface {
	AppendFeedback(ctx context.Context, rec *models.FeedbackRecord) error
}

// ProfileSource exposes the active weight profile.
type ProfileSource interface {
	Active() *models.WeightProfile
}

// EngineConfig groups the tunables of every pipeline stage. SlowMatch is
// the latency above which a match is logged at warn level.
type EngineConfig struct {
	Normalizer NormalizerConfig
	Similarity SimilarityConfig
	Explainer  Explainer
	MaxResults int
	SlowMatch  time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Normalizer: DefaultNormalizerConfig(),
		Similarity: DefaultSimilarityConfig(),
		Explainer:  DefaultExplainer(),
		MaxResults: 10,
		SlowMatch:  500 * time.Millisecond,
	}
}

// EngineConfigFrom maps the matching configuration section.
func EngineConfigFrom(m config.MatchingConfig) EngineConfig {
	return EngineConfig{
		Normalizer: NormalizerConfig{
			DefaultMaxDistanceKm: m.DefaultMaxDistanceKm,
			MinDistanceKm:        m.MinDistanceKm,
			MaxDistanceKm:        m.MaxDistanceKm,
		},
		Similarity: SimilarityConfig{
			WindowSize:       m.FeedbackWindowSize,
			WindowAge:        m.FeedbackWindow(),
			MinSamples:       m.MinSimilarSamples,
			OverlapThreshold: m.RequirementOverlapThreshold,
		},
		Explainer:  Explainer{Threshold: m.NoteworthyThreshold, MaxReasons: m.MaxReasons},
		MaxResults: m.MaxResults,
		SlowMatch:  time.Duration(m.SlowMatchMs) * time.Millisecond,
	}
}

// AdapterConfigFrom maps the adaptation configuration section.
func AdapterConfigFrom(a config.AdaptationConfig) AdapterConfig {
	return AdapterConfig{
		Step:           a.Step,
		Floor:          a.Floor,
		Ceiling:        a.Ceiling,
		PositiveRating: a.PositiveRating,
		MinSignal:      a.MinSignal,
	}
}

// AppliedFilters echoes the normalized criteria and how many facilities
// survived each filter stage.
type AppliedFilters struct {
	Sido           string              `json:"sido"`
	Sigungu        string              `json:"sigungu,omitempty"`
	FacilityType   models.FacilityType `json:"facilityType"`
	CareGrade      *models.CareGrade   `json:"careGrade,omitempty"`
	BudgetMin      *int64              `json:"budgetMin,omitempty"`
	BudgetMax      *int64              `json:"budgetMax,omitempty"`
	MaxDistanceKm  float64             `json:"maxDistance"`
	Specialties    []string            `json:"specialties"`
	AdmissionTypes []string            `json:"admissionTypes"`
	Stages         FilterReport        `json:"stages"`
}

// MatchResponse is the ranked outcome of one match together with the
// profile version and query fingerprint needed to record feedback later.
type MatchResponse struct {
	Results        []models.MatchResult  `json:"results"`
	TotalScanned   int                   `json:"totalScanned"`
	AppliedFilters AppliedFilters        `json:"appliedFilters"`
	ProfileVersion int64                 `json:"profileVersion"`
	Fingerprint    string                `json:"fingerprint"`
	Signature      models.QuerySignature `json:"signature"`
}

// Engine orchestrates one match: normalize, fetch snapshots, filter, score,
// explain and rank. It holds no per-call mutable state.
type Engine struct {
	cfg        EngineConfig
	normalizer *Normalizer
	similarity *SimilarityEstimator
	catalog    CatalogSource
	feedback   FeedbackSource
	sink       FeedbackSink
	profiles   ProfileSource
	obs        *observability.Observability
	logger     logger.Logger
	now        func() time.Time
}

type EngineOption func(*Engine)

// WithFeedback enables the collaborative sub-score and feedback recording.
// Without it every candidate gets the neutral collaborative value and
// RecordFeedback fails.
func WithFeedback(source FeedbackSource, sink FeedbackSink) EngineOption {
	return func(e *Engine) {
		e.feedback = source
		e.sink = sink
	}
}

// WithRegions replaces the built-in region table.
func WithRegions(r *RegionRegistry) EngineOption {
	return func(e *Engine) {
		e.normalizer = NewNormalizer(e.cfg.Normalizer, r)
	}
}

func WithObservability(o *observability.Observability) EngineOption {
	return func(e *Engine) { e.obs = o }
}

func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an engine over the given catalog and profile source.
// Feedback, regions, tracing and logging are optional and default to
// disabled, built-in, none and no-op respectively.
func NewEngine(cfg EngineConfig, catalog CatalogSource, profiles ProfileSource, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:        cfg,
		normalizer: NewNormalizer(cfg.Normalizer, nil),
		similarity: NewSimilarityEstimator(cfg.Similarity),
		catalog:    catalog,
		profiles:   profiles,
		logger:     logger.NewNoOpLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Normalize(raw RawCriteria) (models.MatchQuery, error) {
	return e.normalizer.Normalize(raw)
}

// Match runs the full pipeline for one request. The active profile is read
// once, so a concurrent publish never mixes weights within a call.
func (e *Engine) Match(ctx context.Context, raw RawCriteria) (*MatchResponse, error) {
	start := e.now()
	ctx, span := e.obs.StartSpan(ctx, "matching.Match",
		attribute.String("sido", raw.Sido),
		attribute.String("facilityType", raw.FacilityType),
	)
	defer span.End()

	resp, err := e.match(ctx, raw)
	elapsed := e.now().Sub(start)

	outcome := "ok"
	switch {
	case apperrors.IsValidation(err):
		outcome = "invalid"
	case apperrors.IsDataUnavailable(err):
		outcome = "unavailable"
	case err != nil:
		outcome = "error"
	case len(resp.Results) == 0:
		outcome = "empty"
	}
	metrics.MatchRequests.WithLabelValues(outcome).Inc()
	metrics.MatchDuration.Observe(elapsed.Seconds())
	e.obs.RecordMatch(ctx, outcome, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("totalScanned", resp.TotalScanned),
		attribute.Int("results", len(resp.Results)),
		attribute.Int64("profileVersion", resp.ProfileVersion),
	)

	fields := map[string]interface{}{
		"fingerprint":    resp.Fingerprint,
		"totalScanned":   resp.TotalScanned,
		"results":        len(resp.Results),
		"profileVersion": resp.ProfileVersion,
		"durationMs":     elapsed.Milliseconds(),
	}
	if e.cfg.SlowMatch > 0 && elapsed > e.cfg.SlowMatch {
		e.logger.Warn("Slow match", fields)
	} else {
		e.logger.Info("Match completed", fields)
	}
	return resp, nil
}

func (e *Engine) match(ctx context.Context, raw RawCriteria) (*MatchResponse, error) {
	q, err := e.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}
	profile := e.profiles.Active()
	sig := q.Signature()

	catalog, err := e.catalog.GetCandidates(ctx, q.FacilityType, q.Region.Sido, q.Region.Sigungu)
	if err != nil {
		e.logger.Error("Catalog unavailable", map[string]interface{}{"error": err, "sido": q.Region.Sido})
		return nil, asUnavailable("facility catalog", err)
	}

	candidates, report := Filter(q, catalog)
	observeStages(report)
	e.logger.Debug("Filter pipeline finished", map[string]interface{}{
		"scanned":       report.Scanned,
		"afterRegion":   report.AfterRegion,
		"afterType":     report.AfterType,
		"afterDistance": report.AfterDistance,
		"afterBudget":   report.AfterBudget,
		"unknownDist":   report.UnknownDist,
	})

	var window []models.FeedbackRecord
	if len(candidates) > 0 && e.feedback != nil {
		recent, err := e.feedback.GetRecentFeedback(ctx, q.FacilityType, q.Region.Sido, q.Region.Sigungu, e.cfg.Similarity.WindowSize)
		if err != nil {
			e.logger.Error("Feedback window unavailable", map[string]interface{}{"error": err})
			return nil, asUnavailable("feedback store", err)
		}
		window = e.similarity.Window(recent)
	}

	return &MatchResponse{
		Results:        e.rank(q, candidates, profile, window),
		TotalScanned:   report.Scanned,
		AppliedFilters: appliedFilters(q, report),
		ProfileVersion: profile.Version,
		Fingerprint:    Fingerprint(sig),
		Signature:      sig,
	}, nil
}

// Rank is the pure core of Match over already-fetched snapshots.
func (e *Engine) Rank(q models.MatchQuery, catalog []models.Facility, profile *models.WeightProfile, window []models.FeedbackRecord) ([]models.MatchResult, FilterReport) {
	candidates, report := Filter(q, catalog)
	return e.rank(q, candidates, profile, window), report
}

func (e *Engine) rank(q models.MatchQuery, candidates []Candidate, profile *models.WeightProfile, window []models.FeedbackRecord) []models.MatchResult {
	if len(candidates) == 0 {
		return []models.MatchResult{}
	}
	idx := e.similarity.Index(q, window, profile.NeutralValue(models.SubScoreCollaborative))

	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		composite, breakdown := Score(q, c, profile, idx.Similarity(c.Facility.ID))
		scored = append(scored, Scored{Candidate: c, Score: composite, Breakdown: breakdown})
	}
	SortScored(scored)

	if e.cfg.MaxResults > 0 && len(scored) > e.cfg.MaxResults {
		scored = scored[:e.cfg.MaxResults]
	}

	results := make([]models.MatchResult, 0, len(scored))
	for _, s := range scored {
		r := models.MatchResult{
			FacilityID:       s.Facility.ID,
			Name:             s.Facility.Name,
			Score:            s.Score,
			Reasons:          e.cfg.Explainer.Explain(s.Breakdown),
			Phone:            s.Facility.Phone,
			Address:          s.Facility.Address,
			IsRepresentative: s.Facility.IsRepresentative,
			Breakdown:        s.Breakdown,
		}
		if s.DistanceKnown {
			d := roundTo1(s.DistanceKm)
			r.DistanceKm = &d
		}
		results = append(results, r)
	}
	return results
}

// RecordFeedback appends one outcome. Only malformed records are rejected
// here; storage failures come back as DataUnavailable.
func (e *Engine) RecordFeedback(ctx context.Context, rec *models.FeedbackRecord) error {
	if rec == nil {
		return apperrors.NewMalformedFeedbackError("feedback record is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = e.now().UTC()
	}
	if err := rec.Validate(); err != nil {
		return apperrors.NewMalformedFeedbackError(err.Error())
	}
	if e.sink == nil {
		return apperrors.NewDataUnavailableError("feedback store", errors.New("no feedback sink configured"))
	}
	if err := e.sink.AppendFeedback(ctx, rec); err != nil {
		return asUnavailable("feedback store", err)
	}

	selection := "none"
	if rec.HasSelection() {
		selection = "selected"
	}
	metrics.FeedbackRecorded.WithLabelValues(selection).Inc()
	e.logger.Info("Feedback recorded", map[string]interface{}{
		"id":          rec.ID,
		"fingerprint": rec.Fingerprint,
		"selection":   selection,
	})
	return nil
}

// BuildFeedbackRecord turns a presented result list and the user's choice
// into a feedback record. The chosen facility's sub-scores are stored next
// to the mean sub-scores of the other shown results.
func BuildFeedbackRecord(q models.MatchQuery, shown []models.MatchResult, chosenID *string, rating *int, profileVersion int64, at time.Time) models.FeedbackRecord {
	return BuildFeedbackFromSignature(q.Signature(), shown, chosenID, rating, profileVersion, at)
}

// BuildFeedbackFromSignature is BuildFeedbackRecord for callers that only
// kept the signature of the original query.
func BuildFeedbackFromSignature(sig models.QuerySignature, shown []models.MatchResult, chosenID *string, rating *int, profileVersion int64, at time.Time) models.FeedbackRecord {
	rec := models.FeedbackRecord{
		Fingerprint:    Fingerprint(sig),
		Signature:      sig,
		Rating:         rating,
		ProfileVersion: profileVersion,
		Timestamp:      at.UTC(),
	}
	if chosenID == nil || *chosenID == "" {
		return rec
	}
	id := *chosenID
	rec.ChosenFacilityID = &id

	sums := make(map[models.SubScoreName]float64)
	counts := make(map[models.SubScoreName]int)
	for _, r := range shown {
		if r.FacilityID == id {
			rec.ChosenScores = breakdownMap(r.Breakdown)
			continue
		}
		for _, s := range r.Breakdown {
			sums[s.Name] += s.Raw
			counts[s.Name]++
		}
	}
	if len(counts) > 0 {
		rec.BaselineScores = make(map[models.SubScoreName]float64, len(counts))
		for name, n := range counts {
			rec.BaselineScores[name] = clamp01(sums[name] / float64(n))
		}
	}
	return rec
}

func breakdownMap(b []models.SubScore) map[models.SubScoreName]float64 {
	if len(b) == 0 {
		return nil
	}
	out := make(map[models.SubScoreName]float64, len(b))
	for _, s := range b {
		out[s.Name] = clamp01(s.Raw)
	}
	return out
}

func appliedFilters(q models.MatchQuery, report FilterReport) AppliedFilters {
	af := AppliedFilters{
		Sido:           q.Region.Sido,
		Sigungu:        q.Region.Sigungu,
		FacilityType:   q.FacilityType,
		CareGrade:      q.CareGrade,
		MaxDistanceKm:  q.MaxDistanceKm,
		Specialties:    q.Specialties,
		AdmissionTypes: q.AdmissionTypes,
		Stages:         report,
	}
	if q.Budget != nil {
		af.BudgetMin = q.Budget.Min
		af.BudgetMax = q.Budget.Max
	}
	return af
}

func observeStages(r FilterReport) {
	metrics.MatchCandidates.WithLabelValues("scanned").Observe(float64(r.Scanned))
	metrics.MatchCandidates.WithLabelValues("region").Observe(float64(r.AfterRegion))
	metrics.MatchCandidates.WithLabelValues("type").Observe(float64(r.AfterType))
	if !r.ShortCircuited {
		metrics.MatchCandidates.WithLabelValues("distance").Observe(float64(r.AfterDistance))
		metrics.MatchCandidates.WithLabelValues("budget").Observe(float64(r.AfterBudget))
	}
}

func asUnavailable(source string, err error) error {
	if apperrors.IsDataUnavailable(err) {
		return err
	}
	return apperrors.NewDataUnavailableError(source, err)
}
