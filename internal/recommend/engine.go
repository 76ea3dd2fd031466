// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/cache"
)

// ServiceConfig controls request handling.
type ServiceConfig struct {
	// DefaultTopK is used when a request does not specify a count.
	DefaultTopK int `koanf:"default_top_k" json:"default_top_k" validate:"gte=1"`

	// MaxTopK caps the per-request count.
	MaxTopK int `koanf:"max_top_k" json:"max_top_k" validate:"gte=1"`

	// CacheTTL is the lifetime of cached responses.
	CacheTTL time.Duration `koanf:"cache_ttl" json:"cache_ttl" validate:"gt=0"`
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultTopK: 10,
		MaxTopK:     100,
		CacheTTL:    time.Hour,
	}
}

// modelBundle is the unit of atomic model replacement. A retrain builds a
// fresh bundle and swaps it in whole, so a request never observes a model
// paired with another run's fallback.
type modelBundle struct {
	model     PersistableModel
	fallback  Fallback
	version   int
	trainedAt time.Time
}

// Service serves recommendation requests. Reads take the current model
// bundle from an atomic slot; SwapModel publishes a new bundle without
// blocking in-flight requests.
type Service struct {
	cfg      ServiceConfig
	logger   zerolog.Logger
	validate *validator.Validate

	provider DataProvider
	store    cache.Store
	bundle   atomic.Value // modelBundle

	metrics serviceMetrics
}

// NewService wires the service. The provider supplies interactions and item
// metadata; the store caches assembled responses.
func NewService(cfg ServiceConfig, provider DataProvider, store cache.Store, logger zerolog.Logger) *Service {
	s := &Service{
		cfg:      cfg,
		logger:   logger.With().Str("component", "recommend-service").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		provider: provider,
		store:    store,
	}
	s.bundle.Store(modelBundle{})
	return s
}

// SwapModel atomically publishes a newly trained model and its matching
// fallback, then flushes the response cache: every cached ranking is stale
// once the model changes.
func (s *Service) SwapModel(ctx context.Context, model PersistableModel, fallback Fallback, trainedAt time.Time) int {
	prev := s.bundle.Load().(modelBundle)
	next := modelBundle{
		model:     model,
		fallback:  fallback,
		version:   prev.version + 1,
		trainedAt: trainedAt,
	}
	s.bundle.Store(next)
	s.store.DeletePrefix(ctx, "")

	s.logger.Info().
		Int("model_version", next.version).
		Time("trained_at", trainedAt).
		Msg("model swapped, response cache flushed")
	return next.version
}

// ModelVersion reports the currently served model version; zero means no
// model has been published yet.
func (s *Service) ModelVersion() int {
	return s.bundle.Load().(modelBundle).version
}

// Ready reports whether any model or fallback is available to serve.
func (s *Service) Ready() bool {
	b := s.bundle.Load().(modelBundle)
	return (b.model != nil && b.model.IsTrained()) || (b.fallback != nil && b.fallback.IsTrained())
}

// Recommend serves one recommendation request: cache first, then the
// factorization model, then the popularity fallback for cold-start users
// or thin model output.
func (s *Service) Recommend(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	s.metrics.requests.Add(1)

	req = s.normalize(req)
	if req.UserID == "" {
		s.metrics.errors.Add(1)
		return Response{}, fmt.Errorf("recommend: user id is required")
	}

	key := recommendationKey(req.UserID, req.TopK)
	if resp, ok := s.cachedResponse(ctx, key); ok {
		s.metrics.cacheHits.Add(1)
		resp.Metadata.RequestID = req.RequestID
		resp.Metadata.CacheHit = true
		resp.Metadata.LatencyMS = time.Since(start).Milliseconds()
		resp.Metadata.Timestamp = time.Now().UTC()
		return resp, nil
	}
	s.metrics.cacheMisses.Add(1)

	exclude, err := s.exclusionSet(ctx, req)
	if err != nil {
		s.metrics.errors.Add(1)
		return Response{}, err
	}

	b := s.bundle.Load().(modelBundle)
	recs, algorithm, err := s.rank(b, req, exclude)
	if err != nil {
		s.metrics.errors.Add(1)
		return Response{}, err
	}

	items, err := s.assemble(ctx, recs)
	if err != nil {
		s.metrics.errors.Add(1)
		return Response{}, err
	}

	resp := Response{
		UserID:    req.UserID,
		Items:     items,
		Algorithm: algorithm,
		Metadata: ResponseMetadata{
			RequestID:    req.RequestID,
			ModelVersion: b.version,
			TrainedAt:    b.trainedAt,
			LatencyMS:    time.Since(start).Milliseconds(),
			Timestamp:    time.Now().UTC(),
		},
	}
	s.writeCache(ctx, key, resp)
	return resp, nil
}

// rank produces the raw ranking and names the algorithm that served it. A
// model result thinner than half the requested count signals a user on the
// fringe of the training data; the popularity ranking is more trustworthy
// there.
func (s *Service) rank(b modelBundle, req Request, exclude map[string]struct{}) ([]Recommendation, string, error) {
	if b.model != nil && b.model.IsTrained() && b.model.KnowsUser(req.UserID) {
		recs, err := b.model.RecommendForUser(req.UserID, req.TopK, exclude)
		if err != nil {
			return nil, "", fmt.Errorf("model ranking: %w", err)
		}
		if len(recs)*2 >= req.TopK {
			s.metrics.modelServed.Add(1)
			return recs, b.model.Name(), nil
		}
		s.logger.Debug().
			Str("user_id", req.UserID).
			Int("model_results", len(recs)).
			Int("top_k", req.TopK).
			Msg("thin model output, serving popularity fallback")
	}

	if b.fallback != nil && b.fallback.IsTrained() {
		s.metrics.fallbackServed.Add(1)
		return b.fallback.Recommend(req.TopK, exclude), "popularity", nil
	}
	return nil, "", fmt.Errorf("recommend for %s: %w", req.UserID, ErrModelNotTrained)
}

// rankSimilar ranks by factor-space similarity when the model knows the
// item, and by popularity when it does not or no model is live. The queried
// item is excluded from the fallback ranking; factor similarity excludes it
// already.
func (s *Service) rankSimilar(b modelBundle, itemID string, topK int) ([]Recommendation, string, error) {
	if b.model != nil && b.model.IsTrained() && b.model.KnowsItem(itemID) {
		recs, err := b.model.SimilarItems(itemID, topK)
		if err != nil {
			return nil, "", fmt.Errorf("similar experiences for %s: %w", itemID, err)
		}
		s.metrics.modelServed.Add(1)
		return recs, b.model.Name(), nil
	}

	if b.fallback != nil && b.fallback.IsTrained() {
		s.metrics.fallbackServed.Add(1)
		exclude := map[string]struct{}{itemID: {}}
		return b.fallback.Recommend(topK, exclude), "popularity", nil
	}
	return nil, "", fmt.Errorf("similar experiences for %s: %w", itemID, ErrModelNotTrained)
}

// SimilarResponse is the similar-experiences result.
type SimilarResponse struct {
	ItemID    string            `json:"item_id"`
	Items     []RecommendedItem `json:"items"`
	Algorithm string            `json:"algorithm"`
	Metadata  ResponseMetadata  `json:"metadata"`
}

// SimilarExperiences ranks the catalog by factor-space similarity to one
// experience. Items unknown to the model, and requests arriving before a
// model is trained, are answered with the popularity ranking instead.
func (s *Service) SimilarExperiences(ctx context.Context, itemID string, topK int) (SimilarResponse, error) {
	start := time.Now()
	s.metrics.requests.Add(1)

	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}
	requestID := uuid.NewString()

	key := similarKey(itemID, topK)
	if data, ok := s.store.Get(ctx, key); ok {
		var resp SimilarResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			s.metrics.cacheHits.Add(1)
			resp.Metadata.RequestID = requestID
			resp.Metadata.CacheHit = true
			resp.Metadata.LatencyMS = time.Since(start).Milliseconds()
			resp.Metadata.Timestamp = time.Now().UTC()
			return resp, nil
		}
	}
	s.metrics.cacheMisses.Add(1)

	b := s.bundle.Load().(modelBundle)
	recs, algorithm, err := s.rankSimilar(b, itemID, topK)
	if err != nil {
		s.metrics.errors.Add(1)
		return SimilarResponse{}, err
	}

	items, err := s.assemble(ctx, recs)
	if err != nil {
		s.metrics.errors.Add(1)
		return SimilarResponse{}, err
	}

	resp := SimilarResponse{
		ItemID:    itemID,
		Items:     items,
		Algorithm: algorithm,
		Metadata: ResponseMetadata{
			RequestID:    requestID,
			ModelVersion: b.version,
			TrainedAt:    b.trainedAt,
			LatencyMS:    time.Since(start).Milliseconds(),
			Timestamp:    time.Now().UTC(),
		},
	}
	if data, err := json.Marshal(resp); err == nil {
		s.store.Set(ctx, key, data, s.cfg.CacheTTL)
	}
	return resp, nil
}

// RecordInteraction validates and persists a new interaction event, then
// invalidates the user's cached recommendations so the next request sees
// the updated history.
func (s *Service) RecordInteraction(ctx context.Context, in Interaction) error {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("invalid interaction: %w", err)
	}
	if err := s.provider.RecordInteraction(ctx, in); err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	s.InvalidateUser(ctx, in.UserID)
	return nil
}

// InvalidateUser drops every cached recommendation for one user. Called
// after interaction writes and deletions.
func (s *Service) InvalidateUser(ctx context.Context, userID string) {
	s.store.DeletePrefix(ctx, "recommendations:"+userID+":")
}

// Metrics returns a snapshot of service counters.
func (s *Service) Metrics() MetricsSnapshot {
	return s.metrics.snapshot(s.store.Stats())
}

func (s *Service) normalize(req Request) Request {
	if req.TopK <= 0 {
		req.TopK = s.cfg.DefaultTopK
	}
	if req.TopK > s.cfg.MaxTopK {
		req.TopK = s.cfg.MaxTopK
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return req
}

// exclusionSet returns the user's interacted items when the request asks
// for unseen results only.
func (s *Service) exclusionSet(ctx context.Context, req Request) (map[string]struct{}, error) {
	if !req.ExcludeSeen {
		return nil, nil
	}
	history, err := s.provider.UserHistory(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", req.UserID, err)
	}
	exclude := make(map[string]struct{}, len(history))
	for _, id := range history {
		exclude[id] = struct{}{}
	}
	return exclude, nil
}

// assemble joins ranked item IDs with catalog metadata. Items that have
// disappeared from the catalog since training are dropped, not errors.
func (s *Service) assemble(ctx context.Context, recs []Recommendation) ([]RecommendedItem, error) {
	items := make([]RecommendedItem, 0, len(recs))
	for _, r := range recs {
		item, err := s.provider.Item(ctx, r.ItemID)
		if err != nil {
			return nil, fmt.Errorf("load item %s: %w", r.ItemID, err)
		}
		if item == nil {
			continue
		}
		items = append(items, RecommendedItem{Item: *item, Score: r.Score})
	}
	return items, nil
}

func (s *Service) cachedResponse(ctx context.Context, key string) (Response, bool) {
	data, ok := s.store.Get(ctx, key)
	if !ok {
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		// A payload that does not parse is treated as a miss and will
		// be overwritten.
		return Response{}, false
	}
	return resp, true
}

func (s *Service) writeCache(ctx context.Context, key string, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	s.store.Set(ctx, key, data, s.cfg.CacheTTL)
}

func recommendationKey(userID string, topK int) string {
	return fmt.Sprintf("recommendations:%s:%d", userID, topK)
}

func similarKey(itemID string, topK int) string {
	return fmt.Sprintf("similar:%s:%d", itemID, topK)
}
