// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import (
	"context"
	"time"
)

// InteractionType classifies a raw user-experience interaction event.
type InteractionType string

const (
	// InteractionView indicates the user opened an experience page.
	InteractionView InteractionType = "view"
	// InteractionClick indicates the user clicked through to details.
	InteractionClick InteractionType = "click"
	// InteractionWishlist indicates the user saved the experience.
	InteractionWishlist InteractionType = "wishlist"
	// InteractionBooking indicates the user booked the experience.
	InteractionBooking InteractionType = "booking"
	// InteractionRating indicates the user left an explicit star rating.
	InteractionRating InteractionType = "rating"
	// InteractionCompleted indicates the user completed a booked experience.
	InteractionCompleted InteractionType = "completed"
)

// Weight returns the implicit rating assigned to this interaction type when
// no stronger signal (completion, booking, explicit rating) is present.
func (t InteractionType) Weight() float64 {
	switch t {
	case InteractionCompleted, InteractionBooking:
		return 5.0
	case InteractionWishlist:
		return 3.0
	case InteractionClick:
		return 2.0
	case InteractionView:
		return 1.0
	default:
		return 1.0
	}
}

// Interaction is a raw user-experience interaction event as delivered by the
// persistence layer. Field presence is validated at the boundary; records
// missing user or item identifiers are rejected rather than silently dropped
// deep inside the pipeline.
type Interaction struct {
	// UserID is the external user identifier.
	UserID string `json:"user_id" validate:"required"`

	// ItemID is the external experience identifier.
	ItemID string `json:"item_id" validate:"required"`

	// Type classifies the interaction.
	Type InteractionType `json:"interaction_type" validate:"required,oneof=view click wishlist booking rating completed"`

	// Rating is the explicit star rating, when the user left one.
	Rating *float64 `json:"rating,omitempty" validate:"omitempty,gte=1,lte=5"`

	// Timestamp is when the interaction occurred.
	Timestamp time.Time `json:"timestamp"`
}

// DerivedRating collapses the event into a single implicit rating on the
// 1..5 scale. Priority: completed/booked, then explicit rating, then the
// per-type weight table.
func (i Interaction) DerivedRating() float64 {
	if i.Type == InteractionCompleted || i.Type == InteractionBooking {
		return 5.0
	}
	if i.Rating != nil && *i.Rating > 0 {
		return *i.Rating
	}
	return i.Type.Weight()
}

// RatingRow is one row of the clean rating table produced by preprocessing:
// at most one row per (user, item) pair.
type RatingRow struct {
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// TableStats summarizes a preprocessed rating table for observability.
type TableStats struct {
	// Rows is the number of surviving (user, item) pairs.
	Rows int `json:"rows"`

	// RawEvents is the number of raw events before aggregation.
	RawEvents int `json:"raw_events"`

	// Users is the number of distinct surviving users.
	Users int `json:"users"`

	// Items is the number of distinct surviving items.
	Items int `json:"items"`

	// Density is rows / (users * items).
	Density float64 `json:"density"`

	// FilterIterations is how many passes the min-activity filter took
	// to reach a fixed point.
	FilterIterations int `json:"filter_iterations"`

	// MeanRating is the mean of surviving ratings.
	MeanRating float64 `json:"mean_rating"`
}

// RatingTable is the preprocessed training input: one row per pair plus
// summary statistics.
type RatingTable struct {
	Rows  []RatingRow `json:"rows"`
	Stats TableStats  `json:"stats"`
}

// Location describes where an experience takes place.
type Location struct {
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// Item is experience metadata used for response assembly. It is fetched from
// an external lookup and never consulted during training.
type Item struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Category      string   `json:"category,omitempty"`
	Price         float64  `json:"price,omitempty"`
	AverageRating float64  `json:"average_rating,omitempty"`
	ReviewCount   int      `json:"review_count,omitempty"`
	ImageURLs     []string `json:"image_urls,omitempty"`
	Description   string   `json:"description,omitempty"`
	Location      Location `json:"location,omitempty"`
}

// Recommendation is one ranked result: an item identifier and its score.
type Recommendation struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// RecommendedItem is a recommendation joined with item metadata.
type RecommendedItem struct {
	Item  Item    `json:"item"`
	Score float64 `json:"score"`
}

// Request is a recommendation request.
type Request struct {
	// UserID is the user to recommend for.
	UserID string `json:"user_id"`

	// TopK is the number of recommendations to return. Defaults to the
	// service's configured default when zero.
	TopK int `json:"top_k,omitempty"`

	// ExcludeSeen removes items the user has already interacted with.
	ExcludeSeen bool `json:"exclude_seen"`

	// RequestID is a unique identifier for tracing. Generated if empty.
	RequestID string `json:"request_id,omitempty"`
}

// Response is a recommendation response.
type Response struct {
	UserID    string            `json:"user_id"`
	Items     []RecommendedItem `json:"items"`
	Algorithm string            `json:"algorithm"`
	Metadata  ResponseMetadata  `json:"metadata"`
}

// ResponseMetadata carries timing and diagnostic information.
type ResponseMetadata struct {
	RequestID    string    `json:"request_id"`
	CacheHit     bool      `json:"cache_hit"`
	LatencyMS    int64     `json:"latency_ms"`
	ModelVersion int       `json:"model_version"`
	TrainedAt    time.Time `json:"trained_at,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// TrainMetrics reports the outcome of one model training run.
type TrainMetrics struct {
	// TrainRMSE is the final-epoch RMSE on the training split (SGD only).
	TrainRMSE float64 `json:"train_rmse,omitempty"`

	// HoldoutRMSE is the final-epoch RMSE on the monitoring holdout (SGD only).
	HoldoutRMSE float64 `json:"holdout_rmse,omitempty"`

	// EpochRMSE is the per-epoch training RMSE trace (SGD only).
	EpochRMSE []float64 `json:"epoch_rmse,omitempty"`

	// Objective is the final confidence-weighted least-squares objective
	// (ALS only).
	Objective float64 `json:"objective,omitempty"`

	// Users and Items are the fitted index-space sizes.
	Users int `json:"users"`
	Items int `json:"items"`

	// Rows is the number of rating rows trained on.
	Rows int `json:"rows"`
}

// Model is the contract shared by the two factorization variants (explicit
// SGD and implicit ALS). Implementations are safe for concurrent use:
// training takes an exclusive lock, scoring a shared one.
type Model interface {
	// Name returns the algorithm identifier ("sgd" or "als").
	Name() string

	// Train fits the model on a clean rating table. Training on a table
	// below the minimum viable size fails with ErrInsufficientData.
	Train(ctx context.Context, rows []RatingRow) (TrainMetrics, error)

	// RecommendForUser scores every non-excluded item for the user and
	// returns the topK highest, sorted descending. An unknown user yields
	// an empty list, not an error; an untrained model fails with
	// ErrModelNotTrained.
	RecommendForUser(userID string, topK int, exclude map[string]struct{}) ([]Recommendation, error)

	// SimilarItems ranks items by cosine similarity of their factor
	// vectors to itemID, excluding itemID itself. An unknown item yields
	// an empty list.
	SimilarItems(itemID string, topK int) ([]Recommendation, error)

	// KnowsUser reports whether userID was present at training time.
	KnowsUser(userID string) bool

	// KnowsItem reports whether itemID was present at training time.
	KnowsItem(itemID string) bool

	// IsTrained reports whether the model has been trained or loaded.
	IsTrained() bool
}

// PersistableModel extends Model with artifact serialization. The model
// parameters and the identifier encoders travel as two separate blobs that
// must be stored and loaded as a matched pair; DecodeState rejects a
// mismatched pair with ErrArtifactMismatch.
type PersistableModel interface {
	Model

	// EncodeState serializes the model parameters and the encoders.
	EncodeState() (model []byte, encoders []byte, err error)

	// DecodeState reconstructs a trained model from a matched artifact
	// pair, verifying that factor matrix dimensions agree with encoder
	// class counts.
	DecodeState(model, encoders []byte) error

	// Hyperparameters returns the training configuration, recorded in
	// the artifact metadata.
	Hyperparameters() any
}

// Fallback is the non-personalized ranking used for cold-start users and
// items. Implemented by the popularity recommender.
type Fallback interface {
	// Recommend returns the topK most popular non-excluded items.
	Recommend(topK int, exclude map[string]struct{}) []Recommendation

	// IsTrained reports whether popularity scores have been computed.
	IsTrained() bool
}

// DataProvider supplies raw interaction records and item metadata. It is
// implemented by the persistence layer, which is outside this package's
// scope; an in-memory implementation ships for standalone use and tests.
type DataProvider interface {
	// Interactions returns all raw interaction records.
	Interactions(ctx context.Context) ([]Interaction, error)

	// Item returns metadata for one experience, or nil if unknown.
	Item(ctx context.Context, itemID string) (*Item, error)

	// UserHistory returns the item IDs the user has interacted with.
	UserHistory(ctx context.Context, userID string) ([]string, error)

	// RecordInteraction appends a new interaction event.
	RecordInteraction(ctx context.Context, in Interaction) error
}
