package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// SoilProfile holds per-metric averages over the user's recent history.
// A nil field means no record supplied that metric.
type SoilProfile struct {
	AvgNitrogen    *float64 `json:"avg_nitrogen,omitempty"`
	AvgPhosphorus  *float64 `json:"avg_phosphorus,omitempty"`
	AvgPotassium   *float64 `json:"avg_potassium,omitempty"`
	AvgPH          *float64 `json:"avg_ph,omitempty"`
	AvgRainfall    *float64 `json:"avg_rainfall,omitempty"`
	AvgTemperature *float64 `json:"avg_temperature,omitempty"`
	AvgHumidity    *float64 `json:"avg_humidity,omitempty"`
}

type CropOutcome struct {
	Crop     string    `json:"crop"`
	Yield    *float64  `json:"yield,omitempty"`
	Unit     string    `json:"unit,omitempty"`
	Revenue  *float64  `json:"revenue,omitempty"`
	Currency string    `json:"currency,omitempty"`
	Region   string    `json:"region,omitempty"`
	Date     time.Time `json:"date"`
}

// UserContext is the derived farmer profile injected into prompts. It is a
// pure projection of the prediction history, rebuildable at any time.
type UserContext struct {
	Soil             SoilProfile   `json:"soil_profile"`
	CropHistory      []CropOutcome `json:"crop_history"`
	UserRegion       string        `json:"user_region"`
	PreferredSeason  string        `json:"preferred_season,omitempty"`
	TotalPredictions int           `json:"total_predictions"`
	HistoryDigest    string        `json:"history_digest,omitempty"`
	Cached           bool          `json:"cached"`
}

// ContextCache is the persisted per-user copy of UserContext. Overwritten
// whole on every rebuild; valid only within the 24h freshness window.
type ContextCache struct {
	UserID string `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`

	RecentCrops    datatypes.JSON `gorm:"column:recent_crops;type:jsonb" json:"recent_crops"`
	AvgSoilMetrics datatypes.JSON `gorm:"column:avg_soil_metrics;type:jsonb" json:"avg_soil_metrics"`

	CropNames pq.StringArray `gorm:"column:crop_names;type:text[]" json:"crop_names"`

	PreferredRegion string `gorm:"column:preferred_region;type:text" json:"preferred_region"`
	PreferredSeason string `gorm:"column:preferred_season;type:text" json:"preferred_season"`
	HistoryDigest   string `gorm:"column:history_digest;type:text" json:"history_digest"`

	LastUpdated time.Time `gorm:"column:last_updated;type:timestamptz;index" json:"last_updated"`
}

func (ContextCache) TableName() string { return "user_context_cache" }
