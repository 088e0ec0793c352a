package models

import (
	"time"

	"gorm.io/datatypes"
)

// PredictHistoryInput and PredictHistoryOutput are the primary prediction
// history schema, written by the analysis pipeline (read-only here).
type PredictHistoryInput struct {
	ID     int64  `gorm:"column:id;primaryKey" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;index" json:"user_id"`

	Nitrogen    *float64 `gorm:"column:nitrogen" json:"nitrogen,omitempty"`
	Phosphorus  *float64 `gorm:"column:phosphorus" json:"phosphorus,omitempty"`
	Potassium   *float64 `gorm:"column:potassium" json:"potassium,omitempty"`
	Temperature *float64 `gorm:"column:temperature" json:"temperature,omitempty"`
	Humidity    *float64 `gorm:"column:humidity" json:"humidity,omitempty"`
	PH          *float64 `gorm:"column:ph" json:"ph,omitempty"`
	Rainfall    *float64 `gorm:"column:rainfall" json:"rainfall,omitempty"`

	State  string `gorm:"column:state;type:text" json:"state"`
	Season string `gorm:"column:season;type:text" json:"season"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (PredictHistoryInput) TableName() string { return "predict_history_inputs" }

type PredictHistoryOutput struct {
	ID      int64 `gorm:"column:id;primaryKey" json:"id"`
	InputID int64 `gorm:"column:input_id;index" json:"input_id"`

	BestCrop       string   `gorm:"column:best_crop;type:text" json:"best_crop"`
	PredictedYield *float64 `gorm:"column:predicted_yield" json:"predicted_yield,omitempty"`
	Unit           string   `gorm:"column:unit;type:text" json:"unit"`
	Region         string   `gorm:"column:region;type:text" json:"region"`
	TotalRevenue   *float64 `gorm:"column:total_revenue" json:"total_revenue,omitempty"`
	Currency       string   `gorm:"column:currency;type:text" json:"currency"`
}

func (PredictHistoryOutput) TableName() string { return "predict_history_outputs" }

// Prediction is the legacy schema: one row per analysis with the soil
// snapshot and crop ranking folded into JSON columns. Consulted only when
// the primary schema has no rows for the user.
type Prediction struct {
	ID             int64          `gorm:"column:id_prediction;primaryKey" json:"id"`
	UserID         string         `gorm:"column:id_user;type:uuid;index" json:"user_id"`
	PredictionDate time.Time      `gorm:"column:prediction_date;type:timestamptz" json:"prediction_date"`
	Soil           datatypes.JSON `gorm:"column:soil;type:jsonb" json:"soil"`
	BestCrops      datatypes.JSON `gorm:"column:best_crops;type:jsonb" json:"best_crops"`
	AIExplain      string         `gorm:"column:ai_explain;type:text" json:"ai_explain"`
}

func (Prediction) TableName() string { return "predictions" }

// HistoryRecord is the single internal shape both history schemas normalize
// into immediately after retrieval. Numeric fields are nil when the source
// row did not report them.
type HistoryRecord struct {
	CreatedAt time.Time `json:"created_at"`

	Nitrogen    *float64 `json:"nitrogen,omitempty"`
	Phosphorus  *float64 `json:"phosphorus,omitempty"`
	Potassium   *float64 `json:"potassium,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	PH          *float64 `json:"ph,omitempty"`
	Rainfall    *float64 `json:"rainfall,omitempty"`

	State  string `json:"state,omitempty"`
	Season string `json:"season,omitempty"`

	Crop     string   `json:"crop,omitempty"`
	Yield    *float64 `json:"yield,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Region   string   `json:"region,omitempty"`
	Revenue  *float64 `json:"revenue,omitempty"`
	Currency string   `json:"currency,omitempty"`
}
