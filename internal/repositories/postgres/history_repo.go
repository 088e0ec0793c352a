package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fellahtech/agribot/internal/models"
	"gorm.io/gorm"
)

// HistoryRepo reads the prediction history written by the analysis pipeline.
// Both read paths normalize into models.HistoryRecord immediately so the
// rest of the system never sees the divergent schemas.
type HistoryRepo interface {
	// RecentOutcomes reads the primary schema: joined input/output rows from
	// the last 12 months, newest first.
	RecentOutcomes(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error)
	// LegacyRecent reads the legacy single-table schema. Consulted only when
	// RecentOutcomes yields nothing.
	LegacyRecent(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error)
}

type historyRepo struct {
	db *gorm.DB
}

func NewHistoryRepo(db *gorm.DB) HistoryRepo {
	return &historyRepo{db: db}
}

type outcomeRow struct {
	Nitrogen    *float64
	Phosphorus  *float64
	Potassium   *float64
	Temperature *float64
	Humidity    *float64
	PH          *float64 `gorm:"column:ph"`
	Rainfall    *float64
	State       string
	Season      string
	CreatedAt   time.Time

	BestCrop       string
	PredictedYield *float64
	Unit           string
	Region         string
	TotalRevenue   *float64
	Currency       string
}

func (r *historyRepo) RecentOutcomes(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []outcomeRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			phi.nitrogen, phi.phosphorus, phi.potassium, phi.temperature,
			phi.humidity, phi.ph, phi.rainfall, phi.state, phi.season, phi.created_at,
			pho.best_crop, pho.predicted_yield, pho.unit, pho.region,
			pho.total_revenue, pho.currency
		FROM predict_history_inputs phi
		JOIN predict_history_outputs pho ON pho.input_id = phi.id
		WHERE phi.user_id = ?
		  AND phi.created_at > NOW() - INTERVAL '12 months'
		ORDER BY phi.created_at DESC
		LIMIT ?`, userID, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.HistoryRecord{
			CreatedAt:   row.CreatedAt,
			Nitrogen:    row.Nitrogen,
			Phosphorus:  row.Phosphorus,
			Potassium:   row.Potassium,
			Temperature: row.Temperature,
			Humidity:    row.Humidity,
			PH:          row.PH,
			Rainfall:    row.Rainfall,
			State:       row.State,
			Season:      row.Season,
			Crop:        row.BestCrop,
			Yield:       row.PredictedYield,
			Unit:        row.Unit,
			Region:      row.Region,
			Revenue:     row.TotalRevenue,
			Currency:    row.Currency,
		})
	}
	return out, nil
}

// legacySoil and legacyCrop mirror the JSON blobs the legacy pipeline wrote.
type legacySoil struct {
	Nitrogen    *float64 `json:"nitrogen"`
	Phosphorus  *float64 `json:"phosphorus"`
	Potassium   *float64 `json:"potassium"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	PH          *float64 `json:"ph"`
	Rainfall    *float64 `json:"rainfall"`
	State       string   `json:"state"`
	Season      string   `json:"season"`
}

type legacyCrop struct {
	Crop           string   `json:"crop"`
	PredictedYield *float64 `json:"predicted_yield"`
	Unit           string   `json:"unit"`
	Region         string   `json:"region"`
	Revenue        *float64 `json:"revenue"`
	Currency       string   `json:"currency"`
}

func (r *historyRepo) LegacyRecent(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []models.Prediction
	err := r.db.WithContext(ctx).
		Where("id_user = ?", userID).
		Order("prediction_date DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		rec := models.HistoryRecord{CreatedAt: row.PredictionDate}

		if len(row.Soil) > 0 {
			var soil legacySoil
			if err := json.Unmarshal(row.Soil, &soil); err == nil {
				rec.Nitrogen = soil.Nitrogen
				rec.Phosphorus = soil.Phosphorus
				rec.Potassium = soil.Potassium
				rec.Temperature = soil.Temperature
				rec.Humidity = soil.Humidity
				rec.PH = soil.PH
				rec.Rainfall = soil.Rainfall
				rec.State = soil.State
				rec.Season = soil.Season
			}
		}

		if len(row.BestCrops) > 0 {
			var crops []legacyCrop
			if err := json.Unmarshal(row.BestCrops, &crops); err == nil && len(crops) > 0 {
				top := crops[0]
				rec.Crop = top.Crop
				rec.Yield = top.PredictedYield
				rec.Unit = top.Unit
				rec.Region = top.Region
				rec.Revenue = top.Revenue
				rec.Currency = top.Currency
			}
		}

		out = append(out, rec)
	}
	return out, nil
}
