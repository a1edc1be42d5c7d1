package db

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DetectionStats summarizes detections since a point in time.
type DetectionStats struct {
	Count           int     `json:"count"`
	MovingCount     int     `json:"moving_count"`
	StationaryCount int     `json:"stationary_count"`
	MeanDistanceCm  float64 `json:"mean_distance_cm"`
	MinDistanceCm   float64 `json:"min_distance_cm"`
	MaxDistanceCm   float64 `json:"max_distance_cm"`
	MeanSignal      float64 `json:"mean_signal"`
	MedianSignal    float64 `json:"median_signal"`
	MaxSignal       float64 `json:"max_signal"`
}

// Stats computes summary statistics over detections newer than since.
func (db *DB) Stats(since time.Time) (DetectionStats, error) {
	rows, err := db.Query(
		`SELECT moving_target, stationary_target, distance_cm, signal_strength
		FROM detections WHERE detected_at >= ?`, since.Unix())
	if err != nil {
		return DetectionStats{}, err
	}
	defer rows.Close()

	var (
		stats     DetectionStats
		distances []float64
		signals   []float64
	)
	for rows.Next() {
		var (
			moving, stationary bool
			distance, signal   int
		)
		if err := rows.Scan(&moving, &stationary, &distance, &signal); err != nil {
			return DetectionStats{}, err
		}
		stats.Count++
		if moving {
			stats.MovingCount++
		}
		if stationary {
			stats.StationaryCount++
		}
		distances = append(distances, float64(distance))
		signals = append(signals, float64(signal))
	}
	if err := rows.Err(); err != nil {
		return DetectionStats{}, err
	}

	if stats.Count == 0 {
		return stats, nil
	}

	stats.MeanDistanceCm = stat.Mean(distances, nil)
	stats.MinDistanceCm = floats.Min(distances)
	stats.MaxDistanceCm = floats.Max(distances)

	stats.MeanSignal = stat.Mean(signals, nil)
	// Quantile requires sorted input
	sorted := make([]float64, len(signals))
	copy(sorted, signals)
	sort.Float64s(sorted)
	stats.MedianSignal = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	stats.MaxSignal = floats.Max(signals)

	return stats, nil
}
