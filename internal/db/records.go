package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Detection is one debounced radar detection as stored.
type Detection struct {
	ID               string    `json:"id"`
	DetectedAt       time.Time `json:"detected_at"`
	MovingTarget     bool      `json:"moving_target"`
	StationaryTarget bool      `json:"stationary_target"`
	DistanceCm       int       `json:"distance_cm"`
	SignalStrength   int       `json:"signal_strength"`
	RawFrame         string    `json:"raw_frame,omitempty"`
}

func (d Detection) String() string {
	return fmt.Sprintf("Detection %s at %s: moving=%t stationary=%t distance=%dcm signal=%d",
		d.ID, d.DetectedAt.Format(time.RFC3339), d.MovingTarget, d.StationaryTarget, d.DistanceCm, d.SignalStrength)
}

// Recording is one clip written to the recordings directory.
type Recording struct {
	ID           string     `json:"id"`
	DetectionID  string     `json:"detection_id,omitempty"`
	Path         string     `json:"path"`
	StartedAt    time.Time  `json:"started_at"`
	DurationSecs float64    `json:"duration_secs"`
	SizeBytes    int64      `json:"size_bytes"`
	Uploaded     bool       `json:"uploaded"`
	UploadedAt   *time.Time `json:"uploaded_at,omitempty"`
}

// RecordDetection inserts a detection row.
func (db *DB) RecordDetection(d Detection) error {
	_, err := db.Exec(
		`INSERT INTO detections (
			detection_id, detected_at, moving_target, stationary_target,
			distance_cm, signal_strength, raw_frame
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DetectedAt.Unix(), d.MovingTarget, d.StationaryTarget,
		d.DistanceCm, d.SignalStrength, d.RawFrame,
	)
	if err != nil {
		return fmt.Errorf("failed to record detection: %w", err)
	}
	return nil
}

// RecentDetections returns up to limit detections, newest first.
func (db *DB) RecentDetections(limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT detection_id, detected_at, moving_target, stationary_target,
			distance_cm, signal_strength, raw_frame
		FROM detections ORDER BY detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var detections []Detection
	for rows.Next() {
		var (
			d        Detection
			detected int64
			raw      sql.NullString
		)
		if err := rows.Scan(&d.ID, &detected, &d.MovingTarget, &d.StationaryTarget,
			&d.DistanceCm, &d.SignalStrength, &raw); err != nil {
			return nil, err
		}
		d.DetectedAt = time.Unix(detected, 0).UTC()
		d.RawFrame = raw.String
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return detections, nil
}

// RecordRecording inserts a recording row.
func (db *DB) RecordRecording(r Recording) error {
	detectionID := sql.NullString{String: r.DetectionID, Valid: r.DetectionID != ""}
	_, err := db.Exec(
		`INSERT INTO recordings (
			recording_id, detection_id, path, started_at, duration_secs, size_bytes, uploaded
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, detectionID, r.Path, r.StartedAt.Unix(), r.DurationSecs, r.SizeBytes, r.Uploaded,
	)
	if err != nil {
		return fmt.Errorf("failed to record recording: %w", err)
	}
	return nil
}

// MarkUploaded flags a recording as shipped to the remote server.
func (db *DB) MarkUploaded(recordingID string, at time.Time) error {
	res, err := db.Exec(
		`UPDATE recordings SET uploaded = 1, uploaded_at = ? WHERE recording_id = ?`,
		at.Unix(), recordingID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark recording uploaded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no recording with id %q", recordingID)
	}
	return nil
}

// RecentRecordings returns up to limit recordings, newest first.
func (db *DB) RecentRecordings(limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT recording_id, detection_id, path, started_at, duration_secs,
			size_bytes, uploaded, uploaded_at
		FROM recordings ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recordings []Recording
	for rows.Next() {
		var (
			r           Recording
			detectionID sql.NullString
			started     int64
			uploadedAt  sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &detectionID, &r.Path, &started, &r.DurationSecs,
			&r.SizeBytes, &r.Uploaded, &uploadedAt); err != nil {
			return nil, err
		}
		r.DetectionID = detectionID.String
		r.StartedAt = time.Unix(started, 0).UTC()
		if uploadedAt.Valid {
			at := time.Unix(uploadedAt.Int64, 0).UTC()
			r.UploadedAt = &at
		}
		recordings = append(recordings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recordings, nil
}

// ActivityBucket is one hour of detection counts for the dashboard chart.
type ActivityBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// HourlyActivity buckets detections per hour since the given time.
func (db *DB) HourlyActivity(since time.Time) ([]ActivityBucket, error) {
	rows, err := db.Query(
		`SELECT strftime('%Y-%m-%d %H:00', detected_at, 'unixepoch') AS hour, COUNT(*)
		FROM detections WHERE detected_at >= ?
		GROUP BY hour ORDER BY hour`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []ActivityBucket
	for rows.Next() {
		var b ActivityBucket
		if err := rows.Scan(&b.Hour, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return buckets, nil
}
