package types

import "time"

// ReadingRecord is a persisted sensor reading: the submitted measurement plus
// the location and timestamp it was recorded under.
type ReadingRecord struct {
	ID        string        `json:"id"`
	Location  string        `json:"location"`
	Reading   SensorReading `json:"reading"`
	CreatedAt time.Time     `json:"created_at"`
}

// AdvisoryRecord is a persisted advisory together with the reading it was
// generated from. ReadingID links back to the sensor_readings row stored in
// the same transaction.
type AdvisoryRecord struct {
	ID        string    `json:"id"`
	ReadingID string    `json:"reading_id"`
	Location  string    `json:"location"`
	Advisory  Advisory  `json:"advisory"`
	CreatedAt time.Time `json:"created_at"`
}
