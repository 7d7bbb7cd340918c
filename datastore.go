package bmetemp

import (
	log "github.com/sirupsen/logrus"

	"github.com/jmoiron/sqlx"
)

const (
	stmtInsertSampleRow = "INSERT INTO samples (timestamp, port, address, temperature, pressure, humidity) " +
		"VALUES (?, ?, ?, ?, ?, ?);"
	queryFetchUnpublishedSampleRow = "SELECT timestamp, port, address, temperature, pressure, humidity " +
		"FROM samples WHERE published=false ORDER BY timestamp ASC;"
	stmtUpdateSampleRow = "UPDATE samples SET published=true WHERE timestamp BETWEEN ? AND ?;"
)

// SampleRow is the structure for data passed to and from a DataStore.
type SampleRow struct {
	Timestamp int64        `json:"timestamp"`
	Port      int          `json:"port"`
	Address   uint16       `json:"address"`
	Sample    SensorSample `json:"sample"`
}

type sampleRow struct {
	Timestamp   int64   `db:"timestamp"`
	Port        int     `db:"port"`
	Address     uint16  `db:"address"`
	Temperature float64 `db:"temperature"`
	Pressure    float64 `db:"pressure"`
	Humidity    float64 `db:"humidity"`
}

// DataStore is responsible for persisting and reading data from storage.
type DataStore interface {
	Write(SampleRow) error
	ReadUnpublished() ([]SampleRow, error)
	UpdatePublished(minTimestamp, maxTimestamp int64) error
}

// SqliteDataStore is an implementation of a DataStore that uses Sqlite statement syntax.
type SqliteDataStore struct {
	db *sqlx.DB
}

// NewSqliteDataStore creates a new SqliteDataStore.
func NewSqliteDataStore(db *sqlx.DB) *SqliteDataStore {
	return &SqliteDataStore{
		db: db,
	}
}

// Write persists the row to disk.
func (sds *SqliteDataStore) Write(row SampleRow) error {
	_, err := sds.db.Exec(stmtInsertSampleRow,
		row.Timestamp,
		row.Port,
		row.Address,
		row.Sample.Temperature,
		row.Sample.Pressure,
		row.Sample.Humidity,
	)
	return err
}

// ReadUnpublished reads all of the unpublished rows from the database.
func (sds *SqliteDataStore) ReadUnpublished() ([]SampleRow, error) {
	var rows []sampleRow
	err := sds.db.Select(&rows, queryFetchUnpublishedSampleRow)
	if err != nil {
		return nil, err
	}

	var samples []SampleRow
	for _, row := range rows {
		samples = append(samples, SampleRow{
			Timestamp: row.Timestamp,
			Port:      row.Port,
			Address:   row.Address,
			Sample: SensorSample{
				Temperature: row.Temperature,
				Pressure:    row.Pressure,
				Humidity:    row.Humidity,
			},
		})
	}

	return samples, nil
}

// UpdatePublished sets all rows to published where timestamp is between the bounds.
func (sds *SqliteDataStore) UpdatePublished(minTimestamp, maxTimestamp int64) error {
	_, err := sds.db.Exec(stmtUpdateSampleRow, minTimestamp, maxTimestamp)
	if err != nil {
		// Rows stay unpublished and are sent again with the next reading.
		log.WithError(err).
			WithField("component", "SqliteDataStore").
			WithField("event", "UpdatePublished").
			Error("failed to update published rows")
		return err
	}

	return nil
}
