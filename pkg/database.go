package drs4

import (
	"fmt"
	"sort"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
)

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

type CalibrationEntry struct {
	Channel int     `db:"Channel"`
	Cell    int     `db:"Cell"`
	Width   float64 `db:"Width"`
	MinRun  int     `db:"MinRun"`
	MaxRun  int     `db:"MaxRun"`
}

type ChannelSettingsEntry struct {
	Channel        int    `db:"Channel"`
	Name           string `db:"Name"`
	Polarity       int    `db:"Polarity"`
	PulserPolarity int    `db:"PulserPolarity"`
}

const calibrationQuery = "SELECT Channel, Cell, Width, MinRun, MaxRun FROM TimeCalibration " +
	"WHERE MinRun <= ? AND MaxRun >= ? ORDER BY Channel, Cell"

const channelSettingsQuery = "SELECT Channel, Name, Polarity, PulserPolarity FROM ChannelSettings " +
	"WHERE MinRun <= ? AND MaxRun >= ? ORDER BY Channel"

// LoadCalibrationTables reads the bin widths valid for runNumber. Every
// channel must have consecutive cells starting at 0.
func LoadCalibrationTables(db *sqlx.DB, runNumber int) (map[uint16][]float64, error) {
	logger.Info(fmt.Sprintf("Reading time calibration for run %d", runNumber), "database")
	rows, err := db.Queryx(calibrationQuery, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying time calibration: %w", err)
	}
	defer rows.Close()

	var entries []CalibrationEntry
	for rows.Next() {
		var entry CalibrationEntry
		if err := rows.StructScan(&entry); err != nil {
			return nil, fmt.Errorf("error scanning time calibration: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading time calibration: %w", err)
	}
	return calibrationFromEntries(entries)
}

func calibrationFromEntries(entries []CalibrationEntry) (map[uint16][]float64, error) {
	tables := make(map[uint16][]float64)
	for _, entry := range entries {
		if entry.Channel < 0 || entry.Channel > 0xFFFF {
			return nil, &ConfigurationError{Channel: entry.Channel, Key: "calibration", Reason: "channel id out of range"}
		}
		channel := uint16(entry.Channel)
		if entry.Cell != len(tables[channel]) {
			return nil, &ConfigurationError{
				Channel: entry.Channel,
				Key:     "calibration",
				Reason:  fmt.Sprintf("cell %d found where %d was expected", entry.Cell, len(tables[channel])),
			}
		}
		tables[channel] = append(tables[channel], entry.Width)
	}
	if len(tables) == 0 {
		return nil, &ConfigurationError{Channel: -1, Key: "calibration", Reason: "no time calibration for run"}
	}
	return tables, nil
}

func calibrationToEntries(minRun, maxRun int, tables map[uint16][]float64) []CalibrationEntry {
	channels := make([]int, 0, len(tables))
	for channel := range tables {
		channels = append(channels, int(channel))
	}
	sort.Ints(channels)

	entries := make([]CalibrationEntry, 0)
	for _, channel := range channels {
		for cell, width := range tables[uint16(channel)] {
			entries = append(entries, CalibrationEntry{
				Channel: channel,
				Cell:    cell,
				Width:   width,
				MinRun:  minRun,
				MaxRun:  maxRun,
			})
		}
	}
	return entries
}

// StoreCalibrationTables inserts the bin widths of every channel for the
// runs [minRun, maxRun] in a single transaction.
func StoreCalibrationTables(db *sqlx.DB, minRun, maxRun int, tables map[uint16][]float64) error {
	entries := calibrationToEntries(minRun, maxRun, tables)
	if len(entries) == 0 {
		return &ConfigurationError{Channel: -1, Key: "calibration", Reason: "nothing to store"}
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	const insert = "INSERT INTO TimeCalibration (Channel, Cell, Width, MinRun, MaxRun) " +
		"VALUES (:Channel, :Cell, :Width, :MinRun, :MaxRun)"
	for _, entry := range entries {
		if _, err := tx.NamedExec(insert, entry); err != nil {
			tx.Rollback()
			return fmt.Errorf("error storing cell %d of channel %d: %w", entry.Cell, entry.Channel, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing time calibration: %w", err)
	}
	logger.Info(fmt.Sprintf("Stored %d bin widths for runs %d-%d", len(entries), minRun, maxRun), "database")
	return nil
}

// LoadChannelSettings reads the sensor names and polarities valid for
// runNumber.
func LoadChannelSettings(db *sqlx.DB, runNumber int) ([]ChannelSettingsEntry, error) {
	rows, err := db.Queryx(channelSettingsQuery, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying channel settings: %w", err)
	}
	defer rows.Close()

	settings := make([]ChannelSettingsEntry, 0)
	for rows.Next() {
		var entry ChannelSettingsEntry
		if err := rows.StructScan(&entry); err != nil {
			return nil, fmt.Errorf("error scanning channel settings: %w", err)
		}
		settings = append(settings, entry)
	}
	return settings, rows.Err()
}

// ApplyChannelSettings overrides the names and polarities of config with
// the values read from the database.
func ApplyChannelSettings(config *Configuration, settings []ChannelSettingsEntry) {
	for _, s := range settings {
		if s.Channel < 0 {
			continue
		}
		config.SensorNames = setAt(config.SensorNames, s.Channel, s.Name, "")
		config.Polarities = setAt(config.Polarities, s.Channel, s.Polarity, 1)
		config.PulserPolarities = setAt(config.PulserPolarities, s.Channel, s.PulserPolarity, 1)
	}
}

func setAt[T any](values []T, i int, v T, fill T) []T {
	for len(values) <= i {
		values = append(values, fill)
	}
	values[i] = v
	return values
}
