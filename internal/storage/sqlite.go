package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore handles persistent storage of the hydroponic system
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sensors (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tipo TEXT NOT NULL,
		unidade TEXT NOT NULL DEFAULT '',
		modelo TEXT NOT NULL DEFAULT '',
		localizacao TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS actuators (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tipo TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS commands (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		actuator_id TEXT NOT NULL,
		acao TEXT NOT NULL,
		issued_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS readings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		sensor_id TEXT NOT NULL,
		valor REAL NOT NULL,
		unidade TEXT NOT NULL DEFAULT '',
		recorded_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_commands_actuator ON commands(actuator_id, seq);
	CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_readings_sensor ON readings(sensor_id, recorded_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

// AddSensor registers a sensor. Duplicate ids fail with ErrDuplicate.
func (s *SQLiteStore) AddSensor(sensor *models.Sensor) error {
	_, err := s.db.Exec(
		`INSERT INTO sensors (id, tipo, unidade, modelo, localizacao) VALUES (?, ?, ?, ?, ?)`,
		sensor.ID, sensor.Tipo, sensor.Unidade, sensor.Modelo, sensor.Localizacao,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sensor %s: %w", sensor.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert sensor: %w", err)
	}
	return nil
}

// ListSensors returns every sensor in registration order
func (s *SQLiteStore) ListSensors() ([]models.Sensor, error) {
	rows, err := s.db.Query(`SELECT id, tipo, unidade, modelo, localizacao FROM sensors ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	sensors := []models.Sensor{}
	for rows.Next() {
		var sn models.Sensor
		if err := rows.Scan(&sn.ID, &sn.Tipo, &sn.Unidade, &sn.Modelo, &sn.Localizacao); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		sensors = append(sensors, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return sensors, nil
}

// ClearSensors removes every sensor
func (s *SQLiteStore) ClearSensors() error {
	if _, err := s.db.Exec(`DELETE FROM sensors`); err != nil {
		return fmt.Errorf("failed to clear sensors: %w", err)
	}
	return nil
}

// AddActuator registers an actuator. Duplicate ids fail with ErrDuplicate.
func (s *SQLiteStore) AddActuator(actuator *models.Actuator) error {
	_, err := s.db.Exec(`INSERT INTO actuators (id, tipo) VALUES (?, ?)`, actuator.ID, actuator.Tipo)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("actuator %s: %w", actuator.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert actuator: %w", err)
	}
	return nil
}

// ListActuators returns every actuator in registration order with its
// command history attached.
func (s *SQLiteStore) ListActuators() ([]models.Actuator, error) {
	rows, err := s.db.Query(`SELECT id, tipo FROM actuators ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query actuators: %w", err)
	}

	actuators := []models.Actuator{}
	index := map[string]int{}
	for rows.Next() {
		var a models.Actuator
		if err := rows.Scan(&a.ID, &a.Tipo); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan actuator: %w", err)
		}
		a.Comandos = []models.Command{}
		index[a.ID] = len(actuators)
		actuators = append(actuators, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	rows.Close()

	commands, err := s.ListCommands()
	if err != nil {
		return nil, err
	}
	for _, cmd := range commands {
		if i, ok := index[cmd.AtuadorID]; ok {
			actuators[i].Comandos = append(actuators[i].Comandos, cmd)
		}
	}
	for i := range actuators {
		if n := len(actuators[i].Comandos); n > 0 {
			last := actuators[i].Comandos[n-1]
			actuators[i].UltimoComando = &last
		}
	}
	return actuators, nil
}

// ClearActuators removes every actuator and its command history
func (s *SQLiteStore) ClearActuators() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM commands`); err != nil {
		return fmt.Errorf("failed to clear commands: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM actuators`); err != nil {
		return fmt.Errorf("failed to clear actuators: %w", err)
	}
	return tx.Commit()
}

// AddCommand appends a command to an actuator's history.
// Unknown actuators fail with ErrNotFound.
func (s *SQLiteStore) AddCommand(cmd *models.Command) error {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM actuators WHERE id = ?`, cmd.AtuadorID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up actuator: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("actuator %s: %w", cmd.AtuadorID, ErrNotFound)
	}

	issuedAt, err := models.ParseTimestamp(cmd.DataHora)
	if err != nil {
		return fmt.Errorf("invalid command dataHora: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO commands (actuator_id, acao, issued_at) VALUES (?, ?, ?)`,
		cmd.AtuadorID, cmd.Acao, issuedAt.Format(dbTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert command: %w", err)
	}
	return nil
}

// ListCommands returns the flat command history in insertion order
func (s *SQLiteStore) ListCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT c.actuator_id, COALESCE(a.tipo, ''), c.acao, c.issued_at
		FROM commands c
		LEFT JOIN actuators a ON a.id = c.actuator_id
		ORDER BY c.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	commands := []models.Command{}
	for rows.Next() {
		var cmd models.Command
		var issuedAt string
		if err := rows.Scan(&cmd.AtuadorID, &cmd.Tipo, &cmd.Acao, &issuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		t, err := models.ParseTimestamp(issuedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse issued_at: %w", err)
		}
		cmd.DataHora = models.FormatTimestamp(t)
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return commands, nil
}

// ClearCommands removes the command history of every actuator
func (s *SQLiteStore) ClearCommands() error {
	if _, err := s.db.Exec(`DELETE FROM commands`); err != nil {
		return fmt.Errorf("failed to clear commands: %w", err)
	}
	return nil
}

// InsertReading inserts a single reading into the database
func (s *SQLiteStore) InsertReading(reading *models.Reading) error {
	recordedAt, err := models.ParseTimestamp(reading.DataHora)
	if err != nil {
		return fmt.Errorf("invalid reading dataHora: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO readings (sensor_id, valor, unidade, recorded_at) VALUES (?, ?, ?, ?)`,
		reading.SensorID,
		reading.Valor,
		reading.Unidade,
		recordedAt.Format(dbTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// InsertBatch inserts multiple readings in a single transaction
func (s *SQLiteStore) InsertBatch(readings []*models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO readings (sensor_id, valor, unidade, recorded_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, reading := range readings {
		recordedAt, err := models.ParseTimestamp(reading.DataHora)
		if err != nil {
			return fmt.Errorf("invalid reading dataHora in batch: %w", err)
		}
		if _, err := stmt.Exec(reading.SensorID, reading.Valor, reading.Unidade, recordedAt.Format(dbTimeLayout)); err != nil {
			return fmt.Errorf("failed to insert reading in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(readings)).Msg("Batch insert completed")
	return nil
}

// ListReadings returns readings inside the inclusive range in insertion order
func (s *SQLiteStore) ListReadings(start, end time.Time) ([]models.Reading, error) {
	query := `SELECT sensor_id, valor, unidade, recorded_at FROM readings WHERE 1=1`
	var args []interface{}

	if !start.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, start.UTC().Format(dbTimeLayout))
	}
	if !end.IsZero() {
		query += ` AND recorded_at <= ?`
		args = append(args, end.UTC().Format(dbTimeLayout))
	}
	query += ` ORDER BY seq`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := []models.Reading{}
	for rows.Next() {
		var r models.Reading
		var recordedAt string
		if err := rows.Scan(&r.SensorID, &r.Valor, &r.Unidade, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		t, err := models.ParseTimestamp(recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		r.DataHora = models.FormatTimestamp(t)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return readings, nil
}

// ClearReadings removes every reading
func (s *SQLiteStore) ClearReadings() error {
	if _, err := s.db.Exec(`DELETE FROM readings`); err != nil {
		return fmt.Errorf("failed to clear readings: %w", err)
	}
	return nil
}

// DeleteOlderThan removes readings recorded more than days ago
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	result, err := s.db.Exec(
		"DELETE FROM readings WHERE recorded_at < ?",
		cutoff.Format(dbTimeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old readings: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old readings")

	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	counts := []struct {
		query string
		dest  interface{}
	}{
		{"SELECT COUNT(*) FROM sensors", &stats.Sensors},
		{"SELECT COUNT(*) FROM actuators", &stats.Actuators},
		{"SELECT COUNT(*) FROM commands", &stats.Commands},
		{"SELECT COUNT(*) FROM readings", &stats.TotalReadings},
		{"SELECT COUNT(DISTINCT sensor_id) FROM readings", &stats.UniqueSensors},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count (%s): %w", c.query, err)
		}
	}

	if stats.TotalReadings > 0 {
		var oldestStr, newestStr string
		err := s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at) FROM readings").
			Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, fmt.Errorf("failed to get timestamp range: %w", err)
		}
		stats.OldestReading, _ = models.ParseTimestamp(oldestStr)
		stats.NewestReading, _ = models.ParseTimestamp(newestStr)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
