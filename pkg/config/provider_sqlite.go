package config

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS config_sections (
	name       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE TABLE IF NOT EXISTS controller_configs (
	controller_type TEXT PRIMARY KEY,
	enabled         INTEGER NOT NULL DEFAULT 1,
	data            TEXT NOT NULL,
	updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// SQLiteProvider implements ConfigProvider for SQLite database configuration.
// Each top-level section is stored as a JSON document; controllers get one row
// per controller type.
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create configuration schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	sections := map[string]any{
		"keys":         &config.Keys,
		"connectors":   &config.Connectors,
		"cache":        &config.Cache,
		"pricing":      &config.Pricing,
		"segmentation": &config.Segmentation,
	}
	for name, target := range sections {
		if err := s.loadSection(name, target); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", name, err)
		}
	}

	controllers, err := s.GetControllers()
	if err != nil {
		return nil, fmt.Errorf("failed to load controllers: %w", err)
	}
	config.Controllers = controllers

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (s *SQLiteProvider) loadSection(name string, target any) error {
	var data string
	err := s.db.QueryRow(`SELECT data FROM config_sections WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), target)
}

// GetControllers returns the enabled controller configurations from the database
func (s *SQLiteProvider) GetControllers() ([]ControllerData, error) {
	rows, err := s.db.Query(`
		SELECT controller_type, data
		FROM controller_configs
		WHERE enabled = 1
		ORDER BY controller_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query controller configs: %w", err)
	}
	defer rows.Close()

	var controllers []ControllerData
	for rows.Next() {
		var controllerType, data string
		if err := rows.Scan(&controllerType, &data); err != nil {
			return nil, fmt.Errorf("failed to scan controller config row: %w", err)
		}

		var controller ControllerData
		if err := json.Unmarshal([]byte(data), &controller); err != nil {
			return nil, fmt.Errorf("failed to decode %s controller config: %w", controllerType, err)
		}
		controller.Type = controllerType
		controllers = append(controllers, controller)
	}

	return controllers, rows.Err()
}

// GetController returns a single controller configuration
func (s *SQLiteProvider) GetController(controllerType string) (*ControllerData, error) {
	controllers, err := s.GetControllers()
	if err != nil {
		return nil, err
	}
	return findController(controllers, controllerType)
}

// UpdateController inserts or replaces a controller configuration
func (s *SQLiteProvider) UpdateController(controllerType string, controller *ControllerData) error {
	controller.Type = controllerType
	data, err := json.Marshal(controller)
	if err != nil {
		return fmt.Errorf("failed to encode controller config: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO controller_configs (controller_type, enabled, data, updated_at)
		VALUES (?, 1, ?, datetime('now'))
		ON CONFLICT(controller_type) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, controllerType, string(data))
	if err != nil {
		return fmt.Errorf("failed to update controller %s: %w", controllerType, err)
	}
	return nil
}

// DeleteController removes a controller configuration
func (s *SQLiteProvider) DeleteController(controllerType string) error {
	result, err := s.db.Exec(`DELETE FROM controller_configs WHERE controller_type = ?`, controllerType)
	if err != nil {
		return fmt.Errorf("failed to delete controller: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("controller %s not found", controllerType)
	}
	return nil
}

// SaveConfig saves complete configuration to the database
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sections := map[string]any{
		"keys":         configData.Keys,
		"connectors":   configData.Connectors,
		"cache":        configData.Cache,
		"pricing":      configData.Pricing,
		"segmentation": configData.Segmentation,
	}
	for name, section := range sections {
		data, err := json.Marshal(section)
		if err != nil {
			return fmt.Errorf("failed to encode %s config: %w", name, err)
		}
		_, err = tx.Exec(`
			INSERT INTO config_sections (name, data, updated_at) VALUES (?, ?, datetime('now'))
			ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		`, name, string(data))
		if err != nil {
			return fmt.Errorf("failed to save %s config: %w", name, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM controller_configs`); err != nil {
		return fmt.Errorf("failed to clear existing controllers: %w", err)
	}
	for _, controller := range configData.Controllers {
		data, err := json.Marshal(controller)
		if err != nil {
			return fmt.Errorf("failed to encode controller %s: %w", controller.Type, err)
		}
		if _, err := tx.Exec(`INSERT INTO controller_configs (controller_type, enabled, data) VALUES (?, 1, ?)`,
			controller.Type, string(data)); err != nil {
			return fmt.Errorf("failed to insert controller %s: %w", controller.Type, err)
		}
	}

	return tx.Commit()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
