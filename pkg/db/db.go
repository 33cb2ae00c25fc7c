package db

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/kirsle/configdir"
)

// Job status values.
const (
	StatusSubmitted = "submitted"
	StatusReady     = "ready"
	StatusTimedOut  = "timed_out"
)

// DB wraps the sql.DB connection
type DB struct {
	*sql.DB
}

// Job is the durable record of one launched serving job. The endpoint
// inventory file remains the contract dispatch runs against; this record
// just lets the operator find jobs again after the launching process
// exits.
type Job struct {
	ID            string
	Name          string
	Model         string
	Nodes         int
	LogPath       string
	InventoryPath string
	Status        string
	CreatedAt     time.Time
}

// InitDB initializes the database connection and creates tables if they don't exist
func InitDB() (*DB, error) {
	configPath := configdir.LocalConfig("vllmfleet")
	if err := configdir.MakePath(configPath); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	dbPath := filepath.Join(configPath, "data.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &DB{db}
	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return database, nil
}

func (d *DB) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		name TEXT,
		model TEXT,
		nodes INTEGER,
		log_path TEXT,
		inventory_path TEXT,
		status TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := d.Exec(query)
	return err
}

// SaveJob upserts a job into the database
func (d *DB) SaveJob(job *Job) error {
	query := `
	INSERT INTO jobs (id, name, model, nodes, log_path, inventory_path, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		model = excluded.model,
		nodes = excluded.nodes,
		log_path = excluded.log_path,
		inventory_path = excluded.inventory_path,
		status = excluded.status;
	`
	_, err := d.Exec(query, job.ID, job.Name, job.Model, job.Nodes, job.LogPath, job.InventoryPath, job.Status, job.CreatedAt)
	return err
}

// GetJob retrieves a job by ID
func (d *DB) GetJob(id string) (*Job, error) {
	query := `SELECT id, name, model, nodes, log_path, inventory_path, status, created_at FROM jobs WHERE id = ?`
	row := d.QueryRow(query, id)

	var job Job
	err := row.Scan(&job.ID, &job.Name, &job.Model, &job.Nodes, &job.LogPath, &job.InventoryPath, &job.Status, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs retrieves all jobs, newest first
func (d *DB) ListJobs() ([]Job, error) {
	query := `SELECT id, name, model, nodes, log_path, inventory_path, status, created_at FROM jobs ORDER BY created_at DESC`
	rows, err := d.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		err := rows.Scan(&job.ID, &job.Name, &job.Model, &job.Nodes, &job.LogPath, &job.InventoryPath, &job.Status, &job.CreatedAt)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// LatestJobForModel retrieves the most recently launched job for a model
func (d *DB) LatestJobForModel(model string) (*Job, error) {
	query := `SELECT id, name, model, nodes, log_path, inventory_path, status, created_at FROM jobs WHERE model = ? ORDER BY created_at DESC LIMIT 1`
	row := d.QueryRow(query, model)

	var job Job
	err := row.Scan(&job.ID, &job.Name, &job.Model, &job.Nodes, &job.LogPath, &job.InventoryPath, &job.Status, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatus updates the status of a job
func (d *DB) UpdateJobStatus(id, status string) error {
	_, err := d.Exec("UPDATE jobs SET status = ? WHERE id = ?", status, id)
	return err
}
