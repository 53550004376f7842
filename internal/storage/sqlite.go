// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/woozymasta/launcherd/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveInstallation stores the installation record, replacing any previous one.
func (r *Repository) SaveInstallation(ctx context.Context, inst models.Installation) error {
	query := `
	INSERT INTO installation (id, version, checksum, path, size, installed_at)
	VALUES (1, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		version      = excluded.version,
		checksum     = excluded.checksum,
		path         = excluded.path,
		size         = excluded.size,
		installed_at = excluded.installed_at;
	`

	_, err := r.db.ExecContext(ctx, query,
		inst.Version, inst.Checksum, inst.Path, inst.Size, inst.InstalledAt.UTC(),
	)

	return err
}

// GetInstallation returns the installation record or nil when the client is not installed.
func (r *Repository) GetInstallation(ctx context.Context) (*models.Installation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT version, checksum, path, size, installed_at
		FROM installation
		WHERE id = 1
	`)

	var inst models.Installation
	err := row.Scan(&inst.Version, &inst.Checksum, &inst.Path, &inst.Size, &inst.InstalledAt)
	if err == sql.ErrNoRows {
		return nil, nil // Not installed
	}
	if err != nil {
		return nil, err
	}

	return &inst, nil
}

// DeleteInstallation removes the installation record.
func (r *Repository) DeleteInstallation(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM installation WHERE id = 1`)
	return err
}

// RecordStatus appends a status snapshot to the history.
func (r *Repository) RecordStatus(ctx context.Context, s models.ServerStatus) error {
	query := `
	INSERT INTO status_history (
		status, online_player_count, max_players, server_name, map_name,
		game, game_version, country_code, server_clock, checked_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.Status, s.OnlinePlayerCount, s.MaxPlayers, s.ServerName, s.MapName,
		s.Game, s.GameVersion, s.CountryCode, s.ServerClock, s.CheckedAt.UTC(),
	)

	return err
}

// StatusHistory returns up to limit snapshots, newest first.
func (r *Repository) StatusHistory(ctx context.Context, limit int) ([]models.ServerStatus, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, online_player_count, max_players, server_name, map_name,
		       game, game_version, country_code, server_clock, checked_at
		FROM status_history
		ORDER BY checked_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var history []models.ServerStatus
	for rows.Next() {
		var s models.ServerStatus
		if err := rows.Scan(
			&s.Status, &s.OnlinePlayerCount, &s.MaxPlayers, &s.ServerName, &s.MapName,
			&s.Game, &s.GameVersion, &s.CountryCode, &s.ServerClock, &s.CheckedAt,
		); err != nil {
			return nil, err
		}
		history = append(history, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return history, nil
}

// PruneStatusHistory deletes snapshots checked before the given time.
func (r *Repository) PruneStatusHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM status_history WHERE checked_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
