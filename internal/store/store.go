// Package store provides SQLite storage for sensor readings and response
// episodes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store closed")

// Store represents a SQLite database connection.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// New creates a new Store with the given database path.
// It opens the database connection, enables foreign keys, and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps PRAGMAs in force and serializes writers
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Ensure checks the connection and reopens it if the check fails.
func (s *Store) Ensure(ctx context.Context) error {
	s.mu.RLock()
	db, closed := s.db, s.closed
	s.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if err := db.PingContext(ctx); err == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.db != db {
		return nil // reopened by someone else meanwhile
	}

	fresh, err := open(s.path)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	if err := fresh.PingContext(ctx); err != nil {
		fresh.Close()
		return fmt.Errorf("reconnect: %w", err)
	}
	s.db.Close()
	s.db = fresh
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// RecordSample persists one sensor sample, reconnecting first if needed.
func (s *Store) RecordSample(ctx context.Context, sample sensor.Sample) error {
	if err := s.Ensure(ctx); err != nil {
		return err
	}
	_, err := s.Readings().Insert(ctx, sample)
	return err
}

// Report persists a finished episode, reconnecting first if needed.
func (s *Store) Report(ctx context.Context, result *response.EpisodeResult) error {
	if err := s.Ensure(ctx); err != nil {
		return err
	}
	return s.Episodes().Create(ctx, result)
}
