package database

import (
	"database/sql"
	"sync"

	"github.com/xlttj/chreport/pkg/config"
	"github.com/xlttj/chreport/pkg/logging"
)

// Session is an open database connection together with whatever was
// started to reach it. Close releases both exactly once.
type Session struct {
	DB   *sql.DB
	Mode config.Mode
	Addr string

	release     func()
	releaseOnce sync.Once
	closeOnce   sync.Once
	closeErr    error
}

// NewSession wraps db; release, if non-nil, runs after the database is
// closed, even when closing it fails.
func NewSession(db *sql.DB, mode config.Mode, addr string, release func()) *Session {
	return &Session{DB: db, Mode: mode, Addr: addr, release: release}
}

// Close closes the database, waiting for running queries, then releases.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.DB != nil {
			if err := s.DB.Close(); err != nil {
				logging.LogError("Error closing database connection: %v", err)
				s.closeErr = err
			} else {
				logging.LogInfo("Database connection closed")
			}
		}
	})
	s.Release()
	return s.closeErr
}

// Release stops whatever carries the connection without touching the
// database, so it never waits on a running query. It runs at most once
// across Release and Close.
func (s *Session) Release() {
	if s == nil {
		return
	}
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}
