package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	pingAttempts    = 5
	pingBackoffBase = 2 * time.Second
)

type PostgresDB struct {
	Conn *sql.DB
}

// NewPostgresDB opens a connection pool and pings it with a bounded backoff,
// since the database container may still be starting when a service comes up.
func NewPostgresDB(log *zap.SugaredLogger, host string, port int, user, password, dbname string) (*PostgresDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname,
	)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	backoff := pingBackoffBase
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		err = conn.Ping()
		if err == nil {
			break
		}
		if attempt == pingAttempts {
			conn.Close()
			return nil, fmt.Errorf("failed to ping database after %d attempts: %w", pingAttempts, err)
		}
		log.Warnf("⏳ PostgreSQL not ready (attempt %d/%d), retrying in %s: %v", attempt, pingAttempts, backoff, err)
		time.Sleep(backoff)
		backoff *= 2
	}

	log.Info("✅ Connected to PostgreSQL")
	return &PostgresDB{Conn: conn}, nil
}

func (db *PostgresDB) Close() error {
	return db.Conn.Close()
}
