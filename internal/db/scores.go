package db

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openrally/rallyd/internal/protocol"
)

// ScoreDatabase manages player accounts and their accumulated race scores.
type ScoreDatabase struct {
	db *Database
}

// NewScoreDatabase opens the score database and runs migrations.
func NewScoreDatabase(dbPath string) (*ScoreDatabase, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	sdb := &ScoreDatabase{db: database}
	if err := sdb.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate score database: %w", err)
	}
	return sdb, nil
}

// migrate creates the database schema.
func (sdb *ScoreDatabase) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			passwd TEXT NOT NULL DEFAULT '',
			license TEXT NOT NULL DEFAULT 'Rookie',
			score INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);
	`

	if _, err := sdb.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("database schema migrated")
	return nil
}

// licenseCase maps an accumulated score to a license grade in SQL so score
// updates keep the stored grade consistent.
const licenseCase = `CASE
	WHEN score >= 300 THEN 'Legend'
	WHEN score >= 150 THEN 'Pro'
	WHEN score >= 50 THEN 'Amateur'
	ELSE 'Rookie'
END`

// OnLogin records a player account, creating it on first login.
func (sdb *ScoreDatabase) OnLogin(name, passwd string) error {
	_, err := sdb.db.Exec(`
		INSERT INTO users (name, passwd) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET passwd = excluded.passwd`,
		name, passwd)
	if err != nil {
		return fmt.Errorf("failed to record login for %s: %w", name, err)
	}
	return nil
}

// Score returns a player's persisted score and license grade.
func (sdb *ScoreDatabase) Score(name string) (protocol.UserScore, bool) {
	var score protocol.UserScore
	err := sdb.db.QueryRow(
		"SELECT name, license, score FROM users WHERE name = ?", name).
		Scan(&score.Name, &score.License, &score.Score)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Error().Err(err).Str("player", name).Msg("score lookup failed")
		}
		return protocol.UserScore{}, false
	}
	return score, true
}

// SaveRaceResults accumulates each result's score onto the player's total
// and refreshes license grades. Implements racing.ResultSink.
func (sdb *ScoreDatabase) SaveRaceResults(results []protocol.MetaRaceResult) {
	err := sdb.db.Transaction(func(tx *sql.Tx) error {
		for _, res := range results {
			if _, err := tx.Exec(
				"UPDATE users SET score = score + ? WHERE name = ?",
				res.Score, res.Name); err != nil {
				return err
			}
		}
		_, err := tx.Exec("UPDATE users SET license = " + licenseCase)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to persist race results")
		return
	}
	log.Info().Int("players", len(results)).Msg("race results persisted")
}

// Rankboard returns every player ordered by score, best first.
func (sdb *ScoreDatabase) Rankboard() ([]protocol.UserScore, error) {
	rows, err := sdb.db.Query(
		"SELECT name, license, score FROM users ORDER BY score DESC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("rankboard query failed: %w", err)
	}
	defer rows.Close()

	var board []protocol.UserScore
	for rows.Next() {
		var score protocol.UserScore
		if err := rows.Scan(&score.Name, &score.License, &score.Score); err != nil {
			return nil, err
		}
		board = append(board, score)
	}
	return board, rows.Err()
}

// Close closes the underlying database.
func (sdb *ScoreDatabase) Close() error {
	return sdb.db.Close()
}
