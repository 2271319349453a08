package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"github.com/rs/zerolog/log"
)

const (
	dialectSQLite = "sqlite3"

	tableDocuments = "documents"
	colCollection  = "collection"
	colID          = "id"
	colData        = "data"
)

const createDocumentsTable = `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (collection, id)
) WITHOUT ROWID`

// SQLiteBackend stores documents in a single SQLite table
type SQLiteBackend struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
}

// NewSQLiteBackend opens (or creates) the database file at path. An empty
// path or ":memory:" opens a private in-memory database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	isMemoryDB := path == "" || path == ":memory:"

	dsn := path
	if isMemoryDB {
		dsn = ":memory:"
	} else if strings.Contains(dsn, "?") {
		dsn += "&_journal_mode=WAL&_txlock=immediate"
	} else {
		dsn += "?_journal_mode=WAL&_txlock=immediate"
	}

	db, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Every connection to ":memory:" is its own database
	if isMemoryDB {
		db.SetMaxOpenConns(1)
	}
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(createDocumentsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	log.Info().Str("path", dsn).Msg("Opened sqlite document store")
	return &SQLiteBackend{db: db, dialect: goqu.Dialect(dialectSQLite)}, nil
}

func (s *SQLiteBackend) Scan(collection string, fn func(id string, data []byte) error) error {
	query, args, err := s.dialect.From(tableDocuments).
		Prepared(true).
		Select(colID, colData).
		Where(goqu.C(colCollection).Eq(collection)).
		Order(goqu.I(colID).Asc()).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build scan query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return err
		}
		if err := fn(id, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteBackend) Get(collection, id string) ([]byte, error) {
	query, args, err := s.dialect.From(tableDocuments).
		Prepared(true).
		Select(colData).
		Where(goqu.Ex{colCollection: collection, colID: id}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build get query: %w", err)
	}

	var data []byte
	err = s.db.QueryRow(query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put replaces the row inside one transaction so readers never observe the
// gap between delete and insert.
func (s *SQLiteBackend) Put(collection, id string, data []byte) error {
	del, delArgs, err := s.dialect.Delete(tableDocuments).
		Prepared(true).
		Where(goqu.Ex{colCollection: collection, colID: id}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	ins, insArgs, err := s.dialect.Insert(tableDocuments).
		Prepared(true).
		Rows(goqu.Record{colCollection: collection, colID: id, colData: data}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(del, delArgs...); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(ins, insArgs...); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Delete(collection, id string) (bool, error) {
	query, args, err := s.dialect.Delete(tableDocuments).
		Prepared(true).
		Where(goqu.Ex{colCollection: collection, colID: id}).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("failed to build delete: %w", err)
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteBackend) Collections() ([]string, error) {
	query, args, err := s.dialect.From(tableDocuments).
		Prepared(true).
		Select(goqu.C(colCollection)).
		Distinct().
		Order(goqu.I(colCollection).Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build collections query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
