package store

import (
	"database/sql"

	"github.com/CRT-AUTO/bridge-core/pkg/database"
)

// Store is the shared handle every DAO in this package is a method set on.
type Store struct {
	db  *sql.DB
	dia dialect
}

// New wraps an already-connected database/sql handle. backend selects the
// placeholder dialect ($N vs ?) used to rewrite this package's queries.
func New(db *sql.DB, backend database.Backend) *Store {
	return &Store{db: db, dia: newDialect(backend)}
}

func (s *Store) q(query string) string {
	return s.dia.rewrite(query)
}
