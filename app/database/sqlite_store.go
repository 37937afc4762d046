package database

import "fmt"

// SQLiteStore bundles the SQLite repositories behind the Store interface.
type SQLiteStore struct {
	*SQLiteGuidelineRepository
	*SQLiteRunRepository
	db *DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens the database file and applies pending migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, uint, error) {
	db, err := Open(path)
	if err != nil {
		return nil, 0, err
	}

	version, dirty, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, 0, err
	}
	if dirty {
		db.Close()
		return nil, version, fmt.Errorf("database schema is dirty at version %d", version)
	}

	return &SQLiteStore{
		SQLiteGuidelineRepository: NewSQLiteGuidelineRepository(db),
		SQLiteRunRepository:       NewSQLiteRunRepository(db),
		db:                        db,
	}, version, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
