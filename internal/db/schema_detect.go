package db

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
)

// schemaSnapshot maps table name to its set of column names. schema_migrations
// and sqlite internals are excluded so detection compares application schema
// only.
type schemaSnapshot map[string]map[string]bool

func snapshotSchema(db *sql.DB) (schemaSnapshot, error) {
	rows, err := db.Query(`
		SELECT name
		FROM sqlite_master
		WHERE type='table'
		  AND name NOT LIKE 'sqlite_%'
		  AND name != 'schema_migrations'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	snapshot := make(schemaSnapshot)
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, table := range tables {
		cols, err := tableColumns(db, table)
		if err != nil {
			return nil, err
		}
		snapshot[table] = cols
	}
	return snapshot, nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// compareSchemas scores how closely got matches want as a percentage of
// matched table.column pairs over their union, and lists the differences.
func compareSchemas(got, want schemaSnapshot) (int, []string) {
	type key struct{ table, column string }
	gotSet := make(map[key]bool)
	wantSet := make(map[key]bool)
	for table, cols := range got {
		for col := range cols {
			gotSet[key{table, col}] = true
		}
	}
	for table, cols := range want {
		for col := range cols {
			wantSet[key{table, col}] = true
		}
	}

	matched, union := 0, 0
	for k := range gotSet {
		union++
		if wantSet[k] {
			matched++
		}
	}
	for k := range wantSet {
		if !gotSet[k] {
			union++
		}
	}

	var differences []string
	for table := range want {
		if _, ok := got[table]; !ok {
			differences = append(differences, fmt.Sprintf("missing table: %s", table))
		}
	}
	for table := range got {
		if _, ok := want[table]; !ok {
			differences = append(differences, fmt.Sprintf("unexpected table: %s", table))
		}
	}
	for table, wantCols := range want {
		gotCols, ok := got[table]
		if !ok {
			continue
		}
		for col := range wantCols {
			if !gotCols[col] {
				differences = append(differences, fmt.Sprintf("table %s: missing column %s", table, col))
			}
		}
		for col := range gotCols {
			if !wantCols[col] {
				differences = append(differences, fmt.Sprintf("table %s: unexpected column %s", table, col))
			}
		}
	}
	sort.Strings(differences)

	if union == 0 {
		return 100, differences
	}
	return matched * 100 / union, differences
}

// DetectSchemaVersion finds the migration version whose cumulative schema
// best matches the live database. It replays the up migrations into a scratch
// in-memory database, snapshotting after each version. Used to adopt legacy
// databases that predate schema_migrations: baseline at the detected version,
// then migrate up.
func (db *DB) DetectSchemaVersion(migrationsFS fs.FS) (version uint, matchScore int, differences []string, err error) {
	live, err := snapshotSchema(db.DB)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to snapshot live schema: %w", err)
	}

	versions, err := migrationVersions(migrationsFS)
	if err != nil {
		return 0, 0, nil, err
	}

	scratch, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to open scratch database: %w", err)
	}
	defer scratch.Close()
	// Each pooled connection would get its own empty :memory: database.
	scratch.SetMaxOpenConns(1)

	bestVersion := uint(0)
	bestScore := -1
	var bestDiffs []string

	for _, v := range versions {
		matches, err := fs.Glob(migrationsFS, fmt.Sprintf("%06d_*.up.sql", v))
		if err != nil || len(matches) == 0 {
			return 0, 0, nil, fmt.Errorf("migration file for version %d not found", v)
		}
		stmt, err := fs.ReadFile(migrationsFS, matches[0])
		if err != nil {
			return 0, 0, nil, fmt.Errorf("failed to read %s: %w", matches[0], err)
		}
		if _, err := scratch.Exec(string(stmt)); err != nil {
			return 0, 0, nil, fmt.Errorf("failed to apply %s to scratch database: %w", matches[0], err)
		}

		candidate, err := snapshotSchema(scratch)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("failed to snapshot scratch schema at version %d: %w", v, err)
		}

		// Ties go to the higher version: a schema equally consistent with two
		// versions is assumed to be the later one.
		score, diffs := compareSchemas(live, candidate)
		if score >= bestScore {
			bestVersion, bestScore, bestDiffs = v, score, diffs
		}
	}

	return bestVersion, bestScore, bestDiffs, nil
}
