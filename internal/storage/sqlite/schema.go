package sqlite

import "github.com/steveyegge/ftaudit/internal/storage/migrations"

// schemaMigrations is the full schema history. Append new versions; never
// edit one that has shipped.
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "create non_duplicates",
		// Stored once in canonical order so (A,B) and (B,A) share a row
		Up: `
CREATE TABLE non_duplicates (
    person_a TEXT NOT NULL,
    person_b TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (person_a, person_b),
    CHECK(person_a <> '' AND person_b <> ''),
    CHECK(person_a < person_b)
);`,
		Down: `DROP TABLE non_duplicates;`,
	},
	{
		Version:     2,
		Description: "index non_duplicates by second person",
		Up:          `CREATE INDEX idx_non_duplicates_person_b ON non_duplicates(person_b);`,
		Down:        `DROP INDEX idx_non_duplicates_person_b;`,
	},
}

// schemaVersion is the version a freshly opened database ends up at
var schemaVersion = migrations.NewManager(schemaMigrations...).Latest()
