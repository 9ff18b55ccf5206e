package postgres

// The "C" collation makes the canonical-order check compare bytes, the
// same order types.NewPair uses.
const schema = `
CREATE TABLE IF NOT EXISTS non_duplicates (
    person_a TEXT NOT NULL,
    person_b TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (person_a, person_b),
    CONSTRAINT non_duplicates_not_empty CHECK (person_a <> '' AND person_b <> ''),
    CONSTRAINT non_duplicates_canonical CHECK (person_a COLLATE "C" < person_b COLLATE "C")
);

CREATE INDEX IF NOT EXISTS idx_non_duplicates_person_b ON non_duplicates(person_b);
`
