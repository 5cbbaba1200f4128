package lexical

// schemaVersion is stored in PRAGMA user_version. Open refuses any other
// value.
const schemaVersion = 1

// Passage metadata is stored raw; sentinel defaults are applied when rows
// are projected into documents. The FTS table indexes the four searchable
// fields in the order their bm25 weights are given.
const schema = `
CREATE TABLE IF NOT EXISTS passages (
    id INTEGER PRIMARY KEY,
    content TEXT NOT NULL,
    course TEXT NOT NULL DEFAULT '',
    lecture TEXT NOT NULL DEFAULT '',
    semester TEXT NOT NULL DEFAULT '',
    page TEXT NOT NULL DEFAULT '',
    header TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_passages_course ON passages(course);
CREATE INDEX IF NOT EXISTS idx_passages_lecture ON passages(lecture);
CREATE INDEX IF NOT EXISTS idx_passages_semester ON passages(semester);

CREATE VIRTUAL TABLE IF NOT EXISTS passages_fts USING fts5(
    content, course, lecture, header,
    content='passages',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS passages_ai AFTER INSERT ON passages BEGIN
    INSERT INTO passages_fts(rowid, content, course, lecture, header)
    VALUES (new.id, new.content, new.course, new.lecture, new.header);
END;

CREATE TRIGGER IF NOT EXISTS passages_ad AFTER DELETE ON passages BEGIN
    INSERT INTO passages_fts(passages_fts, rowid, content, course, lecture, header)
    VALUES ('delete', old.id, old.content, old.course, old.lecture, old.header);
END;

CREATE TABLE IF NOT EXISTS vocabulary (
    word TEXT PRIMARY KEY,
    freq INTEGER NOT NULL
);

PRAGMA user_version = 1;
`

// requiredTables must all exist for an index file to be usable.
var requiredTables = []string{"passages", "passages_fts", "vocabulary"}

// fieldWeights are the bm25 column weights for content, course, lecture and
// header.
const fieldWeights = "3.0, 1.5, 1.2, 1.0"
