// Package ledger keeps a sqlite record of every artifact a stage published,
// so operators can tell which stage output is the current resume point.
package ledger

import (
	"strings"
	"time"

	"github.com/benalric/MetaB-pipeline/checkpoint"
	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS publication (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	invocation TEXT NOT NULL,
	stage TEXT NOT NULL,
	run TEXT NOT NULL,
	name TEXT NOT NULL,
	generation TEXT NOT NULL DEFAULT '',
	bytes INTEGER NOT NULL,
	digest TEXT NOT NULL,
	build_commit TEXT NOT NULL,
	published_unix INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS publication_key ON publication (stage, run, name);`

// Entry is one publication. Name is the logical artifact name; Generation
// identifies the stored object, and is empty for commit records.
type Entry struct {
	ID            int64  `db:"id"`
	Invocation    string `db:"invocation"`
	Stage         string `db:"stage"`
	Run           string `db:"run"`
	Name          string `db:"name"`
	Generation    string `db:"generation"`
	Bytes         int64  `db:"bytes"`
	Digest        string `db:"digest"`
	BuildCommit   string `db:"build_commit"`
	PublishedUnix int64  `db:"published_unix"`
}

// Object is the key of the stored object the entry describes.
func (e Entry) Object() checkpoint.Key {
	name := e.Name
	if e.Generation != "" {
		name = checkpoint.ObjectName(e.Name, e.Generation)
	}
	return checkpoint.Key{Stage: checkpoint.Stage(e.Stage), Run: e.Run, Name: name}
}

func (e Entry) PublishedAt() time.Time {
	return time.Unix(e.PublishedUnix, 0).UTC()
}

type Ledger struct {
	db *sqlx.DB
}

// Open opens or creates the ledger database at path. ":memory:" gives a
// private in-memory ledger.
func Open(path string) (*Ledger, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, pfx.Err(err)
	}
	// sqlite serializes writers; a single connection also keeps an in-memory
	// database alive and shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) Record(e Entry) error {
	_, err := l.db.NamedExec(`INSERT INTO publication
		(invocation, stage, run, name, generation, bytes, digest, build_commit, published_unix)
		VALUES (:invocation, :stage, :run, :name, :generation, :bytes, :digest, :build_commit, :published_unix)`, e)
	return pfx.Err(err)
}

// Latest returns the most recent publication of every artifact, ordered by
// stage, run and name.
func (l *Ledger) Latest() ([]Entry, error) {
	var out []Entry
	err := l.db.Select(&out, `SELECT * FROM publication
		WHERE id IN (SELECT MAX(id) FROM publication GROUP BY stage, run, name)
		ORDER BY stage, run, name`)
	return out, pfx.Err(err)
}

// History returns every publication of one stage, oldest first.
func (l *Ledger) History(stage string) ([]Entry, error) {
	var out []Entry
	err := l.db.Select(&out, `SELECT * FROM publication WHERE stage=? ORDER BY id`, stage)
	return out, pfx.Err(err)
}
