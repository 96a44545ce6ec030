package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the database file inside the index directory.
const FileName = "index.db"

// SearchFields are the columns a Query.Field may name.
var SearchFields = []string{"message", "alias", "username", "chat", "media"}

// DefaultField is searched when a Query names no field.
const DefaultField = "message"

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	from_id     TEXT NOT NULL,
	username    TEXT,
	alias       TEXT,
	to_username TEXT,
	to_alias    TEXT,
	to_id       TEXT NOT NULL,
	chat        TEXT NOT NULL,
	media       TEXT,
	message     TEXT,
	timestamp   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_timestamp ON messages(timestamp);
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	message, alias, username, chat, media,
	content='messages', content_rowid='id'
);
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, message, alias, username, chat, media)
	VALUES (new.id, new.message, new.alias, new.username, new.chat, new.media);
END;
`

const insertRecord = `
INSERT INTO messages (kind, from_id, username, alias, to_username, to_alias, to_id, chat, media, message, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectColumns = `m.kind, m.from_id, m.username, m.alias, m.to_username, m.to_alias, m.to_id, m.chat, m.media, m.message, m.timestamp`

// SQLite is an Engine backed by an SQLite database with an FTS5 table.
type SQLite struct {
	db   *sql.DB
	path string
}

// Open opens the index in dir, creating the directory, database and schema
// when they do not exist yet.
func Open(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	path := filepath.Join(dir, FileName)
	dsn := path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema in %s: %w", path, err)
	}

	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Begin(ctx context.Context) (Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin index transaction: %w", err)
	}
	return &sqliteBatch{tx: tx}, nil
}

type sqliteBatch struct {
	tx *sql.Tx
}

func (b *sqliteBatch) Add(ctx context.Context, rec Record) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := b.tx.ExecContext(ctx, insertRecord,
		rec.Kind, rec.FromID,
		nullString(rec.Username), nullString(rec.Alias),
		nullString(rec.ToUsername), nullString(rec.ToAlias),
		rec.ToID, rec.Chat,
		nullString(rec.Media), nullString(rec.Message),
		ts.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (b *sqliteBatch) Commit() error { return b.tx.Commit() }

func (b *sqliteBatch) Rollback() error { return b.tx.Rollback() }

// Search matches q.Text against q.Field and returns the hits in timestamp
// order. An empty q.Text returns every record. A raw query without a field
// may carry its own column filters and is not restricted.
func (s *SQLite) Search(ctx context.Context, q Query) ([]Record, error) {
	var (
		stmt string
		args []any
	)

	if strings.TrimSpace(q.Text) == "" {
		stmt = `SELECT ` + selectColumns + ` FROM messages m ORDER BY m.timestamp, m.id`
	} else {
		match, err := matchExpr(q)
		if err != nil {
			return nil, err
		}
		stmt = `SELECT ` + selectColumns + `
			FROM messages_fts f JOIN messages m ON m.id = f.rowid
			WHERE messages_fts MATCH ?
			ORDER BY m.timestamp, m.id`
		args = append(args, match)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	stmt += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q.Text, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Chats lists the conversations present in the index.
func (s *SQLite) Chats(ctx context.Context) ([]ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, chat, to_id, COUNT(*) FROM messages
		GROUP BY kind, chat, to_id ORDER BY MIN(timestamp)`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []ChatSummary
	for rows.Next() {
		var c ChatSummary
		if err := rows.Scan(&c.Kind, &c.Chat, &c.ToID, &c.Messages); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Peers lists the senders present in the index, with the most recent
// username and alias seen for each.
func (s *SQLite) Peers(ctx context.Context) ([]PeerSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.from_id, m.username, m.alias, c.n
		FROM messages m
		JOIN (SELECT from_id, MAX(id) AS last, COUNT(*) AS n FROM messages GROUP BY from_id) c
			ON m.id = c.last
		ORDER BY m.from_id`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	var out []PeerSummary
	for rows.Next() {
		var (
			p               PeerSummary
			username, alias sql.NullString
		)
		if err := rows.Scan(&p.ID, &username, &alias, &p.Messages); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		p.Username, p.Alias = username.String, alias.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec                                  Record
		username, alias, toUsername, toAlias sql.NullString
		media, message                       sql.NullString
		ts                                   int64
	)
	err := rows.Scan(&rec.Kind, &rec.FromID, &username, &alias, &toUsername, &toAlias,
		&rec.ToID, &rec.Chat, &media, &message, &ts)
	if err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Username = username.String
	rec.Alias = alias.String
	rec.ToUsername = toUsername.String
	rec.ToAlias = toAlias.String
	rec.Media = media.String
	rec.Message = message.String
	rec.Timestamp = time.Unix(0, ts)
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func matchExpr(q Query) (string, error) {
	field := q.Field
	if field == "" {
		if q.Raw {
			return q.Text, nil
		}
		field = DefaultField
	}
	if !validField(field) {
		return "", fmt.Errorf("unknown search field %q (allowed: %v)", field, SearchFields)
	}
	text := q.Text
	if !q.Raw {
		text = freeText(text)
	}
	return fmt.Sprintf("%s : (%s)", field, text), nil
}

// freeText quotes every whitespace separated term of text as an FTS5 string
// so punctuation is left to the tokenizer. AND, OR and NOT between two terms
// stay operators.
func freeText(text string) string {
	words := strings.Fields(text)
	parts := make([]string, 0, len(words))
	lastOp := true
	for i, w := range words {
		if !lastOp && i < len(words)-1 && isOperator(w) {
			parts = append(parts, w)
			lastOp = true
			continue
		}
		parts = append(parts, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
		lastOp = false
	}
	return strings.Join(parts, " ")
}

func isOperator(w string) bool {
	return w == "AND" || w == "OR" || w == "NOT"
}

func validField(f string) bool {
	for _, v := range SearchFields {
		if v == f {
			return true
		}
	}
	return false
}
