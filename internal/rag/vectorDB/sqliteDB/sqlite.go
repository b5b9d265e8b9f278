package sqliteDB

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/akolanti/ProposalAPI/internal/rag/vectorDB"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunk_vectors (
	index_name    TEXT NOT NULL,
	chunk_key     TEXT NOT NULL,
	job_id        TEXT NOT NULL DEFAULT '',
	document_name TEXT NOT NULL DEFAULT '',
	embedding     BLOB NOT NULL,
	PRIMARY KEY (index_name, chunk_key)
);
CREATE INDEX IF NOT EXISTS idx_chunk_vectors_job ON chunk_vectors (index_name, job_id);
`

// filterable payload fields and their columns
var columns = map[string]string{
	vectorDB.PayloadJobID:        "job_id",
	vectorDB.PayloadDocumentName: "document_name",
}

// Store is a brute-force cosine index for single-node deployments and tests.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn (":memory:" for tests) and creates the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vector schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureIndex is a no-op: all indices share one table keyed by index_name.
func (s *Store) EnsureIndex(ctx context.Context, name string) error {
	return nil
}

func (s *Store) Upsert(ctx context.Context, name, key string, vector []float32, payload map[string]string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunk_vectors (index_name, chunk_key, job_id, document_name, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (index_name, chunk_key) DO UPDATE SET
			job_id = excluded.job_id,
			document_name = excluded.document_name,
			embedding = excluded.embedding`,
		name, key, payload[vectorDB.PayloadJobID], payload[vectorDB.PayloadDocumentName], encodeFloat32s(vector))
	if err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, name string, vector []float32, topK int, filter map[string]string) ([]vectorDB.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	where, args, err := whereClause(name, filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_key, embedding FROM chunk_vectors WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &keyScoreHeap{}
	heap.Init(h)
	var buf []float32
	for rows.Next() {
		var key string
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", key, err)
		}
		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, keyScore{Key: key, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = keyScore{Key: key, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	matches := make([]vectorDB.Match, h.Len())
	for i := len(matches) - 1; i >= 0; i-- {
		item := heap.Pop(h).(keyScore)
		matches[i] = vectorDB.Match{Key: item.Key, Distance: 1 - float64(item.Score)}
	}
	return matches, nil
}

func (s *Store) ListKeys(ctx context.Context, name string, filter map[string]string) ([]string, error) {
	where, args, err := whereClause(name, filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_key FROM chunk_vectors WHERE `+where+` ORDER BY chunk_key`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *Store) DeleteKeys(ctx context.Context, name string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, name)
	for _, key := range keys {
		args = append(args, key)
	}
	query := `DELETE FROM chunk_vectors WHERE index_name = ? AND chunk_key IN (?` + strings.Repeat(",?", len(keys)-1) + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting %d keys: %w", len(keys), err)
	}
	return nil
}

func whereClause(name string, filter map[string]string) (string, []any, error) {
	clauses := []string{"index_name = ?"}
	args := []any{name}
	for field, value := range filter {
		column, ok := columns[field]
		if !ok {
			return "", nil, fmt.Errorf("unsupported filter field %q", field)
		}
		clauses = append(clauses, column+" = ?")
		args = append(args, value)
	}
	return strings.Join(clauses, " AND "), args, nil
}

type keyScore struct {
	Key   string
	Score float32
}

// keyScoreHeap is a min-heap on Score holding the current top-K.
type keyScoreHeap []keyScore

func (h keyScoreHeap) Len() int           { return len(h) }
func (h keyScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h keyScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *keyScoreHeap) Push(x any)        { *h = append(*h, x.(keyScore)) }
func (h *keyScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine returns the cosine similarity of a query (with precomputed norm) and b.
// Vectors of different length or zero norm score 0.
func cosine(query, b []float32, queryNorm float32) float32 {
	if len(query) != len(b) {
		return 0
	}
	var dot float64
	for i := range query {
		dot += float64(query[i]) * float64(b[i])
	}
	bNorm := norm(b)
	if bNorm == 0 {
		return 0
	}
	return float32(dot) / (queryNorm * bNorm)
}
