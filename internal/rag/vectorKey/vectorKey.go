// Package vectorKey encodes the stable identifier of a vector chunk:
//
//	job_id|attr1|attr2|attr3|document_name|chunk_index|total_chunks
//
// The key is also what the index returns on a match, so every field needed to
// group hits by document must survive a round trip.
package vectorKey

import (
	"strconv"
	"strings"
)

const (
	Delimiter  = "|"
	FieldCount = 7
	// LegacyFieldCount is the shape of keys written before chunk ordinals were added:
	// job_id|attr1|attr2|attr3|document_name
	LegacyFieldCount = 5
	UnknownDocument  = "unknown"
)

type Key struct {
	JobID        string
	Attrs        [3]string
	DocumentName string
	ChunkIndex   int
	TotalChunks  int
}

// Encode joins the fields. A delimiter inside a field is replaced so that it can
// never shift the positions of the fields after it.
func Encode(k Key) string {
	parts := []string{
		sanitize(k.JobID),
		sanitize(k.Attrs[0]),
		sanitize(k.Attrs[1]),
		sanitize(k.Attrs[2]),
		sanitize(k.DocumentName),
		strconv.Itoa(k.ChunkIndex),
		strconv.Itoa(k.TotalChunks),
	}
	return strings.Join(parts, Delimiter)
}

// Decode reads fields positionally and tolerates short keys: missing fields are
// left at their zero value, a missing document name becomes UnknownDocument and a
// missing total is treated as a single-chunk document. ok is false only when no
// job id can be read.
func Decode(s string) (Key, bool) {
	parts := strings.Split(s, Delimiter)
	var k Key
	if len(parts) == 0 || parts[0] == "" {
		return k, false
	}
	k.JobID = parts[0]
	for i := 0; i < 3 && i+1 < len(parts); i++ {
		k.Attrs[i] = parts[i+1]
	}
	k.DocumentName = UnknownDocument
	if len(parts) > 4 && parts[4] != "" {
		k.DocumentName = parts[4]
	}
	if len(parts) > 5 {
		k.ChunkIndex, _ = strconv.Atoi(parts[5])
	}
	k.TotalChunks = 1
	if len(parts) > 6 {
		if total, err := strconv.Atoi(parts[6]); err == nil && total > 0 {
			k.TotalChunks = total
		}
	}
	return k, true
}

// HasJob is the prefix test used when listing every key of an index.
func HasJob(s, jobID string) bool {
	return strings.HasPrefix(s, sanitize(jobID)+Delimiter)
}

func sanitize(field string) string {
	return strings.ReplaceAll(field, Delimiter, "/")
}
