package blobStore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	local, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"localfs": local,
		"memory":  NewInMemory(),
	}
}

func TestStore_PutGetListDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rfp := DocumentPath("P-1", "rfp", "call.pdf")
			ref := DocumentPath("P-1", "reference", "past.docx")
			refOther := DocumentPath("P-1", "reference2", "x.txt")

			require.NoError(t, s.Put(ctx, rfp, []byte("rfp")))
			require.NoError(t, s.Put(ctx, ref, []byte("ref")))
			require.NoError(t, s.Put(ctx, refOther, []byte("other")))

			data, err := s.Get(ctx, rfp)
			require.NoError(t, err)
			assert.Equal(t, "rfp", string(data))

			listed, err := s.List(ctx, DocumentPrefix("P-1", "reference"))
			require.NoError(t, err)
			assert.Equal(t, []string{"P-1/documents/reference/past.docx"}, listed)

			all, err := s.List(ctx, JobPrefix("P-1"))
			require.NoError(t, err)
			assert.Len(t, all, 3)

			ok, err := s.Exists(ctx, ref)
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, s.Delete(ctx, ref))
			_, err = s.Get(ctx, ref)
			assert.True(t, errors.Is(err, ErrNotFound))
			assert.NoError(t, s.Delete(ctx, ref), "deleting a missing blob is not an error")

			none, err := s.List(ctx, DocumentPrefix("P-9", "rfp"))
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestDocumentPath_StripsDirectories(t *testing.T) {
	assert.Equal(t, "P-1/documents/draft/draft.docx", DocumentPath("P-1", "draft", "../../etc/draft.docx"))
	assert.Equal(t, "etc/passwd", cleanPath("../../etc/passwd"))
}
