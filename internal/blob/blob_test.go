package blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ericksa/contractrisk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "1-abc-contract.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf"))

	rc, err := s.Get(ctx, "1-abc-contract.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, s.Delete(ctx, "1-abc-contract.pdf"))
	_, err = s.Get(ctx, "1-abc-contract.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "1-abc-contract.pdf"), ErrNotFound)
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../outside.pdf", "/etc/passwd", "a/b.pdf", "", "."} {
		err := s.Put(ctx, name, strings.NewReader("x"), 1, "")
		assert.Error(t, err, name)
	}
}

func TestObjectName(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	name := ObjectName("Master Services (v2).pdf", now)
	assert.True(t, strings.HasPrefix(name, "1700000000000-"), name)
	assert.True(t, strings.HasSuffix(name, "-Master_Services_v2_.pdf"), name)

	name = ObjectName(`C:\Users\legal\nda.docx`, now)
	assert.True(t, strings.HasSuffix(name, "-nda.docx"), name)

	name = ObjectName("../../", now)
	assert.True(t, strings.HasSuffix(name, "-contract"), name)

	assert.NotEqual(t, ObjectName("a.pdf", now), ObjectName("a.pdf", now))
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, config.StorageConfig{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = New(ctx, config.StorageConfig{Backend: "tape"})
	assert.Error(t, err)
}
