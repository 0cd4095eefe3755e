package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditor_LogAndGet(t *testing.T) {
	a, err := NewAuditor(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer a.Close()

	a.Log("mcp", "contract_get", []byte(`{"id":1}`), []byte(`{"id":1}`), nil)
	a.Log("api", "delete", []byte(`{"id":2}`), nil, errors.New("not found"))

	entries, err := a.GetLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "api", entries[0].Source)
	assert.Equal(t, "delete", entries[0].Action)
	assert.Equal(t, "not found", entries[0].Error)
	assert.Equal(t, "contract_get", entries[1].Action)
	assert.Equal(t, `{"id":1}`, entries[1].Input)
	assert.False(t, entries[1].Timestamp.IsZero())

	limited, err := a.GetLogs(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAuditor_Nil(t *testing.T) {
	var a *Auditor
	assert.NotPanics(t, func() {
		a.Log("mcp", "contract_list", nil, nil, nil)
		a.Close()
	})
	entries, err := a.GetLogs(context.Background(), 5)
	assert.NoError(t, err)
	assert.Nil(t, entries)
}
