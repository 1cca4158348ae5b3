package harness

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceBytes(t *testing.T) {
	data, err := TraceBytes([]TraceEvent{
		{Seq: 1, Action: "transaction.emit", Org: "org-a", Case: CaseOK, Result: map[string]any{"id": "id-0001"}},
		{Seq: 2, Action: "transaction.emit", Org: "org-a", Case: "Unbalanced", Field: "lines"},
	})
	require.NoError(t, err)

	want := `{"action":"transaction.emit","case":"ok","org":"org-a","seq":1}
{"action":"transaction.emit","case":"Unbalanced","field":"lines","org":"org-a","seq":2}
`
	assert.Equal(t, want, string(data))
}

func TestTraceBytes_Empty(t *testing.T) {
	data, err := TraceBytes(nil)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "ticket.golden"),
		GoldenPath(filepath.Join("scenarios", "ticket.yaml")))
	assert.Equal(t,
		filepath.Join("golden", "a.b.golden"),
		GoldenPath("a.b.yml"))
}

func TestWriteAndCompareGolden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "ticket.golden")
	result := &Result{Trace: []TraceEvent{
		{Seq: 1, Action: "transaction.emit", Org: "org-a", Case: CaseOK},
	}}

	_, err := CompareGolden(path, result)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, WriteGolden(path, result))
	match, err := CompareGolden(path, result)
	require.NoError(t, err)
	assert.True(t, match)

	// Results are not part of the golden trace
	result.Trace[0].Result = map[string]any{"created_at": "2025-01-01T09:00:00Z"}
	match, err = CompareGolden(path, result)
	require.NoError(t, err)
	assert.True(t, match)

	result.Trace[0].Case = "Conflict"
	match, err = CompareGolden(path, result)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestExampleGoldensMatchDisk(t *testing.T) {
	files, err := Discover("testdata/scenarios", "")
	require.NoError(t, err)

	for _, file := range files {
		_, err := LoadScenario(file)
		require.NoError(t, err)

		_, err = os.Stat(GoldenPath(file))
		assert.NoError(t, err, "missing golden for %s", file)
	}
}
