package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.dcm", "a.DCM", "c.json", "10.dcm"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.dcm"), 0755))

	paths, err := ListFiles(dir, ".dcm")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "10.dcm"),
		filepath.Join(dir, "a.DCM"),
		filepath.Join(dir, "b.dcm"),
	}, paths)

	_, err = ListFiles(filepath.Join(dir, "missing"), ".dcm")
	assert.Error(t, err)
}

func TestListFilesFollowsSymlinks(t *testing.T) {
	store := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(store, "a.dcm"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(store, "sub"), 0755))

	dir := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(store, "a.dcm"), filepath.Join(dir, "a.dcm")))
	require.NoError(t, os.Symlink(filepath.Join(store, "sub"), filepath.Join(dir, "sub.dcm")))
	require.NoError(t, os.Symlink(filepath.Join(store, "gone.dcm"), filepath.Join(dir, "broken.dcm")))

	paths, err := ListFiles(dir, ".dcm")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.dcm")}, paths)
}

func TestReadCSVByLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cohort.csv")
	require.NoError(t, os.WriteFile(path, []byte("Subject ID,Series UID\nD1-0002,1.2\nD1-0001,1.1\n"), 0644))

	rows := make([][]string, 0)
	err := ReadCSVByLines(path, func(items []string) error {
		rows = append(rows, items)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, []string{"D1-0001", "1.1"}, rows[2])

	stop := errors.New("stop")
	err = ReadCSVByLines(path, func(items []string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestWriteAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.jsonl")
	require.NoError(t, WriteAppend(path, "one"))
	require.NoError(t, WriteAppend(path, "two"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(b))
}

func TestFindInSlice(t *testing.T) {
	{
		i, ok := FindInSlice([]string{"\ufeffSubject ID", " Series UID "}, "Series UID")
		assert.True(t, ok)
		assert.Equal(t, 1, i)
	}
	{
		i, ok := FindInSlice([]string{"a"}, "b")
		assert.False(t, ok)
		assert.Equal(t, -1, i)
	}
}

func TestConvertTimeStampToTime(t *testing.T) {
	assert.Equal(t, time.Unix(1, 500*int64(time.Millisecond)), ConvertTimeStampToTime(1500))
}

func TestConvertFiltersToESQueryBody(t *testing.T) {
	body := *ConvertFiltersToESQueryBody(map[string]string{"run_id": "r1", "kind": ""}, 50, "created,-subject")

	assert.Equal(t, 50, body["size"])
	filter := body["query"].(kvStr2Inf)["bool"].(kvStr2Inf)["filter"].([]kvStr2Inf)
	assert.Equal(t, []kvStr2Inf{{"term": kvStr2Inf{"run_id.keyword": "r1"}}}, filter)
	assert.Equal(t, []kvStr2Inf{
		{"created": kvStr2Inf{"order": "asc"}},
		{"subject.keyword": kvStr2Inf{"order": "desc"}},
	}, body["sort"])

	unbounded := *ConvertFiltersToESQueryBody(nil, -1, "")
	_, hasSize := unbounded["size"]
	assert.False(t, hasSize)
	_, hasSort := unbounded["sort"]
	assert.False(t, hasSort)
}
