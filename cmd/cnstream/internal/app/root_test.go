package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
max_stream_number: 16
stages:
  source:
    next: [sink]
  sink:
    parallelism: 1
    max_input_queue_size: 8
`

func writeTempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o644))
	return path
}

func TestRunBuildsStartsAndStopsOnSingleStreamEOS(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx, flags{
		configFname: writeTempConfig(t),
		dataName:    "camera0",
		waitTime:    5,
	})
	require.NoError(t, err)
}

func TestRunFailsWithoutConfigFname(t *testing.T) {
	err := run(context.Background(), flags{dataName: "camera0"})
	require.Error(t, err)
}

func TestRunFailsWithoutStreamSelector(t *testing.T) {
	err := run(context.Background(), flags{configFname: writeTempConfig(t)})
	require.Error(t, err)
}

func TestStreamNamesFromDataPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streams.txt")
	require.NoError(t, os.WriteFile(path, []byte("camera0\ncamera1\n\n"), 0o644))

	names, err := streamNamesFrom(flags{dataPath: path})
	require.NoError(t, err)
	require.Equal(t, []string{"camera0", "camera1"}, names)
}
