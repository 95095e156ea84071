package recovery

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLog_AppendsTimestampedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recovery.log")

	require.NoError(t, Log(path, "first event"))
	require.NoError(t, Log(path, "second event"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "first event")
	require.Contains(t, lines[1], "second event")
}

func TestLog_CreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "recovery.log")

	require.NoError(t, Log(path, "hello"))

	_, err := os.Stat(path)
	require.NoError(t, err)
}
