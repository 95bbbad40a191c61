package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RecordsFile is the default name of the record log below the test root.
const RecordsFile = "records.log"

// ExecutionRecord holds the start and end times for a single command's execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Expand replaces the {{root}} placeholder in content.
func Expand(content, root string) string {
	return strings.ReplaceAll(content, "{{root}}", root)
}

// Record returns a bash command appending "<event> <id> <time>" to the record
// log of the harness root. Run it with event "start" and "end" around the
// work to be timed. The command holds no double quotes, so it can be placed
// in an HCL string as is.
func Record(event, id string) string {
	return fmt.Sprintf("echo %s %s $EPOCHREALTIME >> %s", event, id, filepath.Join("{{root}}", RecordsFile))
}

// ReadRecords parses the record log below root.
func ReadRecords(t *testing.T, root string) map[string]*ExecutionRecord {
	t.Helper()
	f, err := os.Open(filepath.Join(root, RecordsFile))
	require.NoError(t, err)
	defer f.Close()

	records := make(map[string]*ExecutionRecord)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		require.Len(t, fields, 3, "malformed record %q", sc.Text())
		secs, err := strconv.ParseFloat(fields[2], 64)
		require.NoError(t, err)
		ts := time.UnixMicro(int64(secs * 1e6))

		rec, ok := records[fields[1]]
		if !ok {
			rec = &ExecutionRecord{}
			records[fields[1]] = rec
		}
		switch fields[0] {
		case "start":
			rec.Start = ts
		case "end":
			rec.End = ts
		default:
			t.Fatalf("unknown record event %q", fields[0])
		}
	}
	require.NoError(t, sc.Err())
	return records
}

// RequireRanBefore asserts that first finished before second started.
func RequireRanBefore(t *testing.T, records map[string]*ExecutionRecord, first, second string) {
	t.Helper()
	a, b := records[first], records[second]
	require.NotNil(t, a, "no record for %s", first)
	require.NotNil(t, b, "no record for %s", second)
	require.False(t, b.Start.Before(a.End), "%s started at %v before %s ended at %v", second, b.Start, first, a.End)
}

// RequireOverlap asserts that the two executions ran at the same time.
func RequireOverlap(t *testing.T, records map[string]*ExecutionRecord, x, y string) {
	t.Helper()
	a, b := records[x], records[y]
	require.NotNil(t, a, "no record for %s", x)
	require.NotNil(t, b, "no record for %s", y)
	require.True(t, a.Start.Before(b.End) && b.Start.Before(a.End), "%s and %s did not overlap", x, y)
}
