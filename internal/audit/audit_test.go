package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogWritesNDJSON(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(dir, "sess-1", zap.NewNop())

	l.Record(Decision{URL: "https://who.int/a", Kept: true, Reason: ReasonAccepted})
	l.Record(Decision{URL: "https://spam.example.net/b", Kept: false, Reason: ReasonBlockedDomain})
	require.NoError(t, l.Close())

	f, err := os.Open(filepath.Join(dir, "sess-1.ndjson"))
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 3, "header plus one line per decision")

	assert.Equal(t, "sess-1", lines[0]["session_id"])
	assert.NotEmpty(t, lines[0]["started_at"])

	assert.Equal(t, "https://who.int/a", lines[1]["url"])
	assert.Equal(t, true, lines[1]["kept"])
	assert.Equal(t, ReasonAccepted, lines[1]["reason"])
	assert.Equal(t, "sess-1", lines[1]["session_id"])
	assert.NotEmpty(t, lines[1]["timestamp"])

	assert.Equal(t, ReasonBlockedDomain, lines[2]["reason"])
	assert.Equal(t, false, lines[2]["kept"])
}

func TestLogDecisionsReturnsCopy(t *testing.T) {
	l := NewLog("", "sess-2", zap.NewNop())
	l.Record(Decision{URL: "https://a", Kept: true, Reason: ReasonAccepted})

	ds := l.Decisions()
	require.Len(t, ds, 1)
	ds[0].URL = "mutated"

	again := l.Decisions()
	assert.Equal(t, "https://a", again[0].URL)
}

func TestLogStampsSessionAndTime(t *testing.T) {
	l := NewLog("", "sess-3", zap.NewNop())
	l.Record(Decision{URL: "https://a", Kept: false, Reason: ReasonLowQuality})

	d := l.Decisions()[0]
	assert.Equal(t, "sess-3", d.SessionID)
	assert.False(t, d.Timestamp.IsZero())
}

func TestLogWithoutDirKeepsInMemoryTrail(t *testing.T) {
	l := NewLog("", "sess-4", zap.NewNop())
	l.Record(Decision{URL: "https://a", Kept: true, Reason: ReasonAccepted})

	assert.Len(t, l.Decisions(), 1)
	assert.NoError(t, l.Close())
}

func TestLogConcurrentRecords(t *testing.T) {
	l := NewLog(t.TempDir(), "sess-5", zap.NewNop())
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				l.Record(Decision{URL: "https://a", Kept: true, Reason: ReasonAccepted})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, l.Decisions(), 200)
}
