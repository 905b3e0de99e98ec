package audit

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakapadnis/ctOS/pkg/types"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func record(action types.Action, tag string, outcome types.Outcome) *types.AuditRecord {
	return &types.AuditRecord{
		Timestamp:   time.Now(),
		Instance:    "ctos",
		Action:      action,
		ArtifactTag: tag,
		Outcome:     outcome,
	}
}

func TestAppendAndRead(t *testing.T) {
	l := newTestLog(t)

	require.NoError(t, l.Append(record(types.ActionDeploy, "v1", types.OutcomeSuccess)))
	require.NoError(t, l.Append(record(types.ActionDeploy, "v2", types.OutcomeRolledBack)))
	require.NoError(t, l.Append(record(types.ActionAutoRollback, "v1", types.OutcomeRolledBack)))

	records, err := l.Records()
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Append order preserved
	assert.Equal(t, "v1", records[0].ArtifactTag)
	assert.Equal(t, types.ActionAutoRollback, records[2].Action)
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(record(types.ActionDeploy, "v1", types.OutcomeSuccess)))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()

	records, err := l.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.OutcomeSuccess, records[0].Outcome)
}

func TestEmptyTrail(t *testing.T) {
	l := newTestLog(t)

	records, err := l.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWriteFailureFallsBack(t *testing.T) {
	l := newTestLog(t)

	var fallback bytes.Buffer
	l.fallback = &fallback

	// Closing the file underneath forces the storage-layer error path
	require.NoError(t, l.file.Close())

	err := l.Append(record(types.ActionDeploy, "v3", types.OutcomeFatalFailure))
	assert.ErrorIs(t, err, ErrWriteFailure)

	// The record must not be lost: it lands on the fallback sink
	out := fallback.String()
	assert.True(t, strings.Contains(out, "v3"), "fallback output missing artifact tag: %s", out)
	assert.True(t, strings.Contains(out, "fatal_failure"), "fallback output missing outcome: %s", out)
}

func TestConcurrentAppends(t *testing.T) {
	l := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Append(record(types.ActionDeploy, "v1", types.OutcomeSuccess))
		}()
	}
	wg.Wait()

	records, err := l.Records()
	require.NoError(t, err)
	assert.Len(t, records, 10)
}
