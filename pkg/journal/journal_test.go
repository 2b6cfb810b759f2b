package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daohu527/vconsole/pkg/log"
	"github.com/daohu527/vconsole/pkg/oplog"
)

func openTestJournal(t *testing.T, session string) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), session, log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestListenerPersistsEntries(t *testing.T) {
	j := openTestJournal(t, "session-1")

	l := oplog.New(10, log.NewNopLogger())
	l.Register(j.Listener())
	l.Sent("Turn left command sent")
	l.Errorf("turnLeft failed: 500 boom")

	recs, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "session-1", recs[0].SessionID)
	assert.Equal(t, oplog.KindError, recs[0].Entry.Kind)
	assert.Equal(t, "turnLeft failed: 500 boom", recs[0].Entry.Text)
	assert.Equal(t, oplog.KindSent, recs[1].Entry.Kind)
}

func TestRecentRespectsLimit(t *testing.T) {
	j := openTestJournal(t, "s")
	l := oplog.New(10, log.NewNopLogger())
	l.Register(j.Listener())
	for i := 0; i < 5; i++ {
		l.Info("entry %d", i)
	}

	recs, err := j.Recent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "entry 4", recs[0].Entry.Text)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path, "first", log.NewNopLogger())
	require.NoError(t, err)
	e := oplog.New(1, log.NewNopLogger()).Info("Requesting live control...")
	require.NoError(t, j.Append(context.Background(), e))
	require.NoError(t, j.Close())

	j, err = Open(path, "second", log.NewNopLogger())
	require.NoError(t, err)
	defer j.Close()

	recs, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "first", recs[0].SessionID)
	assert.Equal(t, e.ID, recs[0].Entry.ID)
}
