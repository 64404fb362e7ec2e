package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raftpeer/internal/raft/proto"
)

func entries(term uint64, from, to uint64) []*proto.LogEntry {
	out := make([]*proto.LogEntry, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, &proto.LogEntry{Index: i, Term: term, Command: int64(100 + i)})
	}
	return out
}

func TestMemoryLog_Empty(t *testing.T) {
	l := NewMemoryLog()

	assert.Equal(t, uint64(0), l.GetLastIndex())
	assert.Equal(t, uint64(0), l.GetLastTerm())

	term, err := l.GetTerm(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), term)

	_, err = l.GetEntry(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	got, err := l.GetEntriesFrom(1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryLog_Append(t *testing.T) {
	t.Run("contiguous entries", func(t *testing.T) {
		l := NewMemoryLog()
		require.NoError(t, l.AppendEntry(&proto.LogEntry{Index: 1, Term: 1, Command: 7}))
		require.NoError(t, l.AppendEntries(entries(2, 2, 4)))

		assert.Equal(t, uint64(4), l.GetLastIndex())
		assert.Equal(t, uint64(2), l.GetLastTerm())

		e, err := l.GetEntry(1)
		require.NoError(t, err)
		assert.Equal(t, int64(7), e.Command)
	})

	t.Run("gap is rejected", func(t *testing.T) {
		l := NewMemoryLog()
		err := l.AppendEntry(&proto.LogEntry{Index: 2, Term: 1})
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
		assert.Equal(t, uint64(0), l.GetLastIndex())
	})

	t.Run("batch with a hole is rejected atomically", func(t *testing.T) {
		l := NewMemoryLog()
		batch := []*proto.LogEntry{{Index: 1, Term: 1}, {Index: 3, Term: 1}}
		assert.ErrorIs(t, l.AppendEntries(batch), ErrIndexOutOfRange)
		assert.Equal(t, uint64(0), l.GetLastIndex())
	})

	t.Run("stored entries are copies", func(t *testing.T) {
		l := NewMemoryLog()
		e := &proto.LogEntry{Index: 1, Term: 1, Command: 5}
		require.NoError(t, l.AppendEntry(e))
		e.Command = 99

		got, err := l.GetEntry(1)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.Command)

		got.Command = 42
		again, _ := l.GetEntry(1)
		assert.Equal(t, int64(5), again.Command)
	})
}

func TestMemoryLog_Ranges(t *testing.T) {
	l := NewMemoryLog()
	require.NoError(t, l.AppendEntries(entries(1, 1, 5)))

	got, err := l.GetEntries(2, 4)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[0].Index)
	assert.Equal(t, uint64(4), got[2].Index)

	got, err = l.GetEntriesFrom(4)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = l.GetEntriesFrom(6)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = l.GetEntriesFrom(7)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = l.GetEntries(0, 2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = l.GetEntries(3, 6)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestMemoryLog_DeleteEntriesFrom(t *testing.T) {
	l := NewMemoryLog()
	require.NoError(t, l.AppendEntries(entries(1, 1, 3)))
	require.NoError(t, l.AppendEntries(entries(2, 4, 5)))

	require.NoError(t, l.DeleteEntriesFrom(4))
	assert.Equal(t, uint64(3), l.GetLastIndex())
	assert.Equal(t, uint64(1), l.GetLastTerm())

	// Appending after truncation continues from the new tail.
	require.NoError(t, l.AppendEntries(entries(3, 4, 4)))
	term, err := l.GetTerm(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), term)

	assert.ErrorIs(t, l.DeleteEntriesFrom(0), ErrIndexOutOfRange)
	assert.ErrorIs(t, l.DeleteEntriesFrom(9), ErrIndexOutOfRange)

	require.NoError(t, l.DeleteEntriesFrom(1))
	assert.Equal(t, uint64(0), l.GetLastIndex())
}
