package state_machine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"raftpeer/internal/raft/proto"
)

func TestNewCommandLog(t *testing.T) {
	sm := NewCommandLog(3)

	assert.NotNil(t, sm)
	assert.Equal(t, 3, sm.id)
	assert.Equal(t, uint64(0), sm.LastApplied())
	assert.Empty(t, sm.Commands())
}

func TestCommandLog_Apply(t *testing.T) {
	t.Run("applies entries in order", func(t *testing.T) {
		sm := NewCommandLog(0)
		sm.Apply([]*proto.LogEntry{
			{Index: 1, Term: 1, Command: 100},
			{Index: 2, Term: 1, Command: 200},
		})
		sm.Apply([]*proto.LogEntry{{Index: 3, Term: 2, Command: 300}})

		assert.Equal(t, uint64(3), sm.LastApplied())
		assert.Equal(t, []int64{100, 200, 300}, sm.Commands())

		cmd, ok := sm.Get(2)
		assert.True(t, ok)
		assert.Equal(t, int64(200), cmd)
	})

	t.Run("skips already applied entries", func(t *testing.T) {
		sm := NewCommandLog(0)
		sm.Apply([]*proto.LogEntry{{Index: 1, Command: 1}})
		sm.Apply([]*proto.LogEntry{{Index: 1, Command: 9}, {Index: 2, Command: 2}})

		assert.Equal(t, []int64{1, 2}, sm.Commands())
	})

	t.Run("stops at a gap", func(t *testing.T) {
		sm := NewCommandLog(0)
		sm.Apply([]*proto.LogEntry{{Index: 1, Command: 1}, {Index: 3, Command: 3}})

		assert.Equal(t, uint64(1), sm.LastApplied())
		_, ok := sm.Get(3)
		assert.False(t, ok)
	})

	t.Run("out of range lookups", func(t *testing.T) {
		sm := NewCommandLog(0)
		_, ok := sm.Get(0)
		assert.False(t, ok)
		_, ok = sm.Get(1)
		assert.False(t, ok)
	})
}

func TestCommandLog_ConcurrentReads(t *testing.T) {
	sm := NewCommandLog(0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 100; i++ {
			sm.Apply([]*proto.LogEntry{{Index: i, Command: int64(i)}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = sm.LastApplied()
			_ = sm.Commands()
		}
	}()
	wg.Wait()

	assert.Equal(t, uint64(100), sm.LastApplied())
}
