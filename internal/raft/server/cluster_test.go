package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCluster(t *testing.T) {
	if testing.Short() {
		t.Skip("timing based cluster test")
	}
	ctx := context.Background()

	t.Run("elects one leader and keeps it while idle", func(t *testing.T) {
		c := newLocalCluster(t, 3)
		leader := c.leader(t)
		term := leader.getCurrentTerm()

		time.Sleep(500 * time.Millisecond)

		assert.Same(t, leader, c.leader(t))
		for _, s := range c.servers {
			assert.Equal(t, term, s.getCurrentTerm())
		}
	})

	t.Run("replicates commands to every peer", func(t *testing.T) {
		c := newLocalCluster(t, 3)
		leader := c.leader(t)

		for i, cmd := range []int64{11, 12, 13} {
			report, err := leader.Submit(ctx, cmd)
			require.NoError(t, err)
			require.True(t, report.IsLeader)
			require.Equal(t, uint64(i+1), report.LastLogIndex)
		}

		for _, s := range c.servers {
			require.Eventually(t, func() bool { return s.getCommitIndex() == 3 }, 2*time.Second, 10*time.Millisecond)
			for index, want := range []int64{11, 12, 13} {
				got, err := s.CommittedCmd(uint64(index + 1))
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		}
	})

	t.Run("a partitioned leader is replaced and catches up on return", func(t *testing.T) {
		c := newLocalCluster(t, 3)
		old := c.leader(t)
		_, err := old.Submit(ctx, 1)
		require.NoError(t, err)

		c.net.setDown(old.ID, true)
		leader := c.leader(t)
		require.NotSame(t, old, leader)
		assert.Greater(t, leader.getCurrentTerm(), old.getCurrentTerm())

		report, err := leader.Submit(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, uint64(2), report.LastLogIndex)

		c.net.setDown(old.ID, false)
		require.Eventually(t, func() bool {
			return old.getState() == Follower && old.getCommitIndex() == 2
		}, 3*time.Second, 10*time.Millisecond)
		cmd, err := old.CommittedCmd(2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), cmd)
	})

	t.Run("no commit without a majority", func(t *testing.T) {
		c := newLocalCluster(t, 3)
		leader := c.leader(t)
		for _, s := range c.servers {
			if s != leader {
				s.Deactivate()
			}
		}

		report, err := leader.Submit(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), report.LastLogIndex)
		assert.Equal(t, uint64(0), leader.getCommitIndex())

		for _, s := range c.servers {
			require.NoError(t, s.Activate())
		}
		require.Eventually(t, func() bool {
			for _, s := range c.servers {
				if cmd, err := s.CommittedCmd(1); err != nil || cmd != 9 {
					return false
				}
			}
			return true
		}, 3*time.Second, 10*time.Millisecond)
	})
}
