package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadFields(t *testing.T) {
	t.Run("absent record decodes to nil", func(t *testing.T) {
		thread, err := ThreadFromFields(map[string]string{})
		require.NoError(t, err)
		assert.Nil(t, thread)
	})

	t.Run("flags and counters are decoded", func(t *testing.T) {
		created := time.UnixMilli(1_700_000_000_000)
		thread, err := ThreadFromFields(map[string]string{
			FieldTid:       "7",
			FieldTitle:     "Hello",
			FieldTimestamp: "1700000000000",
			FieldPostCount: "3",
			FieldLocked:    "1",
			FieldPinned:    "0",
			FieldTeaserPid: "",
		})
		require.NoError(t, err)
		assert.Equal(t, ThreadId(7), thread.Id)
		assert.True(t, thread.CreatedAt.Equal(created))
		assert.Equal(t, 3, thread.PostCount)
		assert.True(t, thread.Locked)
		assert.False(t, thread.Pinned)
		assert.Zero(t, thread.TeaserPid)
		assert.True(t, thread.LastPostAt.IsZero())
	})

	t.Run("malformed numbers are rejected at the boundary", func(t *testing.T) {
		_, err := ThreadFromFields(map[string]string{FieldTid: "seven"})
		assert.Error(t, err)
	})

	t.Run("encode keeps every field", func(t *testing.T) {
		fields := ThreadToFields(&Thread{Id: 1, Title: "t", Deleted: true})
		assert.Len(t, fields, len(ThreadFields))
		assert.Equal(t, "1", fields[FieldDeleted])
		assert.NotContains(t, fields, FieldLastPostTime, "derived from the recent-threads index")
	})
}

func TestPostFields(t *testing.T) {
	post, err := PostFromFields(map[string]string{
		FieldPid: "12", FieldTid: "3", FieldUid: "0", FieldContent: "hi", FieldVotes: "-2",
	})
	require.NoError(t, err)
	assert.Equal(t, PostId(12), post.Id)
	assert.Equal(t, GuestUid, post.Uid)
	assert.Equal(t, -2, post.Votes)
	assert.Len(t, PostToFields(post), len(PostFields))
}
