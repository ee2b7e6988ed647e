package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendRawLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	ss, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer ss.Close()

	t.Run("should round-trip messages with tool calls", func(t *testing.T) {
		require.NoError(t, ss.Append(ctx, "s1", Message{Role: RoleUser, Content: "hi"}))
		require.NoError(t, ss.Append(ctx, "s1", Message{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{
				{ID: "call-1", Name: "cost", Arguments: map[string]interface{}{"num_days": float64(8)}},
			},
		}))
		require.NoError(t, ss.Append(ctx, "s1", Message{
			Role: RoleTool, Content: "2800", ToolCallID: "call-1",
		}))

		history, err := ss.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, history, 3)

		require.Len(t, history[1].ToolCalls, 1)
		assert.Equal(t, "cost", history[1].ToolCalls[0].Name)
		assert.Equal(t, float64(8), history[1].ToolCalls[0].Arguments["num_days"])
		assert.Equal(t, "call-1", history[2].ToolCallID)
	})

	t.Run("should enforce the ordering invariant", func(t *testing.T) {
		err := ss.Append(ctx, "s2", Message{Role: RoleTool, Content: "x", ToolCallID: "ghost"})

		var orderingErr *OrderingError
		assert.ErrorAs(t, err, &orderingErr)
	})

	t.Run("should list and reset sessions independently", func(t *testing.T) {
		require.NoError(t, ss.Append(ctx, "s3", Message{Role: RoleUser, Content: "x"}))

		sessions, err := ss.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, "s1")
		assert.Contains(t, sessions, "s3")

		require.NoError(t, ss.Reset(ctx, "s3"))

		history, err := ss.History(ctx, "s3")
		require.NoError(t, err)
		assert.Empty(t, history)

		history, err = ss.History(ctx, "s1")
		require.NoError(t, err)
		assert.NotEmpty(t, history)
	})
}

func TestSQLiteStorePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	ss, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, ss.Append(ctx, "durable", Message{Role: RoleUser, Content: "still here"}))
	require.NoError(t, ss.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	history, err := reopened.History(ctx, "durable")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "still here", history[0].Content)
}
