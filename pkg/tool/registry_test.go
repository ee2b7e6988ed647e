package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Definition {
	return Definition{
		Name:        name,
		Description: "Echoes its input",
		Parameters: []Parameter{
			{Name: "input", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return args["input"], nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		r := NewRegistry()

		err := r.Register(echoTool("echo"))

		require.NoError(t, err)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("should reject a duplicate name", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo")))

		err := r.Register(echoTool("echo"))

		assert.ErrorIs(t, err, ErrDuplicateTool)
	})

	t.Run("should reject an empty name", func(t *testing.T) {
		r := NewRegistry()

		err := r.Register(echoTool(""))

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("should reject a nil handler", func(t *testing.T) {
		r := NewRegistry()
		def := echoTool("echo")
		def.Handler = nil

		err := r.Register(def)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "handler")
	})

	t.Run("should reject an invalid parameter type", func(t *testing.T) {
		r := NewRegistry()
		def := echoTool("echo")
		def.Parameters[0].Type = "text"

		err := r.Register(def)

		assert.Error(t, err)
	})
}

func TestDescribe(t *testing.T) {
	t.Run("should preserve registration order", func(t *testing.T) {
		r := NewRegistry()
		for _, name := range []string{"zeta", "alpha", "mid"} {
			require.NoError(t, r.Register(echoTool(name)))
		}

		first := r.Describe()
		second := r.Describe()

		require.Len(t, first, 3)
		assert.Equal(t, "zeta", first[0].Name)
		assert.Equal(t, "alpha", first[1].Name)
		assert.Equal(t, "mid", first[2].Name)
		assert.Equal(t, first, second)
	})

	t.Run("should include required fields in the schema", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo")))

		schemas := r.Describe()

		require.Len(t, schemas, 1)
		assert.Equal(t, "object", schemas[0].InputSchema["type"])
		assert.Equal(t, []string{"input"}, schemas[0].InputSchema["required"])
	})
}

func TestInvoke(t *testing.T) {
	t.Run("should invoke a registered tool", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo")))

		out, err := r.Invoke(context.Background(), "echo", map[string]interface{}{"input": "hi"})

		require.NoError(t, err)
		assert.Equal(t, "hi", out)
	})

	t.Run("should fail for an unknown tool", func(t *testing.T) {
		r := NewRegistry()

		_, err := r.Invoke(context.Background(), "missing", nil)

		assert.ErrorIs(t, err, ErrUnknownTool)
	})

	t.Run("should fail when a required argument is missing", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo")))

		_, err := r.Invoke(context.Background(), "echo", map[string]interface{}{})

		var argErr *ArgumentError
		require.ErrorAs(t, err, &argErr)
		assert.Equal(t, "echo", argErr.Tool)
	})

	t.Run("should fail on a wrong argument type", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo")))

		_, err := r.Invoke(context.Background(), "echo", map[string]interface{}{"input": 42})

		var argErr *ArgumentError
		assert.ErrorAs(t, err, &argErr)
	})

	t.Run("should reject undeclared arguments", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("echo")))

		_, err := r.Invoke(context.Background(), "echo", map[string]interface{}{
			"input": "hi",
			"extra": true,
		})

		var argErr *ArgumentError
		assert.ErrorAs(t, err, &argErr)
	})

	t.Run("should wrap handler failures", func(t *testing.T) {
		r := NewRegistry()
		boom := errors.New("boom")
		require.NoError(t, r.Register(Definition{
			Name:        "broken",
			Description: "Always fails",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return nil, boom
			},
		}))

		_, err := r.Invoke(context.Background(), "broken", nil)

		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.ErrorIs(t, err, boom)
	})
}

func TestInvokeNumericArguments(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{
		Name:        "cost",
		Description: "Computes trip cost",
		Parameters: []Parameter{
			{Name: "num_days", Type: "integer", Description: "Trip length in days", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			days, ok := args["num_days"].(float64)
			if !ok {
				return nil, fmt.Errorf("num_days is not numeric")
			}
			return 350 * int(days), nil
		},
	}))

	out, err := r.Invoke(context.Background(), "cost", map[string]interface{}{"num_days": float64(8)})

	require.NoError(t, err)
	assert.Equal(t, 2800, out)
}
