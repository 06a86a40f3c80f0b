package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranops-core/server/internal/agent/model"
)

func TestMemoryCheckpointProvider_LoadAbsentReturnsNilNil(t *testing.T) {
	cp := NewMemoryCheckpointProvider()
	state, err := cp.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestMemoryCheckpointProvider_RoundTrip(t *testing.T) {
	cp := NewMemoryCheckpointProvider()
	saved := model.NewConversationState(3)
	saved.Messages = []model.Message{model.HumanMessage("hello")}

	require.NoError(t, cp.Save(context.Background(), "t1", saved))

	loaded, err := cp.Load(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "hello", loaded.Messages[0].Content)
}

func TestRedisCheckpointProvider_KeyShape(t *testing.T) {
	cp := NewRedisCheckpointProvider(nil, 0)
	assert.Equal(t, "agent:thread:ops-42:state", cp.stateKey("ops-42"))
	assert.Equal(t, "agent:thread:ops-42-ran_pm_agent:state", cp.stateKey("ops-42-ran_pm_agent"))
}
