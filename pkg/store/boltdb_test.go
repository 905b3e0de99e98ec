package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakapadnis/ctOS/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	st, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestArtifactRoundTrip(t *testing.T) {
	st := newTestStore(t)

	artifact := &types.Artifact{
		Tag:       "web:v1.2.0",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		SourceRef: "3f9c2ab",
	}
	require.NoError(t, st.CreateArtifact(artifact))

	got, err := st.GetArtifact("web:v1.2.0")
	require.NoError(t, err)
	assert.Equal(t, artifact.Tag, got.Tag)
	assert.True(t, artifact.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, artifact.SourceRef, got.SourceRef)
}

func TestGetArtifact_Missing(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetArtifact("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteArtifact_Idempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateArtifact(&types.Artifact{Tag: "v1"}))

	require.NoError(t, st.DeleteArtifact("v1"))
	require.NoError(t, st.DeleteArtifact("v1"))
}

func TestInstanceStateRoundTrip(t *testing.T) {
	st := newTestStore(t)

	state := &types.InstanceState{
		Name:      "ctos",
		Phase:     types.InstanceRunning,
		Artifact:  &types.Artifact{Tag: "v2"},
		UpdatedAt: time.Now(),
	}
	require.NoError(t, st.SaveInstanceState(state))

	got, err := st.GetInstanceState("ctos")
	require.NoError(t, err)
	assert.Equal(t, types.InstanceRunning, got.Phase)
	require.NotNil(t, got.Artifact)
	assert.Equal(t, "v2", got.Artifact.Tag)
}

func TestGetInstanceState_Missing(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetInstanceState("ctos")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, st.CreateArtifact(&types.Artifact{Tag: "v1"}))
	require.NoError(t, st.SaveInstanceState(&types.InstanceState{
		Name:  "ctos",
		Phase: types.InstanceStopped,
	}))
	require.NoError(t, st.Close())

	st, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.GetArtifact("v1")
	assert.NoError(t, err)

	state, err := st.GetInstanceState("ctos")
	require.NoError(t, err)
	assert.Equal(t, types.InstanceStopped, state.Phase)
}
