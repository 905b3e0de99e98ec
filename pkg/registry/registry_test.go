package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakapadnis/ctOS/pkg/store"
	"github.com/atharvakapadnis/ctOS/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewRegistry(st)
}

func addArtifact(t *testing.T, reg *Registry, tag string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, reg.Add(&types.Artifact{Tag: tag, CreatedAt: createdAt}))
}

func TestResolve_ExplicitTag(t *testing.T) {
	reg := newTestRegistry(t)
	addArtifact(t, reg, "v1", time.Now().Add(-time.Hour))
	addArtifact(t, reg, "v2", time.Now())

	artifact, err := reg.Resolve("v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", artifact.Tag)
}

func TestResolve_LatestSentinel(t *testing.T) {
	reg := newTestRegistry(t)
	addArtifact(t, reg, "v1", time.Now().Add(-time.Hour))
	addArtifact(t, reg, "v2", time.Now())

	artifact, err := reg.Resolve(types.LatestSentinel)
	require.NoError(t, err)
	assert.Equal(t, "v2", artifact.Tag)
}

func TestResolve_NotFound(t *testing.T) {
	reg := newTestRegistry(t)
	addArtifact(t, reg, "v1", time.Now())

	_, err := reg.Resolve("v9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_LatestOnEmptyRegistry(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Resolve(types.LatestSentinel)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrevious_NeverReturnsExcluded(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		tags     []string
		excluded string
		expected string
	}{
		{
			name:     "excludes newest",
			tags:     []string{"v1", "v2", "v3"},
			excluded: "v3",
			expected: "v2",
		},
		{
			name:     "excludes middle",
			tags:     []string{"v1", "v2", "v3"},
			excluded: "v2",
			expected: "v3",
		},
		{
			name:     "excludes oldest",
			tags:     []string{"v1", "v2", "v3"},
			excluded: "v1",
			expected: "v3",
		},
		{
			name:     "two artifacts",
			tags:     []string{"v1", "v2"},
			excluded: "v2",
			expected: "v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t)
			for i, tag := range tt.tags {
				addArtifact(t, reg, tag, base.Add(time.Duration(i)*time.Minute))
			}

			previous, err := reg.Previous(&types.Artifact{Tag: tt.excluded})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, previous.Tag)
			assert.NotEqual(t, tt.excluded, previous.Tag)
		})
	}
}

func TestPrevious_SingleArtifact(t *testing.T) {
	reg := newTestRegistry(t)
	addArtifact(t, reg, "v1", time.Now())

	_, err := reg.Previous(&types.Artifact{Tag: "v1"})
	assert.ErrorIs(t, err, ErrNoPreviousArtifact)
}

func TestPrevious_SingleArtifactRegardlessOfExclusion(t *testing.T) {
	// A one-artifact registry never yields a rollback target, even when
	// the excluded tag is not the one it holds
	reg := newTestRegistry(t)
	addArtifact(t, reg, "v1", time.Now())

	_, err := reg.Previous(&types.Artifact{Tag: "v9"})
	assert.ErrorIs(t, err, ErrNoPreviousArtifact)
}

func TestPrevious_EmptyRegistry(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Previous(&types.Artifact{Tag: "v1"})
	assert.ErrorIs(t, err, ErrNoPreviousArtifact)
}

func TestPrevious_EqualTimestampsAreDeterministic(t *testing.T) {
	// Same creation time: tag order breaks the tie, so repeated queries
	// always pick the same rollback target
	when := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reg := newTestRegistry(t)
	addArtifact(t, reg, "build-a", when)
	addArtifact(t, reg, "build-b", when)
	addArtifact(t, reg, "build-c", when)

	for i := 0; i < 5; i++ {
		previous, err := reg.Previous(&types.Artifact{Tag: "build-c"})
		require.NoError(t, err)
		assert.Equal(t, "build-b", previous.Tag)
	}
}

func TestAdd_DuplicateTag(t *testing.T) {
	reg := newTestRegistry(t)
	addArtifact(t, reg, "v1", time.Now())

	err := reg.Add(&types.Artifact{Tag: "v1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAdd_ReservedTag(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.Add(&types.Artifact{Tag: types.LatestSentinel})
	assert.ErrorIs(t, err, ErrReservedTag)
}

func TestAdd_StampsCreatedAt(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Add(&types.Artifact{Tag: "v1"}))

	artifact, err := reg.Resolve("v1")
	require.NoError(t, err)
	assert.False(t, artifact.CreatedAt.IsZero())
}

func TestList_NewestFirst(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reg := newTestRegistry(t)
	addArtifact(t, reg, "v1", base)
	addArtifact(t, reg, "v3", base.Add(2*time.Minute))
	addArtifact(t, reg, "v2", base.Add(time.Minute))

	artifacts, err := reg.List()
	require.NoError(t, err)
	require.Len(t, artifacts, 3)
	assert.Equal(t, "v3", artifacts[0].Tag)
	assert.Equal(t, "v2", artifacts[1].Tag)
	assert.Equal(t, "v1", artifacts[2].Tag)
}
