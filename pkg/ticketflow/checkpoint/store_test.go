package checkpoint_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) checkpoint.Store

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := checkpoint.New("T1", "acme", "planning", "plan_user_stories")
		cp.PutArtifact("refined_requirements", "requirements text", "refine_requirements")
		require.NoError(t, store.Save(ctx, cp))
		assert.Equal(t, int64(1), cp.Version)

		loaded, err := store.Load(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, cp.ID, loaded.ID)
		assert.Equal(t, "planning", loaded.GraphName)
		assert.Equal(t, int64(1), loaded.Version)

		artifact, ok := loaded.Artifact("refined_requirements")
		require.True(t, ok)
		assert.Equal(t, "requirements text", artifact.Value)
		assert.Equal(t, 1, artifact.Version)
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Load(ctx, "missing-ticket")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Save_VersionMismatchConflicts", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := checkpoint.New("T1", "acme", "planning", "s0")
		require.NoError(t, store.Save(ctx, cp))

		// Two workers load the same version.
		first, err := store.Load(ctx, "T1")
		require.NoError(t, err)
		second, err := store.Load(ctx, "T1")
		require.NoError(t, err)

		require.NoError(t, store.Save(ctx, first))
		assert.ErrorIs(t, store.Save(ctx, second), checkpoint.ErrConcurrencyConflict)

		// Reload and re-apply succeeds.
		reloaded, err := store.Load(ctx, "T1")
		require.NoError(t, err)
		assert.NoError(t, store.Save(ctx, reloaded))
	})

	t.Run(name+"/Save_SecondActiveCheckpointConflicts", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, checkpoint.New("T1", "acme", "planning", "s0")))

		err := store.Save(ctx, checkpoint.New("T1", "acme", "implementation", "s0"))
		assert.ErrorIs(t, err, checkpoint.ErrConcurrencyConflict)
	})

	t.Run(name+"/ConcurrentCreates_ExactlyOneWins", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.Save(ctx, checkpoint.New("T1", "acme", "planning", "s0"))
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, checkpoint.ErrConcurrencyConflict)
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run(name+"/Archive", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		cp := checkpoint.New("T1", "acme", "planning", "s0")
		cp.Status = checkpoint.StatusCompleted
		require.NoError(t, store.Save(ctx, cp))
		require.NoError(t, store.Archive(ctx, "T1"))

		_, err := store.Load(ctx, "T1")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)

		archived, err := store.ListArchived(ctx, "T1")
		require.NoError(t, err)
		require.Len(t, archived, 1)
		assert.Equal(t, checkpoint.StatusCompleted, archived[0].Status)

		// A new graph run can now create a fresh active checkpoint.
		assert.NoError(t, store.Save(ctx, checkpoint.New("T1", "acme", "implementation", "s0")))
	})

	t.Run(name+"/Archive_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.ErrorIs(t, store.Archive(ctx, "missing"), checkpoint.ErrNotFound)
	})

	t.Run(name+"/ListArchived_PreservesHistory", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		first := checkpoint.New("T1", "acme", "refinement", "s0")
		require.NoError(t, store.Save(ctx, first))
		require.NoError(t, store.Archive(ctx, "T1"))

		second := checkpoint.New("T1", "acme", "planning", "s0")
		require.NoError(t, store.Save(ctx, second))
		require.NoError(t, store.Archive(ctx, "T1"))

		archived, err := store.ListArchived(ctx, "T1")
		require.NoError(t, err)
		require.Len(t, archived, 2)
		assert.Equal(t, "refinement", archived[0].GraphName)
		assert.Equal(t, "planning", archived[1].GraphName)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		_, err := store.Load(ctx, "T1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
		assert.ErrorIs(t, store.Save(ctx, checkpoint.New("T1", "acme", "g", "s")), checkpoint.ErrStoreClosed)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	storeContractTest(t, "Memory", func(_ *testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	})
}

func TestSQLiteStoreContract(t *testing.T) {
	storeContractTest(t, "SQLite", func(t *testing.T) checkpoint.Store {
		store, err := checkpoint.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})
}
