package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	attempts int
}

// retrying runs fn up to twice, like a store that retries serialization
// failures.
func (f *fakeTx) retrying(ctx context.Context, fn func(ctx context.Context, tx *fakeTx) error) error {
	var err error
	for range 2 {
		f.attempts++
		if err = fn(ctx, f); err == nil {
			return nil
		}
	}
	return err
}

func TestDo_RunsHooksAfterCommit(t *testing.T) {
	tx := &fakeTx{}
	u := New[*fakeTx](tx.retrying)

	var ran []string
	err := u.Do(context.Background(), func(_ context.Context, tx *fakeTx, after func(AfterCommit)) error {
		after(func(context.Context) { ran = append(ran, "first") })
		after(func(context.Context) { ran = append(ran, "second") })
		assert.Empty(t, ran, "hooks wait for commit")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestDo_SkipsHooksOnError(t *testing.T) {
	tx := &fakeTx{}
	u := New[*fakeTx](tx.retrying)
	boom := errors.New("boom")

	ran := false
	err := u.Do(context.Background(), func(_ context.Context, _ *fakeTx, after func(AfterCommit)) error {
		after(func(context.Context) { ran = true })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestDo_DropsHooksFromFailedAttempt(t *testing.T) {
	tx := &fakeTx{}
	u := New[*fakeTx](tx.retrying)

	var ran []int
	err := u.Do(context.Background(), func(_ context.Context, tx *fakeTx, after func(AfterCommit)) error {
		attempt := tx.attempts
		after(func(context.Context) { ran = append(ran, attempt) })
		if attempt == 1 {
			return errors.New("serialization failure")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ran)
}
