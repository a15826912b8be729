package input

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	defer q.close()
	ctx := context.Background()

	texts := []string{"one", "two", "three", "four", "five"}
	for _, s := range texts {
		require.NoError(t, q.push(ctx, Data{Kind: KindText, Text: s}))
	}
	require.Eventually(t, func() bool { return q.len() == len(texts) },
		time.Second, 10*time.Millisecond)

	for _, want := range texts {
		item, err := q.pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, item.Text)
	}
	assert.Eventually(t, func() bool { return q.len() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newQueue()
	defer q.close()

	got := make(chan Data, 1)
	go func() {
		item, err := q.pop(context.Background())
		if err == nil {
			got <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.push(context.Background(), Data{Kind: KindText, Text: "late"}))

	select {
	case item := <-got:
		assert.Equal(t, "late", item.Text)
	case <-time.After(time.Second):
		t.Fatal("pop did not observe the push")
	}
}

func TestQueuePopHonorsContext(t *testing.T) {
	q := newQueue()
	defer q.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := q.pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseUnblocksPop(t *testing.T) {
	q := newQueue()

	errc := make(chan error, 1)
	go func() {
		_, err := q.pop(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pop did not observe close")
	}
}

func TestQueuePushAfterCloseFails(t *testing.T) {
	q := newQueue()
	q.close()

	err := q.push(context.Background(), Data{Kind: KindText, Text: "too late"})
	assert.ErrorIs(t, err, ErrClosed)
}
