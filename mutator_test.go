package cassync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMutator_NewCallCancelsPrevious(t *testing.T) {
	started := make(chan struct{})
	m := NewMutator(func(ctx context.Context, text string) (string, error) {
		if text == "first" {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "saved:" + text, nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Do(context.Background(), "first")
		errCh <- err
	}()
	<-started

	got, err := m.Do(context.Background(), "second")
	if err != nil || got != "saved:second" {
		t.Fatalf("second call: %q %v", got, err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first call: want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first call was not cancelled")
	}
}
