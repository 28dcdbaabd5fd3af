package shutdown

import (
	"context"
	"testing"
)

func TestContextCancelsWithParent(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, stop := Context(parent)
	defer stop()

	cancelParent()
	<-ctx.Done()
	if ctx.Err() != context.Canceled {
		t.Errorf("err = %v", ctx.Err())
	}
}

func TestSignalsRegistered(t *testing.T) {
	if len(signals) == 0 {
		t.Fatal("no termination signals")
	}
}
