package telemetry

import (
	"context"
	"testing"
)

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), "", "peernode")
	if err != nil || tp != nil {
		t.Fatalf("InitTracer with no endpoint = %v, %v", tp, err)
	}
}
