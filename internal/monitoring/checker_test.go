package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/config"
	"github.com/sells-group/crowdcount/internal/model"
)

func TestChecker_Check(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	collector := newTestCollector(t, []model.Observation{
		reading("a", time.Minute, "cam1", "north", 30),
		reading("b", time.Minute, "cam2", "east", 0),
	})
	cfg := config.MonitoringConfig{
		Projects:             []string{"stadium", "arena"},
		LookbackMinutes:      60,
		UtilisationThreshold: 90,
		WebhookURL:           srv.URL,
	}
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	triggered := checker.check(context.Background(), zap.NewNop())
	assert.Equal(t, 1, triggered)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	collector := newTestCollector(t, nil)
	cfg := config.MonitoringConfig{
		Projects:          []string{"stadium"},
		CheckIntervalSecs: 1,
		LookbackMinutes:   60,
	}
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
