package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init(nil)
	Init(nil)

	ObserveCycle("", 10*time.Millisecond)
	IncAlertDispatch("webhook", ResultError)
	IncAlertDispatch("webhook", ResultError)
	AddArchived("zipped", 0)

	if got := testutil.ToFloat64(alertDispatch.WithLabelValues("webhook", ResultError)); got != 2 {
		t.Fatalf("expected 2 webhook errors, got %v", got)
	}
	if got := testutil.ToFloat64(cycleTotal.WithLabelValues(ResultSuccess)); got < 1 {
		t.Fatalf("expected a successful cycle, got %v", got)
	}
}
