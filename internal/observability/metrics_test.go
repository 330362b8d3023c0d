package observability

import (
	"testing"
	"time"

	"github.com/danmuck/fwdctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("fwdctl-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordCommand("bridge_domain", "create", "ok", 3*time.Millisecond)
	RecordPass("replay", 3, 1)
	SetObjectCount("bridge-domain", 4)
}

func TestRecordPassSplitsOutcomes(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(omPasses.WithLabelValues("sweep", "false"))
	RecordPass("sweep", 5, 2)
	RecordPass("sweep", 0, 0)
	after := testutil.ToFloat64(omPasses.WithLabelValues("sweep", "false"))
	if after-before != 2 {
		t.Fatalf("expected 2 failed sweeps recorded, got %v", after-before)
	}
	SetObjectCount("interface", 7)
	if got := testutil.ToFloat64(omObjects.WithLabelValues("interface")); got != 7 {
		t.Fatalf("gauge=%v", got)
	}
}
