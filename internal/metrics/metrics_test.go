package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("completed"))
	RunsTotal.WithLabelValues("completed").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("completed")))

	edges := testutil.ToFloat64(EdgesWritten)
	EdgesWritten.Add(3)
	assert.Equal(t, edges+3, testutil.ToFloat64(EdgesWritten))
}

func TestObserve(t *testing.T) {
	ObservePass("pass1", time.Now().Add(-10*time.Millisecond))
	ObserveQuery("impact", time.Now())
	assert.GreaterOrEqual(t, testutil.CollectAndCount(PassDuration), 1)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(QueryDuration), 1)
}
