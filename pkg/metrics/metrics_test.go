package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector("metrics_test")

	c.PartitionsPlanned(7)
	c.ObserveCount(20 * time.Millisecond)
	c.CursorOpened(5 * time.Millisecond)
	c.CursorOpened(5 * time.Millisecond)
	c.CursorOpenFailed()
	c.RecordRead()
	c.RecordRead()
	c.RecordRead()
	c.CursorClosed()

	assert.Equal(t, 7.0, testutil.ToFloat64(PartitionsPlanned.WithLabelValues("metrics_test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(PartitionsComputed.WithLabelValues("metrics_test", "opened")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PartitionsComputed.WithLabelValues("metrics_test", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(RecordsRead.WithLabelValues("metrics_test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OpenCursors.WithLabelValues("metrics_test")))

	all := c.GetAll()
	assert.Equal(t, int64(2), all["cursors_opened"])
	assert.Equal(t, int64(1), all["cursors_closed"])
	assert.Equal(t, int64(3), all["records_read"])
}

func TestNewCollector_DefaultName(t *testing.T) {
	assert.Equal(t, "default", NewCollector("").Name())
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	first := timer.Stop()
	assert.GreaterOrEqual(t, first, time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), first)
}
