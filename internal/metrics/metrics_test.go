package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		IncCancel()
		IncMessage("in")
		IncTask("notify", "done")
		ObserveOperation("check", 0.01)
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(bookings.WithLabelValues("booked"))
	IncBooking("booked")
	IncBooking("booked")
	assert.Equal(t, before+2, testutil.ToFloat64(bookings.WithLabelValues("booked")))

	before = testutil.ToFloat64(availabilityChecks.WithLabelValues("unavailable"))
	IncCheck("unavailable")
	assert.Equal(t, before+1, testutil.ToFloat64(availabilityChecks.WithLabelValues("unavailable")))
}
