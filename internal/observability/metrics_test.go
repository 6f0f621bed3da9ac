package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackConnectionReleasesOnce(t *testing.T) {
	before := testutil.ToFloat64(inboxConnections)

	release := TrackConnection()
	other := TrackConnection()
	assert.Equal(t, before+2, testutil.ToFloat64(inboxConnections))

	release()
	release()
	assert.Equal(t, before+1, testutil.ToFloat64(inboxConnections))

	other()
	assert.Equal(t, before, testutil.ToFloat64(inboxConnections))
}

func TestEmitCountsLifecycleEvents(t *testing.T) {
	counter := inboxLifecycleTotal.WithLabelValues(WSDisconnect)
	before := testutil.ToFloat64(counter)

	NewWSEventEmitter(nil, nil).Emit(t.Context(), WSEvent{Name: WSDisconnect, ConnID: "c1", UserID: 1})

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
