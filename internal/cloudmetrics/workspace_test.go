package cloudmetrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticSource struct {
	snap Snapshot
	err  error
}

func (s staticSource) Snapshot(context.Context) (Snapshot, error) {
	return s.snap, s.err
}

type recordingPusher struct {
	pushes int
}

func (r *recordingPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	r.pushes++
	return nil
}

func TestCollectSetsGauges(t *testing.T) {
	pusher := &recordingPusher{}
	w := New(prometheus.NewRegistry(), pusher, staticSource{snap: Snapshot{
		Organizations:      3,
		Memberships:        7,
		PendingInvitations: 2,
	}}, "test", zaptest.NewLogger(t))

	require.NoError(t, w.Collect(context.Background()))
	assert.Equal(t, float64(3), testutil.ToFloat64(w.organizations))
	assert.Equal(t, float64(7), testutil.ToFloat64(w.memberships))
	assert.Equal(t, float64(2), testutil.ToFloat64(w.pendingInvitations))

	require.NoError(t, w.Push(context.Background()))
	assert.Equal(t, 1, pusher.pushes)
}

func TestTickPushesEvenWhenSourceFails(t *testing.T) {
	pusher := &recordingPusher{}
	w := New(nil, pusher, staticSource{err: errors.New("db down")}, "test", zaptest.NewLogger(t))

	w.tick(context.Background())
	assert.Equal(t, 1, pusher.pushes)
}
