package cloudmetrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/taskhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var got prompb.WriteRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(decoded, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "taskhub_organizations", Help: "orgs"})
	registry.MustRegister(gauge)
	gauge.Set(4)

	pusher := NewRemoteWritePusher(srv.URL, "token")
	require.NoError(t, pusher.Push(context.Background(), registry))

	assert.Equal(t, "Bearer token", auth)
	require.Len(t, got.Timeseries, 1)
	assert.Equal(t, "__name__", got.Timeseries[0].Labels[0].Name)
	assert.Equal(t, "taskhub_organizations", got.Timeseries[0].Labels[0].Value)
	assert.Equal(t, float64(4), got.Timeseries[0].Samples[0].Value)
}

func TestNewPusherRequiresEndpoint(t *testing.T) {
	cfg := config.Config{AppName: "taskhub"}
	assert.Nil(t, NewPusher(cfg, zaptest.NewLogger(t)))

	cfg.Cloud.Metrics = config.CloudMetricsConfig{Enabled: true, Exporter: exporterPrometheusRemoteWrite}
	assert.Nil(t, NewPusher(cfg, zaptest.NewLogger(t)))

	cfg.Cloud.Metrics.Endpoint = "http://collector.local/api/v1/write"
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, zaptest.NewLogger(t)))

	cfg.Cloud.Metrics.Exporter = exporterPrometheusPushgateway
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, zaptest.NewLogger(t)))

	cfg.Cloud.Metrics.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, zaptest.NewLogger(t)))
}

func TestTimeSeriesIncludesHistogramTotals(t *testing.T) {
	registry := prometheus.NewRegistry()
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "taskhub_job_seconds", Help: "jobs"}, []string{"job"})
	registry.MustRegister(hist)
	hist.WithLabelValues("outbox_relay").Observe(2)
	hist.WithLabelValues("outbox_relay").Observe(3)

	families, err := registry.Gather()
	require.NoError(t, err)
	series := toTimeSeries(families, 1000)
	require.Len(t, series, 2)

	byName := map[string]prompb.TimeSeries{}
	for _, s := range series {
		byName[s.Labels[0].Value] = s
		assert.Equal(t, "job", s.Labels[1].Name)
	}
	assert.Equal(t, float64(5), byName["taskhub_job_seconds_sum"].Samples[0].Value)
	assert.Equal(t, float64(2), byName["taskhub_job_seconds_count"].Samples[0].Value)
}

func TestPushgatewayPusherPutsGroup(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "taskhub_memberships", Help: "m"}))

	pusher := NewPushgatewayPusher(srv.URL, "taskhub", map[string]string{"environment": "staging", " ": "x"})
	require.NoError(t, pusher.Push(context.Background(), registry))
	assert.Equal(t, "/metrics/job/taskhub/environment/staging", path)

	assert.Error(t, NewPushgatewayPusher(srv.URL, " ", nil).Push(context.Background(), registry))
}
