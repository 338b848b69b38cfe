package cloudmetrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	obstracing "github.com/smallbiznis/taskhub/internal/observability/tracing"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const remoteWriteTimeout = 5 * time.Second

// RemoteWritePusher encodes the registry as a snappy-compressed
// prompb.WriteRequest.
type RemoteWritePusher struct {
	endpoint string
	token    string
	client   *http.Client
	now      func() time.Time
}

func NewRemoteWritePusher(endpoint, authToken string) *RemoteWritePusher {
	return &RemoteWritePusher{
		endpoint: endpoint,
		token:    strings.TrimSpace(authToken),
		client:   obstracing.WrapHTTPClient(&http.Client{Timeout: remoteWriteTimeout}),
		now:      time.Now,
	}
}

func (p *RemoteWritePusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}

	series := toTimeSeries(families, p.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}
	raw, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return fmt.Errorf("encode write request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, raw)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote write returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

// toTimeSeries flattens counters and gauges into one series each. Histograms
// contribute their _sum and _count; buckets are not shipped.
func toTimeSeries(families []*dto.MetricFamily, ts int64) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	for _, family := range families {
		name := family.GetName()
		for _, m := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				out = appendSample(out, name, m, m.GetCounter().GetValue(), ts)
			case dto.MetricType_GAUGE:
				out = appendSample(out, name, m, m.GetGauge().GetValue(), ts)
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				out = appendSample(out, name+"_sum", m, h.GetSampleSum(), ts)
				out = appendSample(out, name+"_count", m, float64(h.GetSampleCount()), ts)
			}
		}
	}
	return out
}

func appendSample(out []prompb.TimeSeries, name string, m *dto.Metric, value float64, ts int64) []prompb.TimeSeries {
	if math.IsNaN(value) {
		return out
	}
	labels := []prompb.Label{{Name: "__name__", Value: name}}
	for _, pair := range m.GetLabel() {
		labels = append(labels, prompb.Label{Name: pair.GetName(), Value: pair.GetValue()})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })

	return append(out, prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
	})
}
