package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"aircx/internal/results"
	"aircx/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	mu        sync.Mutex
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (m *mockCloudWatchClient) datums() []cwtypes.MetricDatum {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cwtypes.MetricDatum
	for _, c := range m.calls {
		out = append(out, c.MetricData...)
	}
	return out
}

func dimMap(d cwtypes.MetricDatum) map[string]string {
	out := make(map[string]string, len(d.Dimensions))
	for _, dim := range d.Dimensions {
		out[*dim.Name] = *dim.Value
	}
	return out
}

func TestCloudWatchRecorder_RecordRow(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchRecorder(cw, nil)

	row := results.TableRow{
		EquipmentID:    "ahu-1",
		Datetime:       time.Date(2024, 6, 3, 10, 14, 0, 0, time.UTC),
		DiagnosticName: "Low Duct Static Pressure",
		ColorCode: types.TierMap[types.Color]{
			types.TierLow:    types.ColorGreen,
			types.TierNormal: types.ColorRed,
		},
	}
	m.RecordRow(context.Background(), row)

	if len(cw.calls) != 0 {
		t.Fatalf("expected datum to be buffered, got %d calls", len(cw.calls))
	}
	m.Flush(context.Background())

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.calls))
	}
	input := cw.calls[0]
	if *input.Namespace != types.MetricNamespace {
		t.Errorf("expected namespace %q, got %q", types.MetricNamespace, *input.Namespace)
	}
	datum := input.MetricData[0]
	if *datum.MetricName != types.MetricVerdict {
		t.Errorf("expected metric name %q, got %q", types.MetricVerdict, *datum.MetricName)
	}
	if datum.Unit != cwtypes.StandardUnitCount {
		t.Errorf("expected unit Count, got %s", datum.Unit)
	}
	want := map[string]string{
		types.DimEquipment: "ahu-1",
		types.DimRule:      "Low Duct Static Pressure",
		types.DimColor:     "RED",
	}
	got := dimMap(datum)
	for k, v := range want {
		if got[k] != v {
			t.Errorf("dimension %s: expected %q, got %q", k, v, got[k])
		}
	}
	if !datum.Timestamp.Equal(row.Datetime) {
		t.Errorf("expected timestamp %v, got %v", row.Datetime, *datum.Timestamp)
	}
}

func TestCloudWatchRecorder_RecordCommand(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchRecorder(cw, nil)
	msg := types.CommandMessage{EquipmentID: "ahu-1", Channel: types.ChannelDuctPressureSetpoint, Value: 2}

	m.RecordCommand(context.Background(), msg, nil)
	m.RecordCommand(context.Background(), msg, errors.New("gateway down"))
	m.Flush(context.Background())

	datums := cw.datums()
	if len(datums) != 2 {
		t.Fatalf("expected 2 datums, got %d", len(datums))
	}
	if *datums[0].MetricName != types.MetricCommandIssued {
		t.Errorf("expected %q, got %q", types.MetricCommandIssued, *datums[0].MetricName)
	}
	if *datums[1].MetricName != types.MetricCommandFailed {
		t.Errorf("expected %q, got %q", types.MetricCommandFailed, *datums[1].MetricName)
	}
	if ch := dimMap(datums[1])[types.DimChannel]; ch != "duct_static_pressure_setpoint" {
		t.Errorf("expected channel dimension, got %q", ch)
	}
}

func TestCloudWatchRecorder_BatchesAtCapacity(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchRecorder(cw, nil)

	for i := 0; i < DefaultBatchSize*2+3; i++ {
		m.RecordSinkFailure(context.Background(), "ahu-1")
	}
	if len(cw.calls) != 2 {
		t.Fatalf("expected 2 full batches, got %d calls", len(cw.calls))
	}
	for _, c := range cw.calls {
		if len(c.MetricData) != DefaultBatchSize {
			t.Errorf("expected batch of %d, got %d", DefaultBatchSize, len(c.MetricData))
		}
	}
	m.Flush(context.Background())
	if len(cw.calls) != 3 || len(cw.calls[2].MetricData) != 3 {
		t.Errorf("expected trailing batch of 3")
	}
}

func TestCloudWatchRecorder_IngestLagUnits(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchRecorder(cw, nil)
	m.RecordIngestLag(context.Background(), "ahu-1", 1500*time.Millisecond)
	m.Flush(context.Background())

	d := cw.datums()[0]
	if *d.MetricName != types.MetricIngestLag || *d.Value != 1500 || d.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("unexpected lag datum: %s %v %s", *d.MetricName, *d.Value, d.Unit)
	}
}

func TestCloudWatchRecorder_SendErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	m := NewCloudWatchRecorder(cw, nil)
	m.RecordSinkFailure(context.Background(), "ahu-1")
	m.Flush(context.Background())
	m.Flush(context.Background())

	if len(cw.calls) != 1 {
		t.Errorf("expected the failed batch to be dropped, got %d calls", len(cw.calls))
	}
}

func TestCloudWatchRecorder_RunFlushesOnShutdown(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchRecorder(cw, nil)
	m.RecordSinkFailure(context.Background(), "ahu-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Hour) }()
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cw.datums()) != 1 {
		t.Errorf("expected pending datum to be flushed on shutdown")
	}
}

func TestDims_SkipsEmptyValues(t *testing.T) {
	got := dims(types.DimEquipment, "", types.DimChannel, "zone_temperature")
	if len(got) != 1 || *got[0].Name != types.DimChannel {
		t.Errorf("expected only the channel dimension, got %d", len(got))
	}
}
