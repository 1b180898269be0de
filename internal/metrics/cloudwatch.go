// Package metrics publishes engine telemetry to AWS CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"aircx/internal/results"
	"aircx/internal/types"
)

// DefaultBatchSize is the number of datums sent per PutMetricData call.
const DefaultBatchSize = 20

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder buffers datums and sends them in batches. A batch is
// sent when it fills up, on Flush, and on every tick of Run. Send failures
// are logged and the batch is dropped; metrics never block diagnostics.
//
// Metrics emitted:
//   - Verdict: Dims {Equipment, Rule, Color} -- one per result row, worst color
//   - CommandIssued / CommandFailed: Dims {Equipment, Channel}
//   - IngestLag: Dims {Equipment} -- sample age on arrival, milliseconds
//   - SinkWriteFailure: Dims {Equipment}
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	batchSize int
	logger    *slog.Logger

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

// Compile-time assertion that CloudWatchRecorder implements results.Metrics.
var _ results.Metrics = (*CloudWatchRecorder)(nil)

// NewCloudWatchRecorder creates a recorder that publishes to the AIRCx
// namespace.
func NewCloudWatchRecorder(client CloudWatchClient, logger *slog.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{
		client:    client,
		namespace: types.MetricNamespace,
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// RecordRow implements results.Metrics.
func (m *CloudWatchRecorder) RecordRow(ctx context.Context, row results.TableRow) {
	m.add(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricVerdict),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  aws.Time(row.Datetime),
		Dimensions: dims(
			types.DimEquipment, row.EquipmentID,
			types.DimRule, row.DiagnosticName,
			types.DimColor, string(row.Worst()),
		),
	})
}

// RecordCommand implements results.Metrics.
func (m *CloudWatchRecorder) RecordCommand(ctx context.Context, msg types.CommandMessage, err error) {
	name := types.MetricCommandIssued
	if err != nil {
		name = types.MetricCommandFailed
	}
	m.add(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims(
			types.DimEquipment, msg.EquipmentID,
			types.DimChannel, string(msg.Channel),
		),
	})
}

// RecordIngestLag records how old a sample was when it reached the engine.
func (m *CloudWatchRecorder) RecordIngestLag(ctx context.Context, equipmentID string, lag time.Duration) {
	m.add(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricIngestLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dims(types.DimEquipment, equipmentID),
	})
}

// RecordSinkFailure counts a sample whose results could not all be stored or
// delivered.
func (m *CloudWatchRecorder) RecordSinkFailure(ctx context.Context, equipmentID string) {
	m.add(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricSinkWriteFailure),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims(types.DimEquipment, equipmentID),
	})
}

// Flush sends everything buffered.
func (m *CloudWatchRecorder) Flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()
	m.send(ctx, batch)
}

// Run flushes on every tick until ctx is done, then flushes once more with
// a short detached deadline.
func (m *CloudWatchRecorder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			m.Flush(final)
			cancel()
			return nil
		}
	}
}

func (m *CloudWatchRecorder) add(ctx context.Context, d cwtypes.MetricDatum) {
	m.mu.Lock()
	m.pending = append(m.pending, d)
	var batch []cwtypes.MetricDatum
	if len(m.pending) >= m.batchSize {
		batch = m.pending
		m.pending = nil
	}
	m.mu.Unlock()
	m.send(ctx, batch)
}

func (m *CloudWatchRecorder) send(ctx context.Context, batch []cwtypes.MetricDatum) {
	for len(batch) > 0 {
		n := min(len(batch), m.batchSize)
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: batch[:n],
		}
		if _, err := m.client.PutMetricData(ctx, input); err != nil {
			appErr := types.NewAppError(types.ErrCodeUpstreamMetrics, "failed to publish metrics", err)
			m.logger.Error(appErr.Message,
				"code", appErr.Code,
				"error", err.Error(),
				"datums", n,
			)
		}
		batch = batch[n:]
	}
}

// dims builds dimensions from name/value pairs, skipping empty values.
func dims(kv ...string) []cwtypes.Dimension {
	out := make([]cwtypes.Dimension, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		out = append(out, cwtypes.Dimension{Name: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return out
}
