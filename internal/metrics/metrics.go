// Package metrics emits named run measurements to a metrics backend.
// Emission is fire-and-forget: a failure to reach the backend is logged
// and never affects the pipeline outcome.
package metrics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"

	"github.com/cloudetl/pipeline-runner/internal/config"
)

// Namespace groups all pipeline metrics in the backend.
const Namespace = "pipeline"

// Unit is the measurement unit of an emitted metric.
type Unit string

const (
	UnitCount        Unit = cloudwatch.StandardUnitCount
	UnitMilliseconds Unit = cloudwatch.StandardUnitMilliseconds
)

// Reporter emits a single named measurement. Implementations must swallow
// backend failures.
type Reporter interface {
	Emit(ctx context.Context, name string, value float64, unit Unit)
}

// CloudWatchReporter publishes metrics via CloudWatch PutMetricData with a
// FunctionName dimension.
type CloudWatchReporter struct {
	client       *cloudwatch.CloudWatch
	functionName string
	logger       *slog.Logger
}

// NewCloudWatchReporter creates a reporter for the configured region.
func NewCloudWatchReporter(cfg config.Metrics, logger *slog.Logger) (*CloudWatchReporter, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		return nil, err
	}
	return &CloudWatchReporter{
		client:       cloudwatch.New(sess),
		functionName: cfg.FunctionName,
		logger:       logger,
	}, nil
}

// Emit publishes one metric, logging and discarding any backend error.
func (r *CloudWatchReporter) Emit(ctx context.Context, name string, value float64, unit Unit) {
	_, err := r.client.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(Namespace),
		MetricData: []*cloudwatch.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       aws.String(string(unit)),
				Dimensions: []*cloudwatch.Dimension{
					{
						Name:  aws.String("FunctionName"),
						Value: aws.String(r.functionName),
					},
				},
			},
		},
	})
	if err != nil {
		r.logger.Warn("could not publish metric", "step", "metrics", "metric", name, "error", err.Error())
	}
}

// NoopReporter discards all metrics. Used when metrics are disabled.
type NoopReporter struct{}

func (NoopReporter) Emit(context.Context, string, float64, Unit) {}

// Recorded is one captured measurement.
type Recorded struct {
	Name  string
	Value float64
	Unit  Unit
}

// Recorder captures emitted metrics in memory for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	emitted []Recorded
}

func (r *Recorder) Emit(_ context.Context, name string, value float64, unit Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted = append(r.emitted, Recorded{Name: name, Value: value, Unit: unit})
}

// Emitted returns a copy of everything recorded so far.
func (r *Recorder) Emitted() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.emitted))
	copy(out, r.emitted)
	return out
}
