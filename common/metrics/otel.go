package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdk "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ceramicnetwork/go-registry"
	"github.com/ceramicnetwork/go-registry/models"
)

type OtelMetricService struct {
	meterProvider *sdk.MeterProvider
	meter         metric.Meter
	logger        models.Logger
	lock          sync.Mutex
	counters      map[models.MetricName]metric.Int64Counter
	histograms    map[models.MetricName]metric.Int64Histogram
}

// NewOtelMetricService exports to the OTLP endpoint when one is configured, and to stdout otherwise.
func NewOtelMetricService(ctx context.Context, logger models.Logger) (models.MetricService, error) {
	var exporter sdk.Exporter
	var err error
	if endpoint, found := os.LookupEnv(registry.Env_MetricsEndpoint); found && len(endpoint) > 0 {
		// The exporter reads the endpoint from the environment itself
		exporter, err = otlpmetrichttp.New(ctx)
	} else {
		exporter, err = stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	}
	if err != nil {
		return nil, fmt.Errorf("metrics: error creating exporter: %w", err)
	}
	metricService := NewOtelMetricServiceWithReader(logger, sdk.NewPeriodicReader(exporter))
	otel.SetMeterProvider(metricService.meterProvider)
	return metricService, nil
}

func NewOtelMetricServiceWithReader(logger models.Logger, reader sdk.Reader) *OtelMetricService {
	meterProvider := sdk.NewMeterProvider(sdk.WithReader(reader))
	return &OtelMetricService{
		meterProvider: meterProvider,
		meter:         meterProvider.Meter(models.MetricsCallerName),
		logger:        logger,
		counters:      make(map[models.MetricName]metric.Int64Counter),
		histograms:    make(map[models.MetricName]metric.Int64Histogram),
	}
}

func (o *OtelMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	counter, err := o.counter(name)
	if err != nil {
		return err
	}
	counter.Add(ctx, int64(val))
	return nil
}

func (o *OtelMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	histogram, err := o.histogram(name)
	if err != nil {
		return err
	}
	histogram.Record(ctx, int64(val))
	return nil
}

func (o *OtelMetricService) Shutdown(ctx context.Context) {
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		o.logger.Errorf("metrics: error shutting down meter provider: %v", err)
	}
}

func (o *OtelMetricService) counter(name models.MetricName) (metric.Int64Counter, error) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if counter, found := o.counters[name]; found {
		return counter, nil
	}
	counter, err := o.meter.Int64Counter(string(name))
	if err != nil {
		return nil, fmt.Errorf("metrics: error creating counter %s: %w", name, err)
	}
	o.counters[name] = counter
	return counter, nil
}

func (o *OtelMetricService) histogram(name models.MetricName) (metric.Int64Histogram, error) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if histogram, found := o.histograms[name]; found {
		return histogram, nil
	}
	histogram, err := o.meter.Int64Histogram(string(name))
	if err != nil {
		return nil, fmt.Errorf("metrics: error creating histogram %s: %w", name, err)
	}
	o.histograms[name] = histogram
	return histogram, nil
}
