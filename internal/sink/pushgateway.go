package sink

import (
	"regexp"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJobName = "deepvariant_train"

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// Pushgateway publishes records to a Prometheus Pushgateway. Training runs are
// batch jobs, so scalars are pushed rather than exposed for scraping; records
// are grouped by run ID so attempts of the same experiment stay apart.
type Pushgateway struct {
	url   string
	runID string
}

// NewPushgateway returns a sink pushing to the gateway at url.
func NewPushgateway(url, runID string) *Pushgateway {
	return &Pushgateway{url: url, runID: runID}
}

// Publish implements the Sink interface.
func (p *Pushgateway) Publish(r Record) error {
	registry := prometheus.NewRegistry()

	step := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "global_step",
		Help: "Global step the scalars in this push were recorded at.",
	})
	step.Set(float64(r.Step))
	if err := registry.Register(step); err != nil {
		return errors.Wrap(err, "registering global_step gauge")
	}

	for name, value := range r.Scalars {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricName(name),
			Help: "Training scalar " + name + ".",
		})
		g.Set(value)
		if err := registry.Register(g); err != nil {
			return errors.Wrapf(err, "registering gauge for %s", name)
		}
	}

	return errors.Wrapf(
		push.New(p.url, pushJobName).
			Grouping("run_id", p.runID).
			Gatherer(registry).
			Push(),
		"pushing metrics to %s", p.url)
}

// Close implements the Sink interface.
func (p *Pushgateway) Close() error { return nil }

// metricName maps a scalar name onto the Prometheus naming grammar.
func metricName(name string) string {
	return invalidMetricChars.ReplaceAllString(name, "_")
}
