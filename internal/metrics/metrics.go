// Package metrics gives each side of the proxy fabric its own named
// registry of counters and histograms, logged periodically the way the
// teacher's statistics package drives its Registry through a ticker.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"proxyfabric/internal/log"
)

// Registry groups the named metrics for one side of the fabric ("edgeside"
// or "containerside") so periodic logging and shutdown are scoped per side.
type Registry struct {
	title    string
	reg      gometrics.Registry
	closeCh  chan struct{}
}

func New(title string) *Registry {
	return &Registry{
		title: title,
		reg:   gometrics.NewRegistry(),
	}
}

func (r *Registry) Counter(name string) gometrics.Counter {
	return gometrics.GetOrRegisterCounter(name, r.reg)
}

func (r *Registry) Histogram(name string) gometrics.Histogram {
	sample := gometrics.NewUniformSample(1028)
	return gometrics.GetOrRegisterHistogram(name, r.reg, sample)
}

func (r *Registry) Gauge(name string) gometrics.Gauge {
	return gometrics.GetOrRegisterGauge(name, r.reg)
}

// Run starts a background goroutine that logs a formatted snapshot of the
// registry every freq, until Stop is called.
func (r *Registry) Run(freq time.Duration) {
	r.closeCh = make(chan struct{})
	closeCh := r.closeCh
	go func() {
		ticker := time.NewTicker(freq)
		defer ticker.Stop()
		for {
			select {
			case <-closeCh:
				return
			case <-ticker.C:
				if msg := r.format(); msg != "" {
					log.Info(msg)
				}
			}
		}
	}()
}

func (r *Registry) Stop() {
	if r.closeCh != nil {
		close(r.closeCh)
	}
	r.reg.UnregisterAll()
}

func (r *Registry) format() string {
	counterList := make([]string, 0)
	histList := make([]string, 0)
	gaugeList := make([]string, 0)

	r.reg.Each(func(name string, i interface{}) {
		switch metric := i.(type) {
		case gometrics.Counter:
			n := metric.Count()
			if n != 0 {
				counterList = append(counterList, fmt.Sprintf("%s: %d", name, n))
			}
		case gometrics.Gauge:
			v := metric.Value()
			if v != 0 {
				gaugeList = append(gaugeList, fmt.Sprintf("%s: %d", name, v))
			}
		case gometrics.Histogram:
			if metric.Count() == 0 {
				return
			}
			snap := metric.Snapshot()
			ps := snap.Percentiles([]float64{0.5, 0.95, 0.99})
			histList = append(histList, fmt.Sprintf("%s: count=%d, mean=%.2f, p50=%.2f, p95=%.2f, p99=%.2f",
				name, snap.Count(), snap.Mean(), ps[0], ps[1], ps[2]))
		}
	})

	sb := strings.Builder{}
	if len(counterList) > 0 {
		sort.Strings(counterList)
		sb.WriteString(fmt.Sprintf("counters{%s}, ", strings.Join(counterList, ", ")))
	}
	if len(gaugeList) > 0 {
		sort.Strings(gaugeList)
		sb.WriteString(fmt.Sprintf("gauges{%s}, ", strings.Join(gaugeList, ", ")))
	}
	if len(histList) > 0 {
		sort.Strings(histList)
		sb.WriteString(fmt.Sprintf("hist{%s}", strings.Join(histList, ", ")))
	}
	if sb.Len() == 0 {
		return ""
	}
	return r.title + " => " + sb.String()
}
