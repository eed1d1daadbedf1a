package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "alphaflow"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	m := &Metrics{
		RequestsServed:   promCounter{counter("requests_served_total", "Total number of API requests served.")},
		RequestsFailed:   promCounter{counter("requests_failed_total", "Total number of API requests that returned an error.")},
		OrdersBuilt:      promCounter{counter("orders_built_total", "Total number of order transactions built.")},
		OrdersExecuted:   promCounter{counter("orders_executed_total", "Total number of custody orders submitted on chain.")},
		OrdersFailed:     promCounter{counter("orders_failed_total", "Total number of custody order submissions that failed.")},
		DelegationsBuilt: promCounter{counter("delegations_built_total", "Total number of delegation transactions built.")},
		ChatCompletions:  promCounter{counter("chat_completions_total", "Total number of AI chat completions served.")},
		ChatFailed:       promCounter{counter("chat_failed_total", "Total number of AI chat completions that failed.")},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
