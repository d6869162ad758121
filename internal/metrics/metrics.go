package metrics

import "github.com/prometheus/client_golang/prometheus"

// Refinery exposes counters/histograms for the learning loop.
type Refinery struct {
	routingTotal     *prometheus.CounterVec
	classifyDefaults prometheus.Counter
	skillsLearned    prometheus.Counter
	gateTotal        *prometheus.CounterVec
	evalMean         prometheus.Histogram
	searchLatency    prometheus.Histogram
	searchResults    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Refinery {
	m := &Refinery{
		routingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refinery",
			Subsystem: "routing",
			Name:      "results_total",
			Help:      "Completed calls by routing action",
		}, []string{"action"}),
		classifyDefaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refinery",
			Subsystem: "classifier",
			Name:      "defaulted_total",
			Help:      "Classifications that fell back to LOST_DEAL",
		}),
		skillsLearned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "refinery",
			Subsystem: "skills",
			Name:      "learned_total",
			Help:      "Skills written to memory",
		}),
		gateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refinery",
			Subsystem: "optimizer",
			Name:      "attempts_total",
			Help:      "Prompt optimization attempts by gate status",
		}, []string{"status"}),
		evalMean: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "refinery",
			Subsystem: "optimizer",
			Name:      "mean_score",
			Help:      "Mean evaluation score of candidate prompts",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "refinery",
			Subsystem: "retrieval",
			Name:      "search_latency_seconds",
			Help:      "Latency of skill similarity search",
			Buckets:   prometheus.DefBuckets,
		}),
		searchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "refinery",
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Skill searches by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.routingTotal, m.classifyDefaults, m.skillsLearned, m.gateTotal, m.evalMean, m.searchLatency, m.searchResults)
	return m
}

func (m *Refinery) ObserveRouting(action string) {
	if m == nil {
		return
	}
	m.routingTotal.WithLabelValues(action).Inc()
}

func (m *Refinery) ObserveClassifierDefault() {
	if m == nil {
		return
	}
	m.classifyDefaults.Inc()
}

func (m *Refinery) ObserveSkillLearned() {
	if m == nil {
		return
	}
	m.skillsLearned.Inc()
}

// ObserveOptimization records one attempt. status is accepted, rejected or
// failed; mean is only observed for attempts that reached the gate.
func (m *Refinery) ObserveOptimization(status string, mean float64) {
	if m == nil {
		return
	}
	m.gateTotal.WithLabelValues(status).Inc()
	if status != "failed" {
		m.evalMean.Observe(mean)
	}
}

// ObserveSearch records one retrieval. outcome is hit, empty or error.
func (m *Refinery) ObserveSearch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.searchResults.WithLabelValues(outcome).Inc()
	m.searchLatency.Observe(seconds)
}
