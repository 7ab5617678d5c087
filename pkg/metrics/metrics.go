package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type manager struct {
	namespace string
	system    string
	registry  *prometheus.Registry
}

var defaultManager = &manager{
	namespace: "default",
	system:    "default",
	registry:  prometheus.NewRegistry(),
}

func SetupMetricsManager(ns, system string, registry *prometheus.Registry) {
	defaultManager = &manager{
		namespace: ns,
		system:    system,
		registry:  registry,
	}
	registry.MustRegister(collectors.NewGoCollector())
}

func mustGetDefaultManager() (string, string, prometheus.Registerer) {
	return defaultManager.namespace, defaultManager.system, defaultManager.registry
}

func NewCounterVec(name string, labels []string) *prometheus.CounterVec {
	ns, system, registerer := mustGetDefaultManager()

	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: FmtFixer(ns),
			Subsystem: FmtFixer(system),
			Name:      FmtFixer(name),
			Help:      fmt.Sprintf("%s count of /%s/%s", name, ns, system),
		},
		labels,
	)

	var initLabelValue []string
	for i := 0; i < len(labels); i++ {
		initLabelValue = append(initLabelValue, "")
	}
	vec.WithLabelValues(initLabelValue...).Add(0)

	registerer.Register(vec)
	return vec
}

func NewHistogramVec(name string, labels []string) *prometheus.HistogramVec {
	ns, system, registerer := mustGetDefaultManager()
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: FmtFixer(ns),
			Subsystem: FmtFixer(system),
			Name:      FmtFixer(name),
			Help:      fmt.Sprintf("%s duration of /%s/%s", name, ns, system),
		},
		labels,
	)
	registerer.Register(vec)
	return vec
}

// FmtFixer prometheus 指标名不允许中划线
func FmtFixer(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}
