package core

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docray-ai/docray/pkg/metrics"
)

type Metrics struct {
	apiResponseTime     *prometheus.HistogramVec
	apiErrorCounter     *prometheus.CounterVec
	upstreamRequestTime *prometheus.HistogramVec
	upstreamError       *prometheus.CounterVec
	retrievalTime       *prometheus.HistogramVec
	jobProcessed        *prometheus.CounterVec
}

func NewMetrics(ns, system string) *Metrics {
	// setup metric
	metrics.SetupMetricsManager(ns, system, prometheus.DefaultRegisterer.(*prometheus.Registry))

	m := &Metrics{
		apiResponseTime:     metrics.NewHistogramVec("api_response_time", []string{"api"}),
		apiErrorCounter:     metrics.NewCounterVec("api_error", []string{"method", "api", "status"}),
		upstreamRequestTime: metrics.NewHistogramVec("upstream_request_time", []string{"target"}),
		upstreamError:       metrics.NewCounterVec("upstream_error", []string{"target"}),
		retrievalTime:       metrics.NewHistogramVec("retrieval_time", []string{"method"}),
		jobProcessed:        metrics.NewCounterVec("job_processed", []string{"type", "status"}),
	}

	return m
}

func (m *Metrics) ApiResponseTimer(api string) *prometheus.Timer {
	return prometheus.NewTimer(m.apiResponseTime.WithLabelValues(api))
}

func (m *Metrics) ApiErrorInc(method, api string, status int) {
	m.apiErrorCounter.WithLabelValues(method, api, strconv.Itoa(status)).Inc()
}

// UpstreamRequestTimer target 为 chat / embedding / rerank
func (m *Metrics) UpstreamRequestTimer(target string) *prometheus.Timer {
	return prometheus.NewTimer(m.upstreamRequestTime.WithLabelValues(target))
}

func (m *Metrics) UpstreamErrorInc(target string) {
	m.upstreamError.WithLabelValues(target).Inc()
}

// RetrievalTimer method 为 vector / lexical / fusion
func (m *Metrics) RetrievalTimer(method string) *prometheus.Timer {
	return prometheus.NewTimer(m.retrievalTime.WithLabelValues(method))
}

func (m *Metrics) JobProcessedInc(jobType, status string) {
	m.jobProcessed.WithLabelValues(jobType, status).Inc()
}
