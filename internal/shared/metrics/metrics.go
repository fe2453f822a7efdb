package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	submissionsStartedTotal   atomic.Uint64
	submissionsCompletedTotal atomic.Uint64
	rawFeedbackTotal          atomic.Uint64

	jobsReceivedTotal             atomic.Uint64
	jobsCompletedTotal            atomic.Uint64
	jobsFailedTotal               atomic.Uint64
	jobsDeletedUnrecoverableTotal atomic.Uint64

	failedByState = newLabeledCounter()

	submissionDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 180000})
)

// IncSubmissionStarted increments the started counter.
func IncSubmissionStarted() {
	submissionsStartedTotal.Add(1)
}

// IncSubmissionCompleted increments the completed counter.
func IncSubmissionCompleted() {
	submissionsCompletedTotal.Add(1)
}

// IncSubmissionFailed increments the failed counter for the state the pipeline stopped in.
func IncSubmissionFailed(state string) {
	failedByState.Inc(state)
}

// IncRawFeedback counts completed submissions whose feedback could not be decoded.
func IncRawFeedback() {
	rawFeedbackTotal.Add(1)
}

// IncJobsReceived counts queue messages picked up by a worker.
func IncJobsReceived() { jobsReceivedTotal.Add(1) }

// IncJobsCompleted counts queue messages processed and acknowledged.
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }

// IncJobsFailed counts queue messages left for redelivery.
func IncJobsFailed() { jobsFailedTotal.Add(1) }

// IncJobsDeletedUnrecoverable counts malformed queue messages dropped.
func IncJobsDeletedUnrecoverable() { jobsDeletedUnrecoverableTotal.Add(1) }

// ObserveSubmissionDurationMs records a pipeline duration in milliseconds.
func ObserveSubmissionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	submissionDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "submissions_started_total", "Total submissions started", submissionsStartedTotal.Load())
	writeCounter(&buf, "submissions_completed_total", "Total submissions completed", submissionsCompletedTotal.Load())
	writeLabeledCounter(&buf, "submissions_failed_total", "Total submissions failed by state", "state", failedByState.Snapshot())
	writeCounter(&buf, "submissions_raw_feedback_total", "Completed submissions stored with raw feedback", rawFeedbackTotal.Load())
	writeCounter(&buf, "submission_jobs_received_total", "Queue jobs received", jobsReceivedTotal.Load())
	writeCounter(&buf, "submission_jobs_completed_total", "Queue jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "submission_jobs_failed_total", "Queue jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "submission_jobs_deleted_unrecoverable_total", "Malformed queue jobs dropped", jobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "submission_duration_ms", "Submission pipeline duration in milliseconds", submissionDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{values: make(map[string]uint64)}
}

func (l *labeledCounter) Inc(label string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values[label]++
}

func (l *labeledCounter) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe counts the value in the first bucket that holds it; Render accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeledCounter(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
