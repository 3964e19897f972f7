package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hackgods/patient-intake/internal/client"
	"github.com/hackgods/patient-intake/internal/form"
	"github.com/hackgods/patient-intake/internal/patient"
)

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Draft  OperationMetrics // auto-saves
	Submit OperationMetrics

	Submitted int64
	Abandoned int64
	Rejected  int64 // submits the form refused locally
}

// meteredSaver times every write a form makes and sorts it by outcome.
type meteredSaver struct {
	next    form.Saver
	metrics *Metrics
}

func (s meteredSaver) UpsertPatient(ctx context.Context, sessionID string, data patient.FormData, status patient.Status) error {
	start := time.Now()
	err := s.next.UpsertPatient(ctx, sessionID, data, status)
	latency := time.Since(start)

	om := &s.metrics.Draft
	if status == patient.StatusSubmitted {
		om = &s.metrics.Submit
	}
	om.Record(latency, err == nil, isConflict(err))
	return err
}

func isConflict(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

func printReport(w io.Writer, elapsed time.Duration, sessions, workers int, m *Metrics) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s\nSIMULATION REPORT\n%s\n", rule, rule)
	fmt.Fprintf(w, "Elapsed: %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Sessions: %d (workers %d)\n", sessions, workers)
	fmt.Fprintf(w, "  Submitted: %d\n", atomic.LoadInt64(&m.Submitted))
	fmt.Fprintf(w, "  Abandoned: %d\n", atomic.LoadInt64(&m.Abandoned))
	if rejected := atomic.LoadInt64(&m.Rejected); rejected > 0 {
		fmt.Fprintf(w, "  Refused by form validation: %d\n", rejected)
	}
	fmt.Fprintln(w)

	printOperationReport(w, "Auto-save", &m.Draft)
	printOperationReport(w, "Submit", &m.Submit)
}

const rule = "================================================================================"

func printOperationReport(w io.Writer, name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  Total: %d\n", total)
	fmt.Fprintf(w, "  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Fprintf(w, "  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Fprintf(w, "  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Fprintf(w, "  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Fprintln(w)
}
