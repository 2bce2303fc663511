// Package transporttest provides a conformance suite that every transport
// implementation must pass.
package transporttest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/transport"
)

// Capabilities describes what the suite may expect from a transport.
type Capabilities struct {
	ClientName string
	Instance   modem.InstanceID
	// MaxCallDuration bounds a single lifecycle call. Zero means 50ms.
	MaxCallDuration time.Duration
	// Settle is how long the suite watches for stray events after Close.
	// Zero means 20ms.
	Settle time.Duration
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	TransportName string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the complete conformance test suite for a transport.
func RunConformance(t *testing.T, name string, newTransport func() transport.Transport, caps Capabilities) {
	startTime := time.Now()

	if caps.ClientName == "" {
		caps.ClientName = "conformance"
	}
	if !caps.Instance.Valid() {
		caps.Instance = modem.DefaultInstance
	}
	if caps.MaxCallDuration == 0 {
		caps.MaxCallDuration = 50 * time.Millisecond
	}
	if caps.Settle == 0 {
		caps.Settle = 20 * time.Millisecond
	}

	report := &ConformanceReport{
		TransportName: name,
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	runOpenTests(t, newTransport, caps, report)
	runLifecycleTests(t, newTransport, caps, report)
	runCloseTests(t, newTransport, caps, report)
	runCancellationTests(t, newTransport, caps, report)
	runTimingTests(t, newTransport, caps, report)

	report.Duration = time.Since(startTime)

	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Transport conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

// runOpenTests checks that a fresh transport opens and accepts a nil handler.
func runOpenTests(t *testing.T, newTransport func() transport.Transport, caps Capabilities, report *ConformanceReport) {
	ctx := context.Background()

	result := ConformanceResult{
		TestName: "Open_Basic",
		Details:  make(map[string]interface{}),
	}
	tr := newTransport()
	start := time.Now()
	err := tr.Open(ctx, caps.ClientName, caps.Instance, func(modem.RawCode) {})
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("Open failed: %v", err)
	} else {
		result.Passed = true
		result.Details["instance"] = caps.Instance
	}
	tr.Close()
	report.addResult(result)

	result = ConformanceResult{
		TestName: "Open_NilHandler",
		Details:  make(map[string]interface{}),
	}
	tr = newTransport()
	start = time.Now()
	err = tr.Open(ctx, caps.ClientName, caps.Instance, nil)
	if err == nil {
		err = tr.Acquire(ctx)
	}
	tr.Close()
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("transport with nil handler failed: %v", err)
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

// runLifecycleTests drives every operation once on an open transport.
func runLifecycleTests(t *testing.T, newTransport func() transport.Transport, caps Capabilities, report *ConformanceReport) {
	ctx := context.Background()
	tr := newTransport()
	if err := tr.Open(ctx, caps.ClientName, caps.Instance, func(modem.RawCode) {}); err != nil {
		report.addResult(ConformanceResult{TestName: "Lifecycle_Open", Error: err.Error()})
		return
	}
	defer tr.Close()

	steps := []struct {
		name string
		call func() error
	}{
		{"Lifecycle_Acquire", func() error { return tr.Acquire(ctx) }},
		{"Lifecycle_NotifyDebug", func() error {
			return tr.NotifyDebug(ctx, []string{"conformance"}, modem.DebugInfo, modem.NoLogRequest())
		}},
		{"Lifecycle_Reset", func() error {
			return tr.Reset(ctx, []string{"conformance"}, modem.ResetLogRequest())
		}},
		{"Lifecycle_ResetNoCauses", func() error {
			return tr.Reset(ctx, []string{}, modem.DefaultLogRequest())
		}},
		{"Lifecycle_Update", func() error { return tr.Update(ctx) }},
		{"Lifecycle_Release", func() error { return tr.Release(ctx) }},
		{"Lifecycle_Shutdown", func() error { return tr.Shutdown(ctx) }},
	}

	for _, step := range steps {
		result := ConformanceResult{
			TestName: step.name,
			Details:  make(map[string]interface{}),
		}
		start := time.Now()
		err := step.call()
		result.Duration = time.Since(start)
		if err != nil {
			result.Error = fmt.Sprintf("%s failed: %v", step.name, err)
		} else {
			result.Passed = true
		}
		report.addResult(result)
	}
}

// runCloseTests checks idempotent Close, failure after Close, and that no
// event reaches the handler once Close has returned.
func runCloseTests(t *testing.T, newTransport func() transport.Transport, caps Capabilities, report *ConformanceReport) {
	ctx := context.Background()

	var (
		closed     atomic.Bool
		afterClose atomic.Int32
		mu         sync.Mutex
		seen       []modem.RawCode
	)
	handler := func(code modem.RawCode) {
		if closed.Load() {
			afterClose.Add(1)
		}
		mu.Lock()
		seen = append(seen, code)
		mu.Unlock()
	}

	tr := newTransport()
	if err := tr.Open(ctx, caps.ClientName, caps.Instance, handler); err != nil {
		report.addResult(ConformanceResult{TestName: "Close_Open", Error: err.Error()})
		return
	}
	_ = tr.Acquire(ctx)

	result := ConformanceResult{
		TestName: "Close_Idempotent",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	panicked := func() (p interface{}) {
		defer func() { p = recover() }()
		tr.Close()
		closed.Store(true)
		tr.Close()
		return nil
	}()
	result.Duration = time.Since(start)
	if panicked != nil {
		result.Error = fmt.Sprintf("Close panicked: %v", panicked)
	} else {
		result.Passed = true
	}
	report.addResult(result)

	result = ConformanceResult{
		TestName: "Close_CallsFail",
		Details:  make(map[string]interface{}),
	}
	start = time.Now()
	err := tr.Acquire(ctx)
	result.Duration = time.Since(start)
	if err == nil {
		result.Error = "Acquire after Close should have failed"
	} else {
		result.Passed = true
		result.Details["error"] = err.Error()
	}
	report.addResult(result)

	result = ConformanceResult{
		TestName: "Close_NoEventsAfter",
		Details:  make(map[string]interface{}),
	}
	start = time.Now()
	time.Sleep(caps.Settle)
	result.Duration = time.Since(start)
	if n := afterClose.Load(); n != 0 {
		result.Error = fmt.Sprintf("%d events delivered after Close", n)
	} else {
		result.Passed = true
		mu.Lock()
		result.Details["eventsBeforeClose"] = len(seen)
		mu.Unlock()
	}
	report.addResult(result)
}

// runCancellationTests checks that a cancelled context fails the call.
func runCancellationTests(t *testing.T, newTransport func() transport.Transport, caps Capabilities, report *ConformanceReport) {
	tr := newTransport()
	defer tr.Close()

	result := ConformanceResult{
		TestName: "Cancellation_Open",
		Details:  make(map[string]interface{}),
	}
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := tr.Open(cancelledCtx, caps.ClientName, caps.Instance, nil)
	result.Duration = time.Since(start)
	if err == nil {
		result.Error = "Open with cancelled context should have failed"
	} else {
		result.Passed = true
		result.Details["error"] = err.Error()
	}
	report.addResult(result)

	if err := tr.Open(context.Background(), caps.ClientName, caps.Instance, nil); err != nil {
		report.addResult(ConformanceResult{TestName: "Cancellation_Reopen", Error: err.Error()})
		return
	}

	result = ConformanceResult{
		TestName: "Cancellation_Acquire",
		Details:  make(map[string]interface{}),
	}
	start = time.Now()
	err = tr.Acquire(cancelledCtx)
	result.Duration = time.Since(start)
	if err == nil {
		result.Error = "Acquire with cancelled context should have failed"
	} else {
		result.Passed = true
		result.Details["code"] = modem.CodeOf(err)
	}
	report.addResult(result)
}

// runTimingTests checks that calls return promptly. Status changes may
// happen later on the transport's own goroutine.
func runTimingTests(t *testing.T, newTransport func() transport.Transport, caps Capabilities, report *ConformanceReport) {
	tr := newTransport()
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*caps.MaxCallDuration)
	defer cancel()

	result := ConformanceResult{
		TestName: "Timing_CallsReturnPromptly",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	err := tr.Open(ctx, caps.ClientName, caps.Instance, nil)
	if err == nil {
		err = tr.Acquire(ctx)
	}
	if err == nil {
		err = tr.Release(ctx)
	}
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = fmt.Sprintf("Unexpected error: %v", err)
	} else if result.Duration > 3*caps.MaxCallDuration {
		result.Error = fmt.Sprintf("Calls took too long: %v", result.Duration)
	} else {
		result.Passed = true
		result.Details["duration"] = result.Duration.String()
	}
	report.addResult(result)
}

// Helper functions

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("TRANSPORT CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Transport: %s", report.TransportName)
	t.Logf("Total Tests: %d", report.TotalTests)
	t.Logf("Passed: %d", report.PassedTests)
	t.Logf("Failed: %d", report.FailedTests)
	t.Logf("Overall: %s", map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("Duration: %v", report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))

	t.Logf("%-30s %-8s %-12s %-s", "TEST NAME", "RESULT", "DURATION", "DETAILS")
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}

		details := result.Error
		if details == "" && len(result.Details) > 0 {
			var detailParts []string
			for k, v := range result.Details {
				detailParts = append(detailParts, fmt.Sprintf("%s=%v", k, v))
			}
			details = strings.Join(detailParts, ", ")
		}

		t.Logf("%-30s %-8s %-12s %-s", result.TestName, status, result.Duration.String(), details)
	}

	t.Logf("%s", strings.Repeat("=", 80))
}
