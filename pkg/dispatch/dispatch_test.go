package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"vllmfleet/pkg/router"
)

// gaugeSender records the number of simultaneously in-flight Send calls
// and fails every request whose prompt contains "fail".
type gaugeSender struct {
	inflight atomic.Int64
	peak     atomic.Int64
	delay    time.Duration
}

func (g *gaugeSender) Send(ctx context.Context, messages []router.Message, opts router.CompletionOptions) (string, error) {
	cur := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		peak := g.peak.Load()
		if cur <= peak || g.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	prompt := messages[len(messages)-1].Content
	if prompt == "fail" {
		return "", fmt.Errorf("simulated completion failure")
	}
	return "echo: " + prompt, nil
}

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open output file: %v", err)
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad output line %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func runWorkload(t *testing.T, sender Sender, samples []Sample, limit int) ([]map[string]any, Stats) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.jsonl")
	sink, err := NewSink(path)
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	stats, err := Run(context.Background(), "test-model", sender, router.DefaultModelConfig(), samples, limit, sink)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return readRecords(t, path), stats
}

func TestRunNeverExceedsLimit(t *testing.T) {
	for _, limit := range []int{1, 3, 16} {
		sender := &gaugeSender{delay: time.Millisecond}
		samples := make([]Sample, 60)
		for i := range samples {
			samples[i] = Sample{"user_prompt": fmt.Sprintf("prompt %d", i)}
		}

		records, _ := runWorkload(t, sender, samples, limit)
		if len(records) != len(samples) {
			t.Errorf("limit %d: %d records, want %d", limit, len(records), len(samples))
		}
		if peak := sender.peak.Load(); peak > int64(limit) {
			t.Errorf("limit %d: peak in-flight %d exceeded the limit", limit, peak)
		}
	}
}

func TestRunPreservesSampleFields(t *testing.T) {
	samples := []Sample{
		{"user_prompt": "hello", "id": "s-1", "split": "dev"},
	}
	records, stats := runWorkload(t, &gaugeSender{}, samples, 2)

	if stats.Completed != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	rec := records[0]
	if rec["response"] != "echo: hello" {
		t.Errorf("response = %v", rec["response"])
	}
	if rec["id"] != "s-1" || rec["split"] != "dev" || rec["user_prompt"] != "hello" {
		t.Errorf("sample fields not preserved: %v", rec)
	}
}

func TestRunRecordsFailuresWithoutAborting(t *testing.T) {
	samples := []Sample{
		{"user_prompt": "fail"},
		{"user_prompt": "ok"},
		{"user_prompt": "fail"},
		{"no_prompt_here": true},
	}
	records, stats := runWorkload(t, &gaugeSender{}, samples, 2)

	if len(records) != len(samples) {
		t.Fatalf("%d records, want %d (one line per sample, failures included)", len(records), len(samples))
	}
	if stats.Completed != 1 || stats.Failed != 3 {
		t.Errorf("stats = %+v, want 1 completed / 3 failed", stats)
	}
	errorRecords := 0
	for _, rec := range records {
		if _, ok := rec["error"]; ok {
			errorRecords++
		}
	}
	if errorRecords != 3 {
		t.Errorf("%d error records, want 3", errorRecords)
	}
}

func TestRunEmptyWorkload(t *testing.T) {
	records, stats := runWorkload(t, &gaugeSender{}, nil, 4)
	if len(records) != 0 || stats.Completed != 0 || stats.Failed != 0 {
		t.Errorf("empty workload produced records=%d stats=%+v", len(records), stats)
	}
}

func TestRunRejectsZeroLimit(t *testing.T) {
	sink, err := NewSink(filepath.Join(t.TempDir(), "out.jsonl"))
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	defer sink.Close()

	_, err = Run(context.Background(), "m", &gaugeSender{}, router.DefaultModelConfig(), DummySamples(1), 0, sink)
	if err == nil {
		t.Fatal("Run accepted a zero concurrency limit")
	}
}

func TestLoadSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	content := `{"user_prompt": "a", "id": 1}

{"user_prompt": "b"}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write samples: %v", err)
	}

	samples, err := LoadSamples(path)
	if err != nil {
		t.Fatalf("LoadSamples failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2 (blank lines skipped)", len(samples))
	}
	if samples[0]["user_prompt"] != "a" || samples[1]["user_prompt"] != "b" {
		t.Errorf("samples = %v", samples)
	}
}

func TestLoadSamplesBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	if err := os.WriteFile(path, []byte("{not json}\n"), 0644); err != nil {
		t.Fatalf("failed to write samples: %v", err)
	}
	if _, err := LoadSamples(path); err == nil {
		t.Fatal("LoadSamples accepted a malformed line")
	}
}
