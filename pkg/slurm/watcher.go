/*
watcher.go polls a job's log file until the scheduler has announced the
full node allocation on the first line.
*/
package slurm

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"vllmfleet/pkg/hostlist"
)

// ReadinessTimeoutError is returned when the configured launch timeout
// elapses before the job log announces the expected node count. The job
// itself is left running.
type ReadinessTimeoutError struct {
	LogPath string
	Timeout time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("job log %s did not become ready within %s", e.LogPath, e.Timeout)
}

// AwaitReady polls logPath every interval until its first line announces a
// hostlist that expands to exactly expected nodes, and returns those node
// names. A timeout of zero means wait indefinitely. The first line is
// re-read from scratch on every tick, so the log may be truncated or
// rewritten between polls without confusing the watcher.
//
// A partial announcement (fewer or more nodes than expected) is not an
// error: the scheduler may still be allocating, or a stale line may have
// been read, so the watcher just keeps polling.
func AwaitReady(ctx context.Context, logPath string, expected int, interval, timeout time.Duration) ([]string, error) {
	if interval <= 0 {
		interval = time.Second
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, &ReadinessTimeoutError{LogPath: logPath, Timeout: timeout}
		}

		nodes, err := readAnnouncedNodes(logPath)
		if err != nil {
			return nil, err
		}
		if nodes == nil {
			if tick > 0 && tick%30 == 0 {
				log.Printf("Still waiting for the node announcement in %s...", logPath)
			}
			continue
		}
		if len(nodes) != expected {
			if tick > 0 && tick%30 == 0 {
				log.Printf("Job log announced %d/%d nodes, still waiting...", len(nodes), expected)
			}
			continue
		}
		return nodes, nil
	}
}

// readAnnouncedNodes reads the first line of the job log and expands the
// node announcement on it. It returns (nil, nil) while the file does not
// exist yet, is empty, or its first line is not the announcement; any other
// output on line 1 just means the scheduler has not written it yet.
func readAnnouncedNodes(logPath string) ([]string, error) {
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open job log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, nil
	}
	line := scanner.Text()
	if !strings.HasPrefix(line, NodeAnnouncementPrefix) {
		return nil, nil
	}

	expr := strings.TrimSpace(strings.TrimPrefix(line, NodeAnnouncementPrefix))
	nodes, err := hostlist.Expand(expr)
	if err != nil {
		// The scheduler wrote an announcement we cannot parse; polling
		// again will not fix that.
		return nil, fmt.Errorf("failed to parse node announcement: %w", err)
	}
	return nodes, nil
}
