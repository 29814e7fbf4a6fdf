package memberlists_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	memberlists "github.com/raniellyferreira/memberlists"
	"github.com/raniellyferreira/memberlists/client"
)

func startService(t *testing.T, opts ...memberlists.Option) (*memberlists.Service, *client.Client) {
	t.Helper()
	svc := newService(t, opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}
	return svc, client.New(svc.Addr(), client.WithTimeout(5*time.Second))
}

// TestEndToEndScenario runs the reference session against a file-backed
// service over TCP
func TestEndToEndScenario(t *testing.T) {
	dir := t.TempDir()
	metrics := newTestMetrics()
	svc, c := startService(t,
		memberlists.WithLists(2),
		memberlists.WithCapacity(2),
		memberlists.WithDataDir(dir),
		memberlists.WithMetrics(metrics),
	)
	ctx := context.Background()

	steps := []struct {
		request  string
		expected string
	}{
		{"totals", "There are 2 list(s), each with a maximum size of 2.\nList 1 has 0 member(s).\nList 2 has 0 member(s)."},
		{"join 1 Alice", `Success. "Alice" joined list 1.`},
		{"join 1 Bob", `Success. "Bob" joined list 1.`},
		{"join 1 Carol", "Failed. List 1 is full."},
		{"list 1", "Alice\nBob"},
		{"list 2", "There are no members in list 2."},
		{"list 3", "Failed. There is no list 3."},
		{"join 3 Dave", "Failed. There is no list 3."},
		{"join 2 Bob Smith", `Success. "Bob Smith" joined list 2.`},
		{"totals", "There are 2 list(s), each with a maximum size of 2.\nList 1 has 2 member(s).\nList 2 has 1 member(s)."},
		{"frobnicate", "Error: Could not process input."},
	}

	for _, step := range steps {
		got, err := c.Do(ctx, step.request)
		if err != nil {
			t.Fatalf("request %q failed: %v", step.request, err)
		}
		if got != step.expected {
			t.Errorf("request %q:\nexpected %q\ngot      %q", step.request, step.expected, got)
		}
	}

	// durable flat file per list
	data, err := os.ReadFile(filepath.Join(dir, "list-0.txt"))
	if err != nil {
		t.Fatalf("Failed to read list file: %v", err)
	}
	if string(data) != "Alice\nBob\n" {
		t.Errorf("unexpected list file content %q", data)
	}

	// one audit entry per connection
	logData, err := os.ReadFile(svc.AuditLogPath())
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	entries := strings.Split(strings.TrimSuffix(string(logData), "\n"), "\n")
	if len(entries) != len(steps) {
		t.Fatalf("Expected %d audit entries, got %d", len(steps), len(entries))
	}
	if !strings.HasSuffix(entries[1], "|127.0.0.1|join 1 Alice") {
		t.Errorf("unexpected audit entry %q", entries[1])
	}

	conns, commands, sizes := metrics.snapshot()
	if conns != len(steps) {
		t.Errorf("Expected %d connections recorded, got %d", len(steps), conns)
	}
	if commands["join/full"] != 1 || commands["join/ok"] != 3 || commands["invalid/invalid"] != 1 {
		t.Errorf("unexpected command metrics %v", commands)
	}
	if sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("unexpected list sizes %v", sizes)
	}
	if got := svc.Stats().GetOutcomeCount("list", "no_such_list"); got != 1 {
		t.Errorf("Expected 1 no_such_list outcome, got %d", got)
	}
}

// TestEndToEndConcurrentJoins checks that K concurrent joins to a list with
// capacity M < K admit exactly M members
func TestEndToEndConcurrentJoins(t *testing.T) {
	const (
		capacity = 12
		joiners  = 100
	)
	for _, backend := range []string{"file", "memory"} {
		t.Run(backend, func(t *testing.T) {
			opts := []memberlists.Option{
				memberlists.WithLists(3),
				memberlists.WithCapacity(capacity),
				memberlists.WithWorkers(25),
				memberlists.WithQueueSize(25),
			}
			if backend == "memory" {
				opts = append(opts, memberlists.WithMemoryStore())
			}
			svc, c := startService(t, opts...)

			var (
				mu      sync.Mutex
				success int
				full    int
				wg      sync.WaitGroup
			)
			for i := 0; i < joiners; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					got, err := c.Join(context.Background(), 2, fmt.Sprintf("member %d", i))
					if err != nil {
						t.Errorf("join %d failed: %v", i, err)
						return
					}
					mu.Lock()
					defer mu.Unlock()
					switch {
					case strings.HasPrefix(got, "Success."):
						success++
					case got == "Failed. List 2 is full.":
						full++
					default:
						t.Errorf("unexpected response %q", got)
					}
				}(i)
			}
			wg.Wait()

			if success != capacity || full != joiners-capacity {
				t.Fatalf("Expected %d/%d success/full, got %d/%d", capacity, joiners-capacity, success, full)
			}
			members, err := svc.Storage().Members(1)
			if err != nil {
				t.Fatalf("Members failed: %v", err)
			}
			if len(members) != capacity {
				t.Fatalf("Expected %d members recorded, got %d", capacity, len(members))
			}
			for _, other := range []int{0, 2} {
				if n, _ := svc.Storage().Count(other); n != 0 {
					t.Errorf("list %d should be untouched, has %d members", other+1, n)
				}
			}
		})
	}
}

func TestEndToEndScriptReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "admit.lua")
	if err := os.WriteFile(path, []byte(`function admit() return true end`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, c := startService(t,
		memberlists.WithLists(1),
		memberlists.WithCapacity(10),
		memberlists.WithMemoryStore(),
		memberlists.WithAdmissionScript(path),
		memberlists.WithScriptWatch(true),
	)
	ctx := context.Background()

	if got, _ := c.Join(ctx, 1, "Alice"); got != `Success. "Alice" joined list 1.` {
		t.Fatalf("unexpected response %q", got)
	}

	if err := os.WriteFile(path, []byte(`function admit(list, name) return members.count(list) < 1 end`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := c.Join(ctx, 1, "Bob")
		if err != nil {
			t.Fatalf("join failed: %v", err)
		}
		if got == `Failed. "Bob" was not admitted to list 1.` {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("script was not reloaded, last response %q", got)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
