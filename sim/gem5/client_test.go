package gem5

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/dvfs-sim/sim"
	"github.com/inference-sim/dvfs-sim/internal/testutil"
)

// helperOptions launches this test binary as a fake gem5 driver.
func helperOptions(t *testing.T, mode string) Options {
	t.Helper()
	return Options{
		Binary:  os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--"},
		Env:     []string{"GO_WANT_HELPER_PROCESS=1", "GEM5_HELPER_MODE=" + mode},
		Driver:  "configs/dvfs_driver.py",
		OutDir:  t.TempDir(),
		Timeout: 5 * time.Second,
	}
}

// TestHelperProcess is not a real test: it is the fake driver process.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)
	outDir := "."
	for _, a := range os.Args {
		if v, ok := strings.CutPrefix(a, "--outdir="); ok {
			outDir = v
		}
	}
	fakeDriver(os.Stdin, os.Stdout, os.Getenv("GEM5_HELPER_MODE"), outDir)
}

// fakeDriver completes the workload once 300 ticks have been simulated.
func fakeDriver(in io.Reader, out io.Writer, mode, outDir string) {
	fmt.Fprintln(out, "gem5 Simulator System.  https://www.gem5.org")
	reply := func(v map[string]any) {
		v["ok"] = true
		raw, _ := json.Marshal(v)
		fmt.Fprintf(out, "%s\n", raw)
	}
	fail := func(msg string) {
		raw, _ := json.Marshal(map[string]any{"ok": false, "error": msg})
		fmt.Fprintf(out, "%s\n", raw)
	}

	var tick int64
	dumps := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var req map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			fail("bad request")
			continue
		}
		switch req["op"] {
		case "ping", "configure":
			reply(map[string]any{})
		case "simulate":
			switch mode {
			case "hang":
				time.Sleep(time.Hour)
			case "die":
				fmt.Fprintln(out, "panic: m5 segfault")
				os.Exit(3)
			}
			ticks, _ := req["ticks"].(float64)
			tick += int64(ticks)
			cause := string(LimitReached)
			if tick >= 300 {
				cause = sim.CompletionCause
			}
			reply(map[string]any{"tick": tick, "cause": cause})
		case "dump":
			dumps++
			f, err := os.OpenFile(filepath.Join(outDir, "stats.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				fail(err.Error())
				continue
			}
			fmt.Fprint(f, testutil.FormatReport(map[string]string{
				"simSeconds":                       fmt.Sprintf("%d", tick),
				"system.cpu.commitStats0.numInsts": fmt.Sprintf("%d", dumps*1000),
			}))
			f.Close()
			reply(map[string]any{})
		case "set_clock":
			fmt.Fprintf(out, "info: clock domain now %v\n", req["clock"])
			if mode == "reject-clock" {
				fail("unsupported clock " + fmt.Sprint(req["clock"]))
				continue
			}
			reply(map[string]any{})
		case "shutdown":
			return
		default:
			fail(fmt.Sprintf("unknown op %v", req["op"]))
		}
	}
}

func TestClient_ProtocolRoundTrip(t *testing.T) {
	// GIVEN a started driver
	opts := helperOptions(t, "")
	c, err := NewClient(opts)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	h, err := sim.LookupHierarchy("l1-l2")
	require.NoError(t, err)

	// WHEN the hierarchy is configured and one interval simulated
	require.NoError(t, c.Configure(ctx, h))
	require.NoError(t, c.SetClock(ctx, sim.DvfsLevel{Frequency: "2GHz", Voltage: "1.0V"}))
	exit, err := c.Advance(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, c.DumpStats(ctx))

	// THEN the tick, cause and report come back
	assert.Equal(t, int64(100), exit.Tick)
	assert.Equal(t, LimitReached, exit.Cause)
	assert.FileExists(t, filepath.Join(opts.OutDir, "stats.txt"))
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close(), "second close is a no-op")

	_, err = c.Advance(ctx, 100)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_ConcurrentClose(t *testing.T) {
	// GIVEN a started driver
	c, err := NewClient(helperOptions(t, ""))
	require.NoError(t, err)

	// WHEN several goroutines close it at once
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Close()
		}(i)
	}
	wg.Wait()

	// THEN the driver shuts down cleanly and every caller sees that outcome
	for i, err := range errs {
		assert.NoError(t, err, "close %d", i)
	}
	assert.NoError(t, c.Close())
}

func TestClient_DrivesIntervalRunner(t *testing.T) {
	// GIVEN a run configured against the fake driver
	opts := helperOptions(t, "")
	cfg := sim.DefaultRunConfig()
	cfg.Hierarchy = "l1-l2"
	cfg.StatsFile = filepath.Join(opts.OutDir, "stats.txt")
	cfg.Intervals.Max = 10
	cfg.Intervals.TickQuantum = 100
	require.NoError(t, cfg.Validate())
	h, err := cfg.ResolveHierarchy()
	require.NoError(t, err)

	c, err := NewClient(opts)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Configure(context.Background(), h))

	runner, err := sim.BuildRunner(cfg, h, c, io.Discard)
	require.NoError(t, err)

	// WHEN the loop runs
	result, err := runner.Run(context.Background())

	// THEN the workload completes on the third interval
	require.NoError(t, err)
	assert.Equal(t, sim.StateCompleted, result.State)
	assert.Equal(t, 3, result.Intervals)
	assert.Equal(t, int64(300), result.FinalTick)
	// 1000 + 2000 + 3000 instructions at 0.001 pJ each
	testutil.AssertDecimalEqual(t, "total energy", decimal.RequireFromString("0.006"), result.TotalEnergyNJ)
}

func TestClient_Timeout(t *testing.T) {
	opts := helperOptions(t, "hang")
	opts.Timeout = 200 * time.Millisecond
	c, err := NewClient(opts)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Advance(context.Background(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response within")

	// The stream is out of sync after a timeout; later requests fail fast.
	err = c.DumpStats(context.Background())
	assert.Error(t, err)
}

func TestClient_DriverCrash_IncludesOutput(t *testing.T) {
	c, err := NewClient(helperOptions(t, "die"))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Advance(context.Background(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: m5 segfault")
}

func TestClient_ErrorResponse(t *testing.T) {
	c, err := NewClient(helperOptions(t, "reject-clock"))
	require.NoError(t, err)
	defer c.Close()

	err = c.SetClock(context.Background(), sim.DvfsLevel{Frequency: "9GHz", Voltage: "2V"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported clock 9GHz")
	assert.Contains(t, err.Error(), "info: clock domain now 9GHz")
}

func TestNewClient_InvalidOptions(t *testing.T) {
	_, err := NewClient(Options{Driver: "d.py"})
	assert.Error(t, err, "empty binary")

	_, err = NewClient(Options{Binary: "gem5.opt"})
	assert.Error(t, err, "empty driver")

	_, err = NewClient(Options{Binary: filepath.Join(t.TempDir(), "missing-gem5"), Driver: "d.py"})
	assert.Error(t, err, "binary not found")
}
