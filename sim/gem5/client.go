// Package gem5 runs the interval loop against gem5, either live through a
// driver script or by replaying recorded stats dumps.
package gem5

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/dvfs-sim/sim"
)

const (
	defaultTimeout = 10 * time.Minute
	closeGrace     = 2 * time.Second
	maxNoiseLines  = 8
)

// ErrClosed is returned by requests issued after Close.
var ErrClosed = errors.New("gem5 client closed")

// Options describes how to launch the driver. The process is started as
// "<Binary> <Args...> --outdir=<OutDir> <Driver>".
type Options struct {
	Binary  string
	Args    []string // extra arguments placed before --outdir
	Env     []string // appended to the inherited environment
	Driver  string
	OutDir  string
	Timeout time.Duration // per request, 0 selects the default
	Stderr  io.Writer     // driver stderr, defaults to os.Stderr
}

// response is one JSON line written by the driver.
type response struct {
	OK      bool   `json:"ok"`
	Tick    int64  `json:"tick,omitempty"`
	Cause   string `json:"cause,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// Client runs a gem5 driver script as a child process and drives it over
// newline-delimited JSON on stdin/stdout. Requests are serialized.
type Client struct {
	mu      sync.Mutex
	timeout time.Duration
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	cancel  context.CancelFunc
	closed  bool
	lastErr error
}

// NewClient starts the driver and completes the ping handshake.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Binary) == "" {
		return nil, fmt.Errorf("gem5: binary is empty")
	}
	if strings.TrimSpace(opts.Driver) == "" {
		return nil, fmt.Errorf("gem5: driver script is empty")
	}
	args := append([]string{}, opts.Args...)
	if opts.OutDir != "" {
		args = append(args, "--outdir="+opts.OutDir)
	}
	args = append(args, opts.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, opts.Binary, args...)
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gem5: stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gem5: stdout pipe: %w", err)
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("gem5: start %s: %w", opts.Binary, err)
	}
	logrus.Debugf("gem5: started %s %s (pid %d)", opts.Binary, strings.Join(args, " "), cmd.Process.Pid)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		timeout: timeout,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewReader(stdoutPipe),
		cancel:  cancel,
	}
	if _, err := c.send(context.Background(), map[string]any{"op": "ping"}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("gem5: handshake failed: %w", err)
	}
	return c, nil
}

// Configure instantiates the hierarchy's system in the driver: caches, port
// wiring, memory, workload and the starting clock.
func (c *Client) Configure(ctx context.Context, h *sim.Hierarchy) error {
	_, err := c.send(ctx, map[string]any{
		"op":        "configure",
		"hierarchy": h.Name,
		"caches":    h.Caches,
		"links":     h.Links(),
		"workload":  h.Workload,
		"mem_size":  h.MemSize,
		"clock":     h.Clock.Frequency,
		"voltage":   h.Clock.Voltage,
	})
	if err != nil {
		return fmt.Errorf("gem5: configure %s: %w", h.Name, err)
	}
	return nil
}

// Advance simulates up to ticks more ticks.
func (c *Client) Advance(ctx context.Context, ticks int64) (sim.ExitEvent, error) {
	payload := map[string]any{"op": "simulate"}
	if ticks > 0 {
		payload["ticks"] = ticks
	}
	resp, err := c.send(ctx, payload)
	if err != nil {
		return sim.ExitEvent{}, fmt.Errorf("gem5: simulate: %w", err)
	}
	return sim.ExitEvent{Tick: resp.Tick, Cause: sim.TerminationReason(resp.Cause)}, nil
}

// DumpStats asks the driver to append a dump to the stats report.
func (c *Client) DumpStats(ctx context.Context) error {
	if _, err := c.send(ctx, map[string]any{"op": "dump"}); err != nil {
		return fmt.Errorf("gem5: dump: %w", err)
	}
	return nil
}

// SetClock changes the CPU clock domain's frequency and voltage.
func (c *Client) SetClock(ctx context.Context, level sim.DvfsLevel) error {
	_, err := c.send(ctx, map[string]any{
		"op":      "set_clock",
		"clock":   level.Frequency,
		"voltage": level.Voltage,
	})
	if err != nil {
		return fmt.Errorf("gem5: set_clock %s: %w", level, err)
	}
	return nil
}

// Close asks the driver to shut down and waits briefly before killing it.
// Safe to call more than once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.lastErr
	}
	c.closed = true
	stdin, cmd, cancel := c.stdin, c.cmd, c.cancel
	c.stdin, c.stdout, c.cmd, c.cancel = nil, nil, nil, nil
	c.mu.Unlock()

	if stdin != nil {
		_, _ = io.WriteString(stdin, "{\"op\":\"shutdown\"}\n")
		_ = stdin.Close()
	}
	var waitErr error
	if cmd != nil && cmd.Process != nil {
		done := make(chan error, 1)
		go func() {
			done <- cmd.Wait()
		}()
		select {
		case waitErr = <-done:
		case <-time.After(closeGrace):
			logrus.Warnf("gem5: driver did not exit within %s, killing it", closeGrace)
			_ = cmd.Process.Kill()
			<-done
		}
	}
	if cancel != nil {
		cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if waitErr != nil && c.lastErr == nil {
		c.lastErr = waitErr
	}
	return c.lastErr
}

func (c *Client) send(ctx context.Context, payload map[string]any) (response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return response{}, ErrClosed
	}
	if c.lastErr != nil {
		return response{}, fmt.Errorf("driver unusable after earlier failure: %w", c.lastErr)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return response{}, err
	}
	logrus.Debugf("gem5 <- %s", raw)
	raw = append(raw, '\n')
	if _, err := c.stdin.Write(raw); err != nil {
		return response{}, c.fail(err)
	}

	type result struct {
		line  string
		err   error
		noise []string
	}
	ch := make(chan result, 1)
	stdout := c.stdout
	go func() {
		noise := make([]string, 0, maxNoiseLines)
		for {
			line, readErr := stdout.ReadString('\n')
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
				if trimmed != "" && len(noise) < maxNoiseLines {
					noise = append(noise, trimmed)
				}
				if readErr != nil {
					ch <- result{err: readErr, noise: noise}
					return
				}
				continue
			}
			ch <- result{line: trimmed, err: readErr, noise: noise}
			return
		}
	}()

	select {
	case res := <-ch:
		if res.line == "" {
			err := res.err
			if err == nil || errors.Is(err, io.EOF) {
				err = errors.New("driver closed its output")
			}
			return response{}, c.fail(annotateWithNoise(err, res.noise))
		}
		logrus.Debugf("gem5 -> %s", res.line)
		var resp response
		if err := json.Unmarshal([]byte(res.line), &resp); err != nil {
			return response{}, annotateWithNoise(fmt.Errorf("invalid response: %w", err), res.noise)
		}
		if !resp.OK {
			msg := resp.Error
			if msg == "" {
				msg = "request failed"
			}
			if resp.Details != "" {
				msg += ": " + resp.Details
			}
			return resp, annotateWithNoise(errors.New(msg), res.noise)
		}
		return resp, nil
	case <-ctx.Done():
		return response{}, c.fail(ctx.Err())
	case <-time.After(c.timeout):
		return response{}, c.fail(fmt.Errorf("no response within %s", c.timeout))
	}
}

// fail records err and kills the driver; the stream is no longer in sync.
// Callers hold c.mu.
func (c *Client) fail(err error) error {
	c.lastErr = err
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return err
}

func annotateWithNoise(err error, noise []string) error {
	if err == nil || len(noise) == 0 {
		return err
	}
	return fmt.Errorf("%w (gem5 stdout: %s)", err, strings.Join(noise, "; "))
}
