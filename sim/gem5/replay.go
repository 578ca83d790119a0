package gem5

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/dvfs-sim/sim"
)

// LimitReached is the exit cause gem5 reports when a simulate() tick budget
// runs out.
const LimitReached sim.TerminationReason = "simulate() limit reached"

var dumpHeader = []byte("---------- Begin Simulation Statistics ----------")

// tickStats are the dump counters holding the absolute tick, in preference order.
var tickStats = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^finalTick[ \t]+(\d+)`),
	regexp.MustCompile(`(?m)^simTicks[ \t]+(\d+)`),
}

// Replay plays back recorded stats dumps as if a simulator produced them.
// Each Advance moves to the next dump; the last one exits with the
// completion cause. A positive tick budget advances the reported tick by
// that budget; an unbounded advance reports the dump's own finalTick.
type Replay struct {
	dumps     [][]byte
	statsPath string
	cause     sim.TerminationReason
	pos       int
	tick      int64
	applied   []sim.DvfsLevel
}

// LoadReplay collects dumps from paths in order. A directory contributes its
// *.txt files sorted by name; a file contributes every dump block it holds.
// DumpStats writes the current dump to statsPath.
func LoadReplay(statsPath, completionCause string, paths ...string) (*Replay, error) {
	if completionCause == "" {
		completionCause = sim.CompletionCause
	}
	r := &Replay{statsPath: statsPath, cause: sim.TerminationReason(completionCause)}
	for _, p := range paths {
		files, err := expand(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("replay: reading %s: %w", f, err)
			}
			r.dumps = append(r.dumps, SplitDumps(data)...)
		}
	}
	if len(r.dumps) == 0 {
		return nil, fmt.Errorf("replay: no stats dumps found in %v", paths)
	}
	logrus.Infof("Replaying %d recorded stats dumps", len(r.dumps))
	return r, nil
}

func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := filepath.Glob(filepath.Join(path, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("replay: listing %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// SplitDumps cuts a report into its dump blocks. Text without a dump header
// is returned whole when non-blank.
func SplitDumps(data []byte) [][]byte {
	var dumps [][]byte
	rest := data
	for {
		start := bytes.Index(rest, dumpHeader)
		if start < 0 {
			break
		}
		next := bytes.Index(rest[start+len(dumpHeader):], dumpHeader)
		if next < 0 {
			dumps = append(dumps, rest[start:])
			return dumps
		}
		end := start + len(dumpHeader) + next
		dumps = append(dumps, rest[start:end])
		rest = rest[end:]
	}
	if len(dumps) == 0 && len(bytes.TrimSpace(data)) > 0 {
		dumps = append(dumps, data)
	}
	return dumps
}

// dumpTick reads the tick a dump was taken at.
func dumpTick(dump []byte) (int64, bool) {
	for _, re := range tickStats {
		if m := re.FindSubmatch(dump); m != nil {
			if t, err := strconv.ParseInt(string(m[1]), 10, 64); err == nil {
				return t, true
			}
		}
	}
	return 0, false
}

// Len returns the number of recorded dumps.
func (r *Replay) Len() int { return len(r.dumps) }

// Applied returns the DVFS levels set so far, in order.
func (r *Replay) Applied() []sim.DvfsLevel { return r.applied }

func (r *Replay) Advance(ctx context.Context, ticks int64) (sim.ExitEvent, error) {
	if err := ctx.Err(); err != nil {
		return sim.ExitEvent{}, err
	}
	if r.pos >= len(r.dumps) {
		return sim.ExitEvent{}, fmt.Errorf("replay: advanced past the last of %d dumps", len(r.dumps))
	}
	r.pos++
	if ticks > 0 {
		r.tick += ticks
	} else if t, ok := dumpTick(r.dumps[r.pos-1]); ok {
		r.tick = t
	}
	cause := LimitReached
	if r.pos == len(r.dumps) {
		cause = r.cause
	}
	return sim.ExitEvent{Tick: r.tick, Cause: cause}, nil
}

func (r *Replay) DumpStats(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.pos == 0 {
		return fmt.Errorf("replay: dump requested before the first advance")
	}
	if dir := filepath.Dir(r.statsPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}
	if err := os.WriteFile(r.statsPath, r.dumps[r.pos-1], 0o644); err != nil {
		return fmt.Errorf("replay: writing %s: %w", r.statsPath, err)
	}
	return nil
}

func (r *Replay) SetClock(ctx context.Context, level sim.DvfsLevel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.applied = append(r.applied, level)
	return nil
}
