package sim

import "fmt"

// DvfsLevel is one rung of the DVFS ladder. Both fields carry a unit suffix,
// e.g. "2.0GHz" and "1.0V".
type DvfsLevel struct {
	Frequency string `yaml:"frequency" json:"frequency"`
	Voltage   string `yaml:"voltage" json:"voltage"`
}

func (l DvfsLevel) String() string {
	return l.Frequency + " @ " + l.Voltage
}

// Ladder orders levels from lowest (index 0) to highest performance.
type Ladder []DvfsLevel

// DefaultLadder is the three-rung ladder of the adaptive hierarchy run.
func DefaultLadder() Ladder {
	return Ladder{
		{Frequency: "1.5GHz", Voltage: "0.8V"}, // low power
		{Frequency: "2.0GHz", Voltage: "1.0V"}, // default
		{Frequency: "2.5GHz", Voltage: "1.2V"}, // high performance
	}
}

// Validate checks that the ladder is non-empty, every rung parses, and
// frequencies are non-decreasing.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("DVFS ladder is empty")
	}
	prev := 0.0
	for i, lvl := range l {
		f, err := ParseFrequency(lvl.Frequency)
		if err != nil {
			return fmt.Errorf("DVFS level %d: %w", i, err)
		}
		if _, err := ParseVoltage(lvl.Voltage); err != nil {
			return fmt.Errorf("DVFS level %d: %w", i, err)
		}
		if f < prev {
			return fmt.Errorf("DVFS level %d: frequency %s is below level %d", i, lvl.Frequency, i-1)
		}
		prev = f
	}
	return nil
}

// DvfsController picks the ladder level for the next interval.
type DvfsController interface {
	// Step consumes the interval's control signal and returns the new index.
	Step(signal float64) int
	Index() int
	Level() DvfsLevel
	// Feedback reports whether Step reads its signal argument.
	Feedback() bool
	Name() string
}

// ValidDvfsPolicies is the set of recognized DVFS policy names.
// Shared by RunConfig.Validate() and NewDvfsController().
var ValidDvfsPolicies = map[string]bool{"": true, "feedback": true, "round-robin": true, "static": true}

// NewDvfsController creates a controller by name, starting at defaultIndex.
// An empty name selects "feedback". Panics on unrecognized names or an index
// outside the ladder.
func NewDvfsController(name string, ladder Ladder, defaultIndex int, thresholds MissRateThresholds) DvfsController {
	if !ValidDvfsPolicies[name] {
		panic(fmt.Sprintf("unknown DVFS policy %q", name))
	}
	if defaultIndex < 0 || defaultIndex >= len(ladder) {
		panic(fmt.Sprintf("DVFS default level %d outside ladder of %d levels", defaultIndex, len(ladder)))
	}
	base := ladderState{ladder: ladder, index: defaultIndex}
	switch name {
	case "", "feedback":
		return &FeedbackController{ladderState: base, thresholds: thresholds}
	case "round-robin":
		return &RoundRobinController{ladderState: base}
	case "static":
		return &StaticController{ladderState: base}
	default:
		panic(fmt.Sprintf("unhandled DVFS policy %q", name))
	}
}

type ladderState struct {
	ladder Ladder
	index  int
}

func (s *ladderState) Index() int       { return s.index }
func (s *ladderState) Level() DvfsLevel { return s.ladder[s.index] }
func (s *ladderState) maxIndex() int    { return len(s.ladder) - 1 }

// FeedbackController moves one rung per interval based on the miss signal.
// A signal above High lowers the level; one below Low raises it.
type FeedbackController struct {
	ladderState
	thresholds MissRateThresholds
}

func (c *FeedbackController) Step(signal float64) int {
	switch {
	case signal > c.thresholds.High && c.index > 0:
		c.index--
	case signal < c.thresholds.Low && c.index < c.maxIndex():
		c.index++
	}
	return c.index
}

func (c *FeedbackController) Feedback() bool { return true }
func (c *FeedbackController) Name() string   { return "feedback" }

// RoundRobinController cycles through the ladder regardless of signal.
type RoundRobinController struct {
	ladderState
}

func (c *RoundRobinController) Step(_ float64) int {
	c.index = (c.index + 1) % len(c.ladder)
	return c.index
}

func (c *RoundRobinController) Feedback() bool { return false }
func (c *RoundRobinController) Name() string   { return "round-robin" }

// StaticController holds the default level for the whole run.
type StaticController struct {
	ladderState
}

func (c *StaticController) Step(_ float64) int { return c.index }
func (c *StaticController) Feedback() bool     { return false }
func (c *StaticController) Name() string       { return "static" }
