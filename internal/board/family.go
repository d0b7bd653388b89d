package board

import (
	"fmt"
	"regexp"
)

// Family is a board product line.
type Family int

const (
	// FamilyA is the LD2100.
	FamilyA Family = iota
	// FamilyB is the LD5200.
	FamilyB
)

func (f Family) String() string {
	switch f {
	case FamilyA:
		return "LD2100"
	case FamilyB:
		return "LD5200"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Profile holds the per-family constants the steps check against.
type Profile struct {
	// LengthTargets are the expected leg resistances at length codes 0..n.
	LengthTargets []float64
	// ShortTargets are the expected distance resistances at short codes 0..n.
	ShortTargets []float64
	// BreakResistance is the leg1 reading with the cable broken.
	BreakResistance float64
	// StartupMarkers must all appear in the reboot banner.
	StartupMarkers []*regexp.Regexp
	// RelayCount is the number of relays exercised.
	RelayCount int
	// PortScan selects the three-port bus scan over the identity read.
	PortScan bool
	// CurrentLoop enables the 4-20 mA output step.
	CurrentLoop bool
}

var shortTargets = []float64{0, 1500, 7100, 14600, 22100, 29600}

var profiles = map[Family]Profile{
	FamilyA: {
		LengthTargets:   []float64{0, 1500, 7100},
		ShortTargets:    shortTargets,
		BreakResistance: 30000,
		StartupMarkers: []*regexp.Regexp{
			regexp.MustCompile(`Frequency test 1: passed`),
			regexp.MustCompile(`Frequency test 2: passed`),
			regexp.MustCompile(`Frequency test 3: passed`),
			regexp.MustCompile(`Frequency test 4: passed`),
		},
		RelayCount: 1,
	},
	FamilyB: {
		LengthTargets:   []float64{0, 1500, 7100, 14600, 22100, 29600},
		ShortTargets:    shortTargets,
		BreakResistance: 32000,
		StartupMarkers: []*regexp.Regexp{
			regexp.MustCompile(`Testing duart1: \d+ passed`),
			regexp.MustCompile(`Testing duart2: \d+ passed`),
		},
		RelayCount:  3,
		PortScan:    true,
		CurrentLoop: true,
	},
}

// Profile returns the family's constants.
func (f Family) Profile() Profile {
	return profiles[f]
}

// RelayCheck is one relay command and the inputs expected afterwards.
type RelayCheck struct {
	Relay  int
	On     bool
	Expect map[string]bool
}

// RelayPlan returns the relay sequence for a family wired to inputs.
//
// A family A board drives one relay whose contacts land on a pair of inputs:
// normally-open on the first, normally-closed on the second. A family B board
// drives one input per relay.
func (f Family) RelayPlan(inputs []string) ([]RelayCheck, error) {
	switch f {
	case FamilyA:
		if len(inputs) != 2 {
			return nil, fmt.Errorf("%s relay test needs 2 inputs, got %d", f, len(inputs))
		}
		return []RelayCheck{
			{Relay: 1, On: true, Expect: map[string]bool{inputs[0]: true, inputs[1]: false}},
			{Relay: 1, On: false, Expect: map[string]bool{inputs[0]: false, inputs[1]: true}},
		}, nil
	case FamilyB:
		n := f.Profile().RelayCount
		if len(inputs) != n {
			return nil, fmt.Errorf("%s relay test needs %d inputs, got %d", f, n, len(inputs))
		}
		var plan []RelayCheck
		for r := 1; r <= n; r++ {
			on := make(map[string]bool, n)
			off := make(map[string]bool, n)
			for i, in := range inputs {
				on[in] = i == r-1
				off[in] = false
			}
			plan = append(plan,
				RelayCheck{Relay: r, On: true, Expect: on},
				RelayCheck{Relay: r, On: false, Expect: off},
			)
		}
		return plan, nil
	default:
		return nil, fmt.Errorf("unknown family %v", f)
	}
}
