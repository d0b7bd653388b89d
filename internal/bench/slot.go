package bench

import (
	"fmt"

	"github.com/buckleypaul/sealion/internal/board"
	"github.com/buckleypaul/sealion/internal/config"
)

// SlotCount is the number of fixture positions.
const SlotCount = 6

// Slot is one fixture position and the state of the board in it.
type Slot struct {
	Index       int
	Family      board.Family
	Identifier  string
	Address     int
	BusPort     int
	RelayInputs []string
	IP          string

	MAC    string
	Serial string
	Active bool

	Result              *board.TestResult
	LogPath             string
	Finished            int
	Total               int
	Passing             bool
	EthernetParticipate bool
	Reason              string
}

// Target describes the slot's board to a tester.
func (s Slot) Target(defaultIP string) board.Target {
	return board.Target{
		Family:      s.Family,
		BusPort:     s.BusPort,
		RelayInputs: s.RelayInputs,
		IP:          s.IP,
		DefaultIP:   defaultIP,
		MAC:         s.MAC,
	}
}

// SlotInput is what the operator enters for a slot before a run.
type SlotInput struct {
	Active bool
	MAC    string
	Serial string
}

// DefaultSlots returns the fixture layout: LD2100 boards in slots 0-2 on
// board addresses 3-5, LD5200 boards in slots 3-5 on addresses 0-2. Missing
// or blank ips take the default slot address.
func DefaultSlots(ips []string) [SlotCount]Slot {
	var slots [SlotCount]Slot
	for i := range slots {
		s := Slot{Index: i}
		if i < 3 {
			s.Family = board.FamilyA
			s.Address = i + 3
			// The bus selector is wired in reverse: address 3 sits on port 2.
			s.BusPort = 2 - i
			s.RelayInputs = []string{"I0", "I1"}
			// Address 4 lands its relay contacts on the upper input pair.
			if s.Address == 4 {
				s.RelayInputs = []string{"I2", "I3"}
			}
		} else {
			s.Family = board.FamilyB
			s.Address = i - 3
			s.BusPort = i - 3
			s.RelayInputs = []string{"I0", "I1", "I2"}
		}
		s.Identifier = fmt.Sprintf("%s_%d", s.Family, i+1)
		s.IP = config.Config{SlotIPs: ips}.SlotIP(i)
		slots[i] = s
	}
	return slots
}
