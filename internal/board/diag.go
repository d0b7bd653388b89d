package board

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	okPattern       = regexp.MustCompile(`\bok\b`)
	unprogrammed    = regexp.MustCompile(`User prgm is not valid`)
	mramPattern     = regexp.MustCompile(`Mram Test: (\d+)//(\d+)`)
	supplyPattern   = regexp.MustCompile(`15V Supply: *(-?\d+(?:\.\d+)?)`)
	clockPattern    = regexp.MustCompile(`(\d{2}/\d{2}/\d{2})\s+(\d{2}:\d{2}:\d{2})`)
	distancePattern = regexp.MustCompile(`distance \(ohms\): *(\d+(?:\.\d+)?)`)
	leg1Pattern     = regexp.MustCompile(`leg1 resistance \(ohms\): *(\d+(?:\.\d+)?)`)
	leg2Pattern     = regexp.MustCompile(`leg2 resistance \(ohms\): *(\d+(?:\.\d+)?)`)
)

const (
	dateLayout  = "01/02/06"
	timeLayout  = "15:04:05"
	cableHeader = "external cable"
)

// Cable is one parsed adc1 diagnostic.
type Cable struct {
	Leg1     float64
	Leg2     float64
	Distance float64
}

// ParseCable extracts the external cable readings from adc1 output. Lines
// before the external cable header describe other channels and are ignored.
func ParseCable(text string) (Cable, error) {
	if i := strings.Index(text, cableHeader); i >= 0 {
		text = text[i:]
	}
	var c Cable
	var err error
	if c.Leg1, err = number(leg1Pattern, text); err != nil {
		return Cable{}, err
	}
	if c.Leg2, err = number(leg2Pattern, text); err != nil {
		return Cable{}, err
	}
	if c.Distance, err = number(distancePattern, text); err != nil {
		return Cable{}, err
	}
	return c, nil
}

// ParseSupply extracts the 15 V supply reading.
func ParseSupply(text string) (float64, error) {
	return number(supplyPattern, text)
}

// MramMatches reports whether the memory test wrote and read back the same
// count.
func MramMatches(text string) bool {
	m := mramPattern.FindStringSubmatch(text)
	return m != nil && m[1] == m[2]
}

func number(re *regexp.Regexp, text string) (float64, error) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no match for %q", re.String())
	}
	return strconv.ParseFloat(m[1], 64)
}
