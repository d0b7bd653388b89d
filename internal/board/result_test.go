package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultPassingIsMonotone(t *testing.T) {
	r := NewTestResult()
	assert.True(t, r.Passing())

	r.Process("a", true)
	r.Process("b", false)
	r.Process("c", true)
	assert.False(t, r.Passing())

	r.Process("b", true)
	assert.False(t, r.Passing(), "a later pass does not clear a failure")
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}

func TestResultString(t *testing.T) {
	r := NewTestResult()
	r.Process(StepConnect, true)
	r.Process(StepLED, false)

	want := "Passing: false\n\trs232_connection: passed\n\tled_test: failed\n"
	assert.Equal(t, want, r.String())
}

func TestTolerance(t *testing.T) {
	p := Percent(0.05)
	assert.True(t, p.Check(1500, 1575))
	assert.True(t, p.Check(1500, 1425))
	assert.False(t, p.Check(1500, 1576))
	assert.True(t, p.Check(0, 14.9))
	assert.False(t, p.Check(0, 15))

	a := Absolute(20)
	assert.True(t, a.Check(30000, 30020))
	assert.False(t, a.Check(30000, 29979))
}

func TestParseCable(t *testing.T) {
	text := "internal sensor\r\nleg1 resistance (ohms): 12\r\n" +
		"external cable\r\nleg1 resistance (ohms): 1502\r\n" +
		"leg2 resistance (ohms): 1498\r\ndistance (ohms): 7\r\n"

	c, err := ParseCable(text)
	assert.NoError(t, err)
	assert.Equal(t, Cable{Leg1: 1502, Leg2: 1498, Distance: 7}, c)

	_, err = ParseCable("external cable\r\nleg1 resistance (ohms): 1\r\n")
	assert.Error(t, err)
}

func TestRelayPlan(t *testing.T) {
	plan, err := FamilyA.RelayPlan([]string{"I2", "I3"})
	assert.NoError(t, err)
	assert.Equal(t, []RelayCheck{
		{Relay: 1, On: true, Expect: map[string]bool{"I2": true, "I3": false}},
		{Relay: 1, On: false, Expect: map[string]bool{"I2": false, "I3": true}},
	}, plan)

	plan, err = FamilyB.RelayPlan([]string{"I0", "I1", "I2"})
	assert.NoError(t, err)
	assert.Len(t, plan, 6)
	assert.Equal(t, map[string]bool{"I0": false, "I1": true, "I2": false}, plan[2].Expect)

	_, err = FamilyB.RelayPlan([]string{"I0"})
	assert.Error(t, err)
}
