package power

import telemetry "benchlab-telemetry/internal/telemetry/domain"

// Correlator tracks the most recently observed total system power. It is
// owned by a single goroutine and holds no lock.
type Correlator struct {
	last  float64
	known bool
}

// NewCorrelator returns a correlator with no known power.
func NewCorrelator() *Correlator {
	return &Correlator{}
}

// Observe records the total carried by reading. Readings without power leave
// the state unchanged. It reports whether the state was updated.
func (c *Correlator) Observe(reading telemetry.PowerReading) bool {
	if reading.Kind == telemetry.PowerKindNone {
		return false
	}
	c.last = reading.TotalW
	c.known = true
	return true
}

// Last returns the latest total power and whether any has been seen.
func (c *Correlator) Last() (float64, bool) {
	return c.last, c.known
}

// LastPtr returns the latest total as a nullable value for sample stamping.
func (c *Correlator) LastPtr() *float64 {
	if !c.known {
		return nil
	}
	v := c.last
	return &v
}
