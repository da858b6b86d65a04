package sensor

// Availability is the derived reachability of a device.
type Availability int

const (
	// Online is the initial state.
	Online Availability = iota
	Offline
)

// Payload values published on the availability topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

func (a Availability) String() string {
	if a == Offline {
		return PayloadOffline
	}
	return PayloadOnline
}

// Tracker counts consecutive update failures for one device and reports the
// edges where it goes offline or comes back.
//
// Offline is reported once per failure streak, when the count reaches the
// threshold; Online is reported once, on the first success afterwards.
// A Tracker is not safe for concurrent use; the poller's sweep loop owns it.
type Tracker struct {
	threshold int
	failures  int
	state     Availability
}

// NewTracker returns an Online tracker. Thresholds below 1 are raised to 1.
func NewTracker(threshold int) *Tracker {
	if threshold < 1 {
		threshold = 1
	}
	return &Tracker{threshold: threshold}
}

// Failure records a failed update and returns true if the device has just
// gone offline.
func (t *Tracker) Failure() bool {
	t.failures++
	if t.state == Online && t.failures >= t.threshold {
		t.state = Offline
		return true
	}
	return false
}

// Success records a successful update and returns true if the device has
// just come back online.
func (t *Tracker) Success() bool {
	t.failures = 0
	if t.state == Offline {
		t.state = Online
		return true
	}
	return false
}

// State returns the current availability.
func (t *Tracker) State() Availability { return t.state }

// Failures returns the length of the current failure streak.
func (t *Tracker) Failures() int { return t.failures }
