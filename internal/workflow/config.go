package workflow

import (
	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/state"
	"github.com/amelia-orch/amelia/internal/tracker"
)

// Config bundles everything a node needs beyond the state itself: the
// profile driving policy decisions, one Driver per agent role, and the
// issue tracker reviewer_node and human_approval_node post comments to.
// A nil Tracker is treated as tracker.Noop so tests building a bare Config
// keep working without wiring one.
type Config struct {
	Profile state.Profile
	Drivers map[state.Role]driver.Driver
	Tracker tracker.Tracker
}

func (c Config) trackerOrNoop() tracker.Tracker {
	if c.Tracker == nil {
		return tracker.Noop{}
	}
	return c.Tracker
}

func (c Config) driverFor(role state.Role) (driver.Driver, error) {
	d, ok := c.Drivers[role]
	if !ok {
		return nil, &NodeError{Message: "no driver configured for role " + string(role)}
	}
	return d, nil
}

func (c Config) sessionFor(s State, role state.Role) state.DriverSession {
	return s.DriverSessions[role]
}
