// Package zones talks to the Solaris Zones framework on the host. It
// normalizes native zone states, enforces legal lifecycle transitions, and
// provides a Manager for performing zone operations either through the
// zonecfg(1M)/zoneadm(1M) utilities or an in-memory stub.
package zones

import "fmt"

// State is a native zone state as reported by zoneadm(1M). The values match
// the strings returned by the libzonecfg zone_state_str() function.
type State string

// Native zone states
const (
	StateConfigured   State = "configured"
	StateIncomplete   State = "incomplete"
	StateUnavailable  State = "unavailable"
	StateInstalled    State = "installed"
	StateReady        State = "ready"
	StateRunning      State = "running"
	StateShuttingDown State = "shutting_down"
	StateDown         State = "down"
	StateMounted      State = "mounted"
)

var allStates = map[State]struct{}{
	StateConfigured:   {},
	StateIncomplete:   {},
	StateUnavailable:  {},
	StateInstalled:    {},
	StateReady:        {},
	StateRunning:      {},
	StateShuttingDown: {},
	StateDown:         {},
	StateMounted:      {},
}

// ParseState validates a native zone state string.
func ParseState(s string) (State, error) {
	state := State(s)
	if _, ok := allStates[state]; !ok {
		return "", fmt.Errorf("unknown zone state %q", s)
	}
	return state, nil
}

// PowerState is the normalized lifecycle state reported to the
// orchestrator.
type PowerState int

// Normalized power states
const (
	PowerNoState PowerState = iota
	PowerRunning
	PowerShutdown
	PowerSuspended
	PowerCrashed
)

func (p PowerState) String() string {
	switch p {
	case PowerRunning:
		return "running"
	case PowerShutdown:
		return "shutdown"
	case PowerSuspended:
		return "suspended"
	case PowerCrashed:
		return "crashed"
	}
	return "nostate"
}

// powerStates maps each native zone state to the power state reported
// upstream. A zone that is ready, shutting down, or down still holds host
// resources, so those all report as running.
var powerStates = map[State]PowerState{
	StateConfigured:   PowerNoState,
	StateIncomplete:   PowerNoState,
	StateUnavailable:  PowerNoState,
	StateInstalled:    PowerShutdown,
	StateReady:        PowerRunning,
	StateRunning:      PowerRunning,
	StateShuttingDown: PowerRunning,
	StateDown:         PowerRunning,
	StateMounted:      PowerNoState,
}

// Power returns the normalized power state for a native zone state.
func (s State) Power() PowerState {
	return powerStates[s]
}

// Brand is a zone brand as defined in brands(5).
type Brand string

// Supported zone brands
const (
	BrandSolaris   Brand = "solaris"
	BrandSolarisKZ Brand = "solaris-kz"
)

// brandTemplates maps supported brands to their zonecfg template.
var brandTemplates = map[Brand]string{
	BrandSolaris:   "SYSdefault",
	BrandSolarisKZ: "SYSsolaris-kz",
}

// Template returns the zonecfg template for the brand.
func (b Brand) Template() (string, error) {
	t, ok := brandTemplates[b]
	if !ok {
		return "", fmt.Errorf("unsupported zone brand %q", b)
	}
	return t, nil
}

// Valid reports whether the brand is one this driver can manage.
func (b Brand) Valid() bool {
	_, ok := brandTemplates[b]
	return ok
}

// Zone is a single zone as known to the host framework.
type Zone struct {
	Name   string `json:"name"`
	Brand  Brand  `json:"brand"`
	State  State  `json:"state"`
	Path   string `json:"path"`
	UUID   string `json:"uuid"`
	IPType string `json:"ip_type"`
}
