package zones

import "fmt"

// Op is a lifecycle operation on a zone.
type Op string

// Lifecycle operations
const (
	OpConfigure   Op = "configure"
	OpInstall     Op = "install"
	OpAttach      Op = "attach"
	OpDetach      Op = "detach"
	OpBoot        Op = "boot"
	OpShutdown    Op = "shutdown"
	OpHalt        Op = "halt"
	OpReboot      Op = "reboot"
	OpSuspend     Op = "suspend"
	OpUninstall   Op = "uninstall"
	OpUnconfigure Op = "unconfigure"
	OpMigrate     Op = "migrate"
)

type transition struct {
	from   map[State]struct{}
	target State
}

func states(ss ...State) map[State]struct{} {
	m := make(map[State]struct{}, len(ss))
	for _, s := range ss {
		m[s] = struct{}{}
	}
	return m
}

// transitions is the legal transition table. An operation is allowed when
// the zone is in one of the from states; it is a no-op when the zone is
// already in the target state.
var transitions = map[Op]transition{
	OpInstall:     {states(StateConfigured), StateInstalled},
	OpAttach:      {states(StateConfigured, StateUnavailable), StateInstalled},
	OpDetach:      {states(StateInstalled), StateConfigured},
	OpBoot:        {states(StateInstalled, StateReady), StateRunning},
	OpShutdown:    {states(StateRunning, StateShuttingDown), StateInstalled},
	OpHalt:        {states(StateRunning, StateReady, StateShuttingDown, StateDown, StateMounted), StateInstalled},
	OpReboot:      {states(StateRunning), StateRunning},
	OpSuspend:     {states(StateRunning), StateInstalled},
	OpUninstall:   {states(StateInstalled, StateIncomplete, StateUnavailable), StateConfigured},
	// unconfigure removes the zone entirely; there is no target state
	OpUnconfigure: {states(StateConfigured, StateIncomplete, StateUnavailable), ""},
	OpMigrate:     {states(StateRunning), StateRunning},
}

// ErrInvalidTransition is returned when an operation is not legal from the
// zone's current state.
type ErrInvalidTransition struct {
	Op    Op
	State State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s zone in state %s", e.Op, e.State)
}

// Target returns the state a successful operation leaves the zone in.
func (op Op) Target() State {
	return transitions[op].target
}

// ValidFrom reports whether the operation is legal from the given state.
func (op Op) ValidFrom(s State) bool {
	t, ok := transitions[op]
	if !ok {
		return false
	}
	_, ok = t.from[s]
	return ok
}

// Satisfied reports whether the zone is already in the operation's target
// state, in which case retrying the operation is an idempotent no-op.
// Reboot and migrate are never satisfied; repeating them does real work.
func (op Op) Satisfied(s State) bool {
	switch op {
	case OpReboot, OpMigrate:
		return false
	}
	t, ok := transitions[op]
	return ok && t.target == s
}

// Guard validates an operation against the current state. It returns nil
// when the operation is legal or already satisfied; callers should check
// Satisfied to skip the work in the latter case.
func Guard(op Op, s State) error {
	if op.ValidFrom(s) || op.Satisfied(s) {
		return nil
	}
	return ErrInvalidTransition{Op: op, State: s}
}
