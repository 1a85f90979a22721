package provision

// Phase identifies one step of a provisioning run. Phases execute strictly
// in declaration order; each depends on state its predecessors resolved.
type Phase uint8

const (
	PhaseValidate Phase = iota + 1
	PhaseNetworkSetup
	PhaseHardwareSetup
	PhaseBaseInstall
	PhaseRoleSetup
	PhaseConfigGeneration
	PhaseStorageInit
	PhaseStateInit
	PhaseSupervision
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhaseValidate:
		return "validate"
	case PhaseNetworkSetup:
		return "network-setup"
	case PhaseHardwareSetup:
		return "hardware-setup"
	case PhaseBaseInstall:
		return "base-install"
	case PhaseRoleSetup:
		return "role-setup"
	case PhaseConfigGeneration:
		return "config-generation"
	case PhaseStorageInit:
		return "storage-init"
	case PhaseStateInit:
		return "state-init"
	case PhaseSupervision:
		return "supervision"
	case PhaseFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Step is one planned phase: whether it will run, and why not when it
// won't.
type Step struct {
	Phase      Phase
	Skip       bool
	SkipReason string
}
