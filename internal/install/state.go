package install

// State is the install workflow state.
type State int

// Workflow states. Installing, Uninstalling and Launching are transitional and reject other operations.
const (
	StateIdle State = iota
	StateDownloading
	StateInstalling
	StateInstalled
	StateRunning
	StateUninstalling
	StateLaunching
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateDownloading:  "downloading",
	StateInstalling:   "installing",
	StateInstalled:    "installed",
	StateRunning:      "running",
	StateUninstalling: "uninstalling",
	StateLaunching:    "launching",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// busy reports a transitional state.
func (s State) busy() bool {
	return s == StateDownloading || s == StateInstalling || s == StateUninstalling || s == StateLaunching
}
