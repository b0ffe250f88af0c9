package config

// DefaultKillSignal is applied when a job names no kill signal.
const DefaultKillSignal = "SIGTERM"

// ApplyDefaults fills in the parts of a job a user may omit: the kill
// signal and the standard three-slot stdio plan (stdin pipe, stdout and
// stderr capture pipes).
func ApplyDefaults(cfg *JobConfig) {
	if cfg.Spec.KillSignal == "" {
		cfg.Spec.KillSignal = DefaultKillSignal
	}
	if len(cfg.Spec.Stdio) == 0 {
		cfg.Spec.Stdio = []StdioSpec{
			{Type: StdioTypePipe, Readable: true},
			{Type: StdioTypePipe, Writable: true},
			{Type: StdioTypePipe, Writable: true},
		}
	}
}
