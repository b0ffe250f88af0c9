// Package config loads YAML job documents and materializes them into
// spawn options.
package config

// JobConfig is the top-level job document.
type JobConfig struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   MetadataSpec `yaml:"metadata"`
	Spec       JobSpec      `yaml:"spec"`
}

// MetadataSpec defines metadata for the job.
type MetadataSpec struct {
	Name string `yaml:"name"`
}

// JobSpec describes the child process to run.
type JobSpec struct {
	// File is the executable; resolved through PATH when it contains no
	// slash.
	File string `yaml:"file"`
	// Args is the argv after the program name; defaults to none.
	Args []string `yaml:"args,omitempty"`
	// Env entries are appended to the inherited environment.
	Env []string `yaml:"env,omitempty"`
	Cwd string   `yaml:"cwd,omitempty"`

	// Timeout is a Go duration string ("5s"); empty or "0" arms no
	// kill timer.
	Timeout string `yaml:"timeout,omitempty"`
	// MaxBuffer caps captured output bytes; 0 is unbounded.
	MaxBuffer int64 `yaml:"maxBuffer,omitempty"`
	// KillSignal is a signal name; defaults to SIGTERM.
	KillSignal string `yaml:"killSignal,omitempty"`

	Detached bool `yaml:"detached,omitempty"`

	// Vars are template variables available to Args and Env entries as
	// {{.name}}.
	Vars map[string]string `yaml:"vars,omitempty"`

	// Stdio overrides the default plan (stdin pipe, stdout and stderr
	// capture pipes).
	Stdio []StdioSpec `yaml:"stdio,omitempty"`
}

// StdioSpec is one stdio slot of the job.
type StdioSpec struct {
	// Type is one of "ignore", "pipe" or "inherit".
	Type     string `yaml:"type"`
	Readable bool   `yaml:"readable,omitempty"`
	Writable bool   `yaml:"writable,omitempty"`
	// Input is written verbatim to a readable pipe; InputFile reads the
	// payload from disk instead. They are mutually exclusive.
	Input     string `yaml:"input,omitempty"`
	InputFile string `yaml:"inputFile,omitempty"`
	// FD is the parent descriptor an "inherit" slot duplicates.
	FD int `yaml:"fd,omitempty"`
}

const (
	// SupportedAPIVersion is the apiVersion this build understands.
	SupportedAPIVersion = "xmspawn.mensylisir.io/v1alpha1"
	// KindSpawnJob is the only supported document kind.
	KindSpawnJob = "SpawnJob"
)

const (
	StdioTypeIgnore  = "ignore"
	StdioTypePipe    = "pipe"
	StdioTypeInherit = "inherit"
)
