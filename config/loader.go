package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mensylisir/xmspawn/file"
	"github.com/mensylisir/xmspawn/spawn"
	"github.com/mensylisir/xmspawn/util"
)

// Loader handles loading and validation of a JobConfig from a file.
type Loader struct {
	filePath string
}

// NewLoader creates a job loader for the given file path.
func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

// Load reads the job file, unmarshals it, validates the structure and
// applies defaults.
func (l *Loader) Load() (*JobConfig, error) {
	if l.filePath == "" {
		return nil, errors.New("job file path is empty")
	}
	content, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read job file '%s'", l.filePath)
	}
	if len(content) == 0 {
		return nil, errors.Errorf("job file '%s' is empty", l.filePath)
	}

	var cfg JobConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal job YAML from '%s'", l.filePath)
	}

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrapf(err, "job validation failed for '%s'", l.filePath)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Validate checks the structural requirements of a job document.
func Validate(cfg *JobConfig) error {
	if cfg.APIVersion == "" {
		return errors.New("apiVersion is a required field")
	}
	if cfg.Kind != KindSpawnJob {
		return errors.Errorf("kind must be '%s', got '%s'", KindSpawnJob, cfg.Kind)
	}
	if cfg.Metadata.Name == "" {
		return errors.New("metadata.name is a required field")
	}
	if cfg.Spec.File == "" {
		return errors.New("spec.file is a required field")
	}
	if cfg.Spec.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Spec.Timeout); err != nil {
			return errors.Wrapf(err, "spec.timeout '%s' is not a duration", cfg.Spec.Timeout)
		} else if d < 0 {
			return errors.Errorf("spec.timeout '%s' is negative", cfg.Spec.Timeout)
		}
	}
	if cfg.Spec.MaxBuffer < 0 {
		return errors.Errorf("spec.maxBuffer %d is negative", cfg.Spec.MaxBuffer)
	}
	if cfg.Spec.KillSignal != "" && spawn.SignalNum(cfg.Spec.KillSignal) == 0 {
		return errors.Errorf("spec.killSignal '%s' is not a known signal", cfg.Spec.KillSignal)
	}
	for i, s := range cfg.Spec.Stdio {
		switch s.Type {
		case StdioTypeIgnore, StdioTypeInherit:
		case StdioTypePipe:
			if !s.Readable && !s.Writable {
				return errors.Errorf("spec.stdio[%d]: pipe must be readable or writable", i)
			}
			if s.Input != "" && s.InputFile != "" {
				return errors.Errorf("spec.stdio[%d]: input and inputFile are mutually exclusive", i)
			}
			if (s.Input != "" || s.InputFile != "") && !s.Readable {
				return errors.Errorf("spec.stdio[%d]: input on a non-readable pipe", i)
			}
		default:
			return errors.Errorf("spec.stdio[%d]: unknown type '%s'", i, s.Type)
		}
	}
	return nil
}

// ToOptions materializes the job into spawn options: template variables
// are rendered into args and env, the kill signal name is resolved, and
// stdio input payloads are loaded from disk where the job points at
// files. The executable path is used as-is; PATH resolution is the
// caller's concern.
func (cfg *JobConfig) ToOptions() (*spawn.Options, error) {
	vars := util.Data{}
	for k, v := range cfg.Spec.Vars {
		vars[k] = v
	}

	args, err := util.RenderStrings(cfg.Spec.Args, vars)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render args")
	}
	extraEnv, err := util.RenderStrings(cfg.Spec.Env, vars)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render env")
	}

	opts := &spawn.Options{
		File:     cfg.Spec.File,
		Args:     append([]string{cfg.Spec.File}, args...),
		CWD:      cfg.Spec.Cwd,
		Detached: cfg.Spec.Detached,
	}

	if len(extraEnv) > 0 {
		opts.Env = append(os.Environ(), extraEnv...)
	}

	if cfg.Spec.Timeout != "" {
		d, err := time.ParseDuration(cfg.Spec.Timeout)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse timeout")
		}
		opts.Timeout = d.Milliseconds()
	}

	opts.MaxBuffer = cfg.Spec.MaxBuffer

	sig := int64(spawn.SignalNum(cfg.Spec.KillSignal))
	if sig == 0 {
		return nil, errors.Errorf("unknown kill signal '%s'", cfg.Spec.KillSignal)
	}
	opts.KillSignal = &sig

	for i, s := range cfg.Spec.Stdio {
		switch s.Type {
		case StdioTypeIgnore:
			opts.Stdio = append(opts.Stdio, spawn.StdioOption{Type: spawn.StdioIgnore})
		case StdioTypePipe:
			var input []byte
			if s.Input != "" {
				input = []byte(s.Input)
			} else if s.InputFile != "" {
				input, err = file.ReadFile(s.InputFile)
				if err != nil {
					return nil, errors.Wrapf(err, "stdio[%d] input", i)
				}
			}
			opts.Stdio = append(opts.Stdio, spawn.StdioOption{
				Type:     spawn.StdioPipe,
				Readable: s.Readable,
				Writable: s.Writable,
				Input:    input,
			})
		case StdioTypeInherit:
			opts.Stdio = append(opts.Stdio, spawn.StdioOption{Type: spawn.StdioInherit, FD: s.FD})
		}
	}

	return opts, nil
}
