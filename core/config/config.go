package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	RunLogsDirName    = "run_logs"
	AppLogName        = "app.log"
	DatabaseName      = "runs.db"
)

// Values accepted by Execution.Color.
const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	configFs         afero.Fs
	configurationDir string

	Sweep     Sweep     `json:"sweep"`
	Execution Execution `json:"execution"`
}

// Sweep describes the cross product of environments and seeds handed to the
// trainer.
type Sweep struct {
	Name      string `json:"name" validate:"required"`
	Algorithm string `json:"algorithm" validate:"required,excludesall=/\\"`
	// EntryPoint is the trainer command, ${ALGORITHM}, ${ENV_ID} and ${SEED}
	// are substituted per run.
	EntryPoint string   `json:"entry_point" validate:"required"`
	Envs       []string `json:"envs" validate:"min=1,unique,dive,required"`
	SeedStart  int      `json:"seed_start" validate:"gte=0"`
	SeedEnd    int      `json:"seed_end" validate:"gtefield=SeedStart"`
	MaxIter    int      `json:"max_iter" validate:"gt=0"`
	ModelPath  string   `json:"model_path" validate:"required"`
	// AppendAlgorithm namespaces ModelPath with the algorithm name.
	AppendAlgorithm bool     `json:"append_algorithm"`
	ExtraArgs       []string `json:"extra_args"`

	WorkDir string            `json:"work_dir"`
	Env     map[string]string `json:"env"`
	EnvFile string            `json:"env_file"`
	// TensorboardLogDir is only used when generating tmux sessions.
	TensorboardLogDir string `json:"tensorboard_log_dir"`
}

// Execution controls how runs are launched.
type Execution struct {
	Parallelism    int      `json:"parallelism" validate:"gte=1"`
	Timeout        Duration `json:"timeout" validate:"gte=0"`
	Retries        int      `json:"retries" validate:"gte=0"`
	StopOnFailure  bool     `json:"stop_on_failure"`
	LaunchInterval Duration `json:"launch_interval" validate:"gte=0"`
	SampleInterval Duration `json:"sample_interval" validate:"gte=0"`
	Color          string   `json:"color" validate:"oneof=always auto never"`
}

func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	return validate
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	return newValidator().Struct(c)
}

// Validate the sweep on its own, used for presets.
func (s *Sweep) Validate() error {
	return newValidator().Struct(s)
}

// NumSeeds returns the number of seeds in the inclusive seed range.
func (s *Sweep) NumSeeds() int {
	if s.SeedEnd < s.SeedStart {
		return 0
	}
	return s.SeedEnd - s.SeedStart + 1
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// Dir returns the directory the configuration was loaded from.
func (c *Configuration) Dir() string {
	return c.configurationDir
}

// CreateRunLog creates the file capturing the trainer output of a run.
func (c *Configuration) CreateRunLog(name string) (afero.File, error) {
	if err := c.fs().MkdirAll(RunLogsDirName, 0700); err != nil {
		return nil, err
	}
	toCreate := filepath.Join(RunLogsDirName, name)
	return c.fs().Create(toCreate)
}

// RunLogPath returns the on-disk path of a run log, relative to Dir().
func (c *Configuration) RunLogPath(name string) string {
	return filepath.Join(RunLogsDirName, name)
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_RDONLY, 0600)
}

// DatabasePath is the location of the run history database.
func (c *Configuration) DatabasePath() string {
	return filepath.Join(c.configurationDir, DatabaseName)
}

// TrainerEnviron returns the environment the trainer is started with: the
// current process environment, then the env_file, then the env map.
func (c *Configuration) TrainerEnviron() ([]string, error) {
	environ := os.Environ()

	if c.Sweep.EnvFile != "" {
		fd, err := c.fs().Open(c.Sweep.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("opening env_file: %w", err)
		}
		defer fd.Close()

		fromFile, err := godotenv.Parse(fd)
		if err != nil {
			return nil, fmt.Errorf("parsing env_file %q: %w", c.Sweep.EnvFile, err)
		}
		environ = append(environ, sortedEnv(fromFile)...)
	}

	return append(environ, sortedEnv(c.Sweep.Env)...), nil
}

func sortedEnv(vars map[string]string) []string {
	var out []string
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
