// Package sweep enumerates the training runs of a sweep and builds the
// command line the trainer is invoked with for each of them.
package sweep

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/josephlewis42/rlsweep/core/config"
)

var (
	ErrNoEnvironments = errors.New("sweep has no environments")
	ErrBadSeedRange   = errors.New("seed_end is before seed_start")
	ErrNoEntryPoint   = errors.New("sweep has no entry point")
)

// Flags passed to the trainer.
const (
	FlagEnvID     = "--env_id"
	FlagMaxIter   = "--max_iter"
	FlagModelPath = "--model_path"
	FlagSeed      = "--seed"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Run is a single invocation of the trainer.
type Run struct {
	// Index is the position of the run in the full sweep.
	Index     int    `json:"index"`
	Algorithm string `json:"algorithm"`
	EnvID     string `json:"env_id"`
	Seed      int    `json:"seed"`
	MaxIter   int    `json:"max_iter"`
	ModelPath string `json:"model_path"`
}

// Args returns the trainer flags for the run.
func (r Run) Args() []string {
	return []string{
		FlagEnvID, r.EnvID,
		FlagMaxIter, strconv.Itoa(r.MaxIter),
		FlagModelPath, r.ModelPath,
		FlagSeed, strconv.Itoa(r.Seed),
	}
}

// Name is a file-safe identifier for the run.
func (r Run) Name() string {
	raw := fmt.Sprintf("%s_%s_seed%d", r.Algorithm, r.EnvID, r.Seed)
	return unsafeNameChars.ReplaceAllString(raw, "_")
}

func (r Run) String() string {
	return fmt.Sprintf("%s on %s with seed %d", r.Algorithm, r.EnvID, r.Seed)
}

// Plan is the ordered list of runs in a sweep.
type Plan struct {
	sweep      config.Sweep
	entryPoint []string

	Runs []Run
}

// NewPlan enumerates the runs of the sweep, seeds in the outer loop and
// environments in the inner loop.
func NewPlan(s config.Sweep) (*Plan, error) {
	if len(s.Envs) == 0 {
		return nil, ErrNoEnvironments
	}
	if s.SeedEnd < s.SeedStart {
		return nil, fmt.Errorf("%w: %d < %d", ErrBadSeedRange, s.SeedEnd, s.SeedStart)
	}

	entryPoint, err := shlex.Split(s.EntryPoint, true)
	if err != nil {
		return nil, fmt.Errorf("parsing entry_point: %w", err)
	}
	if len(entryPoint) == 0 {
		return nil, ErrNoEntryPoint
	}

	plan := &Plan{
		sweep:      s,
		entryPoint: entryPoint,
	}

	modelPath := expand(s.ModelPath, map[string]string{varAlgorithm: s.Algorithm})
	if s.AppendAlgorithm {
		modelPath = strings.TrimRight(modelPath, "/") + "/" + s.Algorithm
	}

	for seed := s.SeedStart; seed <= s.SeedEnd; seed++ {
		for _, env := range s.Envs {
			plan.Runs = append(plan.Runs, Run{
				Index:     len(plan.Runs),
				Algorithm: s.Algorithm,
				EnvID:     env,
				Seed:      seed,
				MaxIter:   s.MaxIter,
				ModelPath: modelPath,
			})
		}
	}

	return plan, nil
}

// Sweep returns the definition the plan was built from.
func (p *Plan) Sweep() config.Sweep {
	return p.sweep
}

// Len returns the number of runs in the plan.
func (p *Plan) Len() int {
	return len(p.Runs)
}

// Command returns the argv of the trainer for the given run.
func (p *Plan) Command(r Run) []string {
	vars := r.vars()

	var out []string
	for _, tok := range p.entryPoint {
		out = append(out, expand(tok, vars))
	}
	out = append(out, r.Args()...)
	for _, tok := range p.sweep.ExtraArgs {
		out = append(out, expand(tok, vars))
	}
	return out
}

// CommandLine renders Command as a string that can be pasted into a shell.
func (p *Plan) CommandLine(r Run) string {
	return JoinArgs(p.Command(r))
}

// TensorboardLogDir returns the expanded tensorboard log directory.
func (p *Plan) TensorboardLogDir() string {
	return expand(p.sweep.TensorboardLogDir, map[string]string{varAlgorithm: p.sweep.Algorithm})
}

// Filter returns a plan restricted to the given environments and seeds.
// Empty filters match everything. Run indices are preserved.
func (p *Plan) Filter(envs []string, seeds []int) (*Plan, error) {
	envSet := make(map[string]bool)
	for _, env := range envs {
		if !contains(p.sweep.Envs, env) {
			return nil, fmt.Errorf("environment %q isn't part of sweep %q", env, p.sweep.Name)
		}
		envSet[env] = true
	}

	seedSet := make(map[int]bool)
	for _, seed := range seeds {
		if seed < p.sweep.SeedStart || seed > p.sweep.SeedEnd {
			return nil, fmt.Errorf("seed %d is outside of [%d, %d]", seed, p.sweep.SeedStart, p.sweep.SeedEnd)
		}
		seedSet[seed] = true
	}

	filtered := &Plan{
		sweep:      p.sweep,
		entryPoint: p.entryPoint,
	}
	for _, r := range p.Runs {
		if len(envSet) > 0 && !envSet[r.EnvID] {
			continue
		}
		if len(seedSet) > 0 && !seedSet[r.Seed] {
			continue
		}
		filtered.Runs = append(filtered.Runs, r)
	}
	return filtered, nil
}

// Key is a stable identifier of the sweep definition. Two plans share a key
// only if they would launch the same commands.
func (p *Plan) Key() string {
	definition, err := json.Marshal(p.sweep)
	if err != nil {
		// Sweep only holds strings, ints and maps of strings.
		panic(err)
	}
	sum := sha256.Sum256(definition)
	return hex.EncodeToString(sum[:8])
}

const (
	varAlgorithm = "ALGORITHM"
	varEnvID     = "ENV_ID"
	varSeed      = "SEED"
	varMaxIter   = "MAX_ITER"
	varModelPath = "MODEL_PATH"
)

func (r Run) vars() map[string]string {
	return map[string]string{
		varAlgorithm: r.Algorithm,
		varEnvID:     r.EnvID,
		varSeed:      strconv.Itoa(r.Seed),
		varMaxIter:   strconv.Itoa(r.MaxIter),
		varModelPath: r.ModelPath,
	}
}

// expand replaces $VAR and ${VAR} references, falling back to the process
// environment for names that aren't sweep variables.
func expand(s string, vars map[string]string) string {
	return os.Expand(s, func(name string) string {
		if v, ok := vars[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
