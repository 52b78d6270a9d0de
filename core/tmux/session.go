// Package tmux generates tmuxp session files that start every environment of
// a sweep side by side.
package tmux

import (
	"fmt"
	"strings"

	"github.com/josephlewis42/rlsweep/core/sweep"
	"sigs.k8s.io/yaml"
)

// Options tweak the generated session.
type Options struct {
	// StartDirectory is where tmuxp starts every pane, normally the trainer
	// checkout.
	StartDirectory string
	// Seed selects which seed's command each pane runs. Nil picks the first
	// seed of the sweep.
	Seed *int
}

const sessionPrefix = "run-all-"

// Session mirrors the subset of the tmuxp schema the generator emits.
type Session struct {
	SessionName    string   `json:"session_name"`
	StartDirectory string   `json:"start_directory,omitempty"`
	Windows        []Window `json:"windows"`
}

type Window struct {
	WindowName string   `json:"window_name"`
	Layout     string   `json:"layout"`
	Panes      []string `json:"panes"`
}

// NewSession lays out one trainer pane per environment, each followed by a
// tensorboard pane when the sweep has a tensorboard log directory.
func NewSession(plan *sweep.Plan, opts Options) (*Session, error) {
	s := plan.Sweep()

	seed := s.SeedStart
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	window := Window{
		WindowName: s.Algorithm,
		Layout:     "tiled",
	}

	tensorboard := ""
	if dir := plan.TensorboardLogDir(); dir != "" {
		tensorboard = "tensorboard --logdir=" + sweep.JoinArgs([]string{dir})
	}

	for _, run := range plan.Runs {
		if run.Seed != seed {
			continue
		}
		window.Panes = append(window.Panes, plan.CommandLine(run))
		if tensorboard != "" {
			window.Panes = append(window.Panes, tensorboard)
		}
	}

	if len(window.Panes) == 0 {
		return nil, fmt.Errorf("seed %d isn't part of sweep %q", seed, s.Name)
	}

	return &Session{
		SessionName:    sessionPrefix + s.Algorithm,
		StartDirectory: opts.StartDirectory,
		Windows:        []Window{window},
	}, nil
}

// FileName is the conventional name of the session file, run_all_<alg>.yaml.
func (s *Session) FileName() string {
	return "run_all_" + strings.TrimPrefix(s.SessionName, sessionPrefix) + ".yaml"
}

// Marshal renders the session as tmuxp YAML.
func (s *Session) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
