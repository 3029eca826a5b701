package main

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/churro/internal/acidfs"
	"github.com/mesh-intelligence/churro/internal/config"
	"github.com/mesh-intelligence/churro/internal/paths"
	"github.com/mesh-intelligence/churro/pkg/churro"
	"github.com/mesh-intelligence/churro/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// errStorage marks failures of the repository itself rather than of the
// request.
var errStorage = errors.New("storage")

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, errStorage):
		return exitSysError
	}
	return exitUserError
}

// app holds the global flag values and the configuration resolved from
// them before any subcommand runs.
type app struct {
	configDir string
	repo      string
	head      string
	jsonMode  bool
	verbose   bool

	cfg types.Config
	log *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "churro",
		Short:         "Inspect and maintain churro repositories",
		Version:       churro.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.resolve(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.repo, "repo", "", "repository directory (default: $(CWD)/.churro-repo)")
	root.PersistentFlags().StringVar(&a.head, "head", "", "branch to read and commit to (default: HEAD)")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output as JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log storage activity")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newLsCmd(a),
		newShowCmd(a),
		newLogCmd(a),
		newBranchesCmd(a),
		newRmCmd(a),
	)
	return root
}

// resolve loads config.yaml and applies the flags over it. Precedence for
// the repository: --repo > config.yaml repo > CHURRO_REPO > default.
func (a *app) resolve(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := config.Load(configDir)
	if err != nil {
		return err
	}
	a.cfg = config.Repository(v)

	if a.cfg.Repo, err = paths.ResolveRepo(a.repo, a.cfg.Repo); err != nil {
		return fmt.Errorf("resolve repo: %w", err)
	}
	if a.head != "" {
		a.cfg.Head = a.head
	}

	a.log = log.New()
	a.log.SetOutput(cmd.ErrOrStderr())
	a.log.SetLevel(log.WarnLevel)
	if a.verbose {
		a.log.SetLevel(log.DebugLevel)
	}
	return nil
}

// openStore opens the configured repository. Only init creates one.
func (a *app) openStore(create bool) (*acidfs.Store, error) {
	cfg := a.cfg
	cfg.Create = create && cfg.Create
	store, err := acidfs.Open(cfg, acidfs.WithLogger(a.log))
	if err != nil {
		if errors.Is(err, types.ErrRepoNotFound) || errors.Is(err, types.ErrHeadInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", errStorage, err)
	}
	return store, nil
}

// headSnapshot returns a read-only view of the branch head, or nil for a
// branch without commits.
func headSnapshot(store *acidfs.Store) (types.Storage, error) {
	head, err := store.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errStorage, err)
	}
	if head == "" {
		return nil, nil
	}
	snap, err := store.Snapshot(head)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errStorage, err)
	}
	return snap, nil
}
