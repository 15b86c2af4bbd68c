// Package commands implements the batchctl CLI surface (§6): one file per
// subcommand, a shared App context built in PersistentPreRun, following a
// cmd/kubectl-frisbee/commands layout (PopulateXFlags + NewXCmd pairs,
// cmd.AddCommand composition).
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kubeshop/testkube/pkg/ui"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pennlinc/batchctl/internal/config"
	"github.com/pennlinc/batchctl/internal/core"
	"github.com/pennlinc/batchctl/internal/inclusion"
	"github.com/pennlinc/batchctl/internal/ledger"
	"github.com/pennlinc/batchctl/internal/obslog"
	"github.com/pennlinc/batchctl/internal/scheduler"
	"github.com/pennlinc/batchctl/internal/scheduler/slurm"
	"github.com/pennlinc/batchctl/internal/store"
	"github.com/pennlinc/batchctl/internal/store/git"
)

// Project-root-relative file layout. Fixed by convention, not configurable:
// every command that takes a project root finds these same paths under it.
const (
	configFilename    = "batchctl.yaml"
	ledgerFilename    = "ledger.csv"
	inclusionFilename = "inclusion_list.csv"
	templateFilename  = "submission_template.sh.tmpl"
	logDirname        = "logs"
)

// verbose is set by the persistent --verbose flag and consulted by
// PersistentPreRun, a package-level var threaded into ui.SetVerbose.
var verbose bool

// App bundles everything a subcommand needs after loading the project at
// Root: the realized configuration, the two backend adapters, and a logger.
// Built once per invocation by loadApp.
type App struct {
	Root string
	Cfg  *config.Project

	Logger    obslog.Logger
	Scheduler scheduler.Adapter
	Store     store.Adapter

	LedgerPath    string
	InclusionPath string
	TemplatePath  string
	LogDir        string
}

func (a *App) mode() core.Mode { return a.Cfg.Mode() }

// loadApp reads the project configuration at root and wires the concrete
// Slurm and git adapters named by the config, following env.Settings'
// lazy-client-construction idiom in cmd/kubectl-frisbee/env.
func loadApp(root string) (*App, error) {
	cfgPath := filepath.Join(root, configFilename)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := obslog.New()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}

	logEntry := logrus.NewEntry(logrus.StandardLogger())

	schedAdapter := slurm.New(slurm.Config{
		ArrayThreshold: cfg.SubmitArrayThreshold,
		RenderOptions: scheduler.RenderOptions{
			JobComputeDir:  cfg.JobComputeSpace,
			TemplateAssets: filepath.Join(root, "assets"),
			LicenseFile:    filepath.Join(root, "license.txt"),
		},
		WorkDir: filepath.Join(root, ".batchctl-scripts"),
	}, logEntry)

	storeAdapter := git.New(git.Config{
		RepoDir:        root,
		RemoteName:     "origin",
		MainlineBranch: "main",
		BranchPrefix:   "job-",
	})

	return &App{
		Root:          root,
		Cfg:           cfg,
		Logger:        logger,
		Scheduler:     schedAdapter,
		Store:         storeAdapter,
		LedgerPath:    filepath.Join(root, ledgerFilename),
		InclusionPath: filepath.Join(root, inclusionFilename),
		TemplatePath:  filepath.Join(root, templateFilename),
		LogDir:        filepath.Join(root, logDirname),
	}, nil
}

// loadLedgerAndInclusion reads both the persisted Inclusion List and the
// Job Ledger for root, the pair every control command operates on.
func (a *App) loadLedgerAndInclusion() ([]core.ProcessingUnit, *ledger.Ledger, error) {
	list, _, err := inclusion.LoadList(a.InclusionPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading inclusion list")
	}

	led, err := ledger.Load(a.LedgerPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading ledger")
	}

	return list, led, nil
}

// exitWith maps err to the §6 exit-code table and terminates the process.
// Unlike ui.ExitOnError (which always exits 1), every non-nil error here
// carries its own code so callers honor the ConfigError/cluster-IO/partial-
// success distinction.
func exitWith(hint string, err error) {
	if err == nil {
		return
	}
	code := core.ClassifyError(err)
	fmt.Fprintln(os.Stderr, errors.Wrap(err, hint))
	os.Exit(int(code))
}

// warnAll prints every accumulated ConsistencyWarning without aborting, used
// by status/submit/merge after a call that partially succeeded.
func warnAll(warnings []*core.ConsistencyWarning) {
	for _, w := range warnings {
		ui.Info("consistency warning:", w.Error())
	}
}
