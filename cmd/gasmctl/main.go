package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"gasm/internal/logging"
	"gasm/internal/stats"
	"gasm/internal/storage"
	"gasm/internal/vm"
	"gasm/pkg/gasm"
)

const (
	defaultStoreKind = "badger"
	defaultStorePath = "gasm-runs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

type globalFlags struct {
	logLevel  string
	logFormat string
	storeKind string
	storePath string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "gasmctl",
		Short:         "Evolve and inspect accumulator machine programs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.StringVar(&g.logFormat, "log-format", "text", "log format: text|json")
	pf.StringVar(&g.storeKind, "store", defaultStoreKind, "run store: memory|badger|sqlite|none")
	pf.StringVar(&g.storePath, "store-path", defaultStorePath, "badger directory or sqlite database file")

	root.AddCommand(
		newEvolveCmd(g),
		newResumeCmd(g),
		newRunCmd(g),
		newDisasmCmd(),
		newAsmCmd(),
		newHistoryCmd(),
		newRunsCmd(g),
		newShowCmd(g),
	)
	return root
}

func (g *globalFlags) logger(cmd *cobra.Command) (*slog.Logger, error) {
	return logging.New(cmd.ErrOrStderr(), g.logLevel, g.logFormat)
}

func (g *globalFlags) store() string {
	if g.storeKind == "none" {
		return ""
	}
	return g.storeKind
}

func (g *globalFlags) openStore(ctx context.Context) (storage.Store, error) {
	kind := g.store()
	if kind == "" {
		return nil, errors.New("this command needs a run store; drop --store=none")
	}
	store, err := storage.NewStore(kind, g.storePath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// outputFlags are shared by the commands that finish a run.
type outputFlags struct {
	save             string
	artifacts        string
	metricsFile      string
	checkpointFormat string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.save, "save", "", "write the resumable snapshot to this path (.json or .cbor)")
	f.StringVar(&o.artifacts, "artifacts", "", "write config, history and best program under this directory")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	f.StringVar(&o.checkpointFormat, "checkpoint-format", "json", "periodic checkpoint encoding: json|cbor")
}

func (o *outputFlags) options(cmd *cobra.Command, g *globalFlags) (gasm.Options, *prometheus.Registry, error) {
	logger, err := g.logger(cmd)
	if err != nil {
		return gasm.Options{}, nil, err
	}
	opts := gasm.Options{
		Logger:           logger,
		StoreKind:        g.store(),
		StorePath:        g.storePath,
		CheckpointFormat: o.checkpointFormat,
	}
	var reg *prometheus.Registry
	if o.metricsFile != "" {
		reg = prometheus.NewRegistry()
		opts.Registerer = reg
	}
	return opts, reg, nil
}

// finish persists what the run produced and prints the summary. It runs
// after cancellation too, so an interrupted run can be resumed.
func (o *outputFlags) finish(cmd *cobra.Command, engine *gasm.Engine, reg *prometheus.Registry) error {
	if o.save != "" {
		if err := engine.Save(o.save); err != nil {
			return err
		}
	}
	if o.artifacts != "" {
		if _, err := engine.WriteArtifacts(o.artifacts); err != nil {
			return err
		}
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(o.metricsFile, reg); err != nil {
			return err
		}
	}
	printSummary(cmd.OutOrStdout(), engine)
	return nil
}

func printSummary(w io.Writer, engine *gasm.Engine) {
	history := engine.History()
	if len(history) == 0 {
		fmt.Fprintln(w, "no generations recorded")
		return
	}
	last := history[len(history)-1]
	fmt.Fprintf(w, "run_id=%s generation=%d best_fitness=%g avg_fitness=%g avg_size=%.2f\n",
		engine.RunID(),
		last.Generation,
		float64(last.BestFitness),
		float64(last.AvgFitness),
		last.AvgSize,
	)
	fmt.Fprintln(w, last.Best.Text)
}

// keepGoing reports whether a failed Evolve still left a run worth saving.
func keepGoing(err error, engine *gasm.Engine) bool {
	if err == nil {
		return true
	}
	if len(engine.History()) == 0 {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, gasm.ErrSnapshotIO)
}

func newEvolveCmd(g *globalFlags) *cobra.Command {
	var (
		configPath string
		dataPath   string
		targets    int
		out        outputFlags
	)
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Start a new run against a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadOrDefaultConfig(configPath)
			if err != nil {
				return err
			}
			cfg, err = overrideFromFlags(cmd, cfg)
			if err != nil {
				return err
			}
			data, err := loadDataset(dataPath, targets)
			if err != nil {
				return err
			}
			opts, reg, err := out.options(cmd, g)
			if err != nil {
				return err
			}

			engine, err := gasm.New(cfg, opts)
			if err != nil {
				return err
			}
			defer engine.Close()

			evolveErr := engine.Evolve(cmd.Context(), data)
			if !keepGoing(evolveErr, engine) {
				return evolveErr
			}
			if err := out.finish(cmd, engine, reg); err != nil {
				return err
			}
			return evolveErr
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "run configuration file (.json, .yaml or .toml)")
	f.StringVar(&dataPath, "data", "", "dataset file (.json, .yaml or .csv)")
	f.IntVar(&targets, "targets", 1, "trailing target columns in a CSV dataset")
	f.Int("population", 0, "population size")
	f.Int("max-size", 0, "maximum program length")
	f.Int("generations", 0, "generations to breed")
	f.Int("workers", 0, "evaluation workers (0 = all CPUs)")
	f.Int("elite", 0, "elites copied into each generation")
	f.Int("checkpoint-interval", 0, "generations between checkpoints (0 disables)")
	f.Uint64("seed", 0, "random seed")
	f.Float64("goal", 0, "goal fitness")
	f.String("output", "", "checkpoint directory")
	f.String("selection", "", "selection strategy, Name or Name:param")
	out.register(cmd)
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newResumeCmd(g *globalFlags) *cobra.Command {
	var (
		runID    string
		dataPath string
		targets  int
		out      outputFlags
	)
	cmd := &cobra.Command{
		Use:   "resume [snapshot]",
		Short: "Continue a run from a snapshot file or the run store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (runID == "") {
				return errors.New("resume requires exactly one of a snapshot path or --run-id")
			}
			data, err := loadDataset(dataPath, targets)
			if err != nil {
				return err
			}
			opts, reg, err := out.options(cmd, g)
			if err != nil {
				return err
			}

			var engine *gasm.Engine
			if len(args) == 1 {
				engine, err = gasm.Load(args[0], opts)
				if out.save == "" {
					out.save = args[0]
				}
			} else {
				engine, err = gasm.LoadRun(cmd.Context(), runID, opts)
			}
			if err != nil {
				return err
			}
			defer engine.Close()

			cfg, err := overrideFromFlags(cmd, engine.Config())
			if err != nil {
				return err
			}
			if err := engine.Configure(cfg); err != nil {
				return err
			}

			evolveErr := engine.Evolve(cmd.Context(), data)
			if !keepGoing(evolveErr, engine) {
				return evolveErr
			}
			if err := out.finish(cmd, engine, reg); err != nil {
				return err
			}
			return evolveErr
		},
	}
	f := cmd.Flags()
	f.StringVar(&runID, "run-id", "", "resume this run from the store")
	f.StringVar(&dataPath, "data", "", "dataset file (.json, .yaml or .csv)")
	f.IntVar(&targets, "targets", 1, "trailing target columns in a CSV dataset")
	f.Int("generations", 0, "further generations to breed")
	f.Int("workers", 0, "evaluation workers (0 = all CPUs)")
	f.Int("checkpoint-interval", 0, "generations between checkpoints (0 disables)")
	f.String("output", "", "checkpoint directory")
	out.register(cmd)
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		index    int
		input    string
		dataPath string
		targets  int
	)
	cmd := &cobra.Command{
		Use:   "run <snapshot>",
		Short: "Execute an individual from a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := g.logger(cmd)
			if err != nil {
				return err
			}
			engine, err := gasm.Load(args[0], gasm.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer engine.Close()

			if index < 0 {
				index = engine.BestIndex()
				if index < 0 {
					return fmt.Errorf("%w: snapshot has no evaluated individual", gasm.ErrInvariant)
				}
			}

			w := cmd.OutOrStdout()
			if dataPath != "" {
				data, err := loadDataset(dataPath, targets)
				if err != nil {
					return err
				}
				results, err := engine.RunAll(cmd.Context(), index, data.Inputs)
				if err != nil {
					return err
				}
				for i, res := range results {
					fmt.Fprintf(w, "row=%d %s\n", i, formatResult(res))
				}
				return nil
			}

			vec, err := parseVector(input)
			if err != nil {
				return err
			}
			res, err := engine.Run(index, vec)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, formatResult(res))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&index, "index", -1, "population index (-1 = best)")
	f.StringVar(&input, "input", "", "comma separated input registers")
	f.StringVar(&dataPath, "data", "", "run every input row of this dataset instead")
	f.IntVar(&targets, "targets", 1, "trailing target columns in a CSV dataset")
	return cmd
}

func formatResult(res gasm.ExecutionResult) string {
	regs := make([]string, len(res.Registers))
	for i, v := range res.Registers {
		regs[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprintf("registers=[%s] steps=%d halted=%t exhausted=%t",
		strings.Join(regs, ","), res.Steps, res.Halted, res.Exhausted)
}

func newDisasmCmd() *cobra.Command {
	var literals string
	cmd := &cobra.Command{
		Use:   "disasm <code>",
		Short: "Print the listing of an encoded program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lits, err := parseVector(literals)
			if err != nil {
				return err
			}
			prog, err := vm.DecodeASCII(args[0], lits)
			if err != nil {
				return err
			}
			if len(prog) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), prog.Disassemble())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&literals, "literals", "", "comma separated literals of SET and RNG instructions")
	return cmd
}

func newAsmCmd() *cobra.Command {
	var packed bool
	cmd := &cobra.Command{
		Use:   "asm [file]",
		Short: "Encode a program listing (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				src []byte
				err error
			)
			if len(args) == 1 && args[0] != "-" {
				src, err = os.ReadFile(args[0])
			} else {
				src, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			prog, err := vm.Assemble(string(src))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			code, lits := vm.EncodeASCII(prog)
			litJSON, err := json.Marshal(lits)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "code=%s\nliterals=%s\n", code, litJSON)
			if packed {
				words := vm.Pack(prog)
				hex := make([]string, len(words))
				for i, word := range words {
					hex[i] = fmt.Sprintf("%016x", word)
				}
				fmt.Fprintf(w, "packed=%s size=%d\n", strings.Join(hex, ","), len(prog))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&packed, "packed", false, "also print the 5-bit packed opcode words")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "history <snapshot>",
		Short: "Export the generation history of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := storage.LoadSnapshotFile(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			switch format {
			case "csv":
				return stats.WriteHistoryCSV(w, snap.History)
			case "json":
				return stats.WriteHistoryJSON(w, snap.History)
			case "summary":
				best := make([]float64, len(snap.History))
				sizes := make([]int, len(snap.History))
				for i, e := range snap.History {
					best[i] = float64(e.BestFitness)
					sizes[i] = e.Best.Size
				}
				s := stats.Summarize(best, sizes)
				fmt.Fprintf(w, "generations=%d best_mean=%g best_std=%g best_min=%g best_max=%g best_size_mean=%.2f\n",
					len(snap.History), s.AvgFitness, s.StdFitness, s.MinFitness, s.MaxFitness, s.AvgSize)
				return nil
			default:
				return fmt.Errorf("unsupported history format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv|json|summary")
	return cmd
}

func newRunsCmd(g *globalFlags) *cobra.Command {
	var (
		limit    int
		indexDir string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			w := cmd.OutOrStdout()

			if indexDir != "" {
				entries, err := stats.ListRunIndex(indexDir)
				if err != nil {
					return err
				}
				if len(entries) > limit {
					entries = entries[:limit]
				}
				if jsonOut {
					return encodeJSON(w, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(w, "no runs found")
				}
				for _, e := range entries {
					fmt.Fprintf(w, "run_id=%s created_at=%s seed=%d pop=%d gens=%d selection=%s fitness=%s final_best_fitness=%g\n",
						e.RunID, e.CreatedAtUTC, e.Seed, e.PopulationSize, e.Generations, e.Selection, e.Fitness, float64(e.FinalBestFitness))
				}
				return nil
			}

			store, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer storage.CloseIfSupported(store)
			runs, err := store.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) > limit {
				runs = runs[:limit]
			}
			if jsonOut {
				return encodeJSON(w, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(w, "no runs found")
			}
			for _, r := range runs {
				fmt.Fprintf(w, "run_id=%s saved_at=%s generation=%d pop=%d best_fitness=%s\n",
					r.RunID, r.SavedAtUTC, r.Generation, r.Population, formatFloat(float64(r.BestFitness)))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&limit, "limit", 20, "max runs to list")
	f.StringVar(&indexDir, "index-dir", "", "list the artifact index in this directory instead of the store")
	f.BoolVar(&jsonOut, "json", false, "emit runs as JSON")
	return cmd
}

func newShowCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the latest state of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer storage.CloseIfSupported(store)

			snap, ok, err := store.GetSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("run not found: %s", args[0])
			}

			w := cmd.OutOrStdout()
			info := snap.Info()
			fmt.Fprintf(w, "run_id=%s saved_at=%s generation=%d pop=%d best_fitness=%s\n",
				info.RunID, info.SavedAtUTC, info.Generation, info.Population, formatFloat(float64(info.BestFitness)))
			fmt.Fprintf(w, "selection=%s grow=%s mutation=%s crossover=%s fitness=%s seed=%d\n",
				snap.Config.Selection, snap.Config.Grow, snap.Config.Mutation.Kind, snap.Config.Crossover.Kind, snap.Config.Fitness.Kind, snap.Config.Seed)
			if n := len(snap.History); n > 0 {
				fmt.Fprintln(w, snap.History[n-1].Best.Text)
			}
			return nil
		},
	}
	return cmd
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
