package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/kinsens/internal/config"
	"github.com/san-kum/kinsens/internal/experiment"
	"github.com/san-kum/kinsens/internal/kinetics"
	"github.com/san-kum/kinsens/internal/report"
	"github.com/san-kum/kinsens/internal/sensitivity"
	"github.com/san-kum/kinsens/internal/storage"
	"github.com/san-kum/kinsens/internal/tui"
)

var (
	dataDir  string
	logLevel string

	configFile   string
	preset       string
	mechanism    string
	temperature  float64
	pressure     float64
	composition  string
	interval     float64
	duration     float64
	stepper      string
	maxDt        float64
	rtol         float64
	atol         float64
	observable   int
	reactions    int
	topN         int
	perturbation float64
	stream       bool

	showAll bool
	svgPath string
	live    bool
	noSave  bool

	outPath       string
	plotReactions int

	comparePresets []string
	workers        int
)

// main registers the commands and exits with status 1 on any error.
func main() {
	rootCmd := &cobra.Command{
		Use:          "kinsens",
		Short:        "reaction sensitivity ranking for constant-pressure combustion",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".kinsens", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug prints one line per grid instant)")

	defaults := config.DefaultConfig()

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a sensitivity analysis and rank the reactions",
		Args:  cobra.NoArgs,
		RunE:  runAnalysis,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().StringVar(&mechanism, "mechanism", defaults.Mechanism, "built-in mechanism name or yaml file")
	runCmd.Flags().Float64Var(&temperature, "temperature", defaults.Temperature, "initial temperature [K]")
	runCmd.Flags().Float64Var(&pressure, "pressure", defaults.Pressure, "pressure [Pa]")
	runCmd.Flags().StringVar(&composition, "composition", "CH4:1,O2:2,N2:7.52", "initial mole amounts")
	runCmd.Flags().Float64Var(&interval, "interval", defaults.Grid.Interval, "output interval [s]")
	runCmd.Flags().Float64Var(&duration, "duration", defaults.Grid.Duration, "simulated time [s]")
	runCmd.Flags().StringVar(&stepper, "stepper", defaults.Stepper, "ode stepper (ros2, rk45, rk4)")
	runCmd.Flags().Float64Var(&maxDt, "max-dt", 0, "largest internal step [s], required by rk4")
	runCmd.Flags().Float64Var(&rtol, "rtol", defaults.Tolerances.Rtol, "relative tolerance")
	runCmd.Flags().Float64Var(&atol, "atol", defaults.Tolerances.Atol, "absolute tolerance")
	runCmd.Flags().IntVar(&observable, "observable", defaults.Observable, "observable index (0 mass, 1 temperature, 2+ species)")
	runCmd.Flags().IntVar(&reactions, "reactions", 0, "number of reactions to track (0 = all)")
	runCmd.Flags().IntVar(&topN, "top", defaults.TopN, "number of reactions to chart")
	runCmd.Flags().Float64Var(&perturbation, "perturbation", defaults.Perturbation, "relative rate perturbation")
	runCmd.Flags().BoolVar(&stream, "stream", false, "reduce on the fly instead of keeping the matrix")
	runCmd.Flags().BoolVar(&showAll, "all", false, "print the full ranking")
	runCmd.Flags().StringVar(&svgPath, "svg", "", "also write the chart as svg")
	runCmd.Flags().BoolVar(&live, "live", false, "show live progress")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "chart a stored ranking",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().IntVar(&topN, "top", -1, "number of reactions to chart (default: as run)")
	showCmd.Flags().BoolVar(&showAll, "all", false, "print the full ranking")
	showCmd.Flags().StringVar(&svgPath, "svg", "", "also write the chart as svg")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot temperature and sensitivity histories",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotReactions, "reactions", 3, "number of top reactions to plot")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a run as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export a ranking as csv",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset configurations",
		RunE:  listPresets,
	}

	mechanismsCmd := &cobra.Command{
		Use:   "mechanisms [name]",
		Short: "list built-in mechanisms or the reactions of one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listMechanisms,
	}

	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "rank reactions for several presets side by side",
		Args:  cobra.NoArgs,
		RunE:  comparePresetRuns,
	}
	compareCmd.Flags().StringSliceVar(&comparePresets, "presets", []string{"lean", "stoichiometric", "rich"}, "presets to compare")
	compareCmd.Flags().IntVar(&topN, "top", 5, "number of ranks to show")
	compareCmd.Flags().IntVar(&workers, "workers", 0, "concurrent runs (0 = one per cpu)")

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, exportJSONCmd, exportCSVCmd, presetsCmd, mechanismsCmd, compareCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfig layers defaults, preset, config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("mechanism") {
		cfg.Mechanism = mechanism
	}
	if flags.Changed("temperature") {
		cfg.Temperature = temperature
	}
	if flags.Changed("pressure") {
		cfg.Pressure = pressure
	}
	if flags.Changed("composition") {
		comp, err := parseComposition(composition)
		if err != nil {
			return nil, err
		}
		cfg.Composition = comp
	}
	if flags.Changed("interval") {
		cfg.Grid.Interval = interval
	}
	if flags.Changed("duration") {
		cfg.Grid.Duration = duration
	}
	if flags.Changed("stepper") {
		cfg.Stepper = stepper
	}
	if flags.Changed("max-dt") {
		cfg.MaxDt = maxDt
	}
	if flags.Changed("rtol") {
		cfg.Tolerances.Rtol = rtol
	}
	if flags.Changed("atol") {
		cfg.Tolerances.Atol = atol
	}
	if flags.Changed("observable") {
		cfg.Observable = observable
	}
	if flags.Changed("reactions") {
		cfg.Reactions = reactions
	}
	if flags.Changed("top") {
		cfg.TopN = topN
	}
	if flags.Changed("perturbation") {
		cfg.Perturbation = perturbation
	}
	if flags.Changed("stream") {
		cfg.Stream = stream
	}
	return cfg, nil
}

// parseComposition reads "CH4:1,O2:2,N2:7.52".
func parseComposition(s string) (map[string]float64, error) {
	comp := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		name, amount, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("bad composition entry %q, want NAME:AMOUNT", part)
		}
		var v float64
		if _, err := fmt.Sscanf(amount, "%g", &v); err != nil {
			return nil, fmt.Errorf("bad amount for %s: %w", name, err)
		}
		comp[name] += v
	}
	return comp, nil
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	exp := experiment.New(cfg, experiment.NewRegistry())

	var res *experiment.Result
	if live {
		res, err = runLive(ctx, cancel, exp, cfg)
	} else {
		if err = exp.Setup(); err == nil {
			res, err = exp.Run(ctx)
		}
	}
	if err != nil {
		return err
	}

	sinks := report.MultiSink{report.NewTerminalSink(os.Stdout)}
	if svgPath != "" {
		sinks = append(sinks, report.NewSVGSink(svgPath))
	}
	// a chart that fails to render still leaves a usable ranking
	_ = exp.Report(sinks, res)

	if showAll {
		if err := printRanking(os.Stdout, res.Ranking); err != nil {
			return err
		}
	}

	if noSave {
		return nil
	}
	runID, err := exp.Save(storage.New(dataDir), res)
	if err != nil {
		return err
	}
	fmt.Printf("run saved: %s\n", runID)
	return nil
}

func runLive(ctx context.Context, cancel context.CancelFunc, exp *experiment.Experiment, cfg *config.Config) (*experiment.Result, error) {
	p := tea.NewProgram(tui.NewModel(cfg.Mechanism, cfg.Grid.Steps(), cancel))
	exp.AddObserver(tui.NewFeed(p))
	if err := exp.Setup(); err != nil {
		return nil, err
	}

	logrus.SetOutput(io.Discard)
	defer logrus.SetOutput(os.Stderr)

	type outcome struct {
		res *experiment.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := exp.Run(ctx)
		done <- outcome{res, err}
		p.Send(tui.DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, err
	}
	out := <-done
	return out.res, out.err
}

func printRanking(w io.Writer, ranked sensitivity.RankedList) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tINDEX\tSCORE\tREACTION")
	for i, s := range ranked {
		fmt.Fprintf(tw, "%d\t%d\t%.6e\t%s\n", i+1, s.Index, s.Score, s.Name)
	}
	return tw.Flush()
}

func comparePresetRuns(cmd *cobra.Command, args []string) error {
	cfgs := make([]*config.Config, len(comparePresets))
	for i, name := range comparePresets {
		cfgs[i] = config.GetPreset(name)
		if cfgs[i] == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets())
		}
		cfgs[i].Stream = true
	}

	results, err := experiment.NewBatch(experiment.NewRegistry(), workers).Run(cmd.Context(), cfgs)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\t"+strings.ToUpper(strings.Join(comparePresets, "\t")))
	for rank := 0; rank < topN; rank++ {
		cells := make([]string, len(results))
		for i, res := range results {
			cells[i] = "-"
			if rank < len(res.Ranking) {
				cells[i] = fmt.Sprintf("%s (%.2e)", res.Ranking[rank].Name, res.Ranking[rank].Score)
			}
		}
		fmt.Fprintf(w, "%d\t%s\n", rank+1, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMECHANISM\tTIME\tT0\tSTEPS\tREACTIONS\tTOP")

	for _, run := range runs {
		top := "-"
		if len(run.Ranking) > 0 {
			top = run.Ranking[0].Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0fK\t%d\t%d\t%s\n",
			run.ID,
			run.Config.Mechanism,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Config.Temperature,
			run.Steps,
			len(run.Reactions),
			top,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	meta, err := storage.New(dataDir).Load(args[0])
	if err != nil {
		return err
	}

	n := meta.Config.TopN
	if cmd.Flags().Changed("top") {
		n = topN
	}
	top, err := sensitivity.SelectTop(meta.Ranking, n)
	if err != nil {
		return err
	}

	exp := experiment.New(meta.Config, experiment.NewRegistry())
	sinks := report.MultiSink{report.NewTerminalSink(os.Stdout)}
	if svgPath != "" {
		sinks = append(sinks, report.NewSVGSink(svgPath))
	}
	if err := report.Report(sinks, top, exp.Labels(), exp.Conditions()); err != nil {
		logrus.WithError(err).Warn("sensitivity chart could not be rendered")
	}

	if showAll {
		return printRanking(os.Stdout, meta.Ranking)
	}
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	tr, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	fmt.Println(report.PlotSeries(tr.Temperatures(), "temperature [K]"))
	fmt.Println()

	if meta.Streamed {
		fmt.Println("run was streamed; no sensitivity history stored")
		return nil
	}

	m, _, _, err := st.LoadMatrix(runID)
	if err != nil {
		return err
	}
	top, err := sensitivity.SelectTop(meta.Ranking, plotReactions)
	if err != nil {
		return err
	}
	series := make([][]float64, len(top))
	for i, s := range top {
		series[i] = m.Col(s.Index)
	}
	fmt.Println(report.PlotMany(series, top.Names(), "sensitivity coefficient"))
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	data, err := storage.New(dataDir).Export(args[0])
	if err != nil {
		return err
	}
	return writeOut(func(w io.Writer) error { return storage.ExportJSON(w, data) })
}

func exportCSV(cmd *cobra.Command, args []string) error {
	meta, err := storage.New(dataDir).Load(args[0])
	if err != nil {
		return err
	}
	return writeOut(func(w io.Writer) error { return storage.ExportRankingCSV(w, meta.Ranking) })
}

func writeOut(write func(w io.Writer) error) error {
	if outPath == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported to %s\n", outPath)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tMECHANISM\tT0\tP\tDURATION\tCOMPOSITION")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%.0fK\t%.0fPa\t%gs\t%s\n",
			name, cfg.Mechanism, cfg.Temperature, cfg.Pressure, cfg.Grid.Duration, formatComposition(cfg.Composition))
	}
	return w.Flush()
}

func formatComposition(comp map[string]float64) string {
	parts := make([]string, 0, len(comp))
	for name, v := range comp {
		parts = append(parts, fmt.Sprintf("%s:%g", name, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func listMechanisms(cmd *cobra.Command, args []string) error {
	registry := experiment.NewRegistry()

	if len(args) == 1 {
		mech, err := registry.GetMechanism(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", mech.Name, mech.Description)
		fmt.Printf("species: %s\n\n", strings.Join(mech.SpeciesNames(), " "))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tREACTION\tA\tb\tEa\tdH")
		for i, r := range mech.Reactions {
			fmt.Fprintf(w, "%d\t%s\t%.3e\t%g\t%g\t%.3e\n", i, r.Equation, r.A, r.B, r.Ea, r.DeltaH)
		}
		return w.Flush()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSPECIES\tREACTIONS\tDESCRIPTION")
	for _, name := range registry.ListMechanisms() {
		mech, err := kinetics.Builtin(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", name, len(mech.Species), len(mech.Reactions), mech.Description)
	}
	return w.Flush()
}
