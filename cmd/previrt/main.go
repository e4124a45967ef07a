// Package main implements the CLI driver for the previrt whole-program
// previrtualizer: specialize, rewrite, minimize, and devirt subcommands,
// each a single pass over one IR module.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/sri-occam/previrt/internal/callgraph"
	"github.com/sri-occam/previrt/internal/ir"
	"github.com/sri-occam/previrt/pkg/component"
	"github.com/sri-occam/previrt/pkg/devirt"
	"github.com/sri-occam/previrt/pkg/minimizer"
	"github.com/sri-occam/previrt/pkg/rewriter"
	"github.com/sri-occam/previrt/pkg/specializer"
)

// Config holds the flags common to every subcommand, plus each
// subcommand's own flag set.
type Config struct {
	Module  string
	Output  string
	Verbose bool
	JSON    bool
	Profile bool

	InterfaceInputs []string
	RewriteInputs   []string
	SpecializeOut   string

	DevirtWithPointsTo  bool
	DevirtWithCHA       bool
	DevirtResolveIncomp bool
	DevirtAllowIndirect bool
	DevirtMaxTargets    int
	DevirtUseBounce     bool

	CrabOnlyMain        bool
	CrabPrintInvariants bool
}

// exitError is the only non-zero exit code this CLI uses. A pass reports
// modified/unchanged through its return value and only a fatal condition
// aborts, so both modified and unchanged exit 0.
const exitError = 2

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config
var cpuProfile *os.File

func main() {
	rootCmd := &cobra.Command{
		Use:                "previrt",
		Short:              "Whole-program previrtualizer: specialize, rewrite, minimize, and devirtualize a compiled module",
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("previrt version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	rootCmd.PersistentFlags().StringVar(&cfg.Module, "module", "", "Path to the input module (required)")
	rootCmd.PersistentFlags().StringVar(&cfg.Output, "output", "", "Path to write the updated module (defaults to overwriting --module)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Log in JSON format")
	rootCmd.PersistentFlags().BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling")

	rootCmd.AddCommand(
		newSpecializeCmd(),
		newRewriteCmd(),
		newMinimizeCmd(),
		newDevirtCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr *codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func newSpecializeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specialize",
		Short: "Clone interface functions under observed call witnesses",
		RunE:  runSpecialize,
	}
	cmd.Flags().StringArrayVar(&cfg.InterfaceInputs, "interface-input", nil, "Path to an interface manifest (repeatable)")
	cmd.Flags().StringVar(&cfg.SpecializeOut, "specialize-output", "", "Path to write the resulting transform")
	return cmd
}

func newRewriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Replay a recorded transform's rewrites against the module's call sites",
		RunE:  runRewrite,
	}
	cmd.Flags().StringArrayVar(&cfg.RewriteInputs, "rewrite-input", nil, "Path to a transform manifest (repeatable)")
	return cmd
}

func newMinimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "minimize",
		Short: "Demote linkage and eliminate dead code outside the component interface",
		RunE:  runMinimize,
	}
	cmd.Flags().StringArrayVar(&cfg.InterfaceInputs, "interface-input", nil, "Path to an interface manifest (repeatable)")
	return cmd
}

func newDevirtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devirt",
		Short: "Resolve indirect call sites to a finite candidate set",
		RunE:  runDevirt,
	}
	cmd.Flags().BoolVar(&cfg.DevirtWithPointsTo, "devirt-with-points-to", false, "Use points-to resolver instead of type-only")
	cmd.Flags().BoolVar(&cfg.DevirtWithCHA, "devirt-with-cha", false, "Try class-hierarchy resolver first")
	cmd.Flags().BoolVar(&cfg.DevirtResolveIncomp, "devirt-resolve-incomplete", false, "Permit resolution when analysis is not closed-world")
	cmd.Flags().BoolVar(&cfg.DevirtAllowIndirect, "devirt-allow-indirect", false, "Keep original indirect call as the dispatch default arm")
	cmd.Flags().IntVar(&cfg.DevirtMaxTargets, "devirt-max-targets", 0, "Abandon a site if candidate count exceeds this (0 = unbounded)")
	cmd.Flags().BoolVar(&cfg.DevirtUseBounce, "devirt-use-bounce", false, "Dispatch through a cached bounce function instead of inline at each site")
	cmd.Flags().BoolVar(&cfg.CrabOnlyMain, "crab-only-main", false, "Only run when the module contains an entry point")
	cmd.Flags().BoolVar(&cfg.CrabPrintInvariants, "crab-print-invariants", false, "Diagnostic: print resolver invariants")
	return cmd
}

func loadModule() (*ir.Module, error) {
	if cfg.Module == "" {
		return nil, fmt.Errorf("--module is required")
	}
	return ir.LoadModule(cfg.Module)
}

func storeModule(m *ir.Module) error {
	out := cfg.Output
	if out == "" {
		out = cfg.Module
	}
	return ir.StoreModule(out, m)
}

func runSpecialize(cmd *cobra.Command, _ []string) error {
	m, err := loadModule()
	if err != nil {
		return errWithCode(err, exitError)
	}
	iface, err := component.LoadInterfaces(cmd.Context(), cfg.InterfaceInputs)
	if err != nil {
		return errWithCode(err, exitError)
	}

	policy := specializer.RecursiveGuardedPolicy{
		Inner: specializer.AggressivePolicy{},
		Graph: callgraph.Build(m),
	}
	transform, err := specializer.Specialize(m, iface, policy, slog.Default())
	if err != nil {
		return errWithCode(fmt.Errorf("specialize: %w", err), exitError)
	}
	if err := storeModule(m); err != nil {
		return errWithCode(err, exitError)
	}
	if cfg.SpecializeOut != "" {
		if err := component.StoreTransform(cfg.SpecializeOut, iface, transform); err != nil {
			return errWithCode(err, exitError)
		}
	}
	return nil
}

func runRewrite(cmd *cobra.Command, _ []string) error {
	m, err := loadModule()
	if err != nil {
		return errWithCode(err, exitError)
	}
	transform, err := component.LoadTransforms(cmd.Context(), cfg.RewriteInputs)
	if err != nil {
		return errWithCode(err, exitError)
	}

	rewriter.Rewrite(m, transform, slog.Default())
	if err := storeModule(m); err != nil {
		return errWithCode(err, exitError)
	}
	return nil
}

func runMinimize(cmd *cobra.Command, _ []string) error {
	m, err := loadModule()
	if err != nil {
		return errWithCode(err, exitError)
	}
	iface, err := component.LoadInterfaces(cmd.Context(), cfg.InterfaceInputs)
	if err != nil {
		return errWithCode(err, exitError)
	}

	if _, err := minimizer.Minimize(m, iface, slog.Default()); err != nil {
		return errWithCode(fmt.Errorf("minimize: %w", err), exitError)
	}
	return errWithCode(storeModule(m), exitError)
}

func runDevirt(_ *cobra.Command, _ []string) error {
	m, err := loadModule()
	if err != nil {
		return errWithCode(err, exitError)
	}
	if cfg.CrabOnlyMain {
		if _, ok := m.Functions["main"]; !ok {
			slog.Info("devirt: module has no entry point, skipping per --crab-only-main")
			return nil
		}
	}

	var chain devirt.ResolverChain
	if cfg.DevirtWithCHA {
		slog.Warn("devirt: --devirt-with-cha requires an external class-hierarchy collaborator; none configured, skipping that stage")
	}
	if cfg.DevirtWithPointsTo {
		slog.Warn("devirt: --devirt-with-points-to requires an external points-to collaborator; none configured, skipping that stage")
	}
	chain = append(chain, devirt.NewTypeSignatureResolver(m))

	opts := devirt.Options{
		ResolveIncomplete: cfg.DevirtResolveIncomp,
		AllowIndirect:     cfg.DevirtAllowIndirect,
		MaxTargets:        cfg.DevirtMaxTargets,
		UseBounce:         cfg.DevirtUseBounce,
	}
	stats, err := devirt.Devirtualize(m, chain, opts, slog.Default())
	if err != nil {
		return errWithCode(fmt.Errorf("devirt: %w", err), exitError)
	}
	if cfg.CrabPrintInvariants {
		slog.Info("devirt: resolver stats", "total", stats.TotalCallSites, "resolved", stats.ResolvedCallSites,
			"direct", stats.DirectPromotions, "bounce", stats.BounceSites, "incomplete_skipped", stats.IncompleteSkipped,
			"too_many_candidates", stats.TooManyCandidates)
	}
	return errWithCode(storeModule(m), exitError)
}

func setup(_ *cobra.Command, _ []string) error {
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if !cfg.Profile {
		return nil
	}
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	defer cpuProfile.Close()

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}
