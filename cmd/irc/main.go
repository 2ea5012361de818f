package main

import (
	"fmt"
	"os"

	"github.com/oisee/codegen/pkg/conformance"
	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/irtext"
	"github.com/oisee/codegen/pkg/pipeline"
	"github.com/oisee/codegen/pkg/target"
	"github.com/oisee/codegen/pkg/target/x64"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "irc",
		Short: "irc — runtime x86-64 code-generation pipeline driver",
	}

	// run command
	var simplifyIter int
	var allocIter int
	var targetName string

	runCmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run one (or all) of the canonical end-to-end scenarios and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			td, err := resolveTarget(targetName)
			if err != nil {
				return err
			}
			cfg := pipeline.Config{Target: td, SimplifyIterations: simplifyIter, AllocatorIterations: allocIter}

			scenarios := conformance.CanonicalScenarios(cfg)
			if len(args) > 0 {
				name := args[0]
				var match *conformance.Scenario
				for i := range scenarios {
					if scenarios[i].Name == name {
						match = &scenarios[i]
						break
					}
				}
				if match == nil {
					return fmt.Errorf("irc: no such scenario %q", name)
				}
				scenarios = []conformance.Scenario{*match}
			}

			failed := 0
			for _, s := range scenarios {
				if err := s.Run(); err != nil {
					fmt.Printf("FAIL %s: %v\n", s.Name, err)
					failed++
					continue
				}
				fmt.Printf("PASS %s\n", s.Name)
			}
			if failed > 0 {
				return fmt.Errorf("irc: %d/%d scenarios failed", failed, len(scenarios))
			}
			return nil
		},
	}
	runCmd.Flags().IntVar(&simplifyIter, "simplify-iterations", 0, "simplifier fixed-point iteration bound (0 = pipeline default)")
	runCmd.Flags().IntVar(&allocIter, "alloc-iterations", 0, "register allocator iteration bound (0 = pipeline default)")
	runCmd.Flags().StringVar(&targetName, "target", "x64", "target-description to compile against")
	rootCmd.AddCommand(runCmd)

	// parse command
	parseCmd := &cobra.Command{
		Use:   "parse [file.irs]",
		Short: "Parse a textual IR file and print its canonical rendering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return parsePrint(args[0])
		},
	}
	rootCmd.AddCommand(parseCmd)

	// print is an alias for parse: both round-trip a .irs file through
	// pkg/irtext and print the result, matching what a reader typing
	// either verb would expect.
	printCmd := &cobra.Command{
		Use:   "print [file.irs]",
		Short: "Alias for parse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return parsePrint(args[0])
		},
	}
	rootCmd.AddCommand(printCmd)

	// fuzz command
	var numWorkers int
	var numSeeds int
	var startSeed int64
	var numOps int
	var verbose bool
	var checkpointPath string
	var resume bool
	var fuzzTargetName string
	var fuzzSimplifyIter int
	var fuzzAllocIter int

	fuzzCmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Run the generate/compile/interpret equivalence-fuzzing campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			td, err := resolveTarget(fuzzTargetName)
			if err != nil {
				return err
			}
			cfg := pipeline.Config{Target: td, SimplifyIterations: fuzzSimplifyIter, AllocatorIterations: fuzzAllocIter}

			fmt.Printf("irc fuzz\n")
			fmt.Printf("  Seeds: %d (starting at %d)\n", numSeeds, startSeed)
			fmt.Printf("  Ops per program: %d\n", numOps)
			fmt.Printf("  Workers: %d\n", numWorkers)
			if checkpointPath != "" {
				fmt.Printf("  Checkpoint: %s (resume=%v)\n", checkpointPath, resume)
			}
			fmt.Println()

			scenarios := make([]conformance.Scenario, 0, numSeeds)
			for i := 0; i < numSeeds; i++ {
				seed := uint64(startSeed) + uint64(i)
				scenarios = append(scenarios, conformance.NewFuzzScenario(seed, numOps, cfg))
			}

			pool := conformance.NewWorkerPool(numWorkers)
			camp := conformance.NewCampaign(pool, checkpointPath)
			if err := camp.Run(scenarios, resume, verbose); err != nil {
				return fmt.Errorf("irc: fuzz campaign: %w", err)
			}

			checked, passed, failed := pool.Stats()
			fmt.Printf("\n%d checked, %d passed, %d failed\n", checked, passed, failed)
			for _, f := range pool.Report.Failures() {
				fmt.Printf("  FAIL %s: %s\n", f.Name, f.Err)
			}
			if failed > 0 {
				return fmt.Errorf("irc: %d fuzz scenarios failed", failed)
			}
			return nil
		},
	}
	fuzzCmd.Flags().IntVar(&numWorkers, "workers", 0, "worker goroutines (0 = runtime.NumCPU())")
	fuzzCmd.Flags().IntVar(&numSeeds, "seeds", 100, "number of fuzz seeds to run")
	fuzzCmd.Flags().Int64Var(&startSeed, "start-seed", 1, "first seed in the run")
	fuzzCmd.Flags().IntVar(&numOps, "ops", 8, "arithmetic steps per generated program")
	fuzzCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each scenario's result as it completes")
	fuzzCmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file path (empty disables checkpointing)")
	fuzzCmd.Flags().BoolVar(&resume, "resume", false, "resume from --checkpoint instead of starting over")
	fuzzCmd.Flags().StringVar(&fuzzTargetName, "target", "x64", "target-description to compile against")
	fuzzCmd.Flags().IntVar(&fuzzSimplifyIter, "simplify-iterations", 0, "simplifier fixed-point iteration bound (0 = pipeline default)")
	fuzzCmd.Flags().IntVar(&fuzzAllocIter, "alloc-iterations", 0, "register allocator iteration bound (0 = pipeline default)")
	rootCmd.AddCommand(fuzzCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveTarget(name string) (target.Description, error) {
	switch name {
	case "", "x64":
		return x64.New(), nil
	default:
		return nil, fmt.Errorf("irc: unknown target %q (only \"x64\" is available)", name)
	}
}

func parsePrint(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c, err := irtext.Parse(string(src))
	if err != nil {
		return fmt.Errorf("irc: parse %s: %w", path, err)
	}
	if err := ir.Validate(c); err != nil {
		return fmt.Errorf("irc: validate %s: %w", path, err)
	}
	fmt.Print(irtext.Print(c))
	return nil
}
