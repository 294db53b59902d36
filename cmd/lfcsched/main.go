// Command lfcsched is the static-scheduling backend driver: it loads a
// reactor program description, elaborates the instance tree, explores
// the state space, builds the partitioned DAGs, and emits the linked
// PretVM schedule. Debug flags dump any intermediate stage, following
// the one-flag-per-IR convention of CompCert-style drivers.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/julianrobledom/lingua-franca/pkg/ast"
	"github.com/julianrobledom/lingua-franca/pkg/ast/transform"
	"github.com/julianrobledom/lingua-franca/pkg/dag"
	"github.com/julianrobledom/lingua-franca/pkg/elaborate"
	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/pretvm"
	"github.com/julianrobledom/lingua-franca/pkg/pretvmgen"
	"github.com/julianrobledom/lingua-franca/pkg/statespace"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
	"github.com/julianrobledom/lingua-franca/pkg/targets"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dInstance   bool
	dStateSpace bool
	dDag        bool
	dObj        bool
	dVM         bool
)

// Scheduling options
var (
	workersFlag int
	timeoutFlag string
	horizonFlag string
	fastFlag    bool
	outputFlag  string
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lfcsched [file]",
		Short: "lfcsched generates static PretVM schedules for reactor programs",
		Long: `lfcsched is the static-scheduling backend of a reactor compiler.
It lowers a checked program description into a reactor instance tree,
a state-space diagram, partitioned DAGs, and a linked PretVM schedule.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			if err := compile(args[0], out, errOut); err != nil {
				fmt.Fprintf(errOut, "lfcsched: %v\n", err)
				return err
			}
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dInstance, "dinstance", false, "Dump the instance tree")
	rootCmd.Flags().BoolVar(&dStateSpace, "dstatespace", false, "Dump the state-space diagrams")
	rootCmd.Flags().BoolVar(&dDag, "ddag", false, "Dump the DAGs in dot format")
	rootCmd.Flags().BoolVar(&dObj, "dobj", false, "Dump the per-fragment object files")
	rootCmd.Flags().BoolVar(&dVM, "dvm", false, "Dump the linked executable")

	rootCmd.Flags().IntVarP(&workersFlag, "workers", "w", 0, "Number of workers (default from the program)")
	rootCmd.Flags().StringVar(&timeoutFlag, "timeout", "", "Program timeout, e.g. \"10 s\"")
	rootCmd.Flags().StringVar(&horizonFlag, "horizon", "", "Exploration horizon, e.g. \"1000 s\"")
	rootCmd.Flags().BoolVar(&fastFlag, "fast", false, "Fast mode: skip physical-time delays")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file (default static_schedule.c next to the input)")

	return rootCmd
}

// compile runs the whole pipeline on one program description.
func compile(filename string, out, errOut io.Writer) error {
	prog, err := ast.Load(filename)
	if err != nil {
		return err
	}
	if workersFlag > 0 {
		prog.Target.Workers = workersFlag
	}
	if fastFlag {
		prog.Target.Fast = true
	}
	if timeoutFlag != "" {
		t, err := ast.ParseTime(timeoutFlag)
		if err != nil {
			return err
		}
		prog.Target.Timeout = &t
	}

	// Rewrite surface constructs, then elaborate.
	if err := transform.DelayedConnections(prog, targets.C{}); err != nil {
		return err
	}
	mainReactor, err := elaborate.Elaborate(prog)
	if err != nil {
		return err
	}

	if dInstance {
		instance.NewPrinter(out).PrintTree(mainReactor)
		return nil
	}

	horizon := tag.ForeverTag
	if horizonFlag != "" {
		h, err := ast.ParseTime(horizonFlag)
		if err != nil {
			return err
		}
		horizon = tag.New(h.ToNanoseconds())
	}

	explorer := &statespace.Explorer{}
	if prog.Target.Timeout != nil {
		explorer.Timeout = prog.Target.Timeout.ToNanoseconds()
	}

	diagram := explorer.Explore(mainReactor, horizon, statespace.InitAndPeriodic)
	fragments := statespace.FragmentizeInitAndPeriodic(diagram)

	// A timeout adds a shutdown fragment, reached from the periodic
	// phase through a guarded transition.
	var shutdownDiagram *statespace.Diagram
	if prog.Target.Timeout != nil {
		shutdownDiagram = explorer.Explore(mainReactor, tag.New(0), statespace.ShutdownTimeout)
		shutdownDiagram.Phase = statespace.PhaseShutdownTimeout
		if shutdownDiagram.Len() > 0 && len(fragments) > 0 {
			shutdown := statespace.NewFragment(shutdownDiagram)
			last := fragments[len(fragments)-1]
			statespace.ConnectFragmentsGuarded(last, shutdown, statespace.GuardedTimeoutTransition(shutdown))
			fragments = append(fragments, shutdown)
		}
	}

	if dStateSpace {
		diagram.Dump(out)
		if shutdownDiagram != nil {
			shutdownDiagram.Dump(out)
		}
		return nil
	}

	if len(fragments) == 0 {
		return fmt.Errorf("program produces no events; nothing to schedule")
	}

	workers := prog.Target.Workers
	opts := []pretvmgen.Option{pretvmgen.WithFast(prog.Target.Fast)}
	if prog.Target.Timeout != nil {
		opts = append(opts, pretvmgen.WithTimeout(prog.Target.Timeout.ToNanoseconds()))
	}
	gen := pretvmgen.New(mainReactor, workers, opts...)

	// Each fragment's DAG and object file are independent; fan out.
	dags := make([]*dag.Dag, len(fragments))
	objectFiles := make([]*pretvmgen.ObjectFile, len(fragments))
	var group errgroup.Group
	for i, fragment := range fragments {
		i, fragment := i, fragment
		group.Go(func() error {
			d := dag.Generate(fragment.Diagram)
			dag.Partition(d, workers)
			dags[i] = d
			objectFiles[i] = gen.GenerateInstructions(d, fragment)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if dDag {
		for _, d := range dags {
			d.WriteDot(out)
		}
		return nil
	}
	if dObj {
		printer := pretvm.NewPrinter(out)
		for i, obj := range objectFiles {
			fmt.Fprintf(out, "; fragment %d (%s)\n", i, obj.Fragment.Phase)
			printer.PrintStreams(obj.Workers)
		}
		return nil
	}

	exe, err := gen.Link(objectFiles)
	if err != nil {
		return err
	}

	if dVM {
		pretvm.NewPrinter(out).PrintExecutable(exe)
		return nil
	}

	outputFilename := outputFlag
	if outputFilename == "" {
		outputFilename = filepath.Join(filepath.Dir(filename), "static_schedule.c")
	}
	outFile, err := os.Create(outputFilename)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputFilename, err)
	}
	defer outFile.Close()

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if err := gen.EmitC(outFile, exe, name); err != nil {
		return err
	}
	fmt.Fprintf(errOut, "lfcsched: wrote %s\n", outputFilename)
	return nil
}
