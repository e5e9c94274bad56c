// Command unitscript is a standalone harness for the engine: compile a
// source file to bytecode, run it against the reference host bindings, walk
// it instruction by instruction, or watch a file and re-run it on every
// save (SPEC_FULL.md §6.1 "so the engine is runnable and testable
// standalone"). The real game host embeds the compiler/vm packages
// directly; it has no use for this binary.
package main

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/scriptcore/unitscript/compiler"
	"github.com/scriptcore/unitscript/compiler/bytecodefmt"
	"github.com/scriptcore/unitscript/host"
	"github.com/scriptcore/unitscript/host/snapshot"
	"github.com/scriptcore/unitscript/vm"
)

const engineVersion = "v0.1.0"

// defaultBudget is generous enough to run a standalone script to
// completion in one Run call; the tower-defense host instead calls
// Run(perTickBudget) itself, on its own schedule (spec.md §5).
const defaultBudget = 1_000_000

func main() {
	rootCmd := &cobra.Command{
		Use:     "unitscript",
		Short:   "Compile, run, and debug unitscript programs",
		Version: engineVersion,
	}

	rootCmd.AddCommand(compileCmd(), runCmd(), debugCmd(), watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func compileCmd() *cobra.Command {
	var out string
	var selfName string
	cmd := &cobra.Command{
		Use:   "compile <source.us>",
		Short: "Compile a source file to a bytecode envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := compileFile(args[0], selfTypeTag(selfName))
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".usb"
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			defer f.Close()
			digest, err := bytecodefmt.Write(f, program, engineVersion)
			if err != nil {
				return fmt.Errorf("write bytecode: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "compiled %s -> %s (%x)\n", args[0], out, digest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: <source>.usb)")
	cmd.Flags().StringVar(&selfName, "self", "B1", "reference unit bound to `self` (B1-4, G1-30, CORE)")
	return cmd
}

func runCmd() *cobra.Command {
	var budget int
	var selfName string
	cmd := &cobra.Command{
		Use:   "run <source.us>",
		Short: "Run a source file to completion against the reference host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := compileFile(args[0], selfTypeTag(selfName))
			if err != nil {
				return err
			}
			m := newVM(program, selfName)
			for m.Run(budget) {
			}
			out, err := snapshot.Dump(m.GetState())
			if err != nil {
				return fmt.Errorf("render state: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&budget, "budget", defaultBudget, "instructions per Run call")
	cmd.Flags().StringVar(&selfName, "self", "B1", "reference unit bound to `self` (B1-4, G1-30, CORE)")
	return cmd
}

func debugCmd() *cobra.Command {
	var selfName string
	cmd := &cobra.Command{
		Use:   "debug <source.us>",
		Short: "Disassemble a source file and single-step it, printing state after each instruction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := compileFile(args[0], selfTypeTag(selfName))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), program.Disassemble())

			m := newVM(program, selfName)
			for m.Step() {
				out, err := snapshot.Dump(m.GetState())
				if err != nil {
					return fmt.Errorf("render state: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "---")
				fmt.Fprint(cmd.OutOrStdout(), string(out))
			}
			out, err := snapshot.Dump(m.GetState())
			if err != nil {
				return fmt.Errorf("render state: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "--- final ---")
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&selfName, "self", "B1", "reference unit bound to `self` (B1-4, G1-30, CORE)")
	return cmd
}

func watchCmd() *cobra.Command {
	var selfName string
	cmd := &cobra.Command{
		Use:   "watch <source.us>",
		Short: "Recompile and re-run a source file on every save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}

			runOnce := func() {
				program, err := compileFile(path, selfTypeTag(selfName))
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), err)
					return
				}
				m := newVM(program, selfName)
				for m.Run(defaultBudget) {
				}
				out, err := snapshot.Dump(m.GetState())
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), err)
					return
				}
				fmt.Fprint(cmd.OutOrStdout(), string(out))
			}

			runOnce()
			for {
				select {
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "--- %s changed, re-running ---\n", path)
						runOnce()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					fmt.Fprintln(cmd.OutOrStdout(), err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&selfName, "self", "B1", "reference unit bound to `self` (B1-4, G1-30, CORE)")
	return cmd
}

func compileFile(path string, selfType compiler.TypeTag) (*compiler.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	program := compiler.Compile(string(src), selfType, nil)
	if program.Failed() {
		for _, d := range program.Diagnostics {
			fmt.Fprintln(os.Stderr, d.Error())
		}
		return nil, fmt.Errorf("%s failed to compile", path)
	}
	return program, nil
}

// selfTypeTag maps a --self unit name to the compile-time TypeTag its
// attribute surface matches, so the compiler's static attribute checking
// (compiler/schema.go) agrees with whichever reference unit is actually
// bound to `self` at runtime.
func selfTypeTag(name string) compiler.TypeTag {
	switch {
	case name == "CORE":
		return compiler.TypeCore
	case name == "B1" || name == "B2" || name == "B3" || name == "B4":
		return compiler.TypeBot
	default:
		if _, ok := host.Gundam(name); ok {
			return compiler.TypeGundam
		}
		return compiler.TypeBot
	}
}

func newVM(program *compiler.Program, selfName string) *vm.VM {
	env := host.NewEnvironment()
	m := vm.New(env)
	m.Load(program)
	bindings := env.Globals()
	bindings["self"] = selfBinding(selfName)
	m.SetEnvironment(bindings)
	return m
}

func selfBinding(name string) vm.Value {
	switch name {
	case "CORE":
		return host.CORE.Value()
	case "B1":
		return host.B1.Value()
	case "B2":
		return host.B2.Value()
	case "B3":
		return host.B3.Value()
	case "B4":
		return host.B4.Value()
	}
	if g, ok := host.Gundam(name); ok {
		return g.Value()
	}
	return host.B1.Value()
}
