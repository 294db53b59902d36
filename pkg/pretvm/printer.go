// Textual disassembly of PretVM instruction streams.
package pretvm

import (
	"fmt"
	"io"
)

// Printer outputs instruction streams in a readable format.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new PretVM printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintExecutable prints every worker's stream with line numbers.
func (p *Printer) PrintExecutable(exe *Executable) {
	fmt.Fprintf(p.w, "; hyperperiod = %s\n", exe.Hyperperiod)
	p.PrintStreams(exe.Workers)
}

// PrintStreams prints per-worker instruction lists.
func (p *Printer) PrintStreams(workers [][]Instruction) {
	for w, stream := range workers {
		fmt.Fprintf(p.w, "worker %d:\n", w)
		for line, inst := range stream {
			for _, l := range inst.Labels() {
				fmt.Fprintf(p.w, "%s:\n", l)
			}
			fmt.Fprintf(p.w, "  %4d  %s\n", line, inst)
		}
	}
}
