// Tree printing for the runtime instance hierarchy.
package instance

import (
	"fmt"
	"io"
	"sort"
)

// Printer outputs the instance tree in a readable format.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new instance tree printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintTree prints a reactor instance and its subtree.
func (p *Printer) PrintTree(r *ReactorInstance) {
	p.printReactor(r, 0)
}

func (p *Printer) printReactor(r *ReactorInstance, depth int) {
	ind := indent(depth)
	fmt.Fprintf(p.w, "%sreactor %s : %s\n", ind, r.DisplayName(), r.Definition.Name)
	for _, in := range r.Inputs {
		fmt.Fprintf(p.w, "%s  input %s\n", ind, in.Name())
	}
	for _, out := range r.Outputs {
		fmt.Fprintf(p.w, "%s  output %s\n", ind, out.Name())
	}
	for _, t := range r.Timers {
		fmt.Fprintf(p.w, "%s  timer %s offset=%s period=%s\n", ind, t.Name(), t.Offset, t.Period)
	}
	for _, a := range r.Actions {
		fmt.Fprintf(p.w, "%s  action %s %s minDelay=%s\n", ind, a.Name(), a.Origin, a.MinDelay)
	}
	for _, re := range r.Reactions {
		fmt.Fprintf(p.w, "%s  %s triggers=%d effects=%d\n", ind, re.Name(), len(re.Triggers), len(re.Effects))
	}
	p.printConnections(r, ind)
	for _, c := range r.Children {
		p.printReactor(c, depth+1)
	}
}

func (p *Printer) printConnections(r *ReactorInstance, ind string) {
	type row struct {
		src string
		dst Destination
	}
	var rows []row
	for src, dsts := range r.Connections {
		for _, d := range dsts {
			rows = append(rows, row{src.FullNameWithJoiner("."), d})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].src != rows[j].src {
			return rows[i].src < rows[j].src
		}
		return rows[i].dst.Port.FullNameWithJoiner(".") < rows[j].dst.Port.FullNameWithJoiner(".")
	})
	for _, row := range rows {
		fmt.Fprintf(p.w, "%s  %s -> %s", ind, row.src, row.dst.Port.FullNameWithJoiner("."))
		if row.dst.Delay > 0 {
			fmt.Fprintf(p.w, " delay=%s", row.dst.Delay)
		}
		if row.dst.Physical {
			fmt.Fprint(p.w, " physical")
		}
		fmt.Fprintln(p.w)
	}
}

func indent(depth int) string {
	s := ""
	for i := 0; i < depth; i++ {
		s += "  "
	}
	return s
}
