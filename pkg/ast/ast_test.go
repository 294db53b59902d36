package ast

import (
	"strings"
	"testing"

	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

func TestParseTime(t *testing.T) {
	cases := []struct {
		in   string
		want tag.TimeValue
	}{
		{"0", 0},
		{"100 ms", 100_000_000},
		{"1s", 1_000_000_000},
		{"1 sec", 1_000_000_000},
		{"50us", 50_000},
		{"2 min", 120_000_000_000},
	}
	for _, c := range cases {
		parsed, err := ParseTime(c.in)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", c.in, err)
		}
		if got := parsed.ToNanoseconds(); got != c.want {
			t.Errorf("ParseTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseTimeRejectsUnknownUnit(t *testing.T) {
	if _, err := ParseTime("3 fortnights"); err == nil {
		t.Error("expected error for unknown unit")
	}
	if _, err := ParseTime("ms"); err == nil {
		t.Error("expected error for missing magnitude")
	}
}

const exampleProgram = `
target:
  timeout: "10 s"
  workers: 2
main: Main
reactors:
  - name: Main
    timers:
      - name: t
        offset: "0"
        period: "1 s"
    reactions:
      - triggers: [t]
        body: "tick();"
`

func TestParseProgram(t *testing.T) {
	prog, err := Parse(strings.NewReader(exampleProgram))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if prog.Main != "Main" {
		t.Errorf("Main = %q, want Main", prog.Main)
	}
	if prog.Target.Workers != 2 {
		t.Errorf("Workers = %d, want 2", prog.Target.Workers)
	}
	if prog.Target.Timeout == nil || prog.Target.Timeout.ToNanoseconds() != 10_000_000_000 {
		t.Errorf("Timeout = %v, want 10 s", prog.Target.Timeout)
	}
	main := prog.ReactorByName("Main")
	if main == nil {
		t.Fatal("no Main reactor")
	}
	if len(main.Timers) != 1 || main.Timers[0].Period.ToNanoseconds() != 1_000_000_000 {
		t.Errorf("timer not parsed: %+v", main.Timers)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("main: M\nreactors: []\nbogus: 1\n"))
	if err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestParseRequiresMain(t *testing.T) {
	_, err := Parse(strings.NewReader("reactors: []\n"))
	if err == nil {
		t.Error("expected error for missing main")
	}
}
