package rules

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"example.com/dvgate/internal/dif"
	"example.com/dvgate/internal/frame"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

type Rule struct {
	RuleId    string         `json:"ruleId"`
	Name      string         `json:"name,omitempty"`
	Scope     string         `json:"scope"` // frame|section|pack|stream
	Severity  Severity       `json:"severity"`
	CheckFunc string         `json:"checkFunction,omitempty"`
	Refs      []string       `json:"refs"`
	Params    map[string]any `json:"params,omitempty"`
	Message   string         `json:"message"`
}

type RulePack struct {
	RulePackId string `json:"rulePackId"`
	Version    string `json:"version"`
	Profile    string `json:"profile"`
	Rules      []Rule `json:"rules"`
}

// Diagnostic is one recorded rule violation. Values lists the conflicting
// readings with their sources when the rule compares redundant copies.
type Diagnostic struct {
	Ts       time.Time `json:"ts"`
	File     string    `json:"file"`
	Frame    int       `json:"frame"`
	Block    string    `json:"block,omitempty"`
	Offset   string    `json:"offset,omitempty"`
	RuleId   string    `json:"ruleId"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Values   []string  `json:"values,omitempty"`
	Refs     []string  `json:"refs"`
}

type AcceptanceReport struct {
	Summary struct {
		Total    int  `json:"total"`
		Errors   int  `json:"errors"`
		Warnings int  `json:"warnings"`
		Pass     bool `json:"pass"`
	} `json:"summary"`
	Findings []Diagnostic `json:"findings,omitempty"`
}

// Context carries one assembled frame through an evaluation pass.
type Context struct {
	InputFile string
	Standard  dif.Standard
	Frame     *frame.Frame
}

type Engine struct {
	rulePack    RulePack
	registry    map[string]CheckFunc
	diagnostics []Diagnostic
}

func NewEngine(rp RulePack) *Engine {
	return &Engine{
		rulePack: rp,
		registry: make(map[string]CheckFunc),
	}
}

// CheckFunc inspects the frame in ctx and returns zero or more
// diagnostics. Checks never mutate the frame; resolving conflicting
// redundant data is the repair stage's job.
type CheckFunc func(ctx *Context, rule Rule) []Diagnostic

func (e *Engine) Register(name string, f CheckFunc) {
	e.registry[name] = f
}

// Eval runs every rule of the pack against the frame. The returned slice
// holds this frame's diagnostics; the engine also accumulates them across
// frames for the final report.
func (e *Engine) Eval(ctx *Context) ([]Diagnostic, error) {
	if ctx == nil || ctx.Frame == nil {
		return nil, errors.New("nil context")
	}
	var diags []Diagnostic
	for _, r := range e.rulePack.Rules {
		if r.CheckFunc == "" {
			continue
		}
		fn, ok := e.registry[r.CheckFunc]
		if !ok {
			diags = append(diags, Diagnostic{
				Ts: time.Now(), File: ctx.InputFile, Frame: ctx.Frame.Number,
				RuleId: r.RuleId, Severity: WARN,
				Message: "no function for rule", Refs: r.Refs,
			})
			continue
		}
		for _, d := range fn(ctx, r) {
			if d.Ts.IsZero() {
				d.Ts = time.Now()
			}
			d.File = ctx.InputFile
			d.Frame = ctx.Frame.Number
			if d.RuleId == "" {
				d.RuleId = r.RuleId
			}
			if d.Severity == "" {
				d.Severity = r.Severity
			}
			if d.Refs == nil {
				d.Refs = r.Refs
			}
			diags = append(diags, d)
		}
	}
	e.diagnostics = append(e.diagnostics, diags...)
	return diags, nil
}

// Record adds diagnostics produced outside rule evaluation, such as
// resync spans reported by the stream reader.
func (e *Engine) Record(diags ...Diagnostic) {
	for _, d := range diags {
		if d.Ts.IsZero() {
			d.Ts = time.Now()
		}
		e.diagnostics = append(e.diagnostics, d)
	}
}

func (e *Engine) Diagnostics() []Diagnostic {
	return e.diagnostics
}

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	for _, d := range e.diagnostics {
		b, _ := json.Marshal(d)
		w.Write(b)
		w.WriteString("\n")
	}
	return nil
}

func (e *Engine) MakeAcceptance() AcceptanceReport {
	var rep AcceptanceReport
	var errs, warns int
	for _, d := range e.diagnostics {
		switch d.Severity {
		case ERROR:
			errs++
		case WARN:
			warns++
		}
	}
	rep.Summary.Total = len(e.diagnostics)
	rep.Summary.Errors = errs
	rep.Summary.Warnings = warns
	rep.Summary.Pass = errs == 0
	rep.Findings = e.diagnostics
	return rep
}

func LoadRulePack(path string) (RulePack, error) {
	var rp RulePack
	b, err := os.ReadFile(path)
	if err != nil {
		return rp, err
	}
	err = json.Unmarshal(b, &rp)
	return rp, err
}

func describeSample(s frame.PackSample, value string) string {
	tag := ""
	if s.Duplicate {
		tag = " (duplicate)"
	}
	return fmt.Sprintf("%s pack %d%s: %s", s.Block, s.PackIndex, tag, value)
}
