// Package stream drives the parse, validate, repair pipeline over a DV
// capture. Frames are produced lazily: each Next call consumes just
// enough input to finish one frame.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"example.com/dvgate/internal/common"
	"example.com/dvgate/internal/dif"
	"example.com/dvgate/internal/frame"
	"example.com/dvgate/internal/repair"
	"example.com/dvgate/internal/rules"
)

// DefaultResyncWindow bounds how far a recovery scan may look for the
// next plausible block identity before the stream is declared lost.
const DefaultResyncWindow = 256 * 1024

// ErrResyncExhausted is returned when no plausible block identity exists
// within the resync window. The pipeline is terminal after it.
var ErrResyncExhausted = errors.New("no plausible DIF identity within resync window")

// Span is a run of input bytes the pipeline had to skip.
type Span struct {
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	Reason string `json:"reason"`
}

// Result is one frame's worth of pipeline output: the repaired frame with
// its retained diagnostics, plus any input spans skipped while the frame
// was being read.
type Result struct {
	Outcome *repair.Outcome
	Spans   []Span
}

type Option func(*Pipeline)

// WithEngine substitutes the rule engine, letting a caller evaluate a
// custom rule pack or share one engine across files for the final report.
func WithEngine(e *rules.Engine) Option {
	return func(p *Pipeline) { p.eng = e }
}

func WithResyncWindow(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.window = n
		}
	}
}

func WithMetrics(m *common.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithInputName sets the file name recorded on every diagnostic.
func WithInputName(name string) Option {
	return func(p *Pipeline) { p.input = name }
}

// Pipeline reads 80-byte DIF blocks, assembles frames, evaluates the
// rule pack over each one, and arbitrates redundant metadata. It is not
// safe for concurrent use.
type Pipeline struct {
	br      *bufio.Reader
	std     dif.Standard
	eng     *rules.Engine
	asm     *frame.Assembler
	metrics *common.Metrics
	window  int
	input   string

	offset  int64
	spans   []Span
	pending []*frame.Frame
	eof     bool
	err     error
}

func NewPipeline(r io.Reader, std dif.Standard, opts ...Option) *Pipeline {
	p := &Pipeline{
		std:    std,
		asm:    frame.NewAssembler(std),
		window: DefaultResyncWindow,
	}
	for _, o := range opts {
		o(p)
	}
	if p.eng == nil {
		p.eng = rules.NewDefaultEngine()
	}
	p.br = bufio.NewReaderSize(r, p.window+2*dif.BlockSize)
	return p
}

// Engine exposes the rule engine so callers can pull the accumulated
// diagnostics and acceptance summary after the stream is drained.
func (p *Pipeline) Engine() *rules.Engine {
	return p.eng
}

// Next returns the next fully processed frame. It returns io.EOF once the
// input is drained; a pipeline that has returned an error keeps returning
// the same error.
func (p *Pipeline) Next() (*Result, error) {
	for {
		if len(p.pending) > 0 {
			f := p.pending[0]
			p.pending = p.pending[1:]
			return p.emit(f), nil
		}
		if p.err != nil {
			return nil, p.err
		}
		if p.eof {
			p.err = io.EOF
			if f := p.asm.Flush(); f != nil {
				return p.emit(f), nil
			}
			// Trailing skipped bytes with no frame after them still end
			// up in the engine's diagnostic log.
			for _, s := range p.spans {
				p.eng.Record(rules.Diagnostic{
					File:     p.input,
					Offset:   fmt.Sprintf("0x%X", s.Offset),
					RuleId:   "DV-STREAM-RESYNC",
					Severity: rules.WARN,
					Message:  fmt.Sprintf("%d bytes skipped: %s", s.Length, s.Reason),
				})
			}
			p.spans = nil
			return nil, io.EOF
		}
		p.step()
	}
}

// step consumes one block, or performs one recovery action.
func (p *Pipeline) step() {
	buf, err := p.br.Peek(dif.BlockSize)
	if len(buf) < dif.BlockSize {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if len(buf) > 0 {
				p.skip(len(buf), "truncated trailing bytes")
			}
			p.eof = true
			return
		}
		p.err = err
		return
	}

	b, derr := dif.DecodeBlock(buf, p.std)
	if derr != nil {
		// The 80 bytes at the cursor are not a typeable block. If the
		// next block boundary still looks aligned this is an isolated
		// corruption and the slot is recorded as unreadable; otherwise
		// framing is lost and a byte scan takes over.
		if p.alignedAfterCurrent() {
			p.asm.AddUnreadable(p.offset)
			p.discard(dif.BlockSize)
			return
		}
		p.resync()
		return
	}

	if p.metrics != nil {
		p.metrics.AddBlock(dif.BlockSize)
	}
	done := p.asm.Add(b, p.offset)
	p.discard(dif.BlockSize)
	if done != nil {
		p.pending = append(p.pending, done)
	}
}

// alignedAfterCurrent reports whether the byte right after the current
// 80-byte window carries a plausible identity. Short reads near the end
// of input count as aligned; there is nothing left to scan into.
func (p *Pipeline) alignedAfterCurrent() bool {
	buf, _ := p.br.Peek(dif.BlockSize + dif.IDSize)
	if len(buf) < dif.BlockSize+dif.IDSize {
		return true
	}
	return dif.PlausibleID(buf[dif.BlockSize:], p.std)
}

// resync scans forward one byte at a time until a plausible identity is
// found, requiring the following block boundary to look plausible too
// when enough input remains.
func (p *Pipeline) resync() {
	win, werr := p.br.Peek(p.window)
	atEnd := errors.Is(werr, io.EOF) || errors.Is(werr, io.ErrUnexpectedEOF)
	if werr != nil && !atEnd {
		// A failing reader is terminal; the scan must not dress it up as
		// an exhausted search window.
		p.err = fmt.Errorf("resync read at offset 0x%X: %w", p.offset, werr)
		return
	}
	for i := 1; i+dif.IDSize <= len(win); i++ {
		if !dif.PlausibleID(win[i:], p.std) {
			continue
		}
		next := i + dif.BlockSize
		if next+dif.IDSize <= len(win) && !dif.PlausibleID(win[next:], p.std) {
			continue
		}
		p.skip(i, "resync scan")
		if p.metrics != nil {
			p.metrics.IncResync()
		}
		return
	}
	if atEnd {
		p.skip(len(win), "resync scan reached end of input")
		p.eof = true
		return
	}
	p.err = fmt.Errorf("%w: %d bytes searched at offset 0x%X", ErrResyncExhausted, len(win), p.offset)
}

func (p *Pipeline) skip(n int, reason string) {
	if n <= 0 {
		return
	}
	p.spans = append(p.spans, Span{Offset: p.offset, Length: int64(n), Reason: reason})
	p.discard(n)
}

func (p *Pipeline) discard(n int) {
	d, _ := p.br.Discard(n)
	p.offset += int64(d)
}

// emit runs validation and repair over a completed frame and attaches the
// spans skipped since the previous emit.
func (p *Pipeline) emit(f *frame.Frame) *Result {
	if p.metrics != nil {
		p.metrics.AddFrame()
	}
	ctx := &rules.Context{InputFile: p.input, Standard: p.std, Frame: f}
	diags, err := p.eng.Eval(ctx)
	if err != nil {
		diags = append(diags, rules.Diagnostic{
			File: p.input, Frame: f.Number, RuleId: "DV-ENGINE",
			Severity: rules.ERROR, Message: err.Error(),
		})
	}
	spans := p.spans
	p.spans = nil
	for _, s := range spans {
		d := rules.Diagnostic{
			File: p.input, Frame: f.Number,
			Offset:   fmt.Sprintf("0x%X", s.Offset),
			RuleId:   "DV-STREAM-RESYNC",
			Severity: rules.WARN,
			Message:  fmt.Sprintf("%d bytes skipped: %s", s.Length, s.Reason),
		}
		p.eng.Record(d)
		diags = append(diags, d)
	}
	out := repair.Repair(f, p.std, diags)
	return &Result{Outcome: out, Spans: spans}
}
