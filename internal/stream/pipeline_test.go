package stream_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"example.com/dvgate/internal/common"
	"example.com/dvgate/internal/dif"
	"example.com/dvgate/internal/frame"
	"example.com/dvgate/internal/repair"
	"example.com/dvgate/internal/rules"
	"example.com/dvgate/internal/samples"
	"example.com/dvgate/internal/stream"
)

func drain(t *testing.T, p *stream.Pipeline) []*stream.Result {
	t.Helper()
	var out []*stream.Result
	for {
		res, err := p.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, res)
	}
}

func TestCleanStream(t *testing.T) {
	raw := samples.Stream(dif.NTSC, 3)
	m := common.NewMetrics()
	p := stream.NewPipeline(bytes.NewReader(raw), dif.NTSC,
		stream.WithInputName("clean.dv"), stream.WithMetrics(m))
	results := drain(t, p)
	if len(results) != 3 {
		t.Fatalf("%d frames, want 3", len(results))
	}
	for i, res := range results {
		f := res.Outcome.Frame
		if f.Number != i || f.Offset != int64(i*dif.NTSC.FrameBytes()) {
			t.Fatalf("frame %d meta: number=%d offset=%d", i, f.Number, f.Offset)
		}
		if len(res.Spans) != 0 || len(res.Outcome.Diagnostics) != 0 {
			t.Fatalf("frame %d: spans=%v diags=%v", i, res.Spans, res.Outcome.Diagnostics)
		}
	}
	// The second title timecode advanced by exactly one frame.
	copies := results[1].Outcome.Frame.TimecodeCopies()
	want := samples.NextTimecode(samples.DefaultTimecode, dif.NTSC)
	if len(copies) == 0 || copies[0].Pack.Timecode.String() != want.String() {
		t.Fatalf("frame 1 timecode: %+v", copies)
	}
	if _, err := p.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("drained pipeline: %v", err)
	}
	snap := m.Snapshot()
	if snap.Blocks != int64(3*dif.NTSC.FrameBlocks()) || snap.Frames != 3 || snap.Resyncs != 0 {
		t.Fatalf("metrics: %+v", snap)
	}
	if rep := p.Engine().MakeAcceptance(); !rep.Summary.Pass || rep.Summary.Total != 0 {
		t.Fatalf("acceptance: %+v", rep.Summary)
	}
}

func TestEmptyInput(t *testing.T) {
	p := stream.NewPipeline(bytes.NewReader(nil), dif.PAL)
	if _, err := p.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v", err)
	}
}

func TestResyncOverGarbage(t *testing.T) {
	var raw []byte
	raw = append(raw, samples.Stream(dif.NTSC, 1)...)
	garbage := bytes.Repeat([]byte{0xEE}, 37)
	raw = append(raw, garbage...)
	raw = append(raw, samples.Frame(dif.NTSC, samples.Options{
		Seq: 1, Timecode: &samples.DefaultTimecode, RecDate: &samples.DefaultRecDate,
	})...)

	m := common.NewMetrics()
	p := stream.NewPipeline(bytes.NewReader(raw), dif.NTSC, stream.WithMetrics(m))
	results := drain(t, p)
	if len(results) != 2 {
		t.Fatalf("%d frames, want 2", len(results))
	}
	if len(results[0].Spans) != 0 {
		t.Fatalf("first frame spans: %+v", results[0].Spans)
	}
	spans := results[1].Spans
	if len(spans) != 1 {
		t.Fatalf("second frame spans: %+v", spans)
	}
	if spans[0].Offset != int64(dif.NTSC.FrameBytes()) || spans[0].Length != 37 {
		t.Fatalf("span: %+v", spans[0])
	}
	var found bool
	for _, d := range results[1].Outcome.Diagnostics {
		if d.RuleId == "DV-STREAM-RESYNC" && d.Severity == rules.WARN {
			found = true
		}
	}
	if !found {
		t.Fatalf("no resync diagnostic: %+v", results[1].Outcome.Diagnostics)
	}
	if results[1].Outcome.Frame.FilledCount() != dif.NTSC.FrameBlocks() {
		t.Fatal("second frame incomplete after resync")
	}
	if m.Snapshot().Resyncs != 1 {
		t.Fatalf("metrics: %+v", m.Snapshot())
	}
}

func TestIsolatedUnreadableBlock(t *testing.T) {
	raw := samples.Stream(dif.NTSC, 1)
	// Break one block's discriminator while the following boundary stays
	// intact, so the pipeline records the slot instead of rescanning.
	raw[10*dif.BlockSize] = 0xEE
	p := stream.NewPipeline(bytes.NewReader(raw), dif.NTSC)
	results := drain(t, p)
	if len(results) != 1 {
		t.Fatalf("%d frames, want 1", len(results))
	}
	f := results[0].Outcome.Frame
	if f.Slots[10].State != frame.SlotUnreadable {
		t.Fatalf("slot 10 state %s", f.Slots[10].State)
	}
	var found bool
	for _, d := range results[0].Outcome.Diagnostics {
		if d.RuleId == "DV-STRUCT-UNREADABLE" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no unreadable diagnostic: %+v", results[0].Outcome.Diagnostics)
	}
	if results[0].Outcome.Sections[dif.IdentityAt(10).Type] != repair.Unrecoverable {
		t.Fatalf("sections: %+v", results[0].Outcome.Sections)
	}
}

func TestResyncExhausted(t *testing.T) {
	raw := bytes.Repeat([]byte{0xEE}, 8192)
	p := stream.NewPipeline(bytes.NewReader(raw), dif.NTSC, stream.WithResyncWindow(4096))
	_, err := p.Next()
	if !errors.Is(err, stream.ErrResyncExhausted) {
		t.Fatalf("got %v", err)
	}
	// The pipeline is terminal after a failed resync.
	if _, again := p.Next(); !errors.Is(again, stream.ErrResyncExhausted) {
		t.Fatalf("got %v", again)
	}
}

// failingReader serves its fixed prefix, then fails every read.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestReaderFailureSurfacesDuringResync(t *testing.T) {
	broken := errors.New("read: input/output error")
	r := &failingReader{data: bytes.Repeat([]byte{0xEE}, 2*dif.BlockSize), err: broken}
	p := stream.NewPipeline(r, dif.NTSC)
	_, err := p.Next()
	if !errors.Is(err, broken) {
		t.Fatalf("got %v", err)
	}
	if errors.Is(err, stream.ErrResyncExhausted) {
		t.Fatalf("reader failure reported as an exhausted scan: %v", err)
	}
	if _, again := p.Next(); !errors.Is(again, broken) {
		t.Fatalf("got %v", again)
	}
}

func TestTruncatedTailRecorded(t *testing.T) {
	raw := samples.Stream(dif.PAL, 1)
	raw = append(raw, bytes.Repeat([]byte{0xEE}, 40)...)
	p := stream.NewPipeline(bytes.NewReader(raw), dif.PAL, stream.WithInputName("tail.dv"))
	results := drain(t, p)
	if len(results) != 1 {
		t.Fatalf("%d frames, want 1", len(results))
	}
	var found bool
	for _, d := range p.Engine().Diagnostics() {
		if d.RuleId == "DV-STREAM-RESYNC" && strings.Contains(d.Message, "40 bytes skipped") {
			found = true
		}
	}
	if !found {
		t.Fatalf("trailing span not recorded: %+v", p.Engine().Diagnostics())
	}
}
