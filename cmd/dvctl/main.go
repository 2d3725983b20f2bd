package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/dvgate/internal/common"
	"example.com/dvgate/internal/crypto"
	"example.com/dvgate/internal/dif"
	"example.com/dvgate/internal/repair"
	"example.com/dvgate/internal/report"
	"example.com/dvgate/internal/rules"
	"example.com/dvgate/internal/stream"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type config struct {
	Standard        string    `yaml:"standard"`
	ResyncWindowKiB int       `yaml:"resyncWindowKiB"`
	RulePack        string    `yaml:"rulePack"`
	Logs            logConfig `yaml:"logs"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func setupLogging(cfg config) error {
	if cfg.Logs.Directory == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "dvctl.log"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	common.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "scan":
		scanCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "info":
		infoCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`dvctl %s (built %s) <command> [options]

Commands:
  scan    --in <file.dv> [--standard ntsc|pal|auto] [--rules <rulepack.json>] [--config <config.yaml>] --out <diagnostics.jsonl> --summary <scan_report.json> [--audit <repairs.jsonl>] [--metrics] [--progress]
  report  --summary <scan_report.json> --diagnostics <diagnostics.jsonl> --pdf <report.pdf> [--sign --key <key.pem> --jws-out <file.jws>]
  info    --in <file.dv> [--standard ntsc|pal|auto]
`, version, buildDate)
}

// resolveStandard turns the flag value into a system, probing the head of
// the file when asked to auto-detect.
func resolveStandard(name, in string) (dif.Standard, error) {
	if name != "auto" && name != "" {
		return dif.ParseStandard(name)
	}
	f, err := os.Open(in)
	if err != nil {
		return dif.NTSC, err
	}
	defer f.Close()
	probe := make([]byte, 16*dif.BlockSize)
	n, _ := io.ReadFull(f, probe)
	std, err := dif.DetectStandard(probe[:n])
	if err != nil {
		return std, fmt.Errorf("cannot auto-detect standard: %w", err)
	}
	return std, nil
}

func scanCmd(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	in := fs.String("in", "", "input DV capture")
	standard := fs.String("standard", "auto", "video system: ntsc, pal or auto")
	rulesPath := fs.String("rules", "", "rulepack.json")
	configPath := fs.String("config", "", "config.yaml")
	outDiag := fs.String("out", "diagnostics.jsonl", "diagnostics output")
	outSummary := fs.String("summary", "scan_report.json", "scan summary json")
	auditPath := fs.String("audit", "", "repair audit log (JSONL), empty disables")
	window := fs.Int("resync-window", 0, "resync window in KiB")
	metricsFlag := fs.Bool("metrics", false, "print scan throughput metrics")
	progressFlag := fs.Bool("progress", false, "display scan progress updates")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}

	var cfg config
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			common.Fatalf("load config: %v", err)
		}
		if err := setupLogging(cfg); err != nil {
			common.Fatalf("setup logging: %v", err)
		}
	}
	if *standard == "auto" && cfg.Standard != "" {
		*standard = cfg.Standard
	}
	if *window == 0 && cfg.ResyncWindowKiB > 0 {
		*window = cfg.ResyncWindowKiB
	}
	if *rulesPath == "" {
		*rulesPath = cfg.RulePack
	}

	std, err := resolveStandard(*standard, *in)
	if err != nil {
		common.Fatalf("%v", err)
	}

	eng := rules.NewDefaultEngine()
	if *rulesPath != "" {
		rp, err := rules.LoadRulePack(*rulesPath)
		if err != nil {
			common.Fatalf("load rule pack: %v", err)
		}
		eng = rules.NewEngine(rp)
		eng.RegisterBuiltins()
	}

	f, err := os.Open(*in)
	if err != nil {
		common.Fatalf("open input: %v", err)
	}
	defer f.Close()

	metrics := common.NewMetrics()
	if stat, err := f.Stat(); err == nil {
		metrics.SetTotalBytes(stat.Size())
	}
	var stopProgress func()
	if *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, time.Second)
	}
	metrics.Start()

	opts := []stream.Option{
		stream.WithEngine(eng),
		stream.WithMetrics(metrics),
		stream.WithInputName(*in),
	}
	if *window > 0 {
		opts = append(opts, stream.WithResyncWindow(*window*1024))
	}
	p := stream.NewPipeline(f, std, opts...)

	var results []*stream.Result
	for {
		r, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.Stop()
			if stopProgress != nil {
				stopProgress()
			}
			common.Fatalf("scan: %v", err)
		}
		results = append(results, r)
	}
	metrics.Stop()
	if stopProgress != nil {
		stopProgress()
	}

	if *auditPath != "" {
		audit := common.NewRepairLog(*auditPath)
		for _, r := range results {
			for _, fld := range r.Outcome.Fields {
				if fld.Verdict == repair.Trusted {
					continue
				}
				entry := common.RepairEntry{
					Frame:     r.Outcome.Frame.Number,
					Field:     fld.Field,
					Verdict:   fld.Verdict.String(),
					Adopted:   fld.Value,
					Discarded: fld.Discarded,
				}
				if fld.Verdict == repair.Repaired {
					entry.Source = fld.Source.String()
				}
				if err := audit.Append(entry); err != nil {
					common.Fatalf("write audit log: %v", err)
				}
			}
		}
	}

	if err := eng.WriteDiagnosticsNDJSON(*outDiag); err != nil {
		common.Fatalf("write diagnostics: %v", err)
	}
	rep := report.Build(*in, std, results, eng)
	if err := report.SaveScanJSON(rep, *outSummary); err != nil {
		common.Fatalf("write summary: %v", err)
	}

	if *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Printf("Processed %s in %s (%.2f MiB/s), %d blocks, %d frames, %d resyncs\n",
			common.FormatBytes(snap.Bytes), snap.Duration.Round(time.Millisecond),
			snap.ThroughputBytesPerSecond()/(1024*1024), snap.Blocks, snap.Frames, snap.Resyncs)
	}
	fmt.Printf("%s: %d frames, %d findings (%d errors, %d warnings), fields trusted/repaired/unrecoverable %d/%d/%d\n",
		*in, len(rep.Frames), rep.Acceptance.Summary.Total,
		rep.Acceptance.Summary.Errors, rep.Acceptance.Summary.Warnings,
		rep.Verdicts.Trusted, rep.Verdicts.Repaired, rep.Verdicts.Unrecoverable)
	if !rep.Acceptance.Summary.Pass {
		os.Exit(1)
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	summaryPath := fs.String("summary", "scan_report.json", "scan summary json")
	diagPath := fs.String("diagnostics", "diagnostics.jsonl", "diagnostics NDJSON")
	pdfPath := fs.String("pdf", "scan_report.pdf", "PDF output")
	sign := fs.Bool("sign", false, "sign the summary with an RSA key")
	keyPath := fs.String("key", "", "PEM private key for --sign")
	jwsOut := fs.String("jws-out", "scan_report.jws", "detached JWS output for --sign")
	fs.Parse(args)

	rep, err := report.LoadScanJSON(*summaryPath)
	if err != nil {
		common.Fatalf("load summary: %v", err)
	}
	digest := ""
	if *diagPath != "" {
		d, _, err := common.Sha256OfFile(*diagPath)
		if err != nil {
			common.Fatalf("hash diagnostics: %v", err)
		}
		digest = d
	}
	if err := report.SaveScanPDF(rep, digest, *pdfPath); err != nil {
		common.Fatalf("write pdf: %v", err)
	}
	fmt.Printf("wrote %s\n", *pdfPath)

	if *sign {
		if *keyPath == "" {
			common.Fatalf("--sign requires --key")
		}
		keyPEM, err := os.ReadFile(*keyPath)
		if err != nil {
			common.Fatalf("read key: %v", err)
		}
		payload, err := os.ReadFile(*summaryPath)
		if err != nil {
			common.Fatalf("read summary: %v", err)
		}
		jws, err := crypto.SignReport(payload, keyPEM)
		if err != nil {
			common.Fatalf("sign summary: %v", err)
		}
		b, _ := json.MarshalIndent(jws, "", "  ")
		if err := os.WriteFile(*jwsOut, b, 0644); err != nil {
			common.Fatalf("write jws: %v", err)
		}
		fmt.Printf("wrote %s\n", *jwsOut)
	}
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	in := fs.String("in", "", "input DV capture")
	standard := fs.String("standard", "auto", "video system: ntsc, pal or auto")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	std, err := resolveStandard(*standard, *in)
	if err != nil {
		common.Fatalf("%v", err)
	}
	f, err := os.Open(*in)
	if err != nil {
		common.Fatalf("open input: %v", err)
	}
	defer f.Close()

	p := stream.NewPipeline(f, std, stream.WithInputName(*in))
	fmt.Printf("%s: %s, %d blocks per frame\n", *in, std, std.FrameBlocks())
	for {
		r, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			common.Fatalf("scan: %v", err)
		}
		line := fmt.Sprintf("frame %4d  offset 0x%08X", r.Outcome.Frame.Number, r.Outcome.Frame.Offset)
		for _, fld := range r.Outcome.Fields {
			if fld.Field == "timecode" && fld.Value != "" {
				line += "  tc " + fld.Value
			}
		}
		if n := len(r.Outcome.Diagnostics); n > 0 {
			line += fmt.Sprintf("  findings %d", n)
		}
		fmt.Println(line)
	}
}
