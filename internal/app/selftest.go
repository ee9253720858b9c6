package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tturner/cipstack/internal/cip/catalog"
	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/connection"
	"github.com/tturner/cipstack/internal/cip/protocol"
	"github.com/tturner/cipstack/internal/config"
	"github.com/tturner/cipstack/internal/enip"
	"github.com/tturner/cipstack/internal/logging"
	"github.com/tturner/cipstack/internal/messenger"
	"github.com/tturner/cipstack/internal/metrics"
	"github.com/tturner/cipstack/internal/pcap"
	"github.com/tturner/cipstack/internal/progress"
	"github.com/tturner/cipstack/internal/report"
	"github.com/tturner/cipstack/internal/target"
)

// pipeDepth bounds the frames queued between the messenger and the target.
const pipeDepth = 16

// SelfTestOptions configures a loopback run.
type SelfTestOptions struct {
	Config    *config.Config   // nil means defaults
	Catalog   *catalog.Catalog // nil means the built-in catalog
	Logger    *logging.Logger
	Capture   io.Writer // optional pcap output
	Progress  io.Writer // optional progress line, usually stderr
	Version   string
	Keys      []string // catalog keys to run, all when empty
	Connected bool     // also run every entry over a class 3 connection
}

// SelfTestRun is the outcome of RunSelfTest.
type SelfTestRun struct {
	Report  *report.SelfTestReport
	Metrics *metrics.Sink
	Target  target.Stats

	bar *progress.Bar
}

// RunSelfTest replays catalog requests against an in-process target
// through the full messaging stack: session framing, the messenger and,
// when requested, a Forward Open connection. Unconnected requests travel
// inside Unconnected Send when the configured route is not empty.
//
// Status errors are replies and are reported, not returned. The error
// result covers setup failures only.
func RunSelfTest(ctx context.Context, opts SelfTestOptions) (*SelfTestRun, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.CreateDefaultConfig()
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Core()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	entries, err := selectEntries(cat, opts.Keys)
	if err != nil {
		return nil, err
	}
	params, err := cfg.Connection.Params()
	if err != nil {
		return nil, fmt.Errorf("connection parameters: %w", err)
	}
	routeSegs, err := config.ParseRoute(cfg.Connection.Route)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	targetOpts, err := cfg.Target.Options(log)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	tgt := target.New(targetOpts...)

	var capture *pcap.Writer
	if opts.Capture != nil {
		if capture, err = pcap.NewWriter(opts.Capture); err != nil {
			return nil, err
		}
	}

	handle, err := registerSession(tgt, capture)
	if err != nil {
		return nil, err
	}
	log.Verbose("selftest: session 0x%08X registered", handle)

	pipe := target.NewPipe(tgt, pipeDepth)
	var w io.Writer = pipe
	if capture != nil {
		w = capture.Tap(pipe)
	}
	m := messenger.New(&enip.Session{Handle: handle, W: w},
		messenger.WithLogger(log),
		messenger.WithRequestTimeout(cfg.RequestTimeout()))

	runCtx, cancel := context.WithCancel(ctx)
	go pipe.Run(runCtx, func(frame []byte) {
		if capture != nil {
			if err := capture.WriteFrame(false, frame); err != nil {
				log.Error("selftest: capture reply: %v", err)
			}
		}
		if err := m.HandleFrame(frame); err != nil {
			log.Debug("selftest: %v", err)
		}
	})
	defer func() {
		cancel()
		pipe.Close()
		m.Close()
	}()

	run := &SelfTestRun{
		Report: &report.SelfTestReport{
			GeneratedAt: report.FormatTimestamp(time.Now()),
			Version:     opts.Version,
			Catalog:     cat.Name(),
		},
		Metrics: metrics.NewSink(),
	}
	steps := len(entries)
	if opts.Connected {
		steps *= 2
	}
	run.bar = progress.New(opts.Progress, steps, "selftest")
	var route codec.EPath
	if len(routeSegs) > 0 {
		route = codec.NewEPath(true, routeSegs...)
	}

	for _, e := range entries {
		req, err := e.Request()
		if err == nil && len(routeSegs) > 0 {
			req, err = protocol.NewUnconnectedSend(req, route, cfg.Connection.PriorityTick, cfg.Connection.TimeoutTicks)
		}
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Key, err)
		}
		start := time.Now()
		resp, err := m.Request(ctx, req)
		run.add(e, false, start, time.Since(start), resp, err)
		log.LogExchange(e.Label(), e.Key, statusOf(resp), time.Since(start), err)
	}

	if opts.Connected {
		if err := runConnected(ctx, m, params, entries, run, log); err != nil {
			return nil, err
		}
	}

	run.bar.Finish()
	run.Target = tgt.Stats()
	return run, nil
}

func runConnected(ctx context.Context, m *messenger.Messenger, params connection.Params, entries []*catalog.Entry, run *SelfTestRun, log *logging.Logger) error {
	start := time.Now()
	c, err := m.Connect(ctx, params)
	opened := metrics.Exchange(metrics.OperationForwardOpen, "Forward_Open", start, time.Since(start), err)
	run.Metrics.Record(opened)
	if err != nil {
		run.Report.Add(report.SelfTestResult{
			Key:       "connection_manager.forward_open",
			Label:     opened.Label,
			Connected: true,
			Outcome:   opened.Outcome,
			Status:    opened.Status,
			Error:     opened.Error,
		})
		return nil
	}

	for _, e := range entries {
		req, err := e.Request()
		if err != nil {
			return fmt.Errorf("entry %s: %w", e.Key, err)
		}
		start := time.Now()
		resp, err := m.Send(ctx, c, req)
		run.add(e, true, start, time.Since(start), resp, err)
		log.LogExchange(e.Label(), e.Key, statusOf(resp), time.Since(start), err)
	}

	start = time.Now()
	err = m.Disconnect(ctx, c)
	run.Metrics.Record(metrics.Exchange(metrics.OperationForwardClose, "Forward_Close", start, time.Since(start), err))
	if err != nil {
		log.Error("selftest: disconnect: %v", err)
	}
	return nil
}

func (r *SelfTestRun) add(e *catalog.Entry, connected bool, start time.Time, rtt time.Duration, resp *protocol.Response, err error) {
	op := metrics.OperationRequest
	if connected {
		op = metrics.OperationConnected
	}
	if resp == nil && err != nil {
		rtt = 0
	}
	metric := metrics.Exchange(op, e.Label(), start, rtt, err)
	r.Metrics.Record(metric)

	res := report.SelfTestResult{
		Key:       e.Key,
		Label:     e.Label(),
		Connected: connected,
		Outcome:   metric.Outcome,
		Status:    metric.Status,
		Error:     metric.Error,
		RTTMs:     float64(rtt.Microseconds()) / 1000,
	}
	if err == nil {
		res.Value = formatValue(resp)
	}
	r.Report.Add(res)
	r.bar.Step(metric.Outcome == metrics.OutcomeSuccess || metric.Outcome == metrics.OutcomeStatusError)
}

func registerSession(tgt *target.Target, capture *pcap.Writer) (uint32, error) {
	frame := enip.Encapsulation{Command: enip.CommandRegisterSession, Data: enip.RegisterSessionData()}.Encode()
	reply, err := tgt.HandleFrame(frame)
	if err != nil {
		return 0, fmt.Errorf("register session: %w", err)
	}
	if capture != nil {
		if err := capture.WriteFrame(true, frame); err != nil {
			return 0, err
		}
		if err := capture.WriteFrame(false, reply); err != nil {
			return 0, err
		}
	}
	return enip.ParseRegisterSession(reply)
}

func selectEntries(cat *catalog.Catalog, keys []string) ([]*catalog.Entry, error) {
	if len(keys) == 0 {
		return cat.ListAll(), nil
	}
	entries := make([]*catalog.Entry, 0, len(keys))
	for _, key := range keys {
		e, ok := cat.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("catalog %s has no entry %q", cat.Name(), key)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func statusOf(resp *protocol.Response) uint8 {
	if resp == nil {
		return 0
	}
	return resp.Status.Code
}

// formatValue renders a decoded reply, or its raw data when the entry
// names no response type.
func formatValue(resp *protocol.Response) string {
	if resp == nil {
		return ""
	}
	if resp.Value != nil {
		return fmt.Sprint(resp.Value)
	}
	if len(resp.Data) == 0 {
		return ""
	}
	const limit = 16
	if len(resp.Data) > limit {
		return fmt.Sprintf("% X ... (%d bytes)", resp.Data[:limit], len(resp.Data))
	}
	return fmt.Sprintf("% X", resp.Data)
}
