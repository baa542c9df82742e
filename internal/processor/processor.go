// Package processor turns a validated request into artifact bytes: load the
// source, run the external tool under a concurrency budget, and cache the
// result. Identical in-flight requests are coalesced onto one execution.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/audio-gateway/internal/cache"
	"github.com/JakeFAU/audio-gateway/internal/config"
	"github.com/JakeFAU/audio-gateway/internal/gateway"
	"github.com/JakeFAU/audio-gateway/internal/metrics"
	"github.com/JakeFAU/audio-gateway/internal/source"
)

// Cache status values reported to clients via the X-Cache header.
const (
	StatusHit       = "HIT"
	StatusMiss      = "MISS"
	StatusCoalesced = "COALESCED"
)

const maxStderrLog = 2048

// Result is a finished artifact plus how it was obtained.
type Result struct {
	Data        []byte
	MIME        string
	CacheStatus string
	Fingerprint string
}

// Processor owns the load -> transform -> cache pipeline.
type Processor struct {
	cfg           config.ProcessorConfig
	loader        *source.Loader
	cache         cache.Cache
	results       source.Storage
	safe          gateway.SafeChars
	tags          map[string]string
	maxSourceSize int64
	runner        CommandRunner
	sem           *semaphore.Weighted
	group         singleflight.Group
	logger        *zap.Logger

	// baseCtx outlives individual requests so a coalesced computation is
	// not cancelled when one of its waiters gives up. It is tied to server
	// shutdown instead.
	baseCtx context.Context
}

// Options collects the processor's collaborators.
type Options struct {
	Loader  *source.Loader
	Cache   cache.Cache
	Results source.Storage
	Safe    gateway.SafeChars
	Tags    map[string]string
	// MaxSourceSize bounds loaded source bytes; <= 0 disables the check.
	MaxSourceSize int64
	Runner        CommandRunner
	Logger        *zap.Logger
}

// New builds a Processor. baseCtx should be cancelled on server shutdown.
func New(baseCtx context.Context, cfg config.ProcessorConfig, opts Options) *Processor {
	permits := cfg.Concurrency
	if permits <= 0 {
		permits = runtime.NumCPU()
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Processor{
		cfg:           cfg,
		loader:        opts.Loader,
		cache:         opts.Cache,
		results:       opts.Results,
		safe:          opts.Safe,
		tags:          opts.Tags,
		maxSourceSize: opts.MaxSourceSize,
		runner:        runner,
		sem:           semaphore.NewWeighted(int64(permits)),
		logger:        opts.Logger,
		baseCtx:       baseCtx,
	}
}

// Process returns the artifact for the source and parameters, from cache
// when possible. Concurrent requests for the same fingerprint share one
// execution; only the leader reports a MISS.
func (p *Processor) Process(ctx context.Context, sourceURI string, params *gateway.Params) (*Result, error) {
	canonical := gateway.CanonicalString(sourceURI, params, p.safe)
	fp := gateway.Fingerprint(canonical)
	mime := params.OutputFormat().MIMEType()

	if data, ok := p.cache.Get(ctx, fp); ok {
		return &Result{Data: data, MIME: mime, CacheStatus: StatusHit, Fingerprint: fp}, nil
	}

	var leader bool
	ch := p.group.DoChan(fp, func() (any, error) {
		leader = true
		return p.compute(canonical, fp, sourceURI, params)
	})

	select {
	case <-ctx.Done():
		return nil, gateway.Wrap(gateway.KindTimeout, ctx.Err(), "request abandoned: %s", fp)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		out := *(res.Val.(*Result))
		out.Fingerprint = fp
		out.MIME = mime
		if leader {
			out.CacheStatus = StatusMiss
		} else {
			out.CacheStatus = StatusCoalesced
		}
		return &out, nil
	}
}

// compute runs on the processor's base context so it survives waiter
// abandonment and dies with server shutdown.
func (p *Processor) compute(canonical, fp, sourceURI string, params *gateway.Params) (*Result, error) {
	ctx, cancel := context.WithTimeout(p.baseCtx, time.Duration(p.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	// A previous leader may have finished between our cache miss and the
	// flight starting.
	if data, ok := p.cache.Get(ctx, fp); ok {
		return &Result{Data: data, CacheStatus: StatusHit}, nil
	}

	src, err := p.loader.Load(ctx, sourceURI)
	if err != nil {
		return nil, err
	}
	if p.maxSourceSize > 0 && int64(len(src)) > p.maxSourceSize {
		return nil, gateway.E(gateway.KindPayloadTooLarge, "source exceeds %d bytes: %s", p.maxSourceSize, sourceURI)
	}

	data, err := p.transform(ctx, src, sourceURI, params)
	if err != nil {
		return nil, err
	}

	p.cache.Put(p.baseCtx, fp, data)
	p.persistResult(canonical, params, data)

	return &Result{Data: data, CacheStatus: StatusMiss}, nil
}

// transform writes the source to a scratch directory, runs the external tool
// under the concurrency budget, and reads back the produced artifact.
func (p *Processor) transform(ctx context.Context, src []byte, sourceURI string, params *gateway.Params) ([]byte, error) {
	workDir, err := os.MkdirTemp(p.cfg.WorkDir, "audio-gateway-*")
	if err != nil {
		return nil, gateway.Wrap(gateway.KindInternal, err, "create scratch directory")
	}
	defer os.RemoveAll(workDir)

	inFormat := gateway.DetectFormat(src, sourceURI)
	inPath := filepath.Join(workDir, "in."+inFormat.Extension())
	outPath := filepath.Join(workDir, "out."+params.OutputFormat().Extension())
	if err := os.WriteFile(inPath, src, 0o600); err != nil {
		return nil, gateway.Wrap(gateway.KindInternal, err, "write scratch input")
	}

	// Request tags are layered on top of the configured and default tags.
	tags := p.tags
	if len(params.Tags) > 0 {
		tags = make(map[string]string, len(p.tags)+len(params.Tags))
		for k, v := range p.tags {
			tags[k] = v
		}
		for k, v := range params.Tags {
			tags[k] = v
		}
	}
	args := gateway.FFmpegArgs(params, inPath, outPath, tags)

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	_, stderr, err := p.runner.Run(ctx, p.cfg.FFmpegPath, args...)
	if err != nil {
		if ctx.Err() != nil {
			metrics.ObserveProcessorRun("timeout")
			return nil, gateway.Wrap(gateway.KindTimeout, ctx.Err(), "processing timed out after %ds", p.cfg.TimeoutSeconds)
		}
		metrics.ObserveProcessorRun("error")
		p.logger.Error("tool invocation failed",
			zap.String("source", sourceURI),
			zap.ByteString("stderr", truncate(stderr, maxStderrLog)),
			zap.Error(err))
		return nil, gateway.Wrap(gateway.KindProcessing, err, "audio processing failed")
	}
	metrics.ObserveProcessorRun("ok")
	p.logger.Debug("tool invocation finished",
		zap.String("source", sourceURI),
		zap.Duration("elapsed", time.Since(start)))

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, gateway.Wrap(gateway.KindProcessing, err, "read produced artifact")
	}
	if p.cfg.MaxOutputSize > 0 && int64(len(data)) > p.cfg.MaxOutputSize {
		return nil, gateway.E(gateway.KindPayloadTooLarge, "artifact exceeds %d bytes", p.cfg.MaxOutputSize)
	}
	return data, nil
}

// acquire takes a subprocess permit, giving up when the context expires.
func (p *Processor) acquire(ctx context.Context) (func(), error) {
	waitStart := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, gateway.Wrap(gateway.KindTimeout, err, "timed out waiting for a processing slot")
		}
		return nil, gateway.Wrap(gateway.KindTimeout, err, "gave up waiting for a processing slot")
	}
	metrics.ObserveSemaphoreWait(time.Since(waitStart))
	metrics.IncActiveJobs()
	return func() {
		p.sem.Release(1)
		metrics.DecActiveJobs()
	}, nil
}

// persistResult writes the artifact through to the result store. Failures
// are logged and swallowed: persistence is an optimization, not a promise.
func (p *Processor) persistResult(canonical string, params *gateway.Params, data []byte) {
	if p.results == nil {
		return
	}
	key := gateway.ResultKey(canonical, params)
	if err := p.results.Put(p.baseCtx, key, data, params.OutputFormat().MIMEType()); err != nil {
		p.logger.Warn("result store write failed", zap.String("key", key), zap.Error(err))
		metrics.ObserveStoreError("results")
	}
}

// Meta probes the source with ffprobe and returns its JSON description.
func (p *Processor) Meta(ctx context.Context, sourceURI string) (json.RawMessage, error) {
	src, err := p.loader.Load(ctx, sourceURI)
	if err != nil {
		return nil, err
	}
	if p.maxSourceSize > 0 && int64(len(src)) > p.maxSourceSize {
		return nil, gateway.E(gateway.KindPayloadTooLarge, "source exceeds %d bytes: %s", p.maxSourceSize, sourceURI)
	}

	workDir, err := os.MkdirTemp(p.cfg.WorkDir, "audio-gateway-*")
	if err != nil {
		return nil, gateway.Wrap(gateway.KindInternal, err, "create scratch directory")
	}
	defer os.RemoveAll(workDir)

	inPath := filepath.Join(workDir, "in."+gateway.DetectFormat(src, sourceURI).Extension())
	if err := os.WriteFile(inPath, src, 0o600); err != nil {
		return nil, gateway.Wrap(gateway.KindInternal, err, "write scratch input")
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	release, err := p.acquire(runCtx)
	if err != nil {
		return nil, err
	}
	defer release()

	stdout, stderr, err := p.runner.Run(runCtx, p.cfg.FFprobePath,
		"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", inPath)
	if err != nil {
		if runCtx.Err() != nil {
			metrics.ObserveProcessorRun("timeout")
			return nil, gateway.Wrap(gateway.KindTimeout, runCtx.Err(), "probing timed out after %ds", p.cfg.TimeoutSeconds)
		}
		metrics.ObserveProcessorRun("error")
		p.logger.Error("probe invocation failed",
			zap.String("source", sourceURI),
			zap.ByteString("stderr", truncate(stderr, maxStderrLog)),
			zap.Error(err))
		return nil, gateway.Wrap(gateway.KindProcessing, err, "audio probing failed")
	}
	metrics.ObserveProcessorRun("ok")

	if !json.Valid(stdout) {
		return nil, gateway.E(gateway.KindProcessing, "probe produced invalid metadata")
	}
	return json.RawMessage(stdout), nil
}

// Ping probes the source store and, when it supports probing, the cache.
func (p *Processor) Ping(ctx context.Context) error {
	if err := p.loader.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if pinger, ok := p.cache.(cache.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
