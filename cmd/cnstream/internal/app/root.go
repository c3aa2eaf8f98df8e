// Package app builds the cobra command tree for cmd/cnstream: the
// illustrative CLI surface of spec.md §6. Flags are read directly; the
// topology file named by --config_fname is loaded through viper into
// config.PipelineConfig (spec.md's ambient config + domain-stack CLI
// sections).
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cnstream-go/cnstream/cmd/cnstream/internal/demo"
	"github.com/cnstream-go/cnstream/pkg/config"
	"github.com/cnstream-go/cnstream/pkg/eventbus"
	"github.com/cnstream-go/cnstream/pkg/log/logimpl"
	"github.com/cnstream-go/cnstream/pkg/metricsbridge"
	"github.com/cnstream-go/cnstream/pkg/pipeline"
)

type flags struct {
	configFname  string
	dataPath     string
	dataName     string
	loop         bool
	srcFrameRate int
	waitTime     int
	traceDataDir string
	metricsAddr  string
	logLevel     string
}

// Execute builds and runs the root cobra command, returning the error (if
// any) RunE produced. main translates a non-nil error into a non-zero
// exit code (spec.md §7 "non-zero on build or start failure").
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "cnstream",
		Short: "Run a pipeline topology described by a config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.configFname, "config_fname", "", "path to the topology config file (required)")
	cmd.Flags().StringVar(&f.dataPath, "data_path", "", "file listing stream names, one per line")
	cmd.Flags().StringVar(&f.dataName, "data_name", "", "a single stream name, used instead of --data_path")
	cmd.Flags().BoolVar(&f.loop, "loop", false, "keep replaying the stream list instead of sending a single pass plus EOS")
	cmd.Flags().IntVar(&f.srcFrameRate, "src_frame_rate", 0, "frames per second injected at the head stage, summed over all streams, 0 for unthrottled")
	cmd.Flags().IntVar(&f.waitTime, "wait_time", 0, "seconds to run before stopping, 0 to wait until every stream reaches EOS")
	cmd.Flags().StringVar(&f.traceDataDir, "trace_data_dir", "", "unused: trace-to-JSON serialization is out of scope (spec.md §1)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics_addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().StringVar(&f.logLevel, "log_level", "info", "debug|info|warn|error")

	_ = cmd.MarkFlagRequired("config_fname")
	return cmd
}

func run(ctx context.Context, f flags) error {
	logger, err := logimpl.New(logimpl.Params{Level: f.logLevel})
	if err != nil {
		return fmt.Errorf("cnstream: building logger: %w", err)
	}
	defer logger.Flush()

	cfg, err := loadConfig(f.configFname)
	if err != nil {
		return err
	}

	streamNames, err := streamNamesFrom(f)
	if err != nil {
		return err
	}

	b := pipeline.NewBuilder()
	hasParent := make(map[string]bool, len(cfg.Stages))
	for name, sc := range cfg.Stages {
		b.AddStage(pipeline.StageSpec{
			Name:          name,
			Parallelism:   sc.Parallelism,
			QueueCapacity: sc.MaxInputQueueSize,
			Next:          sc.Next,
			Stage:         demo.NewPassthrough(),
		})
		for _, next := range sc.Next {
			hasParent[next] = true
		}
	}
	headStage := ""
	for name := range cfg.Stages {
		if !hasParent[name] {
			headStage = name
			break
		}
	}
	if headStage == "" {
		return fmt.Errorf("cnstream: config %s declares no usable head stage", f.configFname)
	}

	streamCapacity := cfg.MaxStreamNumber
	p, err := b.Build(cfg.ToProfilerConfig(), streamCapacity, logger)
	if err != nil {
		return fmt.Errorf("cnstream: build failed: %w", err)
	}

	p.SetStreamMsgObserver(func(msg eventbus.StreamMsg) {
		logger.Infof("stream message: type=%d stream=%s module=%s", msg.Type, msg.StreamID, msg.ModuleName)
	})

	if err := p.Start(nil); err != nil {
		return fmt.Errorf("cnstream: start failed: %w", err)
	}
	defer p.Stop()

	var metricsServer *http.Server
	if f.metricsAddr != "" {
		bridge := metricsbridge.New()
		reg := prometheus.NewRegistry()
		if err := bridge.Register(reg); err != nil {
			return fmt.Errorf("cnstream: registering metrics: %w", err)
		}
		go refreshMetricsPeriodically(ctx, bridge, p)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: f.metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer metricsServer.Close()
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if f.waitTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(f.waitTime)*time.Second)
		defer cancel()
	}

	provider := &demo.DataProvider{
		Pipeline:     p,
		HeadStage:    headStage,
		StreamNames:  streamNames,
		SrcFrameRate: f.srcFrameRate,
		Loop:         f.loop,
	}
	sent := provider.Run(runCtx)
	logger.Infof("provided %d frames to %s", sent, headStage)

	if err := p.WaitForStop(runCtx, len(streamNames)); err != nil {
		return fmt.Errorf("cnstream: %w", err)
	}
	return nil
}

func loadConfig(path string) (*config.PipelineConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("cnstream: --config_fname is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("cnstream: %w", err)
	}
	return cfg, nil
}

func streamNamesFrom(f flags) ([]string, error) {
	if f.dataName != "" {
		return []string{f.dataName}, nil
	}
	if f.dataPath != "" {
		content, err := os.ReadFile(f.dataPath)
		if err != nil {
			return nil, fmt.Errorf("cnstream: reading --data_path: %w", err)
		}
		var names []string
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				names = append(names, line)
			}
		}
		return names, nil
	}
	return nil, fmt.Errorf("cnstream: one of --data_path or --data_name is required")
}

func refreshMetricsPeriodically(ctx context.Context, bridge *metricsbridge.Bridge, p *pipeline.Pipeline) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bridge.Observe(p.Profiler().GetProfile())
		}
	}
}
