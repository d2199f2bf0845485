package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"whisperclient/cfg"
	"whisperclient/db"
	"whisperclient/internal/app/api"
	"whisperclient/internal/app/monitoring"
	"whisperclient/pkg/resultstore"
	"whisperclient/pkg/s3client"
	"whisperclient/pkg/slg"
	"whisperclient/pkg/whisperx"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if code := appMain(os.Args[1:]); code != 0 {
		os.Exit(code)
	}
}

// appMain returns the exit code so deferred cleanups (ledger, influx flush) still run.
func appMain(args []string) int {
	var (
		cfgPath   string
		credsPath string
		file      string
		folder    string
		viewsList string
		interval  time.Duration
		noSkip    bool
		serve     bool
		debug     bool
	)

	flags := flag.NewFlagSet("app", flag.ContinueOnError)
	flags.StringVar(&cfgPath, "cfg-path", "cfg/cfg.yaml", "path to config file")
	flags.StringVar(&credsPath, "credentials", "", "path to a json credentials file, replaces -cfg-path")
	flags.StringVar(&file, "file", "", "transcribe a single audio file")
	flags.StringVar(&folder, "folder", "", "transcribe every audio file in a folder, defaults to the configured audio folder")
	flags.StringVar(&viewsList, "views", "", "comma separated result views: full,text,segments,words")
	flags.DurationVar(&interval, "interval", 0, "status polling interval")
	flags.BoolVar(&noSkip, "no-skip", false, "upload even if the server already has a finished job for the file")
	flags.BoolVar(&serve, "serve", false, "keep the status server running after the work is done")
	flags.BoolVar(&debug, "debug", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	var (
		config *cfg.Config
		err    error
	)
	if credsPath != "" {
		config, err = cfg.FromCredentials(credsPath)
	} else {
		config, err = cfg.Load(cfgPath)
	}
	if err != nil {
		log.Print(err)
		return 1
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var influxWriter slg.PointWriter
	if config.InfluxDB.URL != "" {
		writer, closeInflux := slg.NewInfluxWriter(&config.InfluxDB)
		defer closeInflux()

		influxWriter = writer
	}

	logger := slog.New(slg.NewHandler(os.Stdout, level, influxWriter))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	monitoring.RegisterMetrics(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []whisperx.Option{}

	var jobs api.JobStore
	if config.Ledger.ConnStr != "" {
		createDbCtx, cancelDb := context.WithTimeout(ctx, 10*time.Second)
		ledger, err := db.New(createDbCtx, &config.Ledger)
		if err == nil {
			_, err = ledger.Migrate(createDbCtx)
		}
		cancelDb()
		if err != nil {
			logger.Error("failed to init job ledger", "err", err)
			return 1
		}
		defer ledger.Close()

		jobs = ledger
		opts = append(opts, whisperx.WithLedger(ledger))
	}

	var results whisperx.ResultWriter = resultstore.NewLocal(config.Whisper.OutputFolder, config.Whisper.ErasePrevious)
	if config.Output.MirrorToS3 {
		s3, err := s3client.New(&config.S3)
		if err != nil {
			logger.Error("failed to init s3 client", "err", err)
			return 1
		}

		results = &resultstore.Mirror{
			Primary: results,
			Secondary: &resultstore.S3{
				Store:  s3,
				Bucket: config.Output.Bucket,
				Prefix: config.Output.Prefix,
				Erase:  config.Whisper.ErasePrevious,
			},
		}
	}
	opts = append(opts, whisperx.WithResultWriter(results))

	var client *whisperx.Client
	if credsPath != "" {
		client, err = whisperx.FromCredentials(credsPath, logger.WithGroup("whisper"), opts...)
	} else {
		client, err = whisperx.New(whisperx.NewHTTPClient(config.Whisper.Timeout), &config.Whisper, logger.WithGroup("whisper"), opts...)
	}
	if err != nil {
		logger.Error("failed to init whisper client", "err", err)
		return 1
	}
	defer client.Close()

	if viewsList == "" {
		viewsList = strings.Join(config.Batch.Views, ",")
	}
	views, err := whisperx.ParseViews(viewsList)
	if err != nil {
		logger.Error("invalid views", "err", err)
		return 1
	}

	if interval <= 0 {
		interval = config.Batch.Interval
	}

	skipIfDone := *config.Batch.SkipIfDone && !noSkip

	wg := sync.WaitGroup{}

	var srv *http.Server
	if config.Api.Port > 0 {
		srv = &http.Server{
			Addr:    ":" + strconv.Itoa(config.Api.Port),
			Handler: api.NewAPI(&config.Api, logger.WithGroup("api"), jobs, reg).NewRouter(),
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			logger.Info("Starting status server", "addr", srv.Addr)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ListenAndServe finished", "err", err)
			}
		}()
	}

	logger.Info("using transcription api", "url", client.BaseURL(), "views", viewsList, "interval", interval.String())

	exitCode := 0
	if err := run(ctx, logger, client, file, folder, views, interval, skipIfDone); err != nil {
		exitCode = 1
	}

	if srv != nil {
		if serve && ctx.Err() == nil {
			logger.Info("work done, serving until interrupted")
			<-ctx.Done()
		}

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown status server", "err", err)
		}
		cancelShutdown()
	}

	wg.Wait()

	return exitCode
}

// run reports input problems and returns only failures that should change the exit code.
func run(ctx context.Context, logger *slog.Logger, client *whisperx.Client, file, folder string, views []whisperx.View, interval time.Duration, skipIfDone bool) (err error) {
	mode := "folder"
	if file != "" {
		mode = "file"
	}

	start := time.Now()
	defer func() {
		monitoring.AppMetrics.RunTime.WithLabelValues(mode).Observe(time.Since(start).Seconds())

		outcome := "ok"
		if err != nil {
			outcome = "error"
		} else {
			monitoring.AppMetrics.LastRunSuccess.SetToCurrentTime()
		}
		monitoring.AppMetrics.Runs.WithLabelValues(mode, outcome).Inc()
	}()

	if file != "" {
		job, err := client.Transcribe(ctx, file, views, interval)
		if err != nil {
			return report(logger, err)
		}

		logger.Info("transcription finished", "hash", job.Hash, "launched", job.Launched)
		return nil
	}

	batch, err := client.ProcessFolder(ctx, folder, views, interval, skipIfDone)
	monitoring.ObserveBatch(batch)
	if err != nil {
		return report(logger, err)
	}

	for _, failure := range batch.Failures {
		logger.Warn("file failed", "path", failure.Path, "hash", failure.Hash, "err", failure.Err)
	}

	return nil
}

func report(logger *slog.Logger, err error) error {
	switch {
	case errors.Is(err, whisperx.ErrNotFound):
		logger.Warn("nothing to do", "err", err)
		return nil
	case errors.Is(err, context.Canceled):
		logger.Info("interrupted")
		return nil
	default:
		logger.Error("transcription failed", "err", err)
		return err
	}
}
