// dpcqueue serves deferred procedure calls over QUIC.
//
// Synopsis:
//
//	dpcqueue server [--config FILE] [--listen ADDR] [--metrics ADDR]
//	dpcqueue client [--addr ADDR] [--level LEVEL] [--procedure NAME] [-n COUNT]
//	dpcqueue bench  [--sources N] [--calls N] [--csv FILE]
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dpcqueue/src/bench"
	"dpcqueue/src/client"
	"dpcqueue/src/config"
	"dpcqueue/src/logger"
	"dpcqueue/src/model"
	"dpcqueue/src/report"
	"dpcqueue/src/server"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = "Usage: dpcqueue server|client|bench [flags]"

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(ctx, os.Args[2:])
	case "client":
		err = runClient(ctx, os.Args[2:])
	case "bench":
		err = runBench(ctx, os.Args[2:])
	default:
		err = fmt.Errorf("unknown command %q\n%s", os.Args[1], usage)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runServer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	path := fs.String("config", "", "config file")
	listen := fs.String("listen", "", "QUIC listen address")
	metrics := fs.String("metrics", "", "Prometheus listen address")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := config.DefaultConfig()
	if *path != "" {
		var err error
		if c, err = config.ReadFile(*path); err != nil {
			return err
		}
	}
	if fs.Changed("listen") {
		c.ListenAddr = *listen
	}
	if fs.Changed("metrics") {
		c.MetricsAddr = *metrics
	}
	if fs.Changed("log-level") {
		c.LogLevel = *logLevel
	}

	l, err := logger.New(c.LogLevel)
	if err != nil {
		return err
	}
	defer l.Sync()

	s, err := server.NewServer(c, l)
	if err != nil {
		return err
	}
	return s.Start(ctx)
}

func runClient(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	addr := fs.String("addr", config.DefaultConfig().ListenAddr, "server address")
	levelName := fs.String("level", "TPL_CALLBACK", "level to queue at")
	procedure := fs.String("procedure", "echo", "echo, noop or stats")
	payload := fs.String("context", "", "context bytes passed to the procedure")
	delay := fs.Int("delay", 0, "delay in milliseconds")
	count := fs.IntP("count", "n", 1, "number of requests")
	concurrency := fs.Int("concurrency", 8, "requests in flight")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level, err := model.ParsePriority(*levelName)
	if err != nil {
		return err
	}
	l, err := logger.New(*logLevel)
	if err != nil {
		return err
	}
	defer l.Sync()

	c, err := client.Dial(ctx, *addr, l)
	if err != nil {
		return err
	}
	defer c.Close()

	reqs := make([]*model.DpcRequest, *count)
	for i := range reqs {
		reqs[i] = &model.DpcRequest{
			Priority:  level,
			Procedure: *procedure,
			Delay:     *delay,
			Context:   []byte(*payload),
		}
	}

	responses, err := c.CallAll(ctx, reqs, *concurrency)
	if err != nil {
		return err
	}
	for _, res := range responses {
		l.Info("response",
			zap.Stringer("id", res.ID),
			zap.Stringer("level", res.Priority),
			zap.String("status", string(res.Status)),
		)
		if len(res.Data) > 0 {
			fmt.Printf("%s\n", res.Data)
		}
	}
	return nil
}

func runBench(ctx context.Context, args []string) error {
	opts := bench.DefaultOptions()

	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	fs.IntVar(&opts.Sources, "sources", opts.Sources, "concurrent interrupt sources")
	fs.IntVar(&opts.CallsPerSource, "calls", opts.CallsPerSource, "calls queued per source")
	fs.IntVar(&opts.BatchSize, "batch-size", opts.BatchSize, "entries per pool growth")
	fs.IntVar(&opts.InitialEntries, "initial-entries", opts.InitialEntries, "entries allocated up front")
	fs.IntVar(&opts.MaxEntries, "max-entries", opts.MaxEntries, "allocator budget, 0 for no limit")
	fs.DurationVar(&opts.Work, "work", opts.Work, "time spent in every procedure")
	fs.Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	csvPath := fs.String("csv", "", "also write per level results to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := bench.Run(ctx, opts)
	if err != nil {
		return err
	}
	report.Write(os.Stdout, result)

	if *csvPath == "" {
		return nil
	}
	f, err := os.Create(*csvPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.WriteCSV(f, result)
}
