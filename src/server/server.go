package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"dpcqueue/src/config"
	"dpcqueue/src/dpc"
	"dpcqueue/src/server/stream_handler"
	"dpcqueue/src/task"
	"dpcqueue/src/timer"
	"dpcqueue/src/tpl"

	"github.com/quic-go/quic-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	config   config.Config
	log      *zap.Logger
	registry *prometheus.Registry

	domain     *tpl.Domain
	scheduler  *dpc.Scheduler
	dispatcher *task.Dispatcher
	timer      *timer.Timer
	handler    *stream_handler.StreamHandler

	listener *quic.Listener
}

func NewServer(c config.Config, log *zap.Logger) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	domain := tpl.NewDomain(c.MaxLevel)
	dispatcher := task.NewDispatcher(domain.NewTask(c.MinLevel), log.Named("dispatcher"))

	opts := c.SchedulerOptions()
	opts.Logger = log.Named("dpc")
	opts.Registry = registry
	opts.OnQueued = dispatcher.Signal
	scheduler, err := dpc.New(domain, opts)
	if err != nil {
		return nil, err
	}

	tm := timer.New(scheduler, c.TimerCapacity, log.Named("timer"))

	return &Server{
		config:   c,
		log:      log,
		registry: registry,

		domain:     domain,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		timer:      tm,
		handler: stream_handler.NewStreamHandler(
			scheduler, tm, stream_handler.DefaultRegistry(scheduler), log.Named("stream")),
	}, nil
}

func (s *Server) Scheduler() *dpc.Scheduler {
	return s.scheduler
}

// Binds the listen address. Start does it when not done before.
func (s *Server) Listen() error {
	tlsConf, err := GenerateTLSConfig()
	if err != nil {
		return err
	}
	s.listener, err = quic.ListenAddr(s.config.ListenAddr, tlsConf, quicConfig())
	return err
}

// Bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serves until ctx is done or a component fails.
func (s *Server) Start(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	listener := s.listener

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.dispatcher.Run(s.scheduler)
		return nil
	})

	g.Go(func() error {
		s.timer.Run(ctx, s.domain.NewTask(s.config.MinLevel), s.config.TimerInterval)
		return nil
	})

	if s.config.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    s.config.MetricsAddr,
			Handler: promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			s.log.Info("metrics listening", zap.String("addr", s.config.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return metricsServer.Close()
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.dispatcher.Stop()
		return listener.Close()
	})

	g.Go(func() error {
		s.log.Info("server listening", zap.String("addr", s.config.ListenAddr))
		for {
			connection, err := listener.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			go s.onConnectionAccepted(ctx, connection)
		}
	})

	return g.Wait()
}

func (s *Server) onConnectionAccepted(ctx context.Context, connection quic.Connection) {
	log := s.log.With(zap.Stringer("remote", connection.RemoteAddr()))
	log.Debug("connection accepted")

	for {
		stream, err := connection.AcceptStream(ctx)
		if err != nil {
			log.Debug("connection closed", zap.Error(err))
			return
		}

		// One task per stream, tasks are not shared between goroutines
		go s.handler.HandleStream(s.domain.NewTask(s.config.MinLevel), stream)
	}
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:        5 * time.Minute,
		HandshakeIdleTimeout:  10 * time.Second,
		MaxIncomingStreams:    20000,
		MaxIncomingUniStreams: 20000,
	}
}
