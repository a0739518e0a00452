package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatgate/global"
	"chatgate/logger"
	"chatgate/service/chat"
	"chatgate/service/chat/handlers"
	"chatgate/service/natsx"
	"chatgate/service/storage"
	redismgr "chatgate/service/storage/redis"
	"chatgate/tools/ids"
	"chatgate/tools/security"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Errorf("[boot] config: %v", err)
		os.Exit(1)
	}
	ids.SetNodeID(cfg.NodeID)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Errorf("[boot] store: %v", err)
		os.Exit(1)
	}
	defer closeStore()

	if cfg.RedisAddr != "" {
		if err := redismgr.Init(redismgr.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}); err != nil {
			logger.Errorf("[boot] redis: %v", err)
			os.Exit(1)
		}
		defer func() { _ = redismgr.Close() }()
		store = storage.NewCachedStore(store, redismgr.Get(), cfg.HistoryLimit)
		logger.Infof("[boot] recent-history cache enabled addr=%s", cfg.RedisAddr)
	}

	var events handlers.EventSink
	if cfg.NatsURL != "" {
		nc, nerr := natsx.NewClient(natsx.Config{URL: cfg.NatsURL, Name: "chatgate"})
		if nerr != nil {
			logger.Errorf("[boot] nats: %v", nerr)
			os.Exit(1)
		}
		defer func() { _ = nc.Close() }()
		events = natsx.NewProducer(nc, cfg.NatsSubject)
		logger.Infof("[boot] event feed enabled subject=%s", cfg.NatsSubject)
	}

	mgr := chat.NewConnManager(chat.ManagerConf{SendQueueSize: cfg.SendQueueSize})
	defer mgr.Close()

	fanout := chat.NewFanout(cfg.FanoutWorkers, cfg.FanoutQueue)
	defer fanout.Close()

	disp := chat.NewDispatcher()
	disp.Register(handlers.NewJoinHandler(mgr, store, cfg.StoreTimeout))
	disp.Register(handlers.NewChatHandler(mgr, store, fanout, events, cfg.StoreTimeout))

	liveness := chat.NewLiveness(mgr, cfg.PingInterval)
	liveness.Start()
	defer liveness.Stop()

	jwtOpts := security.DefaultOptions([]byte(cfg.JWTSecret))
	srv := chat.NewServer(chat.ServerConf{
		JWT:          jwtOpts,
		StoreTimeout: cfg.StoreTimeout,
		HistoryLimit: cfg.HistoryLimit,
	}, mgr, disp, store)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpSrv.ListenAndServe() }()
	logger.Infof("[boot] gateway listening on %s (store=%s)", cfg.Addr, cfg.StoreDriver)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("[boot] shutdown: %v", err)
		}
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[boot] serve: %v", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg *global.AppConfig) (storage.Store, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case "mongo":
		mg, err := storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return mg, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mg.Close(closeCtx)
		}, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}
