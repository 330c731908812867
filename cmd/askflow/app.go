package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/askflow/checkpoint"
	"github.com/BaSui01/askflow/config"
	"github.com/BaSui01/askflow/critic"
	"github.com/BaSui01/askflow/internal/cache"
	"github.com/BaSui01/askflow/internal/database"
	"github.com/BaSui01/askflow/internal/metrics"
	"github.com/BaSui01/askflow/internal/server"
	"github.com/BaSui01/askflow/internal/telemetry"
	"github.com/BaSui01/askflow/internal/tlsutil"
	"github.com/BaSui01/askflow/llm"
	"github.com/BaSui01/askflow/llm/tokenizer"
	"github.com/BaSui01/askflow/memory"
	"github.com/BaSui01/askflow/rag"
	"github.com/BaSui01/askflow/rules"
	"github.com/BaSui01/askflow/workflow"
)

// app 持有一次命令执行所需的全部组件
type app struct {
	orchestrator *workflow.Orchestrator
	checkpoints  *checkpoint.Manager
	store        memory.Store
	ops          *server.Manager
	logger       *zap.Logger

	closers []func(context.Context) error
}

// collaborators 四个外部协作方
type collaborators struct {
	planner   workflow.Planner
	retriever workflow.Retriever
	judge     workflow.Judge
	generator workflow.Generator
}

// =============================================================================
// 🔌 组件装配
// =============================================================================

// newApp 按配置装配存储、协作方与编排器。失败时已创建的资源会被释放。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		// 遥测不可用不影响任务执行
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		a.onClose(providers.Shutdown)
	}
	instruments, err := telemetry.NewStageInstruments()
	if err != nil {
		return nil, fmt.Errorf("create stage instruments: %w", err)
	}

	var (
		registry  *prometheus.Registry
		collector *metrics.Collector
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, registry, logger)
	}

	checks := make(map[string]server.HealthCheck)

	var rdb redis.UniversalClient
	if cfg.UsesRedis() {
		rdb, err = openRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return rdb.Close() })
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	a.store, err = memory.NewStore(memory.StoreConfig{
		Type:      memory.StoreType(cfg.Memory.Type),
		TTL:       cfg.Memory.TTL,
		KeyPrefix: cfg.Redis.KeyPrefix,
		Client:    rdb,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return a.store.Close() })
	checks["memory"] = a.store.Ping

	cpStore, err := checkpoint.NewStore(checkpoint.Config{
		Type:      checkpoint.StoreType(cfg.Checkpoint.Type),
		Dir:       cfg.Checkpoint.Dir,
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Checkpoint.TTL,
		Client:    rdb,
		Database:  databaseConfig(cfg.Database),
	}, logger)
	if err != nil {
		return nil, err
	}
	if sqlStore, ok := cpStore.(*checkpoint.SQLStore); ok {
		checks["database"] = sqlStore.Ping
	}
	a.checkpoints = checkpoint.NewManager(cpStore, cfg.Checkpoint.Type, logger)
	a.onClose(func(context.Context) error { return a.checkpoints.Close() })
	if collector != nil {
		a.checkpoints.WithObserver(collector)
	}

	collab, err := newCollaborators(cfg, rdb, collector, logger)
	if err != nil {
		return nil, err
	}

	opts := workflow.Options{
		Store:       a.store,
		Checkpoints: a.checkpoints,
		Planner:     collab.planner,
		Retriever:   collab.retriever,
		Judge:       collab.judge,
		Generator:   collab.generator,
		Policy:      critic.Policy{MaxRetry: cfg.Pipeline.MaxRetry},
		TopK:        cfg.Pipeline.TopK,
		PreviewSize: cfg.Pipeline.EvidencePreview,
		MaxSteps:    cfg.Pipeline.MaxSteps,
		Logger:      logger,
		Instruments: instruments,
	}
	if collector != nil {
		opts.Metrics = collector
	}
	a.orchestrator, err = workflow.New(opts)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.ListenAddr != "" {
		var gatherer prometheus.Gatherer
		if registry != nil {
			gatherer = registry
		}
		scfg := server.DefaultConfig()
		scfg.Addr = cfg.Metrics.ListenAddr
		a.ops = server.NewManager(server.NewOpsHandler(gatherer, checks, 2*time.Second), scfg, logger)
		if err := a.ops.Start(); err != nil {
			return nil, err
		}
		a.onClose(a.ops.Shutdown)
	}
	return a, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close 逆序释放资源
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openRedis 创建所有 Redis 组件共享的客户端
func openRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.RedisTLSConfig(cfg.Addr)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func databaseConfig(c config.DatabaseConfig) database.Config {
	pool := database.DefaultPoolConfig()
	if c.MaxOpenConns > 0 {
		pool.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns > 0 {
		pool.MaxIdleConns = c.MaxIdleConns
	}
	if c.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = c.ConnMaxLifetime
	}
	return database.Config{
		Driver:   c.Driver,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Name:     c.Name,
		SSLMode:  c.SSLMode,
		Pool:     pool,
	}
}

// newCollaborators 选择 LLM 协作方或本地规则协作方；检索始终使用本地语料。
func newCollaborators(cfg *config.Config, rdb redis.UniversalClient, collector *metrics.Collector, logger *zap.Logger) (collaborators, error) {
	docs := rag.SampleDocuments()
	if cfg.Retrieval.CorpusPath != "" {
		loaded, err := rag.LoadCorpus(cfg.Retrieval.CorpusPath)
		if err != nil {
			return collaborators{}, fmt.Errorf("load corpus: %w", err)
		}
		docs = loaded
	}

	var c collaborators
	keyword := rag.NewKeywordRetriever(rag.DefaultKeywordRetrieverConfig(), docs, logger)
	c.retriever = keyword
	if cfg.Retrieval.CacheEnabled {
		cm := cache.NewManagerWithClient(rdb, cache.Config{
			KeyPrefix:  cfg.Redis.KeyPrefix + "cache:",
			DefaultTTL: cfg.Retrieval.CacheTTL,
		}, logger)
		cached := rag.NewCachedRetriever(keyword, cm, cfg.Retrieval.CacheTTL, logger)
		if collector != nil {
			cached.WithObserver(collector)
		}
		c.retriever = cached
	}

	if !cfg.LLM.Enabled {
		c.planner = rules.NewKeywordPlanner(rules.DefaultTopics())
		c.judge = rules.NewJudge()
		c.generator = rules.NewTemplateGenerator()
		return c, nil
	}

	client := llm.NewClient(llm.ClientConfig{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		MaxRetries:        cfg.LLM.MaxRetries,
	}, logger)
	if collector != nil {
		client.WithObserver(collector)
	}

	opts := llm.Options{Model: cfg.LLM.Model}
	c.planner = llm.NewPlanner(client, opts, logger)
	c.judge = llm.NewJudge(client, opts, tokenizer.New(cfg.LLM.Encoding), cfg.LLM.EvidenceTokenBudget, logger)
	c.generator = llm.NewGenerator(client, opts, logger)
	return c, nil
}
