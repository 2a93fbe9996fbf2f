package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"shorturl.local/gee"
	"shorturl.local/gee/middleware"
	"shorturl.local/internal/app/shortlink"
	slcache "shorturl.local/internal/app/shortlink/cache"
	shortlinkhttpapi "shorturl.local/internal/app/shortlink/httpapi"
	"shorturl.local/internal/app/shortlink/repo"
	"shorturl.local/internal/app/shortlink/stats"
	"shorturl.local/internal/platform/auth"
	platformcache "shorturl.local/internal/platform/cache"
	"shorturl.local/internal/platform/config"
	"shorturl.local/internal/platform/db"
	"shorturl.local/internal/platform/httpmiddleware"
	"shorturl.local/internal/platform/httpserver"
	"shorturl.local/internal/platform/metrics"
	"shorturl.local/internal/platform/migrate"
	"shorturl.local/internal/platform/ratelimit"
	"shorturl.local/internal/platform/trace"
	"shorturl.local/internal/platform/webtitle"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// backend 是一个完整的存储实现：短链、计数器、点击日志、统计查询都在同一个库里。
type backend interface {
	shortlink.Store
	shortlink.Counter
	shortlink.ClickWriter
	shortlinkhttpapi.StatsReader
	slcache.KeywordSource
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown, err := trace.Init(context.Background(), trace.Options{
			Endpoint:    cfg.OtlpGrpcEndpoint,
			ServiceName: cfg.OtlpServiceName,
			Version:     version,
			SampleRatio: cfg.TraceSampleRatio,
		})
		if err != nil {
			slog.Error("trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 存储
	store, closeStore, err := openBackend(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	//Redis
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient, err = platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, running without shared cache and rate limit", "addr", cfg.RedisAddr, "err", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	//限流器
	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled && redisClient != nil {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled", "RATELIMIT_ENABLED", cfg.RateLimitEnabled, "redis", redisClient != nil)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//短链缓存
	var linkStore shortlink.Store = store
	if cfg.CacheEnabled {
		localCache, errLocal := slcache.NewLocalCache(100000, 100000) // 10万条目
		if errLocal != nil {
			log.Fatal(errLocal)
		}
		slCache := slcache.NewShortlinkCache(redisClient, localCache)
		defer slCache.Close()
		bloomFilter := slcache.NewBloomFilter(cfg.BloomExpectedItems, 0.01)
		cached := slcache.NewCachedStore(store, slCache, bloomFilter)
		go func() {
			if err := cached.Warm(stopCtx, store); err != nil {
				slog.Warn("bloom warm-up failed, bloom stays disabled", "err", err)
			}
		}()
		linkStore = cached
	}

	//点击日志收集器（根据配置选择 Channel 或 Kafka）
	// consumerDone 在消费者把已收到的点击全部落库后关闭
	var collector stats.Collector
	consumerDone := make(chan struct{})
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 收集点击日志", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer := stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, store)
		go func() {
			defer close(consumerDone)
			kafkaConsumer.Run(stopCtx)
			if err := kafkaConsumer.Close(); err != nil {
				slog.Warn("kafka consumer close failed", "err", err)
			}
		}()
	} else {
		slog.Info("使用 Channel 收集点击日志")
		channelCollector := stats.NewChannelCollector(10000)
		collector = channelCollector
		consumer := stats.NewConsumer(store, channelCollector)
		go func() {
			defer close(consumerDone)
			// stopCtx 取消后仍会读到 collector 关闭为止
			consumer.Run(stopCtx)
		}()
	}

	// JWT
	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}
	users, err := auth.ParseUsers(cfg.AdminUsers)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.AuthRequired && users.Len() == 0 {
		slog.Warn("AUTH_REQUIRED=true but ADMIN_USERS is empty, nobody can create shortlinks")
	}

	pages, err := shortlinkhttpapi.LoadPages(cfg.PagesDir)
	if err != nil {
		log.Fatal(err)
	}

	r := gee.New()

	svc, err := buildService(cfg, r, linkStore, store, collector, pages)
	if err != nil {
		log.Fatal(err)
	}

	// 对外业务
	r.Use(gee.Recovery(), middleware.ReqID(), middleware.AccessLog(), httpmiddleware.Metrics("/healthz", "/favicon.ico", "/robots.txt"), httpmiddleware.TraceName())

	deps := shortlinkhttpapi.Deps{
		Service:           svc,
		Stats:             store,
		Users:             users,
		Tokens:            ts,
		Limiter:           limiter,
		Pages:             pages,
		RedirectStatus:    cfg.RedirectStatus,
		AuthRequired:      cfg.AuthRequired,
		CreateRateLimit:   cfg.CreateRateLimit,
		RedirectRateLimit: cfg.RedirectRateLimit,
	}
	api := r.Group("/api/v1")
	shortlinkhttpapi.RegisterWebRoutes(r, pages)
	shortlinkhttpapi.RegisterAPIRoutes(api, deps)
	shortlinkhttpapi.RegisterPublicRoutes(r, deps)

	r.GET("/healthz", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	slog.Debug("routes registered", "routes", r.Routes())

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 存储连接状态检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		dbCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := store.Ping(dbCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("store ping failed"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("store ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
			"store_driver": cfg.StoreDriver,
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := httpserver.NewAdmin(cfg, adminMux) // 推荐：127.0.0.1:6060

	slog.Info("shorturl started", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "site_url", cfg.SiteURL, "store", cfg.StoreDriver)

	if err := httpserver.Serve(stopCtx, cfg.ShutdownTimeout, publicSrv, adminSrv); err != nil {
		slog.Error("server exited", "err", err)
	}

	// 顺序：HTTP 已退出 -> 等后台点击统计投递完 -> 关收集器 -> 等消费者写完
	svc.Close()
	if err := collector.Close(); err != nil {
		slog.Warn("collector close failed", "err", err)
	}
	<-consumerDone
	slog.Info("click stats drained")
}

func setupLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h).With("service", cfg.ServiceName))
}

// openBackend 按 STORE_DRIVER 打开存储；返回的 close 负责释放连接。
func openBackend(cfg config.Config) (backend, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		slog.Warn("using in-memory store, data is lost on restart")
		return repo.NewMemoryStore(), func() {}, nil

	case "sqlite":
		s, err := repo.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("SQLite 打开成功", "path", cfg.SQLitePath)
		return s, func() { s.Close() }, nil

	default:
		dbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dbPool, err := db.New(dbCtx, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := dbPool.Ping(dbCtx); err != nil {
			dbPool.Close()
			return nil, nil, err
		}
		slog.Info("数据库连接成功")

		if cfg.MigrateOnStart {
			res, err := migrate.Up(dbCtx, dbPool, migrate.Options{FS: repo.PostgresMigrations()})
			if err != nil {
				dbPool.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			slog.Info("migrations done", "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
		}
		return repo.NewPostgresStore(dbPool), dbPool.Close, nil
	}
}

func buildService(cfg config.Config, routes shortlink.RouteChecker, linkStore shortlink.Store, counter shortlink.Counter,
	clicks shortlink.ClickLog, pages *shortlinkhttpapi.Pages) (*shortlink.Service, error) {
	charset, err := shortlink.CharsetByName(cfg.KeywordCharset)
	if err != nil {
		return nil, err
	}
	reserved, err := cfg.Reserved()
	if err != nil {
		return nil, err
	}
	sanitizer := shortlink.NewSanitizer(charset,
		shortlink.WithMaxKeywordLength(cfg.KeywordMaxLength),
		shortlink.WithReserved(shortlink.DefaultReserved...),
		shortlink.WithReserved(reserved...),
		shortlink.WithPages(pages.Names()...),
		shortlink.WithRoutes(routes),
	)

	hooks := shortlink.NewHooks()
	hooks.Register(shortlink.HookAllocationConflict, 100, func(ctx context.Context, p shortlink.HookPayload) (shortlink.HookPayload, bool) {
		slog.Debug("keyword allocation conflict", "keyword", p.Keyword, "attempt", p.Attempt)
		return p, false
	})

	allocOpts := []shortlink.AllocatorOption{
		shortlink.WithMaxAttempts(cfg.MaxAllocationAttempts),
		shortlink.WithAllocatorHooks(hooks),
	}
	if cfg.KeywordStrategy == "sqids" {
		gen, err := shortlink.NewSqidsGenerator(charset, 4)
		if err != nil {
			return nil, err
		}
		allocOpts = append(allocOpts, shortlink.WithGenerator(gen))
	}
	allocator := shortlink.NewAllocator(linkStore, counter, sanitizer, allocOpts...)

	svcOpts := []shortlink.ServiceOption{
		shortlink.WithHooks(hooks),
		shortlink.WithClickLog(clicks),
	}
	if cfg.TitleFetchEnabled {
		var fetchOpts []webtitle.Option
		if cfg.TitleFetchAllowPrivate {
			slog.Warn("title fetcher may reach private networks")
			fetchOpts = append(fetchOpts, webtitle.AllowPrivateNetworks())
		}
		svcOpts = append(svcOpts, shortlink.WithTitleFetcher(webtitle.New(cfg.TitleFetchTimeout, fetchOpts...)))
	}
	return shortlink.NewService(linkStore, sanitizer, allocator, shortlink.Options{
		SiteURL:            cfg.SiteURL,
		AllowDuplicateURLs: cfg.AllowDuplicateURLs,
		AsyncClicks:        cfg.ClicksAsync,
		ClickTimeout:       cfg.ClickTimeout,
	}, svcOpts...)
}
