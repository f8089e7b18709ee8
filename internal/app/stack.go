package app

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/dispatchprobe/internal/config"
	"github.com/MrSnakeDoc/dispatchprobe/internal/dispatch"
	"github.com/MrSnakeDoc/dispatchprobe/internal/events"
	"github.com/MrSnakeDoc/dispatchprobe/internal/httpserver/deps"
	"github.com/MrSnakeDoc/dispatchprobe/internal/index"
	"github.com/MrSnakeDoc/dispatchprobe/internal/logger"
	"github.com/MrSnakeDoc/dispatchprobe/internal/prober"
	"github.com/MrSnakeDoc/dispatchprobe/internal/redis"
	"github.com/MrSnakeDoc/dispatchprobe/internal/sources/gateway"
	"github.com/MrSnakeDoc/dispatchprobe/internal/store"
	mysqlstore "github.com/MrSnakeDoc/dispatchprobe/internal/store/mysql"
	redisstore "github.com/MrSnakeDoc/dispatchprobe/internal/store/redis"
	"github.com/MrSnakeDoc/dispatchprobe/internal/version"
)

// Stack is the dispatch service with every collaborator the configuration
// asks for. It is shared by the HTTP server and the CLI.
type Stack struct {
	Service    *dispatch.Service
	Store      store.EndpointStore
	Components []deps.Component

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Build wires the endpoint store, configuration source, event publisher,
// prober and dispatch service. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Stack, error) {
	st := &Stack{}

	if err := st.openEndpointStore(ctx, cfg, log); err != nil {
		return nil, err
	}

	configs, err := st.openConfigSource(ctx, cfg, log)
	if err != nil {
		st.Close(log)
		return nil, err
	}

	publisher, err := st.openPublisher(ctx, cfg, log)
	if err != nil {
		st.Close(log)
		return nil, err
	}

	p := prober.New(st.Store, log,
		prober.WithTimeouts(prober.Timeouts{
			Status:     cfg.StatusTimeout,
			Discovered: cfg.DiscoveredTimeout,
			Quick:      cfg.QuickTimeout,
			Primary:    cfg.PrimaryTimeout,
			Matrix:     cfg.MatrixTimeout,
			Overall:    cfg.MaxDuration,
		}),
		prober.WithDiscoveredLimit(cfg.DiscoveredLimit),
		prober.WithBodyLimit(int64(cfg.BodyLimit)),
	)

	opts := []dispatch.Option{
		dispatch.WithEndpointStore(st.Store),
		dispatch.WithPublisher(publisher),
	}
	if configs != nil {
		opts = append(opts, dispatch.WithConfigSource(configs))
	}

	st.Service = dispatch.New(p, dispatch.Settings{
		APIType:           cfg.APIType,
		APIKeyName:        cfg.APIKeyName,
		DefaultServerURL:  cfg.GatewayURL,
		DefaultInstance:   cfg.GatewayInstance,
		RecordDiscoveries: cfg.RecordDiscoveries,
		EventProducer:     "dispatchprobe/" + version.Version,
		ConfigTimeout:     cfg.StatusTimeout,
		EventTimeout:      cfg.EventTimeout,
	}, log, opts...)

	return st, nil
}

// openEndpointStore uses Redis when an address is configured, the in-memory
// index otherwise.
func (st *Stack) openEndpointStore(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if cfg.RedisAddr == "" {
		log.Info("no redis configured, discovered endpoints kept in memory")
		st.Store = index.NewMemoryIndex()
		st.Components = append(st.Components, deps.Component{
			Name:     "endpoint_store",
			Backend:  "memory",
			Critical: true,
		})
		return nil
	}

	log.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	client, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Redis initialized successfully")

	rs := redisstore.NewStore(client)
	st.Store = rs
	st.closers = append(st.closers, namedCloser{"redis", client.Close})
	st.Components = append(st.Components, deps.Component{
		Name:     "endpoint_store",
		Backend:  "redis",
		Critical: true,
		Impact:   "discovered-endpoints-unavailable",
		Ping:     rs.Ping,
	})
	return nil
}

// openConfigSource prefers MySQL, then the YAML file. It returns nil when
// neither is configured and the environment defaults apply.
func (st *Stack) openConfigSource(ctx context.Context, cfg *config.Config, log logger.Logger) (dispatch.ConfigSource, error) {
	switch {
	case cfg.MySQLDSN != "":
		src, err := mysqlstore.Open(ctx, cfg.MySQLDSN, cfg.MySQLTable)
		if err != nil {
			return nil, fmt.Errorf("failed to open configuration database: %w", err)
		}
		st.closers = append(st.closers, namedCloser{"mysql", src.Close})

		if cfg.MySQLMigrate {
			if err := src.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("failed to migrate configuration table: %w", err)
			}
		}
		log.Info("configuration source ready", logger.String("source", src.Name()))
		st.addConfigComponent(src.Name(), src)
		return src, nil

	case cfg.GatewayFile != "":
		src := gateway.NewLoader(cfg.GatewayFile)
		log.Info("configuration source ready", logger.String("source", src.Name()))
		st.addConfigComponent(src.Name(), src)
		return src, nil
	}

	log.Info("no configuration source, using environment defaults",
		logger.String("gateway_url", cfg.GatewayURL),
		logger.String("instance", cfg.GatewayInstance))
	return nil, nil
}

func (st *Stack) addConfigComponent(backend string, p pinger) {
	st.Components = append(st.Components, deps.Component{
		Name:    "config_source",
		Backend: backend,
		Impact:  "environment-defaults-only",
		Ping:    p.Ping,
	})
}

// openPublisher connects to RabbitMQ when a URL is configured. Without one
// outcome events are dropped.
func (st *Stack) openPublisher(ctx context.Context, cfg *config.Config, log logger.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		return events.NewNop(log), nil
	}

	pub, err := events.New(ctx, events.ConnectionOptions{
		URL:           cfg.AMQPURL,
		Exchange:      cfg.AMQPExchange,
		RetryAttempts: cfg.AMQPRetryAttempts,
		Delay:         cfg.AMQPRetryDelay,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	st.closers = append(st.closers, namedCloser{"rabbitmq", pub.Close})

	c := deps.Component{
		Name:    "event_publisher",
		Backend: "amqp:" + cfg.AMQPExchange,
		Impact:  "outcome-events-dropped",
	}
	if p, ok := pub.(pinger); ok {
		c.Ping = p.Ping
	}
	st.Components = append(st.Components, c)
	return pub, nil
}

// Close releases every connection, most recent first.
func (st *Stack) Close(log logger.Logger) {
	for i := len(st.closers) - 1; i >= 0; i-- {
		c := st.closers[i]
		if err := c.close(); err != nil {
			log.Warnf("failed to close %s: %v", c.name, err)
			continue
		}
		log.Infof("✅ %s closed cleanly", c.name)
	}
	st.closers = nil
}
