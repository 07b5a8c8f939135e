// Package client wires the pieces of the quiz client together: REST client,
// realtime transport, stores, guard and the debug/metrics listener.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/equiz-client/internal/api"
	"github.com/victornm/equiz-client/internal/auth"
	"github.com/victornm/equiz-client/internal/game"
	"github.com/victornm/equiz-client/internal/guard"
	"github.com/victornm/equiz-client/internal/leaderboard"
	"github.com/victornm/equiz-client/internal/session"
	"github.com/victornm/equiz-client/internal/telemetry"
	"github.com/victornm/equiz-client/internal/transport"
	"github.com/victornm/equiz-client/internal/transport/redisps"
	"github.com/victornm/equiz-client/internal/transport/ws"
)

type Config struct {
	Server struct {
		BaseURL string
		WSURL   string
	}

	// Redis switches the realtime channel from websocket to the server's
	// pub/sub mirror. Used by headless server-side consumers.
	Redis struct {
		Enabled bool
		Addrs   []string
		Pass    string
		Prefix  string
		Session string
	}

	Metrics struct {
		Port int32
	}

	Auth struct {
		Email string
		Pass  string
	}

	Game struct {
		Session  string
		Nickname string
	}
}

type Client struct {
	c Config

	metrics *telemetry.Metrics

	infra struct {
		redis redis.UniversalClient
	}

	API         *api.Client
	Store       *session.Store
	Auth        *auth.Store
	Leaderboard *leaderboard.View
	Transport   transport.Transport
	Guard       *guard.Guard

	http *http.Server
}

func Init(c Config) (*Client, error) {
	cl := &Client{c: c}

	cl.metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)

	var err error
	cl.API, err = api.NewClient(api.Config{
		BaseURL: c.Server.BaseURL,
		Metrics: cl.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("client: init api: %w", err)
	}

	cl.Store = session.NewStore(session.Config{})
	cl.Auth = auth.NewStore(auth.Config{API: cl.API})
	cl.Leaderboard = leaderboard.NewView()

	if err := cl.initTransport(); err != nil {
		return nil, fmt.Errorf("client: init transport: %w", err)
	}

	cl.Guard = guard.New(guard.Config{
		Auth:    cl.Auth,
		Session: cl.Store,
	})

	cl.initMetricsServer()
	return cl, nil
}

func (cl *Client) initTransport() error {
	if !cl.c.Redis.Enabled {
		cl.Transport = ws.New(ws.Config{
			URL:     cl.c.Server.WSURL,
			Metrics: cl.metrics,
		})
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cl.c.Redis.Addrs,
		Password: cl.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	cl.infra.redis = r
	cl.Transport = redisps.New(redisps.Config{
		Redis:   r,
		Prefix:  cl.c.Redis.Prefix,
		Session: cl.c.Redis.Session,
		Metrics: cl.metrics,
	})
	return nil
}

func (cl *Client) initMetricsServer() {
	if cl.c.Metrics.Port == 0 {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	cl.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cl.c.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Run drives the headless client: authenticate, connect, optionally join the
// configured session, then follow events until the context ends.
func (cl *Client) Run(ctx context.Context) error {
	var eg errgroup.Group

	if cl.http != nil {
		eg.Go(func() error {
			slog.InfoContext(ctx, fmt.Sprintf("client: metrics listening on port %d", cl.c.Metrics.Port))
			if err := cl.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		return cl.follow(ctx)
	})

	return eg.Wait()
}

func (cl *Client) follow(ctx context.Context) error {
	if cl.c.Auth.Email != "" {
		if _, err := cl.Auth.Login(ctx, cl.c.Auth.Email, cl.c.Auth.Pass); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	user, _ := cl.Auth.Current()
	g := game.New(game.Config{
		API:         cl.API,
		Transport:   cl.Transport,
		Store:       cl.Store,
		Leaderboard: cl.Leaderboard,
		User:        user,
	})

	if err := g.Connect(ctx); err != nil {
		return err
	}

	if id := cl.c.Game.Session; id != "" {
		if err := g.FetchSession(ctx, id); err != nil {
			return err
		}
		if cl.c.Game.Nickname != "" {
			if _, err := g.JoinGame(ctx, id, cl.c.Game.Nickname); err != nil {
				return err
			}
		}
	}

	<-ctx.Done()
	return g.Leave()
}

func (cl *Client) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cl.http != nil {
		if err := cl.http.Shutdown(ctx); err != nil {
			slog.ErrorContext(ctx, "client: shutdown metrics server failed", "error", err)
		}
	}

	if err := cl.Transport.Disconnect(); err != nil {
		slog.ErrorContext(ctx, "client: disconnect transport failed", "error", err)
	}

	if cl.infra.redis != nil {
		if err := cl.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "client: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "client: shutdown completed")
}
