package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/permission"
	"github.com/MrEthical07/shopauth/store/memory"
	"github.com/MrEthical07/shopauth/store/postgres"
	"github.com/MrEthical07/shopauth/store/redisstore"
)

// backend bundles the stores selected by the config. close releases every
// connection that was opened.
type backend struct {
	users   shopauth.UserStore
	refresh shopauth.RefreshTokenStore
	graph   permission.Graph
	sink    shopauth.AuditSink
	db      *sql.DB
	close   func()
}

func (a *app) openBackend(ctx context.Context) (*backend, error) {
	b := &backend{close: func() {}}
	var closers []func()
	b.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch a.cfg.Storage.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, a.cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(a.cfg.Storage.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(a.cfg.Storage.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(a.cfg.Storage.Postgres.ConnMaxLifetime)
		closers = append(closers, func() { _ = db.Close() })

		store := postgres.New(db)
		b.users, b.refresh, b.graph, b.db = store, store, store, db
	default:
		a.log.Warn("memory storage selected; accounts and sessions are lost on restart")
		graph := memory.NewGraph()
		graph.CreateRole("admin", permission.DefaultCodes...)
		graph.CreateRole("customer")
		b.users, b.refresh, b.graph = memory.NewUserStore(), memory.NewRefreshStore(), graph
	}

	if a.cfg.Redis.Enabled {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{a.cfg.Redis.Addr},
			DB:    a.cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			b.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		b.refresh = redisstore.New(client, redisstore.Options{
			Prefix:    a.cfg.Redis.Prefix,
			Retention: a.cfg.Redis.Retention,
		})
		a.log.Info("refresh tokens stored in redis", zap.String("addr", a.cfg.Redis.Addr))
	}

	switch a.cfg.Audit.Sink {
	case "postgres":
		b.sink = postgres.NewAttemptLog(b.db, a.log)
	default:
		b.sink = shopauth.NewZapSink(a.log.Named("audit"))
	}
	return b, nil
}
