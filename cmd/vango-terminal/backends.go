package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/vango-go/terminal/internal/config"
	"github.com/vango-go/terminal/pkg/session"
	"github.com/vango-go/terminal/pkg/upload"
)

// closer releases a backend connection.
type closer func() error

func noClose() error { return nil }

// openSessionStore opens the lease store selected by cfg. The returned
// closer releases the underlying connection after the store is closed.
func openSessionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, closer, error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		store := session.NewMemoryStore(session.WithCleanupInterval(cfg.Session.CleanupInterval))
		return store, noClose, nil

	case config.StoreRedis:
		client, err := session.DialRedis(ctx, cfg.Session.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("session leases in redis", "addr", client.Options().Addr)
		return session.NewRedisStore(client), client.Close, nil

	case config.StoreSQL:
		db, err := sql.Open("sqlite", cfg.Session.SQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		opts := []session.SQLStoreOption{
			session.WithSQLDialect(session.DialectSQLite),
			session.WithSQLCleanupInterval(cfg.Session.CleanupInterval),
		}
		if cfg.Session.SQLTable != "" {
			opts = append(opts, session.WithSQLTableName(cfg.Session.SQLTable))
		}
		store := session.NewSQLStore(db, opts...)
		if err := store.CreateTable(ctx); err != nil {
			store.Close()
			db.Close()
			return nil, nil, err
		}
		logger.Info("session leases in sqlite", "dsn", cfg.Session.SQLDSN)
		return store, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
}

// openUploadStore opens the upload store selected by cfg.
func openUploadStore(cfg *config.Config, logger *slog.Logger) (upload.Store, error) {
	switch cfg.Upload.Store {
	case config.UploadDisk:
		store, err := upload.NewDiskStore(cfg.Upload.Dir, cfg.Upload.MaxFileSize)
		if err != nil {
			return nil, err
		}
		logger.Info("uploads on disk", "dir", cfg.Upload.Dir)
		return store, nil

	case config.UploadS3:
		client := newS3Client(cfg.Upload.S3)
		logger.Info("uploads in s3", "bucket", cfg.Upload.S3.Bucket, "prefix", cfg.Upload.S3.Prefix)
		return upload.NewS3Store(client, cfg.Upload.S3.Bucket, cfg.Upload.S3.Prefix, cfg.Upload.MaxFileSize), nil
	}
	return nil, fmt.Errorf("unknown upload store %q", cfg.Upload.Store)
}

// newS3Client builds an S3 client from the config and the standard AWS
// credential variables.
func newS3Client(cfg config.S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
		Credentials:  aws.NewCredentialsCache(envCredentials{}),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

var errNoCredentials = errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are not set")

// envCredentials reads static credentials from the environment.
type envCredentials struct{}

func (envCredentials) Retrieve(context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errNoCredentials
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}
