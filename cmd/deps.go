package cmd

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-contacts/app/cache"
	"github.com/vibast-solutions/ms-go-contacts/app/mail"
	"github.com/vibast-solutions/ms-go-contacts/app/storage"
	"github.com/vibast-solutions/ms-go-contacts/config"

	"github.com/go-redis/redis"
	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// newCache never fails: an unreachable redis only degrades the cache to pass-through.
func newCache(cfg *config.Config) (*cache.Cache, *redis.Client) {
	client := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Timeout)
	if err := client.Ping().Err(); err != nil {
		logrus.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("Redis unreachable, cache disabled until it recovers")
	}

	return cache.New(client, cfg.Redis.UserTTL, cfg.Redis.Timeout), client
}

func newMailer(cfg *config.Config) mail.Mailer {
	if len(cfg.Mail.Brokers) == 0 {
		logrus.Warn("KAFKA_BROKERS not set, emails will only be logged")
		return mail.NewLogMailer(logrus.StandardLogger())
	}

	logrus.WithFields(logrus.Fields{
		"brokers": cfg.Mail.Brokers,
		"topic":   cfg.Mail.Topic,
	}).Info("Publishing emails to kafka")
	return mail.NewKafkaMailer(cfg.Mail.Brokers, cfg.Mail.Topic)
}

func newAvatarStorage(ctx context.Context, cfg *config.Config) *storage.AvatarStorage {
	if cfg.Avatar.Bucket == "" {
		logrus.Warn("AVATAR_BUCKET not set, avatar uploads are disabled")
		return storage.NewAvatarStorage(nil, "", "")
	}

	client, err := storage.NewS3Client(ctx, cfg.Avatar.Endpoint)
	if err != nil {
		logrus.WithError(err).Error("Failed to configure S3 client, avatar uploads are disabled")
		return storage.NewAvatarStorage(nil, "", "")
	}

	return storage.NewAvatarStorage(client, cfg.Avatar.Bucket, cfg.Avatar.PublicURL)
}
