package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladikoff/email2feed/internal/domain"
)

const testSecret = "test-secret-key-for-development-32-chars-long-at-least"

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		t.Setenv("EMAIL2FEED_JWT_SECRET", testSecret)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, "email2feed.local", cfg.Mail.Domain)
		assert.Equal(t, "X-Forwarded-To", cfg.Mail.ForwardHeader)
		assert.Equal(t, domain.TrustSubjectSender, cfg.Mail.ForwardTrustSubject)
		assert.Equal(t, "http://localhost:8080", cfg.Feed.BaseURL)
		assert.Equal(t, "http://localhost:8080/m", cfg.Feed.PermalinkBaseURL)
		assert.Equal(t, 10, cfg.Feed.MaxItems)
		assert.Equal(t, 5*time.Minute, cfg.Feed.CacheTTL)
		assert.Equal(t, 5, cfg.Registration.MinLength)
		assert.Equal(t, 25, cfg.Registration.MaxLength)
		assert.Contains(t, cfg.Registration.ReservedNames, "postmaster")
		assert.Equal(t, 10, cfg.Registration.TokenSyllables)
		assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
		assert.Equal(t, "email2feed.local", cfg.SMTP.Hostname)
		assert.Equal(t, 100, cfg.SMTP.MaxConns)
		assert.Equal(t, float64(10), cfg.SMTP.MaxRate)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Empty(t, cfg.Database.Type)
		assert.Empty(t, cfg.Redis.Address)
		assert.Equal(t, "email2feed", cfg.JWT.Issuer)
		assert.Equal(t, time.Hour, cfg.JWT.AccessExpiry)
		assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiry)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		t.Setenv("EMAIL2FEED_JWT_SECRET", testSecret)
		t.Setenv("EMAIL2FEED_SERVER_PORT", "9090")
		t.Setenv("EMAIL2FEED_MAIL_DOMAIN", "feeds.example.com")
		t.Setenv("EMAIL2FEED_MAIL_FORWARD_TRUST_SUBJECT", "forwarder")
		t.Setenv("EMAIL2FEED_FEED_BASE_URL", "https://feeds.example.com/")
		t.Setenv("EMAIL2FEED_FEED_PERMALINK_BASE_URL", "https://feeds.example.com/entry/")
		t.Setenv("EMAIL2FEED_FEED_MAX_ITEMS", "25")
		t.Setenv("EMAIL2FEED_FEED_CACHE_TTL", "0s")
		t.Setenv("EMAIL2FEED_REGISTRATION_RESERVED_NAMES", "root, mail ,")
		t.Setenv("EMAIL2FEED_CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
		t.Setenv("EMAIL2FEED_DATABASE_TYPE", "Postgres")
		t.Setenv("EMAIL2FEED_DATABASE_DSN", "postgres://u:p@localhost/email2feed")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "feeds.example.com", cfg.Mail.Domain)
		assert.Equal(t, "feeds.example.com", cfg.SMTP.Hostname)
		assert.Equal(t, domain.TrustSubjectForwarder, cfg.Mail.ForwardTrustSubject)
		assert.Equal(t, "https://feeds.example.com", cfg.Feed.BaseURL)
		assert.Equal(t, "https://feeds.example.com/entry", cfg.Feed.PermalinkBaseURL)
		assert.Equal(t, 25, cfg.Feed.MaxItems)
		assert.Zero(t, cfg.Feed.CacheTTL)
		assert.Equal(t, []string{"root", "mail"}, cfg.Registration.ReservedNames)
		assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "postgres", cfg.Database.Type)
	})

	t.Run("拒绝默认JWT密钥", func(t *testing.T) {
		t.Setenv("EMAIL2FEED_JWT_SECRET", defaultJWTSecret)

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default value")
	})

	t.Run("拒绝过短JWT密钥", func(t *testing.T) {
		t.Setenv("EMAIL2FEED_JWT_SECRET", "short")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 characters")
	})

	t.Run("拒绝无效的转发信任对象", func(t *testing.T) {
		t.Setenv("EMAIL2FEED_JWT_SECRET", testSecret)
		t.Setenv("EMAIL2FEED_MAIL_FORWARD_TRUST_SUBJECT", "both")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "forward_trust_subject")
	})

	t.Run("拒绝非正的条目上限", func(t *testing.T) {
		t.Setenv("EMAIL2FEED_JWT_SECRET", testSecret)
		t.Setenv("EMAIL2FEED_FEED_MAX_ITEMS", "0")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("拒绝无名称可用的长度区间", func(t *testing.T) {
		t.Setenv("EMAIL2FEED_JWT_SECRET", testSecret)
		t.Setenv("EMAIL2FEED_REGISTRATION_MIN_LENGTH", "5")
		t.Setenv("EMAIL2FEED_REGISTRATION_MAX_LENGTH", "6")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("数据库类型需要DSN", func(t *testing.T) {
		t.Setenv("EMAIL2FEED_JWT_SECRET", testSecret)
		t.Setenv("EMAIL2FEED_DATABASE_TYPE", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.dsn")
	})

	t.Run("拒绝未知数据库类型", func(t *testing.T) {
		t.Setenv("EMAIL2FEED_JWT_SECRET", testSecret)
		t.Setenv("EMAIL2FEED_DATABASE_TYPE", "sqlite")

		_, err := Load()
		require.Error(t, err)
	})
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"单个元素", "item1", []string{"item1"}},
		{"多个元素", "item1,item2,item3", []string{"item1", "item2", "item3"}},
		{"包含空格", " item1 , item2 ", []string{"item1", "item2"}},
		{"空字符串", "", []string{}},
		{"只有逗号", ",,,", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseList(tt.input))
		})
	}
}
