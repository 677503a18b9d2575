package errtrack

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/d60-Lab/sale-promotion/config"
)

var enabled bool

// Init 初始化 Sentry；DSN 为空时不上报
func Init(cfg config.SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
	}); err != nil {
		return err
	}
	enabled = true
	return nil
}

func Enabled() bool { return enabled }

// Capture 上报错误并附带标签（只放 id 类字段，不放支付负载）
func Capture(err error, tags map[string]string) {
	if !enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			if v != "" {
				scope.SetTag(k, v)
			}
		}
		sentry.CaptureException(err)
	})
}

func Flush(timeout time.Duration) {
	if enabled {
		sentry.Flush(timeout)
	}
}
