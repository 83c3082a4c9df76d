package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Check func(ctx context.Context) error

// HealthReporter drives the standard gRPC health service from dependency checks.
// The overall status ("") is SERVING only while every check passes.
type HealthReporter struct {
	server  *health.Server
	checks  map[string]Check
	timeout time.Duration
}

func NewHealthReporter(server *health.Server, checks map[string]Check) *HealthReporter {
	return &HealthReporter{server: server, checks: checks, timeout: 2 * time.Second}
}

func (r *HealthReporter) Check(ctx context.Context) bool {
	healthy := true
	for name, check := range r.checks {
		checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := check(checkCtx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			st = healthpb.HealthCheckResponse_NOT_SERVING
			logrus.WithError(err).WithField("dependency", name).Warn("Health check failed")
		}
		r.server.SetServingStatus(name, st)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.server.SetServingStatus("", overall)
	return healthy
}

// Run re-checks on every tick until ctx is done.
func (r *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	r.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}
