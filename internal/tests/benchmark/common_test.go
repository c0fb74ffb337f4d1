package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/core/service"
	"github.com/yndnr/tokgate/internal/ratelimit"
	"github.com/yndnr/tokgate/internal/storage/memory"
	"github.com/yndnr/tokgate/pkg/token"
)

// SessionCounts defines the store sizes for lookup benchmarks.
var SessionCounts = []int{1000, 10000, 100000}

// DeveloperCounts defines the number of registered developers.
var DeveloperCounts = []int{10, 1000, 10000}

func newHasher(b *testing.B) *token.Hasher {
	b.Helper()
	h, err := token.NewHasher([]byte("bench-pepper-0123456789"))
	if err != nil {
		b.Fatal(err)
	}
	return h
}

func newTokenService(b *testing.B) (*service.TokenService, *memory.SessionStore) {
	b.Helper()
	store := memory.NewSessionStore()
	return service.NewTokenService(store, newHasher(b), service.DefaultTokenServiceConfig()), store
}

// issueTokens creates count sessions spread over 1000 users and returns
// their access tokens.
func issueTokens(b *testing.B, tokens *service.TokenService, count int) []string {
	b.Helper()
	ctx := context.Background()
	out := make([]string, count)
	for i := range out {
		pair, err := tokens.Issue(ctx, fmt.Sprintf("tgus-bench-%d", i%1000), "bench", "192.0.2.1")
		if err != nil {
			b.Fatalf("Issue: %v", err)
		}
		out[i] = pair.AccessToken
	}
	return out
}

// registerDevelopers creates count developers at the maximum rate limit and
// returns their API keys.
func registerDevelopers(b *testing.B, count int) (*service.DeveloperKeyService, []string) {
	b.Helper()
	devs := service.NewDeveloperKeyService(memory.NewDeveloperStore(), newHasher(b),
		ratelimit.New(), nil, service.DeveloperKeyServiceConfig{Window: time.Minute})
	ctx := context.Background()
	keys := make([]string, count)
	for i := range keys {
		_, creds, err := devs.Register(ctx, fmt.Sprintf("bench-app-%d", i), domain.MaxRateLimit)
		if err != nil {
			b.Fatalf("Register: %v", err)
		}
		keys[i] = creds.APIKey
	}
	return devs, keys
}

// reportMemory reports heap usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithCounts runs benchFn once per count.
func runWithCounts(b *testing.B, label string, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("%s_%d", label, count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
