package benchmark

import (
	"context"
	"testing"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/pkg/token"
)

// BenchmarkTokenGenerate benchmarks access token generation.
func BenchmarkTokenGenerate(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := token.GeneratePrefixed(domain.AccessTokenPrefix); err != nil {
			b.Fatalf("GeneratePrefixed failed: %v", err)
		}
	}
}

// BenchmarkTokenHash benchmarks the peppered token hash.
func BenchmarkTokenHash(b *testing.B) {
	h := newHasher(b)
	tok, _ := token.GeneratePrefixed(domain.AccessTokenPrefix)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		h.Sum(tok)
	}
}

// BenchmarkTokenIssue benchmarks session creation with a token pair.
func BenchmarkTokenIssue(b *testing.B) {
	tokens, _ := newTokenService(b)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := tokens.Issue(ctx, "tgus-bench", "bench", "192.0.2.1"); err != nil {
			b.Fatalf("Issue failed: %v", err)
		}
	}
	b.StopTimer()
	reportMemory(b, "heap")
}

// BenchmarkValidateAccess benchmarks access token validation against stores
// of different sizes.
func BenchmarkValidateAccess(b *testing.B) {
	runWithCounts(b, "sessions", SessionCounts, func(b *testing.B, count int) {
		tokens, _ := newTokenService(b)
		access := issueTokens(b, tokens, count)
		ctx := context.Background()

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := tokens.ValidateAccess(ctx, access[i%len(access)]); err != nil {
				b.Fatalf("ValidateAccess failed: %v", err)
			}
		}
	})
}

// BenchmarkValidateAccessConcurrent benchmarks concurrent validation.
func BenchmarkValidateAccessConcurrent(b *testing.B) {
	tokens, _ := newTokenService(b)
	access := issueTokens(b, tokens, 10000)

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		i := 0
		for pb.Next() {
			if _, err := tokens.ValidateAccess(ctx, access[i%len(access)]); err != nil {
				b.Errorf("ValidateAccess failed: %v", err)
				return
			}
			i++
		}
	})
}
