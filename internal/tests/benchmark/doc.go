// Package benchmark holds performance benchmarks for the admission and
// token hot paths.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run the admission benchmarks only:
//
//	go test -bench=BenchmarkAdmit -benchmem -benchtime=10s ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
