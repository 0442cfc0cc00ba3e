package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
)

// BenchmarkRun_Linear_5 runs a 5-stage graph end to end, including the
// per-boundary checkpoint saves.
func BenchmarkRun_Linear_5(b *testing.B) {
	benchmarkLinearRun(b, 5)
}

// BenchmarkRun_Linear_10 runs a 10-stage graph end to end.
func BenchmarkRun_Linear_10(b *testing.B) {
	benchmarkLinearRun(b, 10)
}

// BenchmarkRun_Linear_50 runs a 50-stage graph end to end.
func BenchmarkRun_Linear_50(b *testing.B) {
	benchmarkLinearRun(b, 50)
}

// BenchmarkRun_Parallel_4 runs one stage fanning out to 4 agents.
func BenchmarkRun_Parallel_4(b *testing.B) {
	agents := make([]ticketflow.Agent, 4)
	for i := range agents {
		agents[i] = noopAgent(fmt.Sprintf("agent_%d", i), fmt.Sprintf("artifact_%d", i))
	}
	compiled := mustCompile(ticketflow.NewGraph("bench").AddParallelStage("fan", agents...))

	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cp := checkpoint.New(fmt.Sprintf("T%d", i), "bench", "bench", "")
		_, _ = compiled.Run(ctx, cp, ticketflow.WithStore(store))
	}
}

// BenchmarkRun_Redelivery measures a re-delivered run whose artifacts
// all exist already, so every stage is skipped.
func BenchmarkRun_Redelivery(b *testing.B) {
	compiled := mustCompile(buildLinearGraph(10))
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	cp := checkpoint.New("T1", "bench", "bench", "")
	if _, err := compiled.Run(ctx, cp, ticketflow.WithStore(store)); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		redelivered := checkpoint.New(fmt.Sprintf("R%d", i), "bench", "bench", "")
		redelivered.State = cp.State
		_, _ = compiled.Run(ctx, redelivered, ticketflow.WithStore(store))
	}
}

func benchmarkLinearRun(b *testing.B, stages int) {
	b.Helper()
	compiled := mustCompile(buildLinearGraph(stages))
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	defer store.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cp := checkpoint.New(fmt.Sprintf("T%d", i), "bench", "bench", "")
		_, _ = compiled.Run(ctx, cp, ticketflow.WithStore(store))
	}
}
