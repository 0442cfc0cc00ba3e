package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow"
)

// BenchmarkCompile_Linear_10 compiles a 10-stage graph.
func BenchmarkCompile_Linear_10(b *testing.B) {
	for i := 0; i < b.N; i++ {
		mustCompile(buildLinearGraph(10))
	}
}

// BenchmarkCompile_Linear_50 compiles a 50-stage graph.
func BenchmarkCompile_Linear_50(b *testing.B) {
	for i := 0; i < b.N; i++ {
		mustCompile(buildLinearGraph(50))
	}
}

// Helper functions

func mustCompile(g *ticketflow.Graph) *ticketflow.CompiledGraph {
	compiled, err := g.Compile()
	if err != nil {
		panic(err)
	}
	return compiled
}

func buildLinearGraph(stages int) *ticketflow.Graph {
	g := ticketflow.NewGraph("bench")
	for i := 0; i < stages; i++ {
		key := fmt.Sprintf("artifact_%d", i)
		g.AddStage(fmt.Sprintf("stage_%d", i), noopAgent(fmt.Sprintf("agent_%d", i), key))
	}
	return g
}

func noopAgent(name, key string) ticketflow.Agent {
	return ticketflow.AgentFunc(name, key, func(context.Context, *ticketflow.AgentContext) (string, error) {
		return "ok", nil
	})
}
