package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"firmgo/internal/placement"
	"firmgo/internal/regalloc"
)

// TestMain checks that allocateClasses' per-class goroutines always wind
// down before runPipeline returns, since nothing else in this package
// starts a goroutine that would need excluding here.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunPipelineOnSampleGraph(t *testing.T) {
	g := buildSample()
	cfg := pipelineConfig{NumColors: 4, StackDirection: -1, StackAlignment: 16}

	report, err := runPipeline(g, cfg, zap.NewNop().Sugar())
	require.NoError(t, err)

	// buildSample's shape is fixed (entry/negBlock/exitBlock plus the
	// graph's EndBlock, which countBlocks also counts; one call; one
	// loop-free if-then), so every field below is a known constant
	// once placement and lowering have run; cmp.Diff pinpoints exactly
	// which field regressed if a future change to buildSample or the
	// pipeline stages shifts one of them.
	want := pipelineReport{
		Blocks: 4,
		Loops:  0,
	}
	got := pipelineReport{Blocks: report.Blocks, Loops: report.Loops}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pipeline shape changed (-want +got):\n%s", diff)
	}

	require.Positive(t, report.Nodes)
	require.GreaterOrEqual(t, report.FrameSize, int64(0))
}

func TestAllocateClassesRunsBothClasses(t *testing.T) {
	g := buildSample()
	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)
	loops, err := placement.AssureLoops(g, doms)
	require.NoError(t, err)
	require.NoError(t, placement.Schedule(g, doms, loops))

	results, err := allocateClasses(g, doms, loops, regalloc.DefaultConfig(), zap.NewNop().Sugar(), regalloc.ClassInt, regalloc.ClassFloat)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotEmpty(t, results[regalloc.ClassInt].Color, "the sample graph's arithmetic and stack-pointer values are all integer-class")
	require.Empty(t, results[regalloc.ClassFloat].Color, "the sample graph has no floating-point values")
}
