package ir

// Resource is a bitmask of the analyses that can be locked against a
// Graph. Acquisition is an explicit call (Graph.Lock/Unlock), not an
// implicit side effect. There is no handle: any caller may Unlock a held
// resource, and Invalidate also clears the lock bits it is given.
type Resource uint32

const (
	ResourceDominance Resource = 1 << iota
	ResourcePostDominance
	ResourceLoopInfo
	ResourceOuts
	ResourceLiveness
	ResourceLinkField
	ResourceNodeVisited
)

func (r Resource) String() string {
	names := []struct {
		bit  Resource
		name string
	}{
		{ResourceDominance, "dominance"},
		{ResourcePostDominance, "postdominance"},
		{ResourceLoopInfo, "loopinfo"},
		{ResourceOuts, "outs"},
		{ResourceLiveness, "liveness"},
		{ResourceLinkField, "link"},
		{ResourceNodeVisited, "node-visited"},
	}
	out := ""
	for _, n := range names {
		if r&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

// Lock acquires resource against the graph. Requesting an
// already-locked resource fails with ResourceBusy.
func (g *Graph) Lock(resource Resource) error {
	if g.locks&resource != 0 {
		return errResourceBusy(resource.String())
	}
	g.locks |= resource
	g.logger.Debugw("resource locked", "resource", resource.String())
	return nil
}

// Unlock releases resource. Releasing a resource that isn't held fails
// with ResourceUnderflow.
func (g *Graph) Unlock(resource Resource) error {
	if g.locks&resource == 0 {
		return errResourceUnderflow(resource.String())
	}
	g.locks &^= resource
	g.logger.Debugw("resource unlocked", "resource", resource.String())
	return nil
}

// Locked reports whether resource is currently locked.
func (g *Graph) Locked(resource Resource) bool {
	return g.locks&resource != 0
}

// AnalysisCached reports whether resource's cached info is still valid:
// the first assure_* call computes it, later calls return the cached
// info until invalidation. The payload itself is owned by the analysis
// package (placement, regalloc), not by ir.Graph; this bit only tracks
// freshness so every assure_* entry point can skip recomputation safely.
func (g *Graph) AnalysisCached(resource Resource) bool {
	return g.cachedAnalyses&resource != 0
}

// MarkAnalysisCached records that resource's cached info was just
// (re)computed and is valid until the next Invalidate.
func (g *Graph) MarkAnalysisCached(resource Resource) {
	g.cachedAnalyses |= resource
}

// Invalidate drops the given resources unconditionally; used by CFG
// edits, which invalidate any cached dominance/loop/liveness info.
// Invalidation is not the same as Unlock: a caller is not required to
// be holding the resource to invalidate it.
func (g *Graph) Invalidate(resources Resource) {
	g.locks &^= resources
	g.cachedAnalyses &^= resources
}
