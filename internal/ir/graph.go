package ir

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConstructionState is a graph's current lifecycle state: building,
// constructed, or freed.
type ConstructionState uint8

const (
	Building ConstructionState = iota
	Constructed
	Freed
)

// Graph owns a per-procedure arena, node-index counter, visit counter, a
// per-pass resource-lock bitmask, a root (Start/StartBlock), a sink
// (End/EndBlock), an entity naming the procedure, a frame type, and a
// construction state.
type Graph struct {
	SessionID uuid.UUID // diagnostic correlation id, attached to every log line

	entity    *Entity
	frameType *Type
	nVars     int

	nextID   ID
	arena    []*Node // bump-allocated node list; freed as a unit with the Graph
	visitGen ID

	Start      *Node
	StartBlock *Node
	End        *Node
	EndBlock   *Node

	state ConstructionState

	locks          Resource
	cachedAnalyses Resource // resources computed and not yet invalidated

	vt *valueTable

	unknowns map[Mode]*Node

	logger *zap.SugaredLogger
}

// NewGraph allocates a Graph's arena and creates Start/StartBlock/End/
// EndBlock, recording the number of logical local variables the
// front-end will use with set_value/get_value.
func NewGraph(entity *Entity, nLocals int, logger *zap.SugaredLogger) *Graph {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	g := &Graph{
		SessionID: uuid.New(),
		entity:    entity,
		nVars:     nLocals,
		vt:        newValueTable(),
		state:     Building,
		logger:    logger.With("graph", entity.String(), "session", "pending"),
	}
	g.logger = g.logger.With("session", g.SessionID.String())

	g.StartBlock = g.newNode(OpBlock, ModeBB)
	g.StartBlock.State = Matured
	g.StartBlock.Kind = BlockPlain

	g.Start = g.newNode(OpStart, ModeT)
	g.Start.Block = g.StartBlock
	g.Start.Pin = Pinned

	g.EndBlock = g.newNode(OpBlock, ModeBB)
	g.EndBlock.Kind = BlockReturn

	g.End = g.newNode(OpEnd, ModeX)
	g.End.Block = g.EndBlock
	g.End.Pin = Pinned

	if entity != nil {
		entity.Graph = g
	}
	g.logger.Debugw("graph created", "locals", nLocals)
	return g
}

// newNode is the single allocation point for every Node in the graph: it
// assigns the next index and appends to the arena.
func (g *Graph) newNode(op Op, mode Mode) *Node {
	n := &Node{graph: g, id: g.nextID, Op: op, Mode: mode}
	g.nextID++
	g.arena = append(g.arena, n)
	return n
}

// NumNodes returns the total number of nodes ever allocated in this
// graph (including ones later marked Bad), used to size per-node side
// tables keyed by ID.
func (g *Graph) NumNodes() int { return len(g.arena) }

// Nodes returns every node allocated in this graph, in allocation order.
// The slice is owned by the graph; callers must not mutate it.
func (g *Graph) Nodes() []*Node { return g.arena }

// Entity returns the procedure entity this graph implements.
func (g *Graph) Entity() *Entity { return g.entity }

// FrameType returns the per-graph stack frame type composed by ABI
// lowering, or nil before it has run.
func (g *Graph) FrameType() *Type { return g.frameType }

// SetFrameType installs the frame type; called once by abi.ComposeFrame.
func (g *Graph) SetFrameType(t *Type) { g.frameType = t }

// State returns the graph's construction state.
func (g *Graph) State() ConstructionState { return g.state }

// Logger exposes the graph's structured logger so collaborating passes
// (ssagen, placement, regalloc, abi) can log under the same session id.
func (g *Graph) Logger() *zap.SugaredLogger { return g.logger }

// IncVisited increments the graph-wide visit generation; a "walk"
// increments once then marks visited nodes with the new value, giving
// O(1) membership tests without clearing a per-node bit between walks.
// Two-phase walks call this twice, using the first generation to mean
// "on stack" and the second to mean "finished".
func (g *Graph) IncVisited() ID {
	g.visitGen++
	return g.visitGen
}

// Mark stamps n as visited with the current generation.
func (g *Graph) Mark(n *Node) { n.visited = g.visitGen }

// MarkGen stamps n as visited with an explicit generation, for two-phase
// walks that need to distinguish "on stack" from "finished".
func (g *Graph) MarkGen(n *Node, gen ID) { n.visited = gen }

// Visited reports whether n carries the current visit generation.
func (g *Graph) Visited(n *Node) bool { return n.visited == g.visitGen }

// VisitedGen reports whether n carries exactly generation gen.
func (g *Graph) VisitedGen(n *Node, gen ID) bool { return n.visited == gen }

// FreeGraph releases the graph's arena as a unit. In a GC'd host
// language this just drops references so the arena becomes collectible;
// it exists so callers have an explicit, auditable point symmetric with
// NewGraph.
func (g *Graph) FreeGraph() {
	g.logger.Debugw("graph freed", "nodes", len(g.arena))
	g.arena = nil
	g.state = Freed
}
