package abi

import "firmgo/internal/ir"

// FrameAreas are the three compound types that make up a stack frame
// before composition: the locals a procedure declares itself, the
// "between" area a call sequence owns (return address, saved frame
// pointer, whatever else the calling convention tucks in there), and
// the arguments area holding this procedure's stack-passed parameters.
// Each area's Members already carry intra-area offsets; ComposeFrame
// renumbers them into one frame-relative numbering and installs the
// result on the graph.
type FrameAreas struct {
	Locals  *ir.Type
	Between *ir.Type
	Args    *ir.Type
}

func areaSize(t *ir.Type) int64 {
	if t == nil {
		return 0
	}
	if t.Size > 0 {
		return t.Size
	}
	var max int64
	for _, m := range t.Members {
		end := m.Offset
		if m.Type != nil {
			end += m.Type.Size
		}
		if end > max {
			max = end
		}
	}
	return max
}

// ComposeFrame concatenates the three areas in frame-relative offset
// order -- locals, between, args for a downward-growing stack, the
// mirror image for an upward-growing one, with between always in the
// middle -- and renumbers every member entity to its position in that
// single numbering. It installs the resulting type on g via
// SetFrameType and returns the frame type along with the initial
// offset: the distance from the stack pointer at function entry back to
// the frame-pointer reference point, per stack_frame_compute_initial_offset.
func ComposeFrame(g *ir.Graph, areas FrameAreas, cfg Config) (frame *ir.Type, initialOffset int64, err error) {
	locals, between, args := areas.Locals, areas.Between, areas.Args
	localsSize := areaSize(locals)
	betweenSize := areaSize(between)
	argsSize := areaSize(args)

	frame = ir.NewType(ir.TypeFrame, g.Entity().String()+".frame", ir.ModeBad)

	// stack_dir < 0: locals have the lowest addresses, arguments the
	// highest (locals, between, args). stack_dir > 0: the order flips
	// end to end, between staying in the middle (args, between, locals).
	type areaEntry struct {
		area *ir.Type
		size int64
	}
	var order []areaEntry
	if cfg.StackDirection > 0 {
		order = []areaEntry{{args, argsSize}, {between, betweenSize}, {locals, localsSize}}
	} else {
		order = []areaEntry{{locals, localsSize}, {between, betweenSize}, {args, argsSize}}
	}

	base := int64(0)
	areaBase := make(map[*ir.Type]int64, 3)
	for _, e := range order {
		if e.area != nil {
			areaBase[e.area] = base
			for _, m := range e.area.Members {
				m.Offset += base
				m.Owner = frame
				frame.Members = append(frame.Members, m)
			}
		}
		base += e.size
	}
	frame.Size = localsSize + betweenSize + argsSize
	frame.Align = cfg.StackAlignment

	// stack_dir < 0: the base type searched for an offset-0 entity is the
	// between area, falling back to the locals size. stack_dir >= 0: the
	// base is locals, falling back to the between size.
	var searchArea *ir.Type
	var fallback int64
	if cfg.StackDirection < 0 {
		searchArea, fallback = between, localsSize
	} else {
		searchArea, fallback = locals, betweenSize
	}
	initialOffset = fallback
	if searchArea != nil {
		searchBase := areaBase[searchArea]
		for _, m := range searchArea.Members {
			if m.Offset == searchBase {
				initialOffset = m.Offset
				break
			}
		}
	}

	g.SetFrameType(frame)
	return frame, initialOffset, nil
}
