// Package guard plans safe target regions for write actions. A write that
// would land on existing data is relocated sideways instead of silently
// overwriting it.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridpilot/gridpilot/pkg/document"
	"github.com/gridpilot/gridpilot/pkg/schema"
)

// MaxRelocationAttempts bounds the sideways search for a free region.
const MaxRelocationAttempts = 20

// ErrNoSafeRegion is returned when every relocation candidate collides.
var ErrNoSafeRegion = errors.New("no collision-free region found")

// Placement is the guard's decision for one write action.
type Placement struct {
	Target    schema.Region
	Relocated bool
	// Original is the declared target when Relocated is true.
	Original schema.Region
}

// Plan resolves an action's effective target region. Non-write kinds and
// writes with allowOverwrite keep their declared target. A write whose
// target holds data is moved to the first empty candidate: anchored two
// columns right of the used range, then stepping right by width+2 per
// attempt. Fails with ErrNoSafeRegion after MaxRelocationAttempts.
func Plan(ctx context.Context, doc document.Document, a schema.Action) (Placement, error) {
	target, err := schema.TargetRegion(a)
	if err != nil {
		return Placement{}, err
	}
	target, err = document.ResolveSheet(ctx, doc, target)
	if err != nil {
		return Placement{}, err
	}
	return PlanRegion(ctx, doc, a, target)
}

// PlanRegion plans a placement for an already-resolved target region. Kinds
// whose output dimensions are known only at execution time (aggregate writes)
// expand the declared region to the computed result size before planning, so
// the emptiness probe covers every cell the write will touch.
func PlanRegion(ctx context.Context, doc document.Document, a schema.Action, target schema.Region) (Placement, error) {
	if !schema.IsWriteKind(a.Type) || a.AllowOverwrite {
		return Placement{Target: target}, nil
	}

	empty, err := document.RegionEmpty(ctx, doc, target)
	if err != nil {
		return Placement{}, err
	}
	if empty {
		return Placement{Target: target}, nil
	}

	used, ok, err := doc.UsedRange(ctx, target.Sheet)
	if err != nil {
		return Placement{}, err
	}
	if !ok {
		// Data in the target but an empty used range is inconsistent;
		// keep the declared target rather than guessing.
		return Placement{Target: target}, nil
	}

	step := target.Cols() + 2
	candidate := target.AnchorAt(used.EndCol+2, target.StartRow)
	for attempt := 0; attempt < MaxRelocationAttempts; attempt++ {
		empty, err := document.RegionEmpty(ctx, doc, candidate)
		if err != nil {
			return Placement{}, err
		}
		if empty {
			return Placement{Target: candidate, Relocated: true, Original: target}, nil
		}
		candidate = candidate.ShiftCols(step)
	}
	return Placement{}, fmt.Errorf("%w for %s after %d attempts", ErrNoSafeRegion, target.Ref(), MaxRelocationAttempts)
}
