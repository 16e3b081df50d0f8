package layers

// Placement is an insertion at Index of the stack as it stands after the
// removals and every earlier placement of the same plan.
type Placement struct {
	Overlay Overlay `json:"overlay"`
	Index   int     `json:"index"`
}

// Plan is the diff between the desired overlays and the attached stack.
// Steps apply in field order: remove, restyle, add, reorder.
type Plan struct {
	ToRemove  []Overlay   `json:"toRemove"`
	ToRestyle []Overlay   `json:"toRestyle"`
	ToAdd     []Placement `json:"toAdd"`
	// ToReorder names overlays lifted to the top, in order.
	ToReorder []string `json:"toReorder"`
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.ToRemove) == 0 && len(p.ToRestyle) == 0 && len(p.ToAdd) == 0 && len(p.ToReorder) == 0
}

// Reconcile computes the plan turning attached into the visible subset of
// desired, in z-order:
//
//   - an attached overlay is removed when desired has no overlay of that
//     name, when desired holds a different instance under the name, when
//     the desired one is hidden, or when it duplicates a kept name;
//   - at most one popup survives, and only the desired one;
//   - a kept overlay whose opacity changed is restyled in place;
//   - a missing visible overlay is inserted just above the highest
//     attached overlay that sorts below it, or above the base run;
//   - after any insertion the marker group is lifted to the top, with the
//     popup above it.
//
// Within one Kind, desired order decides the stacking.
func Reconcile(desired, attached []Overlay) Plan {
	var plan Plan

	want := make(map[string]Overlay, len(desired))
	order := make(map[string]int, len(desired))
	popup := ""
	for i, d := range desired {
		if _, dup := want[d.Name]; dup {
			continue
		}
		want[d.Name] = d
		order[d.Name] = i
		if d.Kind == KindPopup && d.Visible && popup == "" {
			popup = d.Name
		}
	}

	kept := make([]Overlay, 0, len(attached))
	seen := make(map[string]bool, len(attached))
	for _, a := range attached {
		d, ok := want[a.Name]
		stale := !ok || !d.Visible || d.ID != a.ID || d.Kind != a.Kind
		if stale || seen[a.Name] || (a.Kind == KindPopup && a.Name != popup) {
			plan.ToRemove = append(plan.ToRemove, a)
			continue
		}
		seen[a.Name] = true
		if d.Opacity != a.Opacity {
			plan.ToRestyle = append(plan.ToRestyle, d)
			a.Opacity = d.Opacity
		}
		kept = append(kept, a)
	}

	for i, d := range desired {
		if !d.Visible || order[d.Name] != i || seen[d.Name] {
			continue
		}
		if d.Kind == KindPopup && d.Name != popup {
			continue
		}
		idx := insertIndex(kept, d, order)
		kept = insertAt(kept, idx, d)
		seen[d.Name] = true
		plan.ToAdd = append(plan.ToAdd, Placement{Overlay: d, Index: idx})
	}

	plan.ToReorder = liftOrder(kept, len(plan.ToAdd) > 0)
	return plan
}

// precedes reports whether a belongs below b.
func precedes(a, b Overlay, order map[string]int) bool {
	if a.Kind != b.Kind {
		return a.Kind.Rank() < b.Kind.Rank()
	}
	ai, aok := order[a.Name]
	bi, bok := order[b.Name]
	return aok && bok && ai < bi
}

func insertIndex(stack []Overlay, d Overlay, order map[string]int) int {
	idx := -1
	for i, o := range stack {
		if precedes(o, d, order) {
			idx = i
		}
	}
	if idx >= 0 {
		return idx + 1
	}
	if d.Kind == KindBase {
		return 0
	}
	return BaseRunLength(stack)
}

func insertAt(stack []Overlay, i int, o Overlay) []Overlay {
	if i < 0 {
		i = 0
	}
	if i > len(stack) {
		i = len(stack)
	}
	stack = append(stack, Overlay{})
	copy(stack[i+1:], stack[i:])
	stack[i] = o
	return stack
}

// liftOrder returns the names to lift to the top of stack. The marker
// group is lifted after any insertion or when something other than the
// popup sits above it; the popup follows so it stays topmost.
func liftOrder(stack []Overlay, added bool) []string {
	markers, popup := -1, -1
	for i, o := range stack {
		switch o.Kind {
		case KindMarkers:
			markers = i
		case KindPopup:
			popup = i
		}
	}

	var lift []string
	if markers >= 0 {
		misplaced := false
		for _, o := range stack[markers+1:] {
			if o.Kind != KindPopup {
				misplaced = true
				break
			}
		}
		if added || misplaced {
			lift = append(lift, stack[markers].Name)
		}
	}
	if popup >= 0 && (len(lift) > 0 || popup != len(stack)-1) {
		lift = append(lift, stack[popup].Name)
	}
	return lift
}

// Apply replays the plan on attached and returns the resulting stack.
// attached is not modified.
func (p Plan) Apply(attached []Overlay) []Overlay {
	stack := make([]Overlay, 0, len(attached)+len(p.ToAdd))
	for i, a := range attached {
		if !p.removes(attached, i) {
			stack = append(stack, a)
		}
	}
	for _, r := range p.ToRestyle {
		if i := IndexOf(stack, r.Name); i >= 0 {
			stack[i].Opacity = r.Opacity
		}
	}
	for _, pl := range p.ToAdd {
		stack = insertAt(stack, pl.Index, pl.Overlay)
	}
	for _, name := range p.ToReorder {
		i := IndexOf(stack, name)
		if i < 0 {
			continue
		}
		o := stack[i]
		stack = append(stack[:i], stack[i+1:]...)
		stack = append(stack, o)
	}
	return stack
}

// removes reports whether attached[i] is dropped. When an instance is
// attached n times and listed r times, the first n-r copies are kept.
func (p Plan) removes(attached []Overlay, i int) bool {
	a := attached[i]
	r := 0
	for _, o := range p.ToRemove {
		if o.Same(a) {
			r++
		}
	}
	if r == 0 {
		return false
	}
	n, before := 0, 0
	for j, o := range attached {
		if o.Same(a) {
			n++
			if j < i {
				before++
			}
		}
	}
	return before >= n-r
}
