package interpreter

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/document"
	"github.com/agentflare-ai/agentmlcore/observer"
)

// Tick drives one pass of the interpreter main loop, grounded verbatim on
// interpreter.py's Interpreter.mainEventLoop: stabilize on eventless/
// internal transitions, start any newly-entered invokes, then consume at
// most one external event. Returns false once the session stops running
// (a top-level final state entered or a Cancel event consumed); the
// exitInterpreter pass itself runs on the next call.
func (s *Session) Tick(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := tickTracer.Start(ctx, "interpreter.tick", trace.WithAttributes(
		attribute.String("agentmlcore.session_id", s.sessionID),
	))
	defer span.End()
	ticksTotal.Add(ctx, 1)

	if !s.running {
		if !s.exited {
			s.exitInterpreter(ctx)
		}
		return false
	}

	if !s.externalQueueGuard {
		stable := false
		for s.running && !stable {
			enabled := s.selectEventlessTransitions()
			if len(enabled) == 0 {
				ev, ok := s.internal.Pop()
				if !ok {
					stable = true
				} else {
					s.bus.Emit(observer.Signal{Kind: observer.InternalEvent, Event: ev})
					s.dm.SetCurrentEvent(ctx, ev)
					enabled = s.selectTransitions(ev)
				}
			}
			if len(enabled) > 0 {
				s.microstep(ctx, enabled)
			}
		}

		for _, id := range s.statesToInvoke {
			n := s.doc.Node(id)
			if n == nil {
				continue
			}
			for _, spec := range n.Invokes {
				s.startInvoke(ctx, n, spec)
			}
		}
		s.statesToInvoke = nil

		if !s.internal.Empty() {
			return s.running
		}
	}

	if s.external.Empty() {
		s.externalQueueGuard = true
		return s.running
	}
	s.externalQueueGuard = false

	ev, ok := s.external.Pop()
	if !ok {
		return s.running
	}

	if scxml.IsCancelEvent(ev) {
		s.running = false
		return false
	}

	s.bus.Emit(observer.Signal{Kind: observer.ExternalEvent, Event: ev})
	s.dm.SetCurrentEvent(ctx, ev)

	for _, id := range s.config.Members() {
		n := s.doc.Node(id)
		if n == nil {
			continue
		}
		for _, inst := range s.invokes[id] {
			if inst.spec.InvokeID == ev.InvokeID {
				s.applyFinalize(ctx, inst, ev)
			}
			if inst.spec.Autoforward {
				_ = inst.forward(ctx, ev)
			}
		}
	}

	enabled := s.selectTransitions(ev)
	if len(enabled) > 0 {
		s.microstep(ctx, enabled)
	}
	return s.running
}

// Run drives Tick to completion, synchronously, for hosts that don't need
// to interleave their own work between ticks. Per spec.md §5, the
// interpreter itself never sleeps inside a tick; Run is the host loop that
// paces it, backing off with a short clock-driven sleep whenever a tick
// made no progress so an idle session doesn't spin a core.
func (s *Session) Run(ctx context.Context) {
	for {
		before := s.external.Len() + s.internal.Len()
		alive := s.Tick(ctx)
		after := s.external.Len() + s.internal.Len()

		if !alive {
			// The tick that flips running to false (top-level final state
			// entered, or a Cancel event consumed) returns before calling
			// exitInterpreter; that happens on the following call, via
			// Tick's own "!s.running" branch. Drain it here so Run never
			// returns with the session still unexited.
			if !s.IsFinished() {
				s.Tick(ctx)
			}
			return
		}

		if before == 0 && after == 0 {
			if err := s.clock.Sleep(ctx, idlePollInterval); err != nil {
				return
			}
		}
	}
}

// idlePollInterval is how long Run backs off between ticks once a
// session's queues are observed empty (spec.md §5's "~1ms sleep").
const idlePollInterval = time.Millisecond

func (s *Session) exitInterpreter(ctx context.Context) {
	members := s.config.Members()
	nodes := make([]*document.Node, 0, len(members))
	for _, id := range members {
		if n := s.doc.Node(id); n != nil {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].N > nodes[j].N })

	for _, n := range nodes {
		if err := s.executeOps(ctx, n.OnExit, n); err != nil {
			s.tracer.Error("E301", err.Error(), n.Source)
		}
		for _, inst := range s.invokes[n.ID] {
			inst.cancel(ctx)
		}
		s.config.Delete(n.ID)
		s.bus.Emit(observer.Signal{Kind: observer.ExitState, StateID: n.StateID})

		if n.Kind == document.KindFinal {
			parent := s.doc.Node(n.Parent)
			if parent != nil && parent.Parent == document.NoNode {
				if s.invokeID != "" && s.parentSessionID != "" && s.registry != nil {
					if parentSession, ok := s.registry.Lookup(s.parentSessionID); ok {
						_ = parentSession.Send(ctx, &scxml.Event{
							Name: "done.invoke." + s.invokeID,
							Data: s.doneData(ctx, n),
							Type: scxml.EventTypeExternal,
						})
					}
				}
				s.bus.Emit(observer.Signal{Kind: observer.Exit, StateID: n.StateID, Final: true})
				s.exited = true
				if s.registry != nil {
					s.registry.Unregister(s.sessionID)
				}
				return
			}
		}
	}
	s.exited = true
	s.bus.Emit(observer.Signal{Kind: observer.Exit, Final: false})
	if s.registry != nil {
		s.registry.Unregister(s.sessionID)
	}
}

// selectEventlessTransitions mirrors selectEventlessTransitions, always
// resolved via removeConflictingTransitions (spec.md's Open Question is
// decided uniformly in favor of this over the legacy filterPreempted path
// the original kept only for one failing conformance test).
func (s *Session) selectEventlessTransitions() []*document.Transition {
	var enabled []*document.Transition
	for _, st := range s.atomicStatesInDocumentOrder() {
		done := false
		chain := append([]*document.Node{st}, s.doc.ProperAncestors(st)...)
		for _, anc := range chain {
			if done {
				break
			}
			for _, t := range anc.Transitions {
				if len(t.Event) != 0 {
					continue
				}
				if s.conditionMatch(t) {
					enabled = append(enabled, t)
					done = true
					break
				}
			}
		}
	}
	return s.removeConflictingTransitions(enabled)
}

// selectTransitions mirrors selectTransitions(event).
func (s *Session) selectTransitions(ev *scxml.Event) []*document.Transition {
	var enabled []*document.Transition
	tokens := ev.NameTokens()
	for _, st := range s.atomicStatesInDocumentOrder() {
		done := false
		chain := append([]*document.Node{st}, s.doc.ProperAncestors(st)...)
		for _, anc := range chain {
			if done {
				break
			}
			for _, t := range anc.Transitions {
				if len(t.Event) == 0 {
					continue
				}
				if nameMatch(t.Event, tokens) && s.conditionMatch(t) {
					enabled = append(enabled, t)
					done = true
					break
				}
			}
		}
	}
	return s.removeConflictingTransitions(enabled)
}

func (s *Session) conditionMatch(t *document.Transition) bool {
	if t.Cond == "" {
		return true
	}
	ok, err := s.dm.EvaluateCondition(s.ctx, t.Cond)
	if err != nil {
		s.tracer.Error("E302", err.Error(), t.Element)
		return false
	}
	return ok
}

// nameMatch implements spec.md §4.2: "*" matches anything; otherwise an
// event pattern matches when its tokens are a prefix of the event's
// tokens.
func nameMatch(patterns [][]string, eventTokens []string) bool {
	for _, p := range patterns {
		if len(p) == 1 && p[0] == "*" {
			return true
		}
		if len(p) > len(eventTokens) {
			continue
		}
		match := true
		for i, tok := range p {
			if tok != eventTokens[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (s *Session) atomicStatesInDocumentOrder() []*document.Node {
	var out []*document.Node
	for _, id := range s.config.Members() {
		n := s.doc.Node(id)
		if n != nil && n.IsAtomic() {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessDocumentOrder(s.doc.DocumentOrder(out[i]), s.doc.DocumentOrder(out[j]))
	})
	return out
}

func lessDocumentOrder(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// removeConflictingTransitions mirrors removeConflictingTransitions
// exactly: a later transition t1 is dropped if its exit set intersects an
// already-kept t2's exit set and t1 is not a descendant-sourced override
// of t2.
func (s *Session) removeConflictingTransitions(enabled []*document.Transition) []*document.Transition {
	var filtered []*document.Transition
	for _, t1 := range enabled {
		preempted := false
		var toRemove []*document.Transition
		exit1 := s.computeExitSet([]*document.Transition{t1})
		for _, t2 := range filtered {
			exit2 := s.computeExitSet([]*document.Transition{t2})
			if intersects(exit1, exit2) {
				if s.doc.IsDescendant(s.doc.Node(t1.Source), s.doc.Node(t2.Source)) {
					toRemove = append(toRemove, t2)
				} else {
					preempted = true
					break
				}
			}
		}
		if preempted {
			continue
		}
		if len(toRemove) > 0 {
			filtered = removeAll(filtered, toRemove)
		}
		filtered = append(filtered, t1)
	}
	return filtered
}

func intersects(a, b []*document.Node) bool {
	set := make(map[document.NodeID]bool, len(a))
	for _, n := range a {
		set[n.ID] = true
	}
	for _, n := range b {
		if set[n.ID] {
			return true
		}
	}
	return false
}

func removeAll(from []*document.Transition, remove []*document.Transition) []*document.Transition {
	skip := make(map[*document.Transition]bool, len(remove))
	for _, t := range remove {
		skip[t] = true
	}
	out := make([]*document.Transition, 0, len(from))
	for _, t := range from {
		if !skip[t] {
			out = append(out, t)
		}
	}
	return out
}

func (s *Session) getTargetStates(ids []string) []*document.Node {
	nodes, err := s.doc.TargetStates(ids)
	if err != nil {
		s.tracer.Error("E303", err.Error(), nil)
		return nil
	}
	return nodes
}

// getEffectiveTargetStates resolves a transition's declared targets,
// substituting a <history> target's recalled (or default) states.
func (s *Session) getEffectiveTargetStates(t *document.Transition) []*document.Node {
	var out []*document.Node
	seen := map[document.NodeID]bool{}
	add := func(n *document.Node) {
		if !seen[n.ID] {
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	for _, n := range s.getTargetStates(t.Target) {
		if n.Kind == document.KindHistory {
			if recalled, ok := s.history.Recall(n.StateID); ok {
				for _, id := range recalled {
					if rn := s.doc.Node(id); rn != nil {
						add(rn)
					}
				}
				continue
			}
			for _, ht := range n.Transitions {
				for _, en := range s.getEffectiveTargetStates(ht) {
					add(en)
				}
			}
			continue
		}
		add(n)
	}
	return out
}

func (s *Session) getTransitionDomain(t *document.Transition) *document.Node {
	tstates := s.getEffectiveTargetStates(t)
	if len(tstates) == 0 {
		return nil
	}
	source := s.doc.Node(t.Source)
	if t.Type == document.TransitionInternal && source.IsCompound() && allDescendants(s.doc, tstates, source) {
		return source
	}
	all := append([]*document.Node{source}, tstates...)
	return s.findLCCA(all)
}

func allDescendants(d *docType, nodes []*document.Node, anc *document.Node) bool {
	for _, n := range nodes {
		if !d.IsDescendant(n, anc) {
			return false
		}
	}
	return true
}

func (s *Session) computeExitSet(transitions []*document.Transition) []*document.Node {
	var out []*document.Node
	seen := map[document.NodeID]bool{}
	for _, t := range transitions {
		if len(t.Target) == 0 {
			continue
		}
		domain := s.getTransitionDomain(t)
		if domain == nil {
			continue
		}
		for _, id := range s.config.Members() {
			n := s.doc.Node(id)
			if n != nil && s.doc.IsDescendant(n, domain) && !seen[n.ID] {
				seen[n.ID] = true
				out = append(out, n)
			}
		}
	}
	return out
}

func (s *Session) findLCCA(states []*document.Node) *document.Node {
	for _, anc := range s.doc.ProperAncestors(states[0]) {
		if !anc.IsCompound() {
			continue
		}
		ok := true
		for _, st := range states[1:] {
			if !s.doc.IsDescendant(st, anc) {
				ok = false
				break
			}
		}
		if ok {
			return anc
		}
	}
	return s.doc.RootNode()
}

// microstep mirrors microstep(enabledTransitions).
func (s *Session) microstep(ctx context.Context, enabled []*document.Transition) {
	ctx, span := tickTracer.Start(ctx, "interpreter.macrostep", trace.WithAttributes(
		attribute.Int("agentmlcore.transitions", len(enabled)),
	))
	defer span.End()
	transitionsTaken.Add(ctx, int64(len(enabled)))

	s.exitStates(ctx, enabled)
	for _, t := range enabled {
		s.bus.Emit(observer.Signal{Kind: observer.TakingTransition, StateID: s.doc.Node(t.Source).StateID, TransitionIndex: t.Index})
		if err := s.executeOps(ctx, t.Exe, s.doc.Node(t.Source)); err != nil {
			s.tracer.Error("E304", err.Error(), t.Element)
		}
	}
	s.enterStates(ctx, enabled)
	s.bus.Emit(observer.Signal{Kind: observer.NewConfiguration})
}

func (s *Session) exitStates(ctx context.Context, enabled []*document.Transition) {
	exitSet := s.computeExitSet(enabled)

	toInvoke := make(map[document.NodeID]bool, len(s.statesToInvoke))
	for _, id := range s.statesToInvoke {
		toInvoke[id] = true
	}
	for _, n := range exitSet {
		delete(toInvoke, n.ID)
	}
	s.statesToInvoke = s.statesToInvoke[:0]
	for id := range toInvoke {
		s.statesToInvoke = append(s.statesToInvoke, id)
	}

	sort.Slice(exitSet, func(i, j int) bool { return exitSet[i].N > exitSet[j].N })

	for _, n := range exitSet {
		for _, h := range n.Histories {
			hn := s.doc.Node(h)
			var recorded []document.NodeID
			for _, id := range s.config.Members() {
				cn := s.doc.Node(id)
				if cn == nil {
					continue
				}
				if hn.History == document.HistoryDeep {
					if cn.IsAtomic() && s.doc.IsDescendant(cn, n) {
						recorded = append(recorded, cn.ID)
					}
				} else if cn.Parent == n.ID {
					recorded = append(recorded, cn.ID)
				}
			}
			s.history.Record(hn.StateID, recorded)
		}
	}

	for _, n := range exitSet {
		if err := s.executeOps(ctx, n.OnExit, n); err != nil {
			s.tracer.Error("E301", err.Error(), n.Source)
		}
		for _, inst := range s.invokes[n.ID] {
			inst.cancel(ctx)
		}
		delete(s.invokes, n.ID)
		s.config.Delete(n.ID)
		s.bus.Emit(observer.Signal{Kind: observer.ExitState, StateID: n.StateID})
	}
}

func (s *Session) enterStates(ctx context.Context, enabled []*document.Transition) {
	var statesToEnter []*document.Node
	defaultEntry := map[document.NodeID]bool{}
	defaultHistoryContent := map[document.NodeID]*document.Transition{}
	seenEnter := map[document.NodeID]bool{}
	addEnter := func(n *document.Node) {
		if !seenEnter[n.ID] {
			seenEnter[n.ID] = true
			statesToEnter = append(statesToEnter, n)
		}
	}

	for _, t := range enabled {
		if len(t.Target) == 0 {
			continue
		}
		tstates := s.getTargetStates(t.Target)
		source := s.doc.Node(t.Source)
		var ancestor *document.Node
		if t.Type == document.TransitionInternal && source.IsCompound() && allDescendants(s.doc, tstates, source) {
			ancestor = source
		} else {
			ancestor = s.findLCCA(append([]*document.Node{source}, tstates...))
		}
		for _, st := range tstates {
			s.addStatesToEnter(st, &statesToEnter, seenEnter, defaultEntry, defaultHistoryContent)
		}
		for _, st := range tstates {
			for _, anc := range s.doc.ProperAncestorsUpTo(st, ancestor) {
				addEnter(anc)
				if anc.Kind == document.KindParallel {
					for _, childID := range anc.ChildStates() {
						child := s.doc.Node(childID)
						if child == nil {
							continue
						}
						covered := false
						for _, already := range statesToEnter {
							if s.doc.IsDescendant(already, child) || already.ID == child.ID {
								covered = true
								break
							}
						}
						if !covered {
							s.addStatesToEnter(child, &statesToEnter, seenEnter, defaultEntry, defaultHistoryContent)
						}
					}
				}
			}
		}
	}

	sort.Slice(statesToEnter, func(i, j int) bool { return statesToEnter[i].N < statesToEnter[j].N })

	for _, n := range statesToEnter {
		s.statesToInvoke = append(s.statesToInvoke, n.ID)
		s.config.Add(n.ID)

		if s.doc.Binding == "late" && n.MarkFirstEntry() {
			if err := s.dm.Initialize(ctx, convertDataDecls(n.Data)); err != nil {
				s.tracer.Error("E305", err.Error(), n.Source)
			}
		}

		s.bus.Emit(observer.Signal{Kind: observer.EnterState, StateID: n.StateID})

		if err := s.executeOps(ctx, n.OnEntry, n); err != nil {
			s.tracer.Error("E306", err.Error(), n.Source)
		}
		if defaultEntry[n.ID] && n.Initial != nil {
			if err := s.executeOps(ctx, n.Initial.Exe, n); err != nil {
				s.tracer.Error("E306", err.Error(), n.Source)
			}
		}
		if t, ok := defaultHistoryContent[n.ID]; ok {
			if err := s.executeOps(ctx, t.Exe, n); err != nil {
				s.tracer.Error("E306", err.Error(), n.Source)
			}
		}

		if n.Kind == document.KindFinal {
			parent := s.doc.Node(n.Parent)
			s.internal.Push(&scxml.Event{Name: "done.state." + parent.StateID, Data: s.doneData(ctx, n), Type: scxml.EventTypeInternal})
			grandparent := s.doc.Node(parent.Parent)
			if grandparent != nil && grandparent.Kind == document.KindParallel && s.isInFinalState(grandparent) {
				s.internal.Push(&scxml.Event{Name: "done.state." + grandparent.StateID, Type: scxml.EventTypeInternal})
			}
		}
	}

	for _, id := range s.config.Members() {
		n := s.doc.Node(id)
		if n != nil && n.Kind == document.KindFinal && n.Parent == s.doc.Root {
			s.running = false
		}
	}
}

func (s *Session) addStatesToEnter(n *document.Node, statesToEnter *[]*document.Node, seen map[document.NodeID]bool, defaultEntry map[document.NodeID]bool, defaultHistoryContent map[document.NodeID]*document.Transition) {
	add := func(x *document.Node) {
		if !seen[x.ID] {
			seen[x.ID] = true
			*statesToEnter = append(*statesToEnter, x)
		}
	}

	if n.Kind == document.KindHistory {
		if recalled, ok := s.history.Recall(n.StateID); ok {
			for _, id := range recalled {
				rn := s.doc.Node(id)
				if rn == nil {
					continue
				}
				s.addStatesToEnter(rn, statesToEnter, seen, defaultEntry, defaultHistoryContent)
				for _, anc := range s.doc.ProperAncestorsUpTo(rn, s.doc.Node(n.Parent)) {
					add(anc)
				}
			}
			return
		}
		for _, t := range n.Transitions {
			for _, st := range s.getTargetStates(t.Target) {
				defaultHistoryContent[s.doc.Node(st.Parent).ID] = t
				s.addStatesToEnter(st, statesToEnter, seen, defaultEntry, defaultHistoryContent)
				for _, anc := range s.doc.ProperAncestorsUpTo(st, s.doc.Node(n.Parent)) {
					add(anc)
				}
			}
		}
		return
	}

	add(n)
	switch {
	case n.IsCompound():
		defaultEntry[n.ID] = true
		var initialTargets []string
		if n.Initial != nil {
			initialTargets = n.Initial.Target
		}
		for _, st := range s.getTargetStates(initialTargets) {
			s.addStatesToEnter(st, statesToEnter, seen, defaultEntry, defaultHistoryContent)
		}
	case n.Kind == document.KindParallel:
		for _, childID := range n.ChildStates() {
			if child := s.doc.Node(childID); child != nil {
				s.addStatesToEnter(child, statesToEnter, seen, defaultEntry, defaultHistoryContent)
			}
		}
	}
}

func (s *Session) isInFinalState(n *document.Node) bool {
	switch {
	case n.IsCompound():
		for _, childID := range n.ChildStates() {
			child := s.doc.Node(childID)
			if child != nil && child.Kind == document.KindFinal && s.config.Has(child.ID) {
				return true
			}
		}
		return false
	case n.Kind == document.KindParallel:
		for _, childID := range n.ChildStates() {
			if child := s.doc.Node(childID); child == nil || !s.isInFinalState(child) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// docType is an alias so allDescendants can take *document.Document
// without importing it under a name that collides with the package.
type docType = document.Document
