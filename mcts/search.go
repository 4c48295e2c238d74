package mcts

// NextState advances the search by one decision from id and returns the
// resulting node:
//
//   - at a leaf, expand with a uniformly random legal decision (rollout
//     policy);
//   - while untried legal decisions remain, expand one uniformly at random
//     (forced exploration);
//   - otherwise select the child maximizing UCT, first maximal child
//     winning ties.
//
// legal must be non-empty.
func (t *Tree) NextState(id int, legal []int) int {
	if len(legal) == 0 {
		panic("mcts: no legal decisions")
	}

	if t.IsLeaf(id) {
		return t.AddChild(id, legal[t.cfg.Rng.Intn(len(legal))])
	}

	tried := make(map[int]bool, len(t.nodes[id].children))
	for _, c := range t.nodes[id].children {
		tried[t.LastDecision(c)] = true
	}
	untried := make([]int, 0, len(legal))
	for _, d := range legal {
		if !tried[d] {
			untried = append(untried, d)
		}
	}
	if len(untried) > 0 {
		return t.AddChild(id, untried[t.cfg.Rng.Intn(len(untried))])
	}

	best := t.nodes[id].children[0]
	bestScore := t.UCT(best)
	for _, c := range t.nodes[id].children[1:] {
		if score := t.UCT(c); score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

// Best returns the child of id with the highest average reward. Selection
// explores; the final recommendation exploits, so this deliberately ranks
// by mean rather than visit count. ok is false when id has no visited
// children.
func (t *Tree) Best(id int) (decision int, ok bool) {
	bestAvg := 0.0
	for _, c := range t.nodes[id].children {
		if t.nodes[c].visits == 0 {
			continue
		}
		avg := t.nodes[c].valueSum / float64(t.nodes[c].visits)
		if !ok || avg > bestAvg {
			decision = t.LastDecision(c)
			bestAvg = avg
			ok = true
		}
	}
	return decision, ok
}
