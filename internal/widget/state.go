package widget

// State mirrors the server-side like state for one article. Count and Liked
// are meaningless until Known is set by the first status refresh.
type State struct {
	Known    bool
	Liked    bool
	Count    int64
	InFlight bool
}

// toggleCapture records the pre-toggle values a failed toggle rolls back to.
type toggleCapture struct {
	liked bool
	count int64
}

// applyStatus folds a completed status refresh into the state. A refresh that
// lands while a toggle is in flight is discarded: the toggle's own completion
// is authoritative and its rollback capture must stay intact.
func applyStatus(state State, liked bool, count int64) State {
	if state.InFlight {
		return state
	}
	return State{
		Known: true,
		Liked: liked,
		Count: count,
	}
}

// beginToggle captures the current values and applies the optimistic flip.
// It refuses when the status is not yet known or another toggle is already
// in flight (no queueing, no cancellation).
func beginToggle(state State) (State, toggleCapture, bool) {
	if !state.Known || state.InFlight {
		return state, toggleCapture{}, false
	}

	capture := toggleCapture{liked: state.Liked, count: state.Count}

	next := state
	next.InFlight = true
	if state.Liked {
		next.Liked = false
		next.Count = state.Count - 1
		if next.Count < 0 {
			next.Count = 0
		}
	} else {
		next.Liked = true
		next.Count = state.Count + 1
	}
	return next, capture, true
}

// completeToggle resolves an in-flight toggle. Success overwrites the count
// with the server's authoritative value; failure restores the exact
// pre-toggle values. The in-flight flag always clears.
func completeToggle(state State, capture toggleCapture, serverCount int64, err error) State {
	next := state
	next.InFlight = false
	next.Known = true
	if err != nil {
		next.Liked = capture.liked
		next.Count = capture.count
		return next
	}
	next.Liked = !capture.liked
	next.Count = serverCount
	return next
}
