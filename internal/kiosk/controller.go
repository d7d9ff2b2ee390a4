// Package kiosk implements the photo-booth session controller.
//
// The controller is a pure state machine: Process converts one Event into
// the next authoritative kiosk state and returns the Commands the executor
// must run. It performs no I/O, never blocks and never fails. Events that
// are not valid in the current state are ignored without changing state,
// so duplicate or late deliveries from the network cannot corrupt it.
//
// Controller is not safe for concurrent use. It must be driven from a
// single serialized loop.
package kiosk

// Controller owns the kiosk state. The zero value is not usable; use
// NewController.
type Controller struct {
	state     State
	session   *SessionData
	countdown *uint32
	// viewing is an index into session.Photos; nil means live view.
	viewing *int
	err     string
	loading bool
}

// NewController creates a controller in the Welcome state with no session.
func NewController() *Controller {
	return &Controller{state: StateWelcome}
}

// Process applies ev and returns the commands to execute, in order.
func (c *Controller) Process(ev Event) []Command {
	var cmds []Command

	switch e := ev.(type) {
	case StartSession:
		if c.state == StateWelcome && !c.loading {
			c.loading = true
			c.err = ""
			cmds = append(cmds, createSession(), updateUI())
		}

	case SessionCreated:
		if c.state == StateWelcome {
			c.state = StateSession
			c.loading = false
			c.session = &SessionData{ID: e.ID}
			c.viewing = nil
			c.countdown = nil
			cmds = append(cmds, connectEventStream(e.ID), updateUI())
		}

	case SessionCreateFailed:
		c.loading = false
		c.err = e.Err
		cmds = append(cmds, scheduleErrorClear(), updateUI())

	case EndSession:
		if c.session != nil {
			cmds = append(cmds, disconnectEventStream(), endSession(c.session.ID))
		}

	case SessionEnded:
		c.state = StateWelcome
		c.session = nil
		c.viewing = nil
		c.countdown = nil
		cmds = append(cmds, updateUI())

	case TriggerCapture:
		if c.CanCapture() {
			cmds = append(cmds, triggerCapture(c.session.ID))
		}

	case PhoneConnected:
		if c.session != nil {
			c.session.PhoneCount++
			cmds = append(cmds, updateUI())
		}

	case PhoneDisconnected:
		if c.session != nil {
			if c.session.PhoneCount > 0 {
				c.session.PhoneCount--
			}
			cmds = append(cmds, updateUI())
		}

	case CountdownTick:
		if c.session != nil {
			c.state = StateCountdown
			v := e.Value
			c.countdown = &v
			c.viewing = nil
			cmds = append(cmds, updateUI())
		}

	case PhotoReady:
		if c.session != nil {
			c.session.Photos = append(c.session.Photos, e.Photo)
			cmds = append(cmds, updateUI())
		}

	case Processing:
		if c.session != nil {
			c.state = StateProcessing
			c.countdown = nil
			c.viewing = nil
			cmds = append(cmds, updateUI())
		}

	case CaptureComplete:
		if c.session != nil {
			c.state = StateSession
			c.countdown = nil
			cmds = append(cmds, updateUI())
		}

	case CaptureFailed:
		if c.session != nil {
			c.state = StateSession
			c.countdown = nil
			c.err = e.Err
			cmds = append(cmds, scheduleErrorClear(), updateUI())
		}

	case SelectPhoto:
		if c.state == StateSession && c.session != nil &&
			e.Index >= 0 && e.Index < len(c.session.Photos) {
			i := e.Index
			c.viewing = &i
			cmds = append(cmds, updateUI())
		}

	case SelectLive:
		if c.state == StateSession {
			c.viewing = nil
			cmds = append(cmds, updateUI())
		}

	case ClearError:
		c.err = ""
		cmds = append(cmds, updateUI())

	case StreamConnected, StreamDisconnected:
		// informational
	}

	return cmds
}

// State returns the current kiosk state.
func (c *Controller) State() State { return c.state }

// Session returns a copy of the active session, if any.
func (c *Controller) Session() (SessionData, bool) {
	if c.session == nil {
		return SessionData{}, false
	}
	return c.session.clone(), true
}

// CountdownValue returns the last countdown tick of the current capture.
func (c *Controller) CountdownValue() (uint32, bool) {
	if c.countdown == nil {
		return 0, false
	}
	return *c.countdown, true
}

// ViewingPhoto returns the index of the displayed photo. ok is false in
// live view.
func (c *Controller) ViewingPhoto() (index int, ok bool) {
	if c.viewing == nil {
		return 0, false
	}
	return *c.viewing, true
}

// Error returns the error message currently displayed, or "".
func (c *Controller) Error() string { return c.err }

// Loading reports whether a session creation request is outstanding.
func (c *Controller) Loading() bool { return c.loading }

// PhotoCount returns the number of photos in the current session.
func (c *Controller) PhotoCount() int {
	if c.session == nil {
		return 0
	}
	return len(c.session.Photos)
}

// Photos returns a copy of the current session's photos in display order.
func (c *Controller) Photos() []PhotoInfo {
	if c.session == nil {
		return nil
	}
	out := make([]PhotoInfo, len(c.session.Photos))
	copy(out, c.session.Photos)
	return out
}

// CanCapture reports whether a TriggerCapture would be accepted: an active
// session in live view.
func (c *Controller) CanCapture() bool {
	return c.state == StateSession && c.session != nil && c.viewing == nil
}

// Snapshot is an immutable view of the controller for renderers.
type Snapshot struct {
	State      State
	SessionID  string
	PhoneCount uint32
	Photos     []PhotoInfo
	// Countdown is nil outside a countdown.
	Countdown *uint32
	// Viewing is nil in live view.
	Viewing    *int
	Error      string
	Loading    bool
	CanCapture bool
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() Snapshot {
	snap := Snapshot{
		State:      c.state,
		Photos:     c.Photos(),
		Error:      c.err,
		Loading:    c.loading,
		CanCapture: c.CanCapture(),
	}
	if c.session != nil {
		snap.SessionID = c.session.ID
		snap.PhoneCount = c.session.PhoneCount
	}
	if c.countdown != nil {
		v := *c.countdown
		snap.Countdown = &v
	}
	if c.viewing != nil {
		i := *c.viewing
		snap.Viewing = &i
	}
	return snap
}
