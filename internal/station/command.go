package station

import (
	"errors"
	"fmt"

	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/config"
	"github.com/sweeney/env-station/internal/mode"
)

// ErrNotConfiguring is returned when thresholds are changed outside
// Configuration mode.
var ErrNotConfiguring = errors.New("thresholds can only be changed in CONFIGURATION mode")

// Command is a console request from HTTP or MQTT. Exactly one of Mode and
// Thresholds is set. Reply, when non-nil, receives the outcome once the
// loop has applied the command.
type Command struct {
	Source     string
	Mode       *mode.Mode
	Thresholds *config.Thresholds
	Reply      chan error
}

// ModeCommand builds a forced mode change.
func ModeCommand(source string, m mode.Mode) Command {
	return Command{Source: source, Mode: &m}
}

// ThresholdsCommand builds a threshold update.
func ThresholdsCommand(source string, t config.Thresholds) Command {
	return Command{Source: source, Thresholds: &t}
}

// WithReply attaches a buffered reply channel and returns it.
func (c Command) WithReply() (Command, <-chan error) {
	ch := make(chan error, 1)
	c.Reply = ch
	return c, ch
}

// Respond delivers err to the reply channel without blocking.
func (c Command) Respond(err error) {
	if c.Reply == nil {
		return
	}
	select {
	case c.Reply <- err:
	default:
	}
}

func (c Command) String() string {
	switch {
	case c.Mode != nil:
		return "mode=" + c.Mode.String()
	case c.Thresholds != nil:
		return "thresholds"
	}
	return "empty"
}

// Accept applies the station side of a command at tick now. Every command
// counts as console activity. A mode command forces the mode; the
// transition is reported by the next Tick. A threshold command is only
// checked here; the caller persists and distributes the new values.
func (s *Station) Accept(c Command, now clock.Millis) error {
	s.Touch(now)

	switch {
	case c.Mode != nil:
		s.SetMode(*c.Mode, now, ReasonCommand)
		return nil
	case c.Thresholds != nil:
		if s.Mode() != mode.Configuration {
			return ErrNotConfiguring
		}
		if err := c.Thresholds.Validate(); err != nil {
			return fmt.Errorf("accept thresholds: %w", err)
		}
		return nil
	}
	return errors.New("empty command")
}
