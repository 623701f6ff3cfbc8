package control

import (
	"context"

	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/internal/project"
)

// Handler answers control requests for one session.
type Handler interface {
	Status() SessionStatus
	// Stop asks the session to stop. With wait it returns once the session
	// has reached the stopped state or ctx ends.
	Stop(ctx context.Context, wait bool) (SessionStatus, error)
}

// LoopHandler serves a monitor loop and the project it presents into.
type LoopHandler struct {
	Loop    *monitor.Loop
	Project *project.Project
}

// Status implements Handler.
func (h LoopHandler) Status() SessionStatus {
	var layers []project.Layer
	if h.Project != nil {
		layers = h.Project.Layers()
	}
	return NewSessionStatus(h.Loop.Snapshot(), layers)
}

// Stop implements Handler.
func (h LoopHandler) Stop(ctx context.Context, wait bool) (SessionStatus, error) {
	h.Loop.Stop()
	if wait {
		select {
		case <-h.Loop.Done():
		case <-ctx.Done():
			return h.Status(), ctx.Err()
		}
	}
	return h.Status(), nil
}
