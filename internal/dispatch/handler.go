package dispatch

import (
	"errors"

	"github.com/1ureka/drawsync/internal/protocol"
	"github.com/1ureka/drawsync/internal/util"
)

// Canvas consumes decoded remote operations.
type Canvas interface {
	InitShapes(shapes []protocol.Shape)
	MergeShape(s protocol.Shape)
	RemoveShapes(ids []int64)
	FinalizeShape(id int64)
	Pan(offset protocol.Point)
}

// IdentitySource yields the session a handler accepts messages for.
// *Dispatcher satisfies it.
type IdentitySource interface {
	Identity() protocol.Identity
}

// Handler is the message observer that applies remote operations to a
// Canvas. Undecodable messages are logged, counted and dropped; heartbeat
// frames are ignored.
type Handler struct {
	canvas  Canvas
	session IdentitySource
}

func NewHandler(canvas Canvas, session IdentitySource) *Handler {
	return &Handler{canvas: canvas, session: session}
}

func (h *Handler) HandleMessage(raw string) {
	msg, err := protocol.Decode(raw)
	if errors.Is(err, protocol.ErrHeartbeat) {
		return
	}
	if err != nil {
		util.Stats.AddDecodeError()
		util.LogWarning("dropping message: %v", err)
		return
	}

	// Messages for another draft share the connection during a switch.
	if want := h.session.Identity().DraftID; want != "" && msg.Identity.DraftID != "" && msg.Identity.DraftID != want {
		util.LogDebug("ignoring %s for draft %s", msg.Op.RequestType(), msg.Identity.DraftID)
		return
	}

	switch op := msg.Op.(type) {
	case protocol.Init:
		h.canvas.InitShapes(op.Shapes)
	case protocol.Add:
		for _, s := range op.Shapes {
			h.canvas.MergeShape(s)
		}
	case protocol.Update:
		for _, s := range op.Shapes {
			h.canvas.MergeShape(s)
		}
	case protocol.Delete:
		if len(op.IDs) > 0 {
			h.canvas.RemoveShapes(op.IDs)
		}
	case protocol.Finalize:
		h.canvas.FinalizeShape(op.ID)
	case protocol.Pan:
		h.canvas.Pan(op.Offset)
	case protocol.Connect, protocol.Noop:
	}
}
