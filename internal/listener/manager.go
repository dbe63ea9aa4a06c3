package listener

import (
	"context"
	"io"

	"github.com/pixil98/go-log"

	"github.com/noesisproject/noesis/internal/bridge"
)

// ConnectionManager hands accepted connections to the bridge, which runs
// the viewer selection flow and the session loop.
type ConnectionManager struct {
	bridge *bridge.Manager
}

func NewConnectionManager(b *bridge.Manager) *ConnectionManager {
	return &ConnectionManager{
		bridge: b,
	}
}

func (m *ConnectionManager) AcceptConnection(ctx context.Context, conn io.ReadWriter) {
	if err := m.bridge.RunSession(ctx, conn); err != nil {
		log.GetLogger(ctx).Warnf("bridge session: %s", err)
	}
}
