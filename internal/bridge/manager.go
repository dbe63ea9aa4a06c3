package bridge

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

const banner = `Noesis. The world is layered; you see what your senses allow.`

// Manager runs the connect flow and owns the live sessions. It is the
// external collaborator surface: everything it does goes through Submit
// and the information subjects, never through the world directly.
type Manager struct {
	engine    Submitter
	transport Transport
	renderer  *Renderer
	picker    *storage.SelectableStorer[*world.EntitySpec]

	mu       sync.Mutex
	sessions map[storage.Identifier]*Session
}

func NewManager(engine Submitter, transport Transport, specs storage.Storer[*world.EntitySpec]) (*Manager, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("building renderer: %w", err)
	}
	return &Manager{
		engine:    engine,
		transport: transport,
		renderer:  renderer,
		picker:    storage.NewSelectableStorer(viewersOnly{specs}),
		sessions:  map[storage.Identifier]*Session{},
	}, nil
}

func (m *Manager) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// RunSession takes a fresh connection through viewer selection and into
// the session loop. One session per viewer: a new connection displaces
// nothing, it is simply refused until the old one ends.
func (m *Manager) RunSession(ctx context.Context, conn io.ReadWriter) error {
	if _, err := fmt.Fprintf(conn, "%s\n\n", banner); err != nil {
		return err
	}

	id, err := m.picker.Prompt(conn, "Who walks the layers?")
	if err != nil {
		return fmt.Errorf("selecting viewer: %w", err)
	}
	viewer := storage.Identifier(id)

	if !m.claim(viewer) {
		fmt.Fprintf(conn, "%s is already present.\n", id)
		return fmt.Errorf("viewer %s already connected", id)
	}
	defer m.release(viewer)

	session := NewSession(conn, viewer, m.engine, m.transport, m.renderer)
	m.mu.Lock()
	m.sessions[viewer] = session
	m.mu.Unlock()

	return session.Run(ctx)
}

func (m *Manager) claim(viewer storage.Identifier) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[viewer]; ok {
		return false
	}
	m.sessions[viewer] = nil
	return true
}

func (m *Manager) release(viewer storage.Identifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, viewer)
}

// viewersOnly narrows a spec store to entries with perception capability;
// only those can anchor a session.
type viewersOnly struct {
	storage.Storer[*world.EntitySpec]
}

func (v viewersOnly) GetAll() map[string]*world.EntitySpec {
	out := map[string]*world.EntitySpec{}
	for id, spec := range v.Storer.GetAll() {
		if spec.Viewer != nil {
			out[id] = spec
		}
	}
	return out
}
