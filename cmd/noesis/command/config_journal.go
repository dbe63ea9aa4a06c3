package command

import (
	"fmt"
	"os"

	"github.com/pixil98/go-errors"

	"github.com/noesisproject/noesis/internal/event"
)

// JournalConfig locates the append-only event journal. The directory is
// created on first start; on every start the files in it are replayed
// before the world accepts new attempts.
type JournalConfig struct {
	Path string `json:"path"`
}

func (c *JournalConfig) validate() error {
	el := errors.NewErrorList()

	if c.Path == "" {
		el.Add(fmt.Errorf("journal path is required"))
	}

	return el.Err()
}

func (c *JournalConfig) BuildJournal() (*event.FileJournal, []*event.Event, error) {
	if err := os.MkdirAll(c.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating journal directory %q: %w", c.Path, err)
	}

	events, err := event.ReadJournal(c.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading journal: %w", err)
	}

	return event.NewFileJournal(c.Path), events, nil
}
