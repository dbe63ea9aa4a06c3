package command

import (
	"fmt"
	"os"

	"github.com/pixil98/go-errors"

	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

// StorageConfig points at the seed catalog: one spec file per entity,
// loaded once at startup. The catalog describes the world's starting
// shape; the journal, not the catalog, is the authority on everything
// that happened since.
type StorageConfig struct {
	Entities AssetConfig[*world.EntitySpec] `json:"entities"`
}

func (c *StorageConfig) BuildSpecStore() (*storage.FileStore[*world.EntitySpec], error) {
	specs, err := c.Entities.BuildFileStore()
	if err != nil {
		return nil, fmt.Errorf("creating entity spec store: %w", err)
	}
	return specs, nil
}

func (c *StorageConfig) validate() error {
	el := errors.NewErrorList()
	el.Add(c.Entities.Validate("entities"))
	return el.Err()
}

type AssetConfig[T storage.ValidatingSpec] struct {
	Path string `json:"path"`
}

func (c *AssetConfig[T]) Validate(name string) error {
	if c.Path == "" {
		return fmt.Errorf("%s: path is required", name)
	}
	_, err := os.Stat(c.Path)
	if err != nil {
		return fmt.Errorf("%s: invalid path %q: %w", name, c.Path, err)
	}

	return nil
}

func (c *AssetConfig[T]) BuildFileStore() (*storage.FileStore[T], error) {
	return storage.NewFileStore[T](c.Path)
}
