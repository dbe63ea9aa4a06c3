package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
)

type Config struct {
	TickInterval string           `json:"tick_interval"`
	Listeners    []ListenerConfig `json:"listeners"`
	Storage      StorageConfig    `json:"storage"`
	Nats         NatsConfig       `json:"nats"`
	Journal      JournalConfig    `json:"journal"`
	Dispatch     DispatchConfig   `json:"dispatch"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if c.TickInterval != "" {
		d, err := time.ParseDuration(c.TickInterval)
		if err != nil {
			el.Add(fmt.Errorf("parsing tick_interval: %w", err))
		} else if d < time.Second {
			el.Add(fmt.Errorf("tick_interval must be at least 1 second"))
		}
	}

	for i, l := range c.Listeners {
		err := l.validate()
		if err != nil {
			el.Add(fmt.Errorf("listener %d: %w", i, err))
		}
	}

	el.Add(c.Storage.validate())
	el.Add(c.Nats.validate())
	el.Add(c.Journal.validate())
	el.Add(c.Dispatch.validate())

	return el.Err()
}

type DispatchConfig struct {
	QueueDepth int `json:"queue_depth"`
}

func (c *DispatchConfig) validate() error {
	el := errors.NewErrorList()

	if c.QueueDepth < 0 {
		el.Add(fmt.Errorf("queue_depth must not be negative"))
	}

	return el.Err()
}
