package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// RuntimeConfig is the part of the configuration that may be changed while
// the program runs through the config API. The backend and logging settings
// are left out; changing them needs a restart.
type RuntimeConfig struct {
	Bus        BusConfig        `yaml:"Bus" json:"Bus"`
	Interrupts InterruptsConfig `yaml:"Interrupts" json:"Interrupts"`
}

type busAlias BusConfig

// busJSON shadows Timeout so it travels as a duration string, as in the
// YAML file.
type busJSON struct {
	busAlias
	Timeout json.RawMessage `json:"Timeout,omitempty"`
}

func (b BusConfig) MarshalJSON() ([]byte, error) {
	timeout, err := json.Marshal(b.Timeout.String())
	if err != nil {
		return nil, err
	}
	return json.Marshal(busJSON{busAlias: busAlias(b), Timeout: timeout})
}

// UnmarshalJSON takes Timeout as a duration string ("2s") or as a number
// of nanoseconds. A missing Timeout keeps the current value.
func (b *BusConfig) UnmarshalJSON(data []byte) error {
	aux := busJSON{busAlias: busAlias(*b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	timeout := b.Timeout
	if raw := bytes.TrimSpace(aux.Timeout); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("Bus.Timeout: %w", err)
			}
			timeout = d
		} else {
			var ns int64
			if err := json.Unmarshal(raw, &ns); err != nil {
				return fmt.Errorf("Bus.Timeout: %w", err)
			}
			timeout = time.Duration(ns)
		}
	}
	*b = BusConfig(aux.busAlias)
	b.Timeout = timeout
	return nil
}
