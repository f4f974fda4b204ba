package component

import (
	"encoding/json"
	"fmt"

	"github.com/c360/mavrelay/errors"
)

// Direction for data flow
type Direction string

// Direction constants for port data flow
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port describes any I/O interface
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	Config      Portable  `json:"config"`
}

// Portable interface - minimal, no Get prefix (Go idiomatic)
type Portable interface {
	ResourceID() string // Unique identifier for conflict detection
	IsExclusive() bool  // Whether multiple components can share
	Type() string       // Port type identifier
}

// MarshalJSON provides custom JSON marshaling for Port struct.
// This handles the Portable interface by creating a wrapper with type information.
func (p Port) MarshalJSON() ([]byte, error) {
	type PortAlias Port // Prevent infinite recursion

	wrapper := struct {
		PortAlias
		Config json.RawMessage `json:"config"`
	}{
		PortAlias: (PortAlias)(p),
	}

	if p.Config != nil {
		configWithType := struct {
			Type string `json:"type"`
			Data any    `json:"data"`
		}{
			Type: p.Config.Type(),
			Data: p.Config,
		}

		configBytes, err := json.Marshal(configWithType)
		if err != nil {
			return nil, errors.Wrap(err, "Port", "MarshalJSON", "config marshaling")
		}
		wrapper.Config = configBytes
	}

	return json.Marshal(wrapper)
}

// UnmarshalJSON provides custom JSON unmarshaling for Port struct.
// This handles reconstruction of the Portable interface from JSON.
func (p *Port) UnmarshalJSON(data []byte) error {
	type PortAlias Port

	temp := struct {
		*PortAlias
		Config json.RawMessage `json:"config"`
	}{
		PortAlias: (*PortAlias)(p),
	}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	if len(temp.Config) > 0 {
		var configWrapper struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}

		if err := json.Unmarshal(temp.Config, &configWrapper); err != nil {
			return errors.Wrap(err, "Port", "UnmarshalJSON", "config wrapper unmarshaling")
		}

		switch configWrapper.Type {
		case "network":
			var netConfig NetworkPort
			if err := json.Unmarshal(configWrapper.Data, &netConfig); err != nil {
				return errors.Wrap(err, "Port", "UnmarshalJSON", "network config unmarshaling")
			}
			p.Config = netConfig
		case "file":
			var fileConfig FilePort
			if err := json.Unmarshal(configWrapper.Data, &fileConfig); err != nil {
				return errors.Wrap(err, "Port", "UnmarshalJSON", "file config unmarshaling")
			}
			p.Config = fileConfig
		case "nats":
			var natsConfig NATSPort
			if err := json.Unmarshal(configWrapper.Data, &natsConfig); err != nil {
				return errors.Wrap(err, "Port", "UnmarshalJSON", "nats config unmarshaling")
			}
			p.Config = natsConfig
		default:
			return errors.WrapInvalid(
				fmt.Errorf("unknown config type: %s", configWrapper.Type),
				"Port",
				"UnmarshalJSON",
				"config type validation",
			)
		}
	}

	return nil
}
