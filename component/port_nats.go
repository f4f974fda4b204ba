package component

import "fmt"

// NATSPort - NATS pub/sub
type NATSPort struct {
	Subject string `json:"subject"`
	Queue   string `json:"queue,omitempty"`
}

// ResourceID returns unique identifier for NATS ports
func (n NATSPort) ResourceID() string {
	return fmt.Sprintf("nats:%s", n.Subject)
}

// IsExclusive returns false as multiple components can subscribe
func (n NATSPort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (n NATSPort) Type() string {
	return "nats"
}
