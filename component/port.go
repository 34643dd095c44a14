package component

import "fmt"

// Port describes one output of a component. Index is the output position
// (0 for role records, 1 for connection notifications); Subject is the NATS
// subject records are published on. An optional port without a subject is
// not wired.
type Port struct {
	Name        string `json:"name"`
	Index       int    `json:"index"`
	Subject     string `json:"subject,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Description string `json:"description"`
}

// Connected reports whether the port has somewhere to publish.
func (p Port) Connected() bool {
	return p.Subject != ""
}

// ResourceID returns a unique identifier for the port's destination.
func (p Port) ResourceID() string {
	return fmt.Sprintf("nats:%s", p.Subject)
}
