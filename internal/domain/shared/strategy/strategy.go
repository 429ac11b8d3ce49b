// Package strategy describes the pluggable policy algorithms of the engine:
// how a payment is spread over bills and how a missing reading is estimated.
package strategy

// Kind is the family a strategy belongs to
type Kind string

const (
	KindAllocation Kind = "allocation"
	KindEstimation Kind = "estimation"
)

// Strategy identifies an algorithm in logs and configuration
type Strategy interface {
	Name() string
	Kind() Kind
	Description() string
}

// Descriptor implements Strategy for embedding
type Descriptor struct {
	name        string
	kind        Kind
	description string
}

// Describe creates the descriptor of a strategy
func Describe(name string, kind Kind, description string) Descriptor {
	return Descriptor{name: name, kind: kind, description: description}
}

func (d Descriptor) Name() string        { return d.name }
func (d Descriptor) Kind() Kind          { return d.kind }
func (d Descriptor) Description() string { return d.description }
