package event

import "github.com/xtxerr/pulse/internal/errors"

// Component identifies the measured subsystem. The set is closed: extending it
// means adding a constant here, never parsing arbitrary strings into it.
type Component string

const (
	// ComponentEditor covers editor commands and UI operations.
	ComponentEditor Component = "editor"
	// ComponentTerminal covers terminal command executions.
	ComponentTerminal Component = "terminal"
	// ComponentModel covers AI model round trips.
	ComponentModel Component = "model"
	// ComponentSystem covers internal bookkeeping operations.
	ComponentSystem Component = "system"
	// ComponentFilesystem covers file read/write operations.
	ComponentFilesystem Component = "filesystem"
	// ComponentNetwork covers outbound network requests.
	ComponentNetwork Component = "network"
)

// Components lists every valid component, in display order.
func Components() []Component {
	return []Component{
		ComponentEditor,
		ComponentTerminal,
		ComponentModel,
		ComponentSystem,
		ComponentFilesystem,
		ComponentNetwork,
	}
}

// Valid reports whether c is a member of the closed component set.
func (c Component) Valid() bool {
	switch c {
	case ComponentEditor, ComponentTerminal, ComponentModel,
		ComponentSystem, ComponentFilesystem, ComponentNetwork:
		return true
	}
	return false
}

// String returns the component tag.
func (c Component) String() string {
	return string(c)
}

// ParseComponent converts a string tag into a Component.
// The empty string is rejected; use Filter with an empty Component for "all".
func ParseComponent(s string) (Component, error) {
	c := Component(s)
	if !c.Valid() {
		return "", errors.Wrapf(errors.ErrInvalidComponent, "%q", s)
	}
	return c, nil
}
