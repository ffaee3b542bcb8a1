package commands

import "github.com/mattjoyce/mathbot/internal/command"

// Describer is implemented by every command in this package.
type Describer interface {
	Descriptor() command.Descriptor
}

// Registry builds the command registry in the order commands are offered to
// users.
func Registry(cmds ...Describer) (*command.Registry, error) {
	descs := make([]command.Descriptor, 0, len(cmds))
	for _, c := range cmds {
		descs = append(descs, c.Descriptor())
	}
	return command.NewRegistry(descs...)
}
