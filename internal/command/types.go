package command

import (
	"context"
	"time"
)

// GenericErrorMessage answers any failure whose detail must stay in the logs.
const GenericErrorMessage = "An error occurred. Please contact the bot developer."

// Invocation is one user request to run one command. It is created by a
// transport, handed to the dispatcher once and then dropped.
type Invocation struct {
	ID      string
	Command string
	Args    map[string]string
	// Source names the transport: discord, api or cli.
	Source string
	// User and Channel identify the requester as the transport sees them.
	User      string
	Channel   string
	CreatedAt time.Time
}

// Arg returns the named argument, or "" if it was not supplied.
func (inv Invocation) Arg(name string) string {
	return inv.Args[name]
}

// Attachment is a binary reply body, such as a rendered image.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Reply is what a handler sends back to the originating channel: text, an
// attachment, or both.
type Reply struct {
	Text       string
	Attachment *Attachment
	// Outcome is a short machine-readable result recorded in history and
	// metrics (e.g. "artifact", "input_error"). It is never shown to users.
	Outcome string
}

// TextReply is a convenience for a plain-text reply.
func TextReply(text, outcome string) Reply {
	return Reply{Text: text, Outcome: outcome}
}

// Handler executes one command invocation. A returned error is logged and
// answered with a generic message; handlers that want the user to see a
// specific failure return a Reply instead.
type Handler interface {
	Handle(ctx context.Context, inv Invocation) (Reply, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, inv Invocation) (Reply, error)

func (f HandlerFunc) Handle(ctx context.Context, inv Invocation) (Reply, error) {
	return f(ctx, inv)
}

// Param declares one string parameter of a command.
type Param struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Descriptor declares a command: its name, parameter schema and handler.
type Descriptor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	Handler     Handler `json:"-"`
}

// InputSchema returns a JSON Schema object describing the parameters.
func (d Descriptor) InputSchema() map[string]any {
	properties := make(map[string]any, len(d.Params))
	required := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		properties[p.Name] = map[string]string{
			"type":        "string",
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
