// Package commands implements the chat commands mathbot serves and declares
// them in registration order.
package commands
