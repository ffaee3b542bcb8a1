package render

import (
	"errors"

	"github.com/mattjoyce/mathbot/internal/command"
)

// GenericErrorMessage is the only text users see for infrastructure failures.
const GenericErrorMessage = command.GenericErrorMessage

var (
	// ErrEngineSpawn means the engine process could not be started or awaited.
	ErrEngineSpawn = errors.New("render engine could not be run")
	// ErrEngineTimeout means the engine exceeded the configured timeout.
	ErrEngineTimeout = errors.New("render engine timed out")
	// ErrEngineCrashed means the engine was terminated by a signal.
	ErrEngineCrashed = errors.New("render engine terminated abnormally")
	// ErrArtifactMissing means the engine exited 0 without writing the image.
	ErrArtifactMissing = errors.New("render engine produced no artifact")
	// ErrSourceWrite means the source document could not be written.
	ErrSourceWrite = errors.New("render source could not be written")
)

// Kind tags which field of an Outcome is populated.
type Kind int

const (
	KindArtifact Kind = iota + 1
	KindInputError
	KindInfrastructureError
)

func (k Kind) String() string {
	switch k {
	case KindArtifact:
		return "artifact"
	case KindInputError:
		return "input_error"
	case KindInfrastructureError:
		return "infrastructure_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one render attempt. Use the
// constructors; exactly one of Artifact, Message or Err is meaningful,
// selected by Kind.
type Outcome struct {
	Kind     Kind
	Artifact []byte
	Message  string
	Err      error
}

// Artifact returns a successful outcome carrying the rendered image bytes.
func Artifact(data []byte) Outcome {
	return Outcome{Kind: KindArtifact, Artifact: data}
}

// InputError returns an outcome for input the engine rejected. message may be
// empty when the engine wrote nothing readable to stderr.
func InputError(message string) Outcome {
	return Outcome{Kind: KindInputError, Message: message}
}

// InfrastructureError returns an outcome for failures the user cannot fix.
func InfrastructureError(err error) Outcome {
	return Outcome{Kind: KindInfrastructureError, Err: err}
}

// UserMessage returns the text that may be shown to the end user. It is empty
// for artifacts.
func (o Outcome) UserMessage() string {
	switch o.Kind {
	case KindInputError:
		return o.Message
	case KindInfrastructureError:
		return GenericErrorMessage
	default:
		return ""
	}
}
