package weather

import "fmt"

type Kind int

const (
	Transport Kind = iota
	NotFound
	ServerError
	Decode
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case ServerError:
		return "server error"
	case Decode:
		return "decode"
	default:
		return "transport"
	}
}

// FetchError is returned by every call to an external collaborator.
type FetchError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigError reports a missing or invalid setting that disables a feature.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Field)
}
