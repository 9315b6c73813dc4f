package cli

import "fmt"

// ConfigError reports a problem with the gateway configuration: the file
// could not be loaded, a field failed validation, or the catalog could not
// be built from it.
type ConfigError struct {
	// Path is the configuration file path, when known.
	Path string
	// Field names the offending field in section.field form, when the
	// problem is attributable to one.
	Field string
	// Message describes what is wrong.
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Path != "" && e.Field != "":
		return fmt.Sprintf("config %s: %s: %s", e.Path, e.Field, e.Message)
	case e.Path != "":
		return fmt.Sprintf("config %s: %s", e.Path, e.Message)
	case e.Field != "":
		return fmt.Sprintf("config field %s: %s", e.Field, e.Message)
	default:
		return fmt.Sprintf("config error: %s", e.Message)
	}
}

// CommandError wraps a failure of one ganymede subcommand so the top-level
// error output names the command that failed.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ganymede %s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError. Either path or field may be empty.
func NewConfigError(path, field, message string) *ConfigError {
	return &ConfigError{
		Path:    path,
		Field:   field,
		Message: message,
	}
}

// NewCommandError wraps err as a failure of the named subcommand.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}
