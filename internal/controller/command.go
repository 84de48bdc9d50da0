package controller

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Kind names an inbound command.
type Kind string

const (
	KindRefresh             Kind = "refresh"
	KindConnectLocal        Kind = "connect-local"
	KindConnectCloud        Kind = "connect-cloud"
	KindCloudLogin          Kind = "cloud-login"
	KindSearchMachines      Kind = "search-machines"
	KindSendConfiguration   Kind = "send-configuration"
	KindGetConfiguration    Kind = "get-configuration"
	KindSelectConfiguration Kind = "select-configuration"
	KindStartProgram        Kind = "start-program"
	KindRestart             Kind = "restart"
	KindPause               Kind = "pause"
	KindStop                Kind = "stop"
	KindClearAlarms         Kind = "clear-alarms"
	KindSetPreferences      Kind = "set-preferences"
)

var (
	// ErrMalformedCommand is returned for payloads that fail decoding or validation.
	ErrMalformedCommand = errors.New("malformed command")
	// ErrNoConnection is returned for commands that need an active connection
	// when none exists.
	ErrNoConnection = errors.New("no active connection")
)

// Command is one operator request. Only the fields relevant to Kind are set.
type Command struct {
	Kind        Kind   `json:"kind"`
	Address     string `json:"address,omitempty"`
	Token       string `json:"token,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	Archive     string `json:"archive,omitempty"`
	Data        []byte `json:"data,omitempty"`
	Program     uint16 `json:"program,omitempty"`
	Language    string `json:"language,omitempty"`
	MachineKind string `json:"machine_kind,omitempty"`
}

// requiresConnection reports whether the command acts on the active connection.
func (c Command) requiresConnection() bool {
	switch c.Kind {
	case KindSendConfiguration, KindGetConfiguration, KindSelectConfiguration,
		KindStartProgram, KindRestart, KindPause, KindStop, KindClearAlarms:
		return true
	default:
		return false
	}
}

//go:embed command.schema.json
var commandSchemaDoc []byte

var commandSchema = mustCompileSchema(commandSchemaDoc)

func mustCompileSchema(doc []byte) *jsonschema.Schema {
	schemaMap, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		panic(fmt.Sprintf("unmarshal command schema: %v", err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("command.schema.json", schemaMap); err != nil {
		panic(fmt.Sprintf("add command schema: %v", err))
	}
	compiled, err := c.Compile("command.schema.json")
	if err != nil {
		panic(fmt.Sprintf("compile command schema: %v", err))
	}
	return compiled
}

// DecodeCommand validates raw against the command schema and decodes it.
// Every failure wraps ErrMalformedCommand.
func DecodeCommand(raw []byte) (Command, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if err := commandSchema.Validate(doc); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	return cmd, nil
}
