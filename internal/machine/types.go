package machine

// State is a point-in-time telemetry snapshot of a washing machine.
type State struct {
	AlarmCode      uint16 `json:"alarm_code"`
	Credit         uint16 `json:"credit"`
	Name           string `json:"name"`
	PortholeOpen   bool   `json:"porthole_open"`
	State          uint16 `json:"state"`
	Cycle          uint16 `json:"cycle"`
	StepCode       uint16 `json:"step_code"`
	StepNumber     uint16 `json:"step_number"`
	CycleRemaining uint16 `json:"cycle_remaining"`
	StepCount      uint16 `json:"step_count"`
	Temperature    uint16 `json:"temperature"`
	Level          uint16 `json:"level"`
	Speed          uint16 `json:"speed"`
}

// ProgramPreview is one entry of the wash program catalog.
type ProgramPreview struct {
	Name     string `json:"name"`
	WashType uint16 `json:"wash_type"`
}

// Configuration describes the machine identity and its available programs.
type Configuration struct {
	Name           string           `json:"name"`
	AppVersion     string           `json:"app_version"`
	MachineVersion string           `json:"machine_version"`
	Programs       []ProgramPreview `json:"programs"`
}

// Statistics holds the monotonic usage counters reported by the machine.
type Statistics struct {
	Cycles            uint32 `json:"cycles"`
	InterruptedCycles uint32 `json:"interrupted_cycles"`
	LoopCycles        uint32 `json:"loop_cycles"`
	OnTime            uint32 `json:"on_time"`
	WorkTime          uint32 `json:"work_time"`
	RotationTime      uint32 `json:"rotation_time"`
	HeatingTime       uint32 `json:"heating_time"`
	ColdWaterTime     uint32 `json:"cold_water_time"`
	WarmWaterTime     uint32 `json:"warm_water_time"`
	RecoveryWaterTime uint32 `json:"recovery_water_time"`
	FluxWaterTime     uint32 `json:"flux_water_time"`
	PortholeClosings  uint32 `json:"porthole_closings"`
	PortholeOpenings  uint32 `json:"porthole_openings"`
}

// Device is a machine registered on the cloud service.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConnectionStatus tags the variant held by a ConnectionState.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is the last known view of the active connection.
// Only a connected state carries telemetry, configuration and statistics.
type ConnectionState struct {
	Status        ConnectionStatus `json:"status"`
	Name          string           `json:"name,omitempty"`
	Active        bool             `json:"active,omitempty"`
	State         *State           `json:"state,omitempty"`
	Configuration *Configuration   `json:"configuration,omitempty"`
	Statistics    *Statistics      `json:"statistics,omitempty"`
}

// Disconnected returns the state of a connection that was never established.
func Disconnected() ConnectionState {
	return ConnectionState{Status: StatusDisconnected}
}

// Failed returns the error state.
func Failed() ConnectionState {
	return ConnectionState{Status: StatusError}
}

// Connected builds a connected state. The arguments are copied so the
// result never aliases adapter-owned values.
func Connected(name string, active bool, state State, configuration Configuration, statistics Statistics) ConnectionState {
	programs := make([]ProgramPreview, len(configuration.Programs))
	copy(programs, configuration.Programs)
	configuration.Programs = programs

	return ConnectionState{
		Status:        StatusConnected,
		Name:          name,
		Active:        active,
		State:         &state,
		Configuration: &configuration,
		Statistics:    &statistics,
	}
}

// IsConnected reports whether s holds the connected variant.
func (s ConnectionState) IsConnected() bool {
	return s.Status == StatusConnected
}
