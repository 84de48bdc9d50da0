package cloud

import (
	"encoding/base64"

	"laundry-control-backend/internal/machine"
	"laundry-control-backend/internal/parse"
)

// foldSamples assigns each named sample to its State or Statistics field.
// Unknown names are ignored; later samples overwrite earlier ones.
func foldSamples(samples []stateSample) (machine.State, machine.Statistics) {
	var (
		state machine.State
		stats machine.Statistics
	)

	for _, s := range samples {
		switch s.Name {
		case "cycles":
			stats.Cycles = parse.Uint32(s.Value)
		case "interrupted_cycles":
			stats.InterruptedCycles = parse.Uint32(s.Value)
		case "loop_cycles":
			stats.LoopCycles = parse.Uint32(s.Value)
		case "on_time":
			stats.OnTime = parse.Uint32(s.Value)
		case "work_time":
			stats.WorkTime = parse.Uint32(s.Value)
		case "rotation_time":
			stats.RotationTime = parse.Uint32(s.Value)
		case "heating_time":
			stats.HeatingTime = parse.Uint32(s.Value)
		case "cold_water_time":
			stats.ColdWaterTime = parse.Uint32(s.Value)
		case "warm_water_time":
			stats.WarmWaterTime = parse.Uint32(s.Value)
		case "recovery_water_time":
			stats.RecoveryWaterTime = parse.Uint32(s.Value)
		case "flux_water_time":
			stats.FluxWaterTime = parse.Uint32(s.Value)
		case "porthole_closings":
			stats.PortholeClosings = parse.Uint32(s.Value)
		case "porthole_openings":
			stats.PortholeOpenings = parse.Uint32(s.Value)
		case "alarm_code":
			state.AlarmCode = parse.Uint16(s.Value)
		case "credit":
			state.Credit = parse.Uint16(s.Value)
		case "name":
			state.Name = s.Value
		case "porthole_open":
			state.PortholeOpen = parse.Bool(s.Value)
		case "state":
			state.State = parse.Uint16(s.Value)
		case "cycle":
			state.Cycle = parse.Uint16(s.Value)
		case "step_code":
			state.StepCode = parse.Uint16(s.Value)
		case "step_number":
			state.StepNumber = parse.Uint16(s.Value)
		case "cycle_remaining":
			state.CycleRemaining = parse.Uint16(s.Value)
		case "step_count":
			state.StepCount = parse.Uint16(s.Value)
		case "temperature":
			state.Temperature = parse.Uint16(s.Value)
		case "level":
			state.Level = parse.Uint16(s.Value)
		case "speed":
			state.Speed = parse.Uint16(s.Value)
		}
	}

	return state, stats
}

func configurationFromVariables(variables []parameterVariable) machine.Configuration {
	var config machine.Configuration
	for _, v := range variables {
		switch v.Name {
		case "name":
			config.Name = v.Value
		case "app_version":
			config.AppVersion = v.Value
		case "machine_version":
			config.MachineVersion = v.Value
		case "programs":
			config.Programs = parse.Programs(v.Value)
		}
	}
	return config
}

func encodeMachine(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decodeMachine(value string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, machine.ProtocolError("machine variable is not valid base64")
	}
	return data, nil
}
