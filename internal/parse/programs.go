package parse

import (
	"strings"

	"laundry-control-backend/internal/machine"
)

// Programs parses the cloud program catalog, a flat comma separated list of
// alternating program names and wash types ("Cotone,1,Lana,2").
// A trailing name without a type is dropped; a bad type becomes zero.
func Programs(raw string) []machine.ProgramPreview {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	fields := strings.Split(raw, ",")
	programs := make([]machine.ProgramPreview, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		programs = append(programs, machine.ProgramPreview{
			Name:     fields[i],
			WashType: Uint16(fields[i+1]),
		})
	}
	return programs
}
