package machine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("login: %w", ValueError("bad credentials"))

	assert.True(t, errors.Is(err, ErrValue))
	assert.False(t, errors.Is(err, ErrNetwork))
	assert.Contains(t, err.Error(), "value error: bad credentials")
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NetworkError(cause)

	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, cause))
}

func TestConnected_CopiesPrograms(t *testing.T) {
	cfg := Configuration{Programs: []ProgramPreview{{Name: "Cotone", WashType: 1}}}
	s := Connected("10.0.0.5", true, State{}, cfg, Statistics{})

	cfg.Programs[0].Name = "changed"

	assert.True(t, s.IsConnected())
	assert.Equal(t, "Cotone", s.Configuration.Programs[0].Name)
	assert.False(t, Failed().IsConnected())
	assert.Equal(t, StatusDisconnected, Disconnected().Status)
}
