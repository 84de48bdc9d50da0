package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"laundry-control-backend/internal/machine"
)

func TestNumericFallbacks(t *testing.T) {
	assert.Equal(t, uint16(42), Uint16("42"))
	assert.Equal(t, uint16(0), Uint16("abc"))
	assert.Equal(t, uint16(0), Uint16("70000"))
	assert.Equal(t, uint32(123456), Uint32(" 123456 "))
	assert.Equal(t, uint32(0), Uint32("-1"))
	assert.True(t, Bool("true"))
	assert.False(t, Bool("maybe"))
}

func TestPrograms(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected []machine.ProgramPreview
	}{
		{
			name: "Pairs",
			raw:  "Cotone,1,Lana,2",
			expected: []machine.ProgramPreview{
				{Name: "Cotone", WashType: 1},
				{Name: "Lana", WashType: 2},
			},
		},
		{
			name:     "Dangling name is dropped",
			raw:      "Cotone,1,Sintetici",
			expected: []machine.ProgramPreview{{Name: "Cotone", WashType: 1}},
		},
		{
			name:     "Bad wash type becomes zero",
			raw:      "Delicati,x",
			expected: []machine.ProgramPreview{{Name: "Delicati", WashType: 0}},
		},
		{
			name:     "Empty",
			raw:      "",
			expected: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Programs(tc.raw))
		})
	}
}

func TestDiscoveryReply(t *testing.T) {
	testCases := []struct {
		name       string
		payload    string
		expected   []DiscoveredAddress
		expectedOK bool
	}{
		{
			name:       "Ethernet only",
			payload:    "WS2020|10.0.0.5||NODE1",
			expected:   []DiscoveredAddress{{Address: "10.0.0.5", NodeID: "NODE1"}},
			expectedOK: true,
		},
		{
			name:    "Both interfaces",
			payload: "WS2020|10.0.0.5|10.0.0.6|NODE1",
			expected: []DiscoveredAddress{
				{Address: "10.0.0.5", NodeID: "NODE1"},
				{Address: "10.0.0.6", NodeID: "NODE1"},
			},
			expectedOK: true,
		},
		{
			name:       "Wrong magic",
			payload:    "XX|10.0.0.5||NODE1",
			expectedOK: false,
		},
		{
			name:       "Too few fields",
			payload:    "WS2020|10.0.0.5",
			expectedOK: false,
		},
		{
			name:       "No addresses",
			payload:    "WS2020|||NODE1",
			expected:   nil,
			expectedOK: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addrs, ok := DiscoveryReply([]byte(tc.payload), "WS2020")
			assert.Equal(t, tc.expectedOK, ok)
			assert.Equal(t, tc.expected, addrs)
		})
	}

	_, ok := DiscoveryReply([]byte{0xff, 0xfe, '|'}, "WS2020")
	assert.False(t, ok, "invalid UTF-8 must be rejected")
}
