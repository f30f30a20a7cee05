package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validDrive() Drive {
	return Drive{
		Name:         "dd-35",
		Cyls:         80,
		Sides:        2,
		RPM:          300,
		MaxRetries:   5,
		TickPeriodNs: 2000,
		Format:       "ibm",
	}
}

func TestSelectDefaultFindsNamedDrive(t *testing.T) {
	file := File{Default: "dd-35", Drive: []Drive{validDrive()}}
	drive, err := selectDefault(file)
	require.NoError(t, err)
	require.Equal(t, 80, drive.Cyls)
	require.Equal(t, 2, drive.Sides)
}

func TestSelectDefaultMissingDefaultKey(t *testing.T) {
	file := File{Drive: []Drive{validDrive()}}
	_, err := selectDefault(file)
	require.Error(t, err, "expected error for missing default key")
}

func TestSelectDefaultUnknownDriveName(t *testing.T) {
	file := File{Default: "missing", Drive: []Drive{validDrive()}}
	_, err := selectDefault(file)
	require.Error(t, err, "expected error for unknown default drive name")
}

func TestSelectDefaultRejectsInvalidFields(t *testing.T) {
	cases := []struct {
		name string
		mod  func(d *Drive)
	}{
		{"cyls", func(d *Drive) { d.Cyls = 0 }},
		{"sides", func(d *Drive) { d.Sides = 0 }},
		{"rpm", func(d *Drive) { d.RPM = 0 }},
		{"max_retries", func(d *Drive) { d.MaxRetries = 0 }},
		{"tick_period_ns", func(d *Drive) { d.TickPeriodNs = 0 }},
		{"format", func(d *Drive) { d.Format = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := validDrive()
			tc.mod(&d)
			file := File{Default: d.Name, Drive: []Drive{d}}
			_, err := selectDefault(file)
			require.Error(t, err, "expected error with invalid %s", tc.name)
		})
	}
}
