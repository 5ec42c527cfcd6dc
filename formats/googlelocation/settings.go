/*
	Timelinize
	Copyright (c) 2013 Matthew Holt

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package googlelocation

import (
	"context"
	"time"

	"github.com/timelinize/geoconvert/geodata"
)

// settings is the contents of Settings.json. It has no coordinates, only
// information about the account and its devices.
type settings struct {
	CreatedTime         time.Time        `json:"createdTime"`
	ModifiedTime        time.Time        `json:"modifiedTime"`
	HistoryEnabled      bool             `json:"historyEnabled"`
	DeviceSettings      []deviceSettings `json:"deviceSettings"`
	RetentionWindowDays int64            `json:"retentionWindowDays"`
}

type deviceSettings struct {
	DeviceTag          int64     `json:"deviceTag"`
	ReportingEnabled   bool      `json:"reportingEnabled"`
	DevicePrettyName   string    `json:"devicePrettyName"`
	PlatformType       string    `json:"platformType"`
	DeviceCreationTime time.Time `json:"deviceCreationTime"`
	DeviceSpec         struct {
		Manufacturer string `json:"manufacturer"`
		Brand        string `json:"brand"`
		Model        string `json:"model"`
	} `json:"deviceSpec"`
}

// parseSettings only fills metadata, so the result is always reported as
// having no location data.
func parseSettings(_ context.Context, data []byte, ds *geodata.Dataset) error {
	var s settings
	if err := decodeJSON(data, &s); err != nil {
		return err
	}

	ds.SetMeta("History enabled", s.HistoryEnabled)
	if !s.CreatedTime.IsZero() {
		ds.SetMeta("Created", geodata.FormatTimestamp(s.CreatedTime))
	}
	if s.RetentionWindowDays > 0 {
		ds.SetMeta("Retention window days", s.RetentionWindowDays)
	}

	devices := make([]string, 0, len(s.DeviceSettings))
	for _, dev := range s.DeviceSettings {
		name := dev.DevicePrettyName
		if name == "" {
			name = dev.DeviceSpec.Brand + " " + dev.DeviceSpec.Model
		}
		devices = append(devices, name)
	}
	if len(devices) > 0 {
		ds.SetMeta("Devices", devices)
	}

	return nil
}
