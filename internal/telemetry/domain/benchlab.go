package telemetry

import (
	"encoding/json"
	"sort"
	"strconv"
)

// PowerKind tags which payload shape a power reading was resolved from.
type PowerKind int

const (
	PowerKindNone PowerKind = iota
	PowerKindLegacy
	PowerKindRails
)

// Rail is one independently measured power channel.
type Rail struct {
	Rail    int     `json:"rail"`
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Power   float64 `json:"power"`
}

// PowerReading is the total power carried by one benchlab record.
type PowerReading struct {
	Kind   PowerKind
	TotalW float64
	Rails  []Rail
}

// VoltageChannel is a named voltage measurement.
type VoltageChannel struct {
	Name    string  `json:"name"`
	Voltage float64 `json:"voltage"`
}

// Fan is the state of one fan header.
type Fan struct {
	Fan     int     `json:"fan"`
	Enabled bool    `json:"enabled"`
	Duty    float64 `json:"duty"`
	RPM     float64 `json:"rpm"`
}

// DeviceInfo identifies the measuring device.
type DeviceInfo struct {
	Name            string `json:"name"`
	VendorID        string `json:"vendor_id"`
	ProductID       string `json:"product_id"`
	FirmwareVersion string `json:"firmware_version"`
}

// BenchlabSample is a decoded power/sensor record.
type BenchlabSample struct {
	TimestampNS       int64
	Power             PowerReading
	Voltages          []VoltageChannel
	Fans              []Fan
	Temperatures      map[string]float64
	Humidity          *float64
	ReferenceVoltages map[string]float64
	Device            *DeviceInfo
	CalibrationValid  *bool
}

type benchlabFields struct {
	PowerW            *float64           `json:"power_w"`
	PSys              *float64           `json:"p_sys"`
	VSys              *float64           `json:"v_sys"`
	ISys              *float64           `json:"i_sys"`
	TempC             *float64           `json:"temp_c"`
	Power             []Rail             `json:"power"`
	Voltages          []VoltageChannel   `json:"voltages"`
	Fans              []Fan              `json:"fans"`
	Temperatures      map[string]float64 `json:"temperatures"`
	Humidity          *float64           `json:"humidity"`
	ReferenceVoltages map[string]float64 `json:"reference_voltages"`
	Device            *rawDevice         `json:"device"`
	CalibrationValid  *bool              `json:"calibration_valid"`
}

// rawDevice tolerates a numeric firmware version.
type rawDevice struct {
	Name            string          `json:"name"`
	VendorID        string          `json:"vendor_id"`
	ProductID       string          `json:"product_id"`
	FirmwareVersion json.RawMessage `json:"firmware_version"`
}

// DecodeBenchlab resolves a benchlab record payload into a typed sample. A
// non-empty rail list always wins over the legacy scalar.
func DecodeBenchlab(rec Record) (BenchlabSample, error) {
	var f benchlabFields
	if err := rec.DecodeFields(&f); err != nil {
		return BenchlabSample{}, err
	}

	sample := BenchlabSample{
		TimestampNS:       rec.TimestampNS,
		Voltages:          f.Voltages,
		Fans:              f.Fans,
		Temperatures:      f.Temperatures,
		Humidity:          f.Humidity,
		ReferenceVoltages: f.ReferenceVoltages,
		CalibrationValid:  f.CalibrationValid,
	}

	switch {
	case len(f.Power) > 0:
		total := 0.0
		for _, rail := range f.Power {
			total += rail.Power
		}
		sample.Power = PowerReading{Kind: PowerKindRails, TotalW: total, Rails: f.Power}
	case f.PSys != nil:
		sample.Power = PowerReading{Kind: PowerKindLegacy, TotalW: *f.PSys}
	case f.PowerW != nil:
		sample.Power = PowerReading{Kind: PowerKindLegacy, TotalW: *f.PowerW}
	}

	if f.VSys != nil {
		sample.Voltages = append(sample.Voltages, VoltageChannel{Name: "sys", Voltage: *f.VSys})
	}
	if f.ISys != nil && sample.Power.Kind != PowerKindRails {
		// Legacy single-rail current, reported as rail 0.
		rail := Rail{Rail: 0, Current: *f.ISys, Power: sample.Power.TotalW}
		if f.VSys != nil {
			rail.Voltage = *f.VSys
		}
		sample.Power.Rails = []Rail{rail}
	}
	if f.TempC != nil {
		if sample.Temperatures == nil {
			sample.Temperatures = make(map[string]float64, 1)
		}
		if _, ok := sample.Temperatures["sys"]; !ok {
			sample.Temperatures["sys"] = *f.TempC
		}
	}
	if f.Device != nil {
		sample.Device = &DeviceInfo{
			Name:            f.Device.Name,
			VendorID:        f.Device.VendorID,
			ProductID:       f.Device.ProductID,
			FirmwareVersion: firmwareString(f.Device.FirmwareVersion),
		}
	}
	return sample, nil
}

func firmwareString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// SortedKeys returns map keys in a stable order.
func SortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RailLabel formats a rail index as a metric label value.
func RailLabel(rail int) string {
	return strconv.Itoa(rail)
}
