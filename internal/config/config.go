// Package config loads the gymnasticon JSON config file and layers
// CLI flag overrides on top of it, per spec.md §6: config-file values
// are defaults, and only flags the user actually typed override them.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

// DefaultConfigPath is where the config file is read from unless
// overridden by --config-path.
const DefaultConfigPath = "/etc/gymnasticon.json"

// Config mirrors the CLI flags in spec.md §6.
type Config struct {
	Bike               string  `json:"bike"`
	BikeAdapter        string  `json:"bikeAdapter"`
	ServerAdapter      string  `json:"serverAdapter"`
	ServerAdapters     string  `json:"serverAdapters"` // comma-list
	ServerName         string  `json:"serverName"`
	FlywheelAddress    string  `json:"flywheelAddress"`
	FlywheelName       string  `json:"flywheelName"`
	PelotonPath        string  `json:"pelotonPath"`
	BotPower           int     `json:"botPower"`
	BotCadence         int     `json:"botCadence"`
	BotHost            string  `json:"botHost"`
	BotPort            int     `json:"botPort"`
	ServerPingInterval float64 `json:"serverPingInterval"` // seconds
	BikeReceiveTimeout float64 `json:"bikeReceiveTimeout"` // seconds
	BikeConnectTimeout float64 `json:"bikeConnectTimeout"` // seconds
	PowerScale         float64 `json:"powerScale"`
	PowerOffset        float64 `json:"powerOffset"`
	HeartRateEnabled   bool    `json:"heartRateEnabled"`
	HeartRateAdapter   string  `json:"heartRateAdapter"`
	AntPlus            bool    `json:"antPlus"`
	AntDeviceID        int     `json:"antDeviceId"`
	SpeedCircumference float64 `json:"speedCircumference"`
	SpeedGearFactor    float64 `json:"speedGearFactor"`
	SpeedMin           float64 `json:"speedMin"`
	SpeedMax           float64 `json:"speedMax"`
	BleMultiOutput     bool    `json:"bleMultiOutput"`
}

// Default returns the built-in defaults named throughout spec.md §4/§11.
func Default() *Config {
	return &Config{
		Bike:               "autodetect",
		ServerName:         "Gymnasticon",
		BotHost:            "0.0.0.0",
		BotPort:            3840,
		ServerPingInterval: 1.0,
		BikeReceiveTimeout: 10.0,
		BikeConnectTimeout: 30.0,
		PowerScale:         1.0,
		PowerOffset:        0.0,
		HeartRateEnabled:   true,
		AntPlus:            true,
		AntDeviceID:        11234,
		SpeedGearFactor:    1.0,
	}
}

// Load reads and JSON-decodes the config file at path. A missing file
// is not an error: the caller keeps built-in defaults. Keys may be
// kebab-case or camelCase in the file; both are normalized to the
// camelCase struct tags above before decoding.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultConfigPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	normalized := normalizeKeys(generic)
	buf, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("config: normalize %s: %w", path, err)
	}
	if err := json.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// normalizeKeys rewrites every kebab-case key in m (and nested maps)
// to camelCase, leaving already-camelCase keys untouched.
func normalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		nk := kebabToCamel(k)
		if nested, ok := v.(map[string]any); ok {
			v = normalizeKeys(nested)
		}
		out[nk] = v
	}
	return out
}

func kebabToCamel(s string) string {
	out := make([]byte, 0, len(s))
	upperNext := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '-' {
			upperNext = true
			continue
		}
		if upperNext && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
			upperNext = false
		}
		out = append(out, c)
	}
	return string(out)
}

// OverlayFlags applies only the flags the user explicitly passed on
// the command line (via fs.Visit, never VisitAll) onto cfg, so that
// unset CLI defaults never stomp file-provided values.
func OverlayFlags(cfg *Config, fs *flag.FlagSet, values *FlagValues) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bike":
			cfg.Bike = values.Bike
		case "bike-adapter":
			cfg.BikeAdapter = values.BikeAdapter
		case "server-adapter":
			cfg.ServerAdapter = values.ServerAdapter
		case "server-adapters":
			cfg.ServerAdapters = values.ServerAdapters
		case "server-name":
			cfg.ServerName = values.ServerName
		case "flywheel-address":
			cfg.FlywheelAddress = values.FlywheelAddress
		case "flywheel-name":
			cfg.FlywheelName = values.FlywheelName
		case "peloton-path":
			cfg.PelotonPath = values.PelotonPath
		case "bot-power":
			cfg.BotPower = values.BotPower
		case "bot-cadence":
			cfg.BotCadence = values.BotCadence
		case "bot-host":
			cfg.BotHost = values.BotHost
		case "bot-port":
			cfg.BotPort = values.BotPort
		case "server-ping-interval":
			cfg.ServerPingInterval = values.ServerPingInterval
		case "bike-receive-timeout":
			cfg.BikeReceiveTimeout = values.BikeReceiveTimeout
		case "bike-connect-timeout":
			cfg.BikeConnectTimeout = values.BikeConnectTimeout
		case "power-scale":
			cfg.PowerScale = values.PowerScale
		case "power-offset":
			cfg.PowerOffset = values.PowerOffset
		case "heart-rate-enabled":
			cfg.HeartRateEnabled = values.HeartRateEnabled
		case "heart-rate-adapter":
			cfg.HeartRateAdapter = values.HeartRateAdapter
		case "ant-plus":
			cfg.AntPlus = values.AntPlus
		case "ant-device-id":
			cfg.AntDeviceID = values.AntDeviceID
		case "speed-circumference":
			cfg.SpeedCircumference = values.SpeedCircumference
		case "speed-gear-factor":
			cfg.SpeedGearFactor = values.SpeedGearFactor
		case "speed-min":
			cfg.SpeedMin = values.SpeedMin
		case "speed-max":
			cfg.SpeedMax = values.SpeedMax
		case "ble-multi-output":
			cfg.BleMultiOutput = values.BleMultiOutput
		}
	})
}

// FlagValues holds the parsed destination for every flag in spec.md
// §6, bound via fs.StringVar/etc. in cmd/gymnasticon.
type FlagValues struct {
	Bike               string
	BikeAdapter        string
	ServerAdapter      string
	ServerAdapters     string
	ServerName         string
	FlywheelAddress    string
	FlywheelName       string
	PelotonPath        string
	BotPower           int
	BotCadence         int
	BotHost            string
	BotPort            int
	ServerPingInterval float64
	BikeReceiveTimeout float64
	BikeConnectTimeout float64
	PowerScale         float64
	PowerOffset        float64
	HeartRateEnabled   bool
	HeartRateAdapter   string
	AntPlus            bool
	AntDeviceID        int
	SpeedCircumference float64
	SpeedGearFactor    float64
	SpeedMin           float64
	SpeedMax           float64
	BleMultiOutput     bool
	ConfigPath         string
}

// Register binds every flag in spec.md §6 onto fs, with Default()'s
// values as flag defaults, and returns the destination struct to pass
// to OverlayFlags after fs.Parse.
func Register(fs *flag.FlagSet) *FlagValues {
	d := Default()
	v := &FlagValues{}
	fs.StringVar(&v.Bike, "bike", d.Bike, "bike driver: autodetect|flywheel|peloton|ic4|ic5|ic8|keiser|bot")
	fs.StringVar(&v.BikeAdapter, "bike-adapter", "", "adapter name/index used to scan/connect the bike")
	fs.StringVar(&v.ServerAdapter, "server-adapter", "", "adapter name/index used to advertise")
	fs.StringVar(&v.ServerAdapters, "server-adapters", "", "comma-separated list of server adapters")
	fs.StringVar(&v.ServerName, "server-name", d.ServerName, "BLE advertised name")
	fs.StringVar(&v.FlywheelAddress, "flywheel-address", "", "MAC address filter for Flywheel bikes")
	fs.StringVar(&v.FlywheelName, "flywheel-name", "", "name filter for Flywheel bikes")
	fs.StringVar(&v.PelotonPath, "peloton-path", "", "serial device path for Peloton bikes")
	fs.IntVar(&v.BotPower, "bot-power", 0, "constant power for the bot driver")
	fs.IntVar(&v.BotCadence, "bot-cadence", 0, "constant cadence for the bot driver")
	fs.StringVar(&v.BotHost, "bot-host", d.BotHost, "UDP host for the bot driver")
	fs.IntVar(&v.BotPort, "bot-port", d.BotPort, "UDP port for the bot driver")
	fs.Float64Var(&v.ServerPingInterval, "server-ping-interval", d.ServerPingInterval, "keep-alive interval, seconds")
	fs.Float64Var(&v.BikeReceiveTimeout, "bike-receive-timeout", d.BikeReceiveTimeout, "stale-bike timeout, seconds")
	fs.Float64Var(&v.BikeConnectTimeout, "bike-connect-timeout", d.BikeConnectTimeout, "initial bike connect timeout, seconds")
	fs.Float64Var(&v.PowerScale, "power-scale", d.PowerScale, "calibration scale")
	fs.Float64Var(&v.PowerOffset, "power-offset", d.PowerOffset, "calibration offset")
	fs.BoolVar(&v.HeartRateEnabled, "heart-rate-enabled", d.HeartRateEnabled, "enable heart-rate relay")
	fs.StringVar(&v.HeartRateAdapter, "heart-rate-adapter", "", "adapter used for heart-rate scan")
	fs.BoolVar(&v.AntPlus, "ant-plus", d.AntPlus, "enable ANT+ broadcast")
	fs.IntVar(&v.AntDeviceID, "ant-device-id", d.AntDeviceID, "ANT+ device id")
	fs.Float64Var(&v.SpeedCircumference, "speed-circumference", 0, "wheel circumference, meters")
	fs.Float64Var(&v.SpeedGearFactor, "speed-gear-factor", d.SpeedGearFactor, "gear ratio factor for simulated speed")
	fs.Float64Var(&v.SpeedMin, "speed-min", 0, "minimum simulated speed, m/s")
	fs.Float64Var(&v.SpeedMax, "speed-max", 0, "maximum simulated speed, m/s")
	fs.BoolVar(&v.BleMultiOutput, "ble-multi-output", false, "advertise on every configured server adapter")
	fs.StringVar(&v.ConfigPath, "config-path", DefaultConfigPath, "config file path")
	return v
}
