// Package config loads the robot configuration from configs/config.yml with
// ROBOT_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ROBOT"

// Driver kinds.
const (
	DriversSim    = "sim"
	DriversSerial = "serial"
)

type Config struct {
	Robot         RobotConfig
	Log           LogConfig
	DB            DBConfig
	Topology      TopologyConfig
	HTTP          HTTPConfig
	Auth          AuthConfig
	Ops           OpsConfig
	Motion        WorkerConfig
	Range         WorkerConfig
	Drivers       DriversConfig
	IoT           IoTConfig
	Recorder      RecorderConfig
	ShutdownGrace time.Duration
}

type RobotConfig struct {
	Name    string
	Console bool
}

type LogConfig struct {
	Level string
	File  string
}

type DBConfig struct {
	Path string
}

type TopologyConfig struct {
	Seed string
}

// HTTPConfig enables TLS when both TLSCert and TLSKey are set.
type HTTPConfig struct {
	Enabled bool
	Port    string
	TLSCert string
	TLSKey  string
}

type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// OpsConfig tunes the operations manager loop and its safety checks.
type OpsConfig struct {
	MinLoopTime        time.Duration
	ControllerInterval time.Duration
	VoltageInterval    time.Duration
	VoltageNoise       float64
	VoltageThreshold   float64
	AlarmInterval      time.Duration
	AmpsInterval       time.Duration
	MpuInterval        time.Duration
	RangeInterval      time.Duration
	HeartbeatPulse     time.Duration
	OverrunLimit       time.Duration
	AutoAdjust         bool
}

type WorkerConfig struct {
	LoopTime       time.Duration
	ReportInterval time.Duration
}

// DriversConfig selects the hardware. Serial ports are only read when Kind
// is "serial".
type DriversConfig struct {
	Kind           string
	MotorPort      string
	MotionPort     string
	RangePort      string
	CalibrationDir string
	SimRange       float64
}

type IoTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

type RecorderConfig struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("robot.name", "robot")
	v.SetDefault("robot.console", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("db.path", "robot.db")
	v.SetDefault("topology.seed", "configs/topology.yml")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.port", "8080")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("ops.min_loop_time", 10*time.Millisecond)
	v.SetDefault("ops.controller_interval", 250*time.Millisecond)
	v.SetDefault("ops.voltage_interval", 15*time.Second)
	v.SetDefault("ops.voltage_noise", 0.1)
	v.SetDefault("ops.voltage_threshold", 10.6)
	v.SetDefault("ops.alarm_interval", 60*time.Second)
	v.SetDefault("ops.amps_interval", time.Second)
	v.SetDefault("ops.mpu_interval", 2*time.Second)
	v.SetDefault("ops.range_interval", 500*time.Millisecond)
	v.SetDefault("ops.heartbeat_pulse", 2*time.Second)
	v.SetDefault("ops.overrun_limit", time.Second)
	v.SetDefault("ops.auto_adjust", true)

	v.SetDefault("motion.loop_time", 100*time.Millisecond)
	v.SetDefault("motion.report_interval", 200*time.Millisecond)
	v.SetDefault("range.loop_time", 100*time.Millisecond)
	v.SetDefault("range.report_interval", 500*time.Millisecond)

	v.SetDefault("drivers.kind", DriversSim)
	v.SetDefault("drivers.motor_port", "/dev/ttyACM0")
	v.SetDefault("drivers.motion_port", "/dev/ttyUSB0")
	v.SetDefault("drivers.range_port", "/dev/ttyUSB1")
	v.SetDefault("drivers.sim_range", 300.0)

	v.SetDefault("iot.enabled", false)
	v.SetDefault("iot.broker", "tcp://localhost:1883")
	v.SetDefault("iot.topic_prefix", "robots")
	v.SetDefault("iot.qos", 1)

	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.url", "http://localhost:8086")
	v.SetDefault("recorder.bucket", "robot")

	v.SetDefault("shutdown_grace", 2*time.Second)
}

// Load reads config.yml from paths (first match wins). A missing file is not
// an error: defaults and environment still apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Robot: RobotConfig{
			Name:    v.GetString("robot.name"),
			Console: v.GetBool("robot.console"),
		},
		Log:      LogConfig{Level: v.GetString("log.level"), File: v.GetString("log.file")},
		DB:       DBConfig{Path: v.GetString("db.path")},
		Topology: TopologyConfig{Seed: v.GetString("topology.seed")},
		HTTP: HTTPConfig{
			Enabled: v.GetBool("http.enabled"),
			Port:    v.GetString("http.port"),
			TLSCert: v.GetString("http.tls_cert"),
			TLSKey:  v.GetString("http.tls_key"),
		},
		Auth: AuthConfig{
			SigningKey: v.GetString("auth.signing_key"),
			TokenTTL:   v.GetDuration("auth.token_ttl"),
		},
		Ops: OpsConfig{
			MinLoopTime:        v.GetDuration("ops.min_loop_time"),
			ControllerInterval: v.GetDuration("ops.controller_interval"),
			VoltageInterval:    v.GetDuration("ops.voltage_interval"),
			VoltageNoise:       v.GetFloat64("ops.voltage_noise"),
			VoltageThreshold:   v.GetFloat64("ops.voltage_threshold"),
			AlarmInterval:      v.GetDuration("ops.alarm_interval"),
			AmpsInterval:       v.GetDuration("ops.amps_interval"),
			MpuInterval:        v.GetDuration("ops.mpu_interval"),
			RangeInterval:      v.GetDuration("ops.range_interval"),
			HeartbeatPulse:     v.GetDuration("ops.heartbeat_pulse"),
			OverrunLimit:       v.GetDuration("ops.overrun_limit"),
			AutoAdjust:         v.GetBool("ops.auto_adjust"),
		},
		Motion: WorkerConfig{
			LoopTime:       v.GetDuration("motion.loop_time"),
			ReportInterval: v.GetDuration("motion.report_interval"),
		},
		Range: WorkerConfig{
			LoopTime:       v.GetDuration("range.loop_time"),
			ReportInterval: v.GetDuration("range.report_interval"),
		},
		Drivers: DriversConfig{
			Kind:           strings.ToLower(v.GetString("drivers.kind")),
			MotorPort:      v.GetString("drivers.motor_port"),
			MotionPort:     v.GetString("drivers.motion_port"),
			RangePort:      v.GetString("drivers.range_port"),
			CalibrationDir: v.GetString("drivers.calibration_dir"),
			SimRange:       v.GetFloat64("drivers.sim_range"),
		},
		IoT: IoTConfig{
			Enabled:     v.GetBool("iot.enabled"),
			Broker:      v.GetString("iot.broker"),
			ClientID:    v.GetString("iot.client_id"),
			Username:    v.GetString("iot.username"),
			Password:    v.GetString("iot.password"),
			TopicPrefix: v.GetString("iot.topic_prefix"),
			QoS:         byte(v.GetUint("iot.qos")),
		},
		Recorder: RecorderConfig{
			Enabled: v.GetBool("recorder.enabled"),
			URL:     v.GetString("recorder.url"),
			Token:   v.GetString("recorder.token"),
			Org:     v.GetString("recorder.org"),
			Bucket:  v.GetString("recorder.bucket"),
		},
		ShutdownGrace: v.GetDuration("shutdown_grace"),
	}
}

func (c *Config) validate() error {
	if c.Robot.Name == "" {
		return errors.New("robot.name must be set")
	}
	switch c.Drivers.Kind {
	case DriversSim, DriversSerial:
	default:
		return fmt.Errorf("drivers.kind %q: want %q or %q", c.Drivers.Kind, DriversSim, DriversSerial)
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		return errors.New("http.tls_cert and http.tls_key must be set together")
	}
	if c.IoT.QoS > 2 {
		return fmt.Errorf("iot.qos %d: want 0, 1 or 2", c.IoT.QoS)
	}
	return nil
}

// TLS reports whether the gateway should serve HTTPS.
func (c HTTPConfig) TLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}
