// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"

	"github.com/bluenviron/mtxplayer/internal/conf/env"
	"github.com/bluenviron/mtxplayer/internal/conf/jsonwrapper"
	"github.com/bluenviron/mtxplayer/internal/conf/yamlwrapper"
	"github.com/bluenviron/mtxplayer/internal/logger"
)

// EnvPrefix is the prefix of environment variables that override the configuration.
const EnvPrefix = "MTXPLAYER"

// ErrStreamNotFound is returned when a stream is not found.
var ErrStreamNotFound = errors.New("stream not found")

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		_, err := os.Stat(pa)
		if err == nil {
			return pa
		}
	}
	return ""
}

func isPowerOfTwo(n int) bool {
	return (n & (n - 1)) == 0
}

// Conf is a configuration.
type Conf struct {
	// general
	LogLevel        LogLevel        `json:"logLevel"`
	LogDestinations LogDestinations `json:"logDestinations"`
	LogStructured   bool            `json:"logStructured"`
	LogFile         string          `json:"logFile"`
	SysLogPrefix    string          `json:"sysLogPrefix"`
	ReadTimeout     Duration        `json:"readTimeout"`
	WriteTimeout    Duration        `json:"writeTimeout"`
	TimerMaxHandles int             `json:"timerMaxHandles"`
	MaxStalledTicks int             `json:"maxStalledTicks"`
	WriteQueueSize  int             `json:"writeQueueSize"`
	UDPMaxPayload   int             `json:"udpMaxPayloadSize"`

	// API
	API        bool   `json:"api"`
	APIAddress string `json:"apiAddress"`

	// metrics
	Metrics        bool   `json:"metrics"`
	MetricsAddress string `json:"metricsAddress"`

	// pprof
	PPROF        bool   `json:"pprof"`
	PPROFAddress string `json:"pprofAddress"`

	// streams
	Streams map[string]*Stream `json:"streams"`
}

func (conf *Conf) setDefaults() {
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout}
	conf.LogFile = "mtxplayer.log"
	conf.SysLogPrefix = "mtxplayer"
	conf.ReadTimeout = Duration(10 * time.Second)
	conf.WriteTimeout = Duration(10 * time.Second)
	conf.TimerMaxHandles = 4096
	conf.MaxStalledTicks = 3
	conf.WriteQueueSize = 512
	conf.UDPMaxPayload = 1450
	conf.APIAddress = ":9997"
	conf.MetricsAddress = ":9998"
	conf.PPROFAddress = ":9999"
}

// Load loads a Conf.
func Load(fpath string, defaultConfPaths []string) (*Conf, string, error) {
	conf := &Conf{}

	fpath, err := conf.loadFromFile(fpath, defaultConfPaths)
	if err != nil {
		return nil, "", err
	}

	err = loadDotEnv()
	if err != nil {
		return nil, "", err
	}

	err = env.Load(EnvPrefix, conf)
	if err != nil {
		return nil, "", err
	}

	err = conf.Validate()
	if err != nil {
		return nil, "", err
	}

	return conf, fpath, nil
}

// loadDotEnv loads a .env file from the working directory, if present.
// Variables that are already set are not overridden.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}

	err := godotenv.Load(".env")
	if err != nil {
		return fmt.Errorf(".env: %w", err)
	}

	return nil
}

func (conf *Conf) loadFromFile(fpath string, defaultConfPaths []string) (string, error) {
	if fpath == "" {
		fpath = firstThatExists(defaultConfPaths)

		// when the configuration file is not explicitly set,
		// it is optional.
		if fpath == "" {
			conf.setDefaults()
			return "", nil
		}
	}

	byts, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}

	err = yamlwrapper.Unmarshal(byts, conf)
	if err != nil {
		return "", err
	}

	return fpath, nil
}

// Validate checks the configuration for errors and fills stream defaults.
func (conf *Conf) Validate() error {
	if conf.ReadTimeout <= 0 || conf.WriteTimeout <= 0 {
		return fmt.Errorf("'readTimeout' and 'writeTimeout' must be greater than zero")
	}

	if conf.TimerMaxHandles <= 0 {
		return fmt.Errorf("'timerMaxHandles' must be greater than zero")
	}

	if conf.MaxStalledTicks <= 0 {
		return fmt.Errorf("'maxStalledTicks' must be greater than zero")
	}

	if conf.WriteQueueSize <= 0 || !isPowerOfTwo(conf.WriteQueueSize) {
		return fmt.Errorf("'writeQueueSize' must be a power of two")
	}

	if conf.UDPMaxPayload < 64 || conf.UDPMaxPayload > 1472 {
		return fmt.Errorf("'udpMaxPayloadSize' must be between 64 and 1472")
	}

	if conf.LogFile == "" {
		for _, d := range conf.LogDestinations {
			if d == logger.DestinationFile {
				return fmt.Errorf("'logFile' must be set when logging to file")
			}
		}
	}

	ssrcs := make(map[uint32]string)

	for _, name := range conf.StreamNames() {
		s := conf.Streams[name]
		if s == nil {
			s = &Stream{}
			conf.Streams[name] = s
		}

		err := s.validate(name)
		if err != nil {
			return fmt.Errorf("stream '%s': %w", name, err)
		}

		if other, ok := ssrcs[s.SSRC]; ok {
			return fmt.Errorf("streams '%s' and '%s' have the same SSRC", other, name)
		}
		ssrcs[s.SSRC] = name
	}

	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (conf *Conf) UnmarshalJSON(b []byte) error {
	conf.setDefaults()

	type alias Conf
	return jsonwrapper.Unmarshal(b, (*alias)(conf))
}

// StreamNames returns stream names in alphabetical order.
func (conf *Conf) StreamNames() []string {
	ret := make([]string, 0, len(conf.Streams))
	for name := range conf.Streams {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}
