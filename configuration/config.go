// Package configuration loads the client's YAML configuration file.
package configuration

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"log"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is the full contents of the client config file. Zero
// values mean "use the protocol default" throughout.
type Configuration struct {
	// Interface is the network interface to run on. The -i flag
	// overrides it.
	Interface string `yaml:"interface"`
	// HostName is offered to the server; empty sends none.
	HostName string `yaml:"host_name"`
	// Timeout bounds lease acquisition, e.g. "30s". Empty waits
	// indefinitely.
	Timeout string `yaml:"timeout"`

	V4 V4ClientConfig `yaml:"v4"`
	V6 V6ClientConfig `yaml:"v6"`
}

type V4ClientConfig struct {
	Enabled bool `yaml:"enabled"`
	// ClientID is a hex string ("01deadbeef0102") sent as the client
	// identifier. The special value "hostname" derives a type-0
	// identifier from HostName. Empty uses the hardware address.
	ClientID string `yaml:"client_id"`
}

type V6ClientConfig struct {
	Enabled bool `yaml:"enabled"`
	// DUID is a hex string of a full DUID, type prefix included. Empty
	// derives a link-layer DUID from the hardware address.
	DUID string `yaml:"duid"`
	// IAID overrides the identity association id; zero derives a stable
	// value from the hardware address.
	IAID uint32 `yaml:"iaid"`
}

// ReadConfig parses the file at filename. Unknown keys are rejected so
// typos surface instead of being silently dropped.
func ReadConfig(filename string) (conf Configuration, err error) {
	rawFile, err := ioutil.ReadFile(filename)
	if err != nil {
		log.Println("Can't read config file.", err)
		return conf, err
	}

	err = yaml.UnmarshalStrict(rawFile, &conf)
	if err != nil {
		log.Println("Can't parse config file.", err)
		return conf, err
	}

	return conf, conf.validate()
}

func (c *Configuration) validate() error {
	if !c.V4.Enabled && !c.V6.Enabled {
		return fmt.Errorf("neither v4 nor v6 is enabled")
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.V4.ClientIDBytes(); err != nil {
		return err
	}
	if _, err := c.V6.DUIDBytes(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses the Timeout field; empty means no timeout.
func (c *Configuration) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout '%s': %w", c.Timeout, err)
	}
	return d, nil
}

// HostNameAsClientID reports whether the client identifier should be
// derived from the host name.
func (v *V4ClientConfig) HostNameAsClientID() bool {
	return strings.EqualFold(v.ClientID, "hostname")
}

// ClientIDBytes decodes an explicit hex client identifier, nil when the
// field is empty or set to "hostname".
func (v *V4ClientConfig) ClientIDBytes() ([]byte, error) {
	if v.ClientID == "" || v.HostNameAsClientID() {
		return nil, nil
	}
	b, err := hex.DecodeString(strings.ReplaceAll(v.ClientID, ":", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid client_id '%s': %w", v.ClientID, err)
	}
	return b, nil
}

// DUIDBytes decodes the configured DUID, nil when the field is empty.
func (v *V6ClientConfig) DUIDBytes() ([]byte, error) {
	if v.DUID == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(strings.ReplaceAll(v.DUID, ":", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid duid '%s': %w", v.DUID, err)
	}
	if len(b) < 3 {
		return nil, fmt.Errorf("duid '%s' is too short", v.DUID)
	}
	return b, nil
}
