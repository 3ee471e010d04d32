package configuration

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "dhclient.conf.yaml")
	if err := ioutil.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadConfig(t *testing.T) {
	path := writeConfig(t, `
interface: eth0
host_name: host-a
timeout: 45s
v4:
  enabled: true
  client_id: "01:de:ad:be:ef:00"
v6:
  enabled: true
  iaid: 7
`)

	conf, err := ReadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "eth0", conf.Interface)
	assert.Equal(t, "host-a", conf.HostName)

	d, err := conf.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	id, err := conf.V4.ClientIDBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xde, 0xad, 0xbe, 0xef, 0x00}, id)
	assert.False(t, conf.V4.HostNameAsClientID())

	assert.True(t, conf.V6.Enabled)
	assert.Equal(t, uint32(7), conf.V6.IAID)
}

func TestReadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
interface: eth0
v4:
  enabled: true
  clientid: "0102"
`)

	_, err := ReadConfig(path)
	assert.Error(t, err)
}

func TestReadConfigNeedsOneFamily(t *testing.T) {
	path := writeConfig(t, `
interface: eth0
`)

	_, err := ReadConfig(path)
	assert.Error(t, err)
}

func TestHostNameClientID(t *testing.T) {
	v := V4ClientConfig{ClientID: "hostname"}
	assert.True(t, v.HostNameAsClientID())

	id, err := v.ClientIDBytes()
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestDUIDBytes(t *testing.T) {
	v := V6ClientConfig{DUID: "00:03:00:01:e4:b3:18:64:dc:14"}
	b, err := v.DUIDBytes()
	require.NoError(t, err)
	assert.Len(t, b, 10)

	v.DUID = "zz"
	_, err = v.DUIDBytes()
	assert.Error(t, err)

	v.DUID = "0003"
	_, err = v.DUIDBytes()
	assert.Error(t, err)
}

func TestTimeoutDuration(t *testing.T) {
	c := Configuration{}
	d, err := c.TimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, d)

	c.Timeout = "nonsense"
	_, err = c.TimeoutDuration()
	assert.Error(t, err)
}
