package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/vburojevic/rnsmoke/internal/domain"
)

func lines(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		require.True(t, json.Valid(sc.Bytes()), "line is not JSON: %s", sc.Text())
		out = append(out, sc.Text())
	}
	return out
}

func TestNDJSONWriter_Contract(t *testing.T) {
	var buf bytes.Buffer
	w := NewNDJSONWriter(&buf)

	require.NoError(t, w.Write(IOSDevice(domain.Device{UDID: "UDID-1", Name: "iPhone 15", State: domain.DeviceStateBooted, OSVersion: "17.0"})))
	require.NoError(t, w.Write(AndroidDevice(domain.AndroidDevice{ID: "emulator-5554", State: "offline"})))
	require.NoError(t, w.WriteWait("emulator Nexus_5X", true, "emulator-5554", 1500*time.Millisecond))
	require.NoError(t, w.WriteInfo("booting", "UDID-1"))
	require.NoError(t, w.WriteError("BOOT_FAILED", "simctl boot failed", "check the UDID"))
	require.NoError(t, w.WriteVersion("dev", "none"))

	got := lines(t, &buf)
	require.Len(t, got, 6)

	for _, l := range got {
		assert.Equal(t, int64(SchemaVersion), gjson.Get(l, "schemaVersion").Int(), l)
	}

	assert.Equal(t, "device", gjson.Get(got[0], "type").String())
	assert.True(t, gjson.Get(got[0], "online").Bool())
	assert.Equal(t, "17.0", gjson.Get(got[0], "os_version").String())

	assert.Equal(t, "android", gjson.Get(got[1], "platform").String())
	assert.False(t, gjson.Get(got[1], "online").Bool())
	assert.False(t, gjson.Get(got[1], "name").Exists(), "empty name is omitted")

	assert.Equal(t, "wait", gjson.Get(got[2], "type").String())
	assert.Equal(t, int64(1500), gjson.Get(got[2], "elapsed_ms").Int())
	assert.True(t, gjson.Get(got[2], "found").Bool())

	assert.Equal(t, "BOOT_FAILED", gjson.Get(got[4], "code").String())
	assert.Equal(t, "check the UDID", gjson.Get(got[4], "hint").String())
	assert.Equal(t, "version", gjson.Get(got[5], "type").String())
}

func TestNDJSONWriter_NoHTMLEscaping(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewNDJSONWriter(&buf).WriteInfo("<Packager> & friends", ""))
	assert.Contains(t, buf.String(), "<Packager> & friends")
}

func TestWriteDeviceTable(t *testing.T) {
	var buf bytes.Buffer
	devices := []DeviceOutput{
		IOSDevice(domain.Device{UDID: "UDID-1", Name: "iPhone 15", State: domain.DeviceStateBooted, OSVersion: "17.0"}),
		AndroidDevice(domain.AndroidDevice{ID: "emulator-5554", State: "device", IsOnline: true}),
		AndroidDevice(domain.AndroidDevice{ID: "emulator-5556", State: "offline"}),
	}
	require.NoError(t, WriteDeviceTable(&buf, Painter{}, devices))

	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "PLATFORM")
	assert.Contains(t, out, "iPhone 15")
	assert.Contains(t, out, "emulator-5556")
	assert.Contains(t, out, "3 device(s), 2 online")
	assert.NotContains(t, out, "\x1b[", "no color without a terminal")
}

func TestWriteDeviceTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDeviceTable(&buf, Painter{}, nil))
	assert.Equal(t, "No devices found\n", buf.String())
}

func TestPainter(t *testing.T) {
	p := Painter{}
	assert.Equal(t, "Booted", p.State("Booted", true))
	assert.Equal(t, "timed out", p.Outcome(false))
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
