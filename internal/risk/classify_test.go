package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_KnownPrefixes(t *testing.T) {
	cases := []struct {
		name  string
		level Level
	}{
		{"system.shutdown", Critical},
		{"disk.erase", Critical},
		{"admin.sudo", Critical},
		{"configure.network", Critical},
		{"camera.use", High},
		{"microphone.record", High},
		{"network.local.scan", High},
		{"network.outbound", Medium},
		{"files.system.read", High},
		{"files.home.write", Medium},
		{"files.download.get", Low},
		{"files.shared.misc", Medium},
		{"process.kill", High},
		{"process.spawn", Medium},
		{"graphics.render", Medium},
		{"gpu.compute", Medium},
		{"audio.input.stream", High},
		{"audio.output.stream", Low},
	}
	for _, c := range cases {
		assert.Equal(t, c.level, Classify(c.name), "name=%s", c.name)
	}
}

func TestClassify_UnknownDefaultsMedium(t *testing.T) {
	assert.Equal(t, Medium, Classify("totally.unknown.thing"))
}

func TestClassify_Deterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, Classify("camera.use"), Classify("camera.use"))
	}
}

func TestClassify_Total(t *testing.T) {
	assert.NotPanics(t, func() {
		Classify("")
		Classify("...")
		Classify("🙂.weird")
	})
}

func TestLevel_DefaultLifetimeOrdering(t *testing.T) {
	assert.Greater(t, Low.DefaultLifetime(), Medium.DefaultLifetime())
	assert.Greater(t, Medium.DefaultLifetime(), High.DefaultLifetime())
	assert.Equal(t, int64(0), int64(Critical.DefaultLifetime()))
}

func TestLevel_SingleUseOnlyCritical(t *testing.T) {
	assert.False(t, Low.SingleUse())
	assert.False(t, Medium.SingleUse())
	assert.False(t, High.SingleUse())
	assert.True(t, Critical.SingleUse())
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "critical", Critical.String())
}
