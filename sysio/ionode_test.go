package sysio_test

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/sysio"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	m.Run()
}

func TestIOnodeFile_ReadWrite(t *testing.T) {
	ios := sysio.NewIOService(domain.IOMemFileService)
	node := ios.NewIOnode("/data/adb/modules/FreePPS/free")

	assert.False(t, node.Exists())

	err := node.WriteFile("1")
	assert.NoError(t, err)
	assert.True(t, node.Exists())

	content, err := node.ReadFile()
	assert.NoError(t, err)
	assert.Equal(t, "1", content)
}

func TestIOnodeFile_ReadFileTrimsWhitespace(t *testing.T) {
	ios := sysio.NewIOService(domain.IOMemFileService)
	node := ios.NewIOnode("/sys/class/qcom-battery/pd_verifed")

	assert.NoError(t, node.WriteFile("1\n"))

	content, err := node.ReadFile()
	assert.NoError(t, err)
	assert.Equal(t, "1", content)
}

func TestIOnodeFile_ReadMissingFileErrors(t *testing.T) {
	ios := sysio.NewIOService(domain.IOMemFileService)
	node := ios.NewIOnode("/does/not/exist")

	_, err := node.ReadFile()
	assert.Error(t, err)
}

func TestAppFsExposesBackingFs(t *testing.T) {
	ios := sysio.NewIOService(domain.IOMemFileService)
	fs := sysio.AppFs(ios)
	assert.NotNil(t, fs)
}
