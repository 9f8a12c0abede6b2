package inotify_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Seyud/FreePPS/inotify"
)

func encodeEvent(wd int32, mask, cookie uint32, name string) []byte {
	nameLen := ((len(name) + 1 + 3) / 4) * 4
	buf := make([]byte, 16+nameLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(wd))
	binary.LittleEndian.PutUint32(buf[4:8], mask)
	binary.LittleEndian.PutUint32(buf[8:12], cookie)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(nameLen))
	copy(buf[16:], name)
	return buf
}

func TestParseEvents_SingleRecordNoName(t *testing.T) {
	buf := encodeEvent(3, uint32(inotify.Modify), 0, "")
	events := inotify.ParseEvents(buf)

	assert.Len(t, events, 1)
	assert.Equal(t, int32(3), events[0].Wd)
	assert.Equal(t, uint32(inotify.Modify), events[0].Mask)
	assert.Equal(t, "", events[0].Name)
}

func TestParseEvents_RecordWithNullPaddedName(t *testing.T) {
	buf := encodeEvent(7, uint32(inotify.Create), 42, "auto")
	events := inotify.ParseEvents(buf)

	assert.Len(t, events, 1)
	assert.Equal(t, "auto", events[0].Name)
	assert.Equal(t, uint32(42), events[0].Cookie)
}

func TestParseEvents_MultipleContiguousRecords(t *testing.T) {
	var buf []byte
	buf = append(buf, encodeEvent(1, uint32(inotify.CloseWrite), 0, "")...)
	buf = append(buf, encodeEvent(2, uint32(inotify.Delete), 0, "auto")...)

	events := inotify.ParseEvents(buf)
	assert.Len(t, events, 2)
	assert.Equal(t, int32(1), events[0].Wd)
	assert.Equal(t, int32(2), events[1].Wd)
	assert.Equal(t, "auto", events[1].Name)
}

func TestParseEvents_TruncatedBufferStopsCleanly(t *testing.T) {
	buf := encodeEvent(1, uint32(inotify.Modify), 0, "")
	truncated := buf[:10]

	events := inotify.ParseEvents(truncated)
	assert.Empty(t, events)
}
