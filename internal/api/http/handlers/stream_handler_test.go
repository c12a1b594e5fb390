package handlers

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSSEWriteFormatsEvent(t *testing.T) {
	var buf bytes.Buffer
	sseWrite(&buf, "message", "7", map[string]any{"seq": 7})
	assert.Equal(t, "event: message\nid: 7\ndata: {\"seq\":7}\n\n", buf.String())
}

func TestSSEWriteSplitsMultilinePayload(t *testing.T) {
	var buf bytes.Buffer
	sseWrite(&buf, "", "", "first\nsecond")
	assert.Equal(t, "data: first\ndata: second\n\n", buf.String())
}

func TestParseSeq(t *testing.T) {
	seq, err := parseSeq("")
	assert.NoError(t, err)
	assert.Zero(t, seq)

	seq, err = parseSeq("42")
	assert.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	_, err = parseSeq("-1")
	assert.Error(t, err)
	_, err = parseSeq("abc")
	assert.Error(t, err)
}

func TestParseIntFallsBack(t *testing.T) {
	assert.Equal(t, 20, parseInt("", 20))
	assert.Equal(t, 20, parseInt("zero", 20))
	assert.Equal(t, 20, parseInt("0", 20))
	assert.Equal(t, 3, parseInt("3", 20))
}

func TestParsePageSizeIsCapped(t *testing.T) {
	assert.Equal(t, 20, parsePageSize("", 20))
	assert.Equal(t, 50, parsePageSize("50", 20))
	assert.Equal(t, maxPageSize, parsePageSize("100000", 20))
}
