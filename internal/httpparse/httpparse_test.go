package httpparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExceedsBodyLimitIsStrictlyGreater(t *testing.T) {
	assert.False(t, ExceedsBodyLimit(MaxBodySize))
	assert.True(t, ExceedsBodyLimit(MaxBodySize+1))
	assert.False(t, ExceedsBodyLimit(0))
}

func TestStatusCodeParsesStandardStatusLine(t *testing.T) {
	code, ok := StatusCode("HTTP/1.1 200 OK")
	assert.True(t, ok)
	assert.Equal(t, 200, code)
}

func TestStatusCodeRejectsShortLine(t *testing.T) {
	_, ok := StatusCode("HTTP/1.1 4")
	assert.False(t, ok)
}

func TestStatusCodeRejectsNonDigitField(t *testing.T) {
	_, ok := StatusCode("HTTP/1.1 4XX nope")
	assert.False(t, ok)
}

func TestStatusCodeHandlesNonStandardCodes(t *testing.T) {
	code, ok := StatusCode("HTTP/1.1 413 Payload Too Large")
	assert.True(t, ok)
	assert.Equal(t, 413, code)
}

func TestQueryParamEmptyQueryIsAbsent(t *testing.T) {
	_, present := QueryParam("", "thread")
	assert.False(t, present)
}

func TestQueryParamFindsKeyAmongMultiple(t *testing.T) {
	v, present := QueryParam("a=1&thread=abc&b=2", "thread")
	assert.True(t, present)
	assert.Equal(t, "abc", v)
}

func TestQueryParamPresentButNoEqualsIsEmptyValue(t *testing.T) {
	v, present := QueryParam("thread&other=1", "thread")
	assert.True(t, present)
	assert.Equal(t, "", v)
}

func TestQueryParamPresentButEmptyValue(t *testing.T) {
	v, present := QueryParam("thread=&other=1", "thread")
	assert.True(t, present)
	assert.Equal(t, "", v)
}

func TestQueryParamMissingKey(t *testing.T) {
	_, present := QueryParam("other=1", "thread")
	assert.False(t, present)
}

func TestQueryParamDoesNotScanPastAmpersand(t *testing.T) {
	v, present := QueryParam("thread=abc&thread=ignored", "thread")
	assert.True(t, present)
	assert.Equal(t, "abc", v)
}

func TestChatThreadIDAbsentFallsBackToWebDashboard(t *testing.T) {
	assert.Equal(t, "web:dashboard", ChatThreadID(""))
	assert.Equal(t, "web:dashboard", ChatThreadID("other=1"))
}

func TestChatThreadIDPresentButEmptyIsEmptyString(t *testing.T) {
	assert.Equal(t, "", ChatThreadID("thread="))
}

func TestChatThreadIDPresentWithValue(t *testing.T) {
	assert.Equal(t, "abc123", ChatThreadID("thread=abc123"))
}
