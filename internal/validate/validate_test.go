package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdpstep/cdpstep/internal/steps"
)

func raw(t *testing.T, v string) json.RawMessage {
	t.Helper()
	return json.RawMessage(v)
}

// Validator totality (§8): for any step sequence, Request returns
// either {valid:true, errors:[]} or {valid:false, errors: non-empty} —
// never a panic, never a Result with Valid true and a non-empty Errors
// slice or vice versa.
func TestRequestIsTotal(t *testing.T) {
	cases := []steps.Request{
		{Steps: nil},
		{Steps: []json.RawMessage{}},
		{Steps: []json.RawMessage{raw(t, `{}`)}},
		{Steps: []json.RawMessage{raw(t, `not json`)}},
		{Steps: []json.RawMessage{raw(t, `[]`)}},
		{Steps: []json.RawMessage{raw(t, `{"goto":"http://x"}`)}},
		{Steps: []json.RawMessage{raw(t, `{"goto":{},"click":{}}`)}},
		{Steps: []json.RawMessage{raw(t, `{"click":{"selector":"#a"}}`)}},
		{Steps: []json.RawMessage{raw(t, `{"click":{}}`)}},
		{Steps: []json.RawMessage{raw(t, `{"fill":{"label":"Name","value":"Ann"}}`)}},
		{Steps: []json.RawMessage{raw(t, `{"drag":{"source":{},"target":{}}}`)}},
		{Steps: []json.RawMessage{raw(t, `{"cookies":{}}`)}},
		{Steps: []json.RawMessage{raw(t, `{"elementsAt":{}}`)}},
		{Steps: []json.RawMessage{raw(t, `{"unknownAction":true}`)}},
		{Steps: []json.RawMessage{raw(t, `{"wait":""}`)}},
		{Steps: []json.RawMessage{raw(t, `{"eval":"1+1"}`)}},
		{Steps: []json.RawMessage{raw(t, `{"pdf":-1}`)}},
		{Steps: []json.RawMessage{raw(t, `{"click":{"ref":"not-a-ref"}}`)}},
		{Steps: []json.RawMessage{raw(t, `{"goto":"x"}`), raw(t, `{"click":{"selector":"#a"}}`)}},
		{Steps: []json.RawMessage{raw(t, `{"goto":"x"}`)}, Timeout: -5},
	}

	for i, req := range cases {
		assert.NotPanics(t, func() {
			result := Request(req)
			if result.Valid {
				assert.Empty(t, result.Errors, "case %d: valid result must carry no errors", i)
			} else {
				assert.NotEmpty(t, result.Errors, "case %d: invalid result must explain why", i)
			}
		}, "case %d", i)
	}
}

func TestRequestRejectsEmptySteps(t *testing.T) {
	result := Request(steps.Request{})
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, -1, result.Errors[0].Index)
}

func TestRequestAcceptsWellFormedSequence(t *testing.T) {
	req := steps.Request{Steps: []json.RawMessage{
		raw(t, `{"goto":"http://example.test"}`),
		raw(t, `{"click":{"selector":"#submit"}}`),
		raw(t, `{"getTitle":true}`),
	}}
	result := Request(req)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestRequestFlagsMultipleActionKeys(t *testing.T) {
	req := steps.Request{Steps: []json.RawMessage{raw(t, `{"goto":"x","click":{}}`)}}
	result := Request(req)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Errors[0], "multiple action keys")
}

func TestRequestValidatesRefPattern(t *testing.T) {
	bad := steps.Request{Steps: []json.RawMessage{raw(t, `{"click":{"ref":"nope"}}`)}}
	result := Request(bad)
	require.False(t, result.Valid)

	good := steps.Request{Steps: []json.RawMessage{raw(t, `{"click":{"ref":"s1e2"}}`)}}
	result = Request(good)
	assert.True(t, result.Valid)
}
