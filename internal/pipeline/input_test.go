package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/tal-prompt-studio/internal/prompt"
)

func TestDecodeInput(t *testing.T) {
	in, err := DecodeInput(strings.NewReader(`{"user_request":"TAL","seed":7,"size":null,"style_preset":"vintage"}`))
	require.NoError(t, err)
	require.NotNil(t, in.UserRequest)
	assert.Equal(t, "TAL", *in.UserRequest)
	assert.Equal(t, int64(7), *in.Seed)
	assert.Nil(t, in.Size)
	assert.Equal(t, "vintage", *in.StylePreset)
}

func TestDecodeInput_Errors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty", "", ""},
		{"syntax", "{not json", ""},
		{"fractional seed", `{"user_request":"TAL","seed":1.5}`, "seed"},
		{"string seed", `{"user_request":"TAL","seed":"7"}`, "seed"},
		{"numeric request", `{"user_request":12}`, "user_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInput(strings.NewReader(tt.body))
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestValidate_RejectsBadSizes(t *testing.T) {
	for _, size := range []string{"0x0", "0x1024", "1024x0", "01024x768", "1024", "axb"} {
		t.Run(size, func(t *testing.T) {
			_, err := Input{UserRequest: strPtr("TAL"), Size: strPtr(size)}.Validate()
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, "size", vErr.Field)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	req, err := Input{UserRequest: strPtr("TAL"), Size: strPtr(" ")}.Validate()
	require.NoError(t, err)
	assert.Equal(t, prompt.RunRequest{UserRequest: "TAL", Size: prompt.DefaultSize}, req)
}

func TestValidate_CopiesPointers(t *testing.T) {
	seed := int64(3)
	preset := "cinematic"
	in := Input{UserRequest: strPtr("TAL"), Seed: &seed, StylePreset: &preset, Size: strPtr("640x480")}

	req, err := in.Validate()
	require.NoError(t, err)
	seed, preset = 99, "changed"

	assert.Equal(t, int64(3), *req.Seed)
	assert.Equal(t, "cinematic", *req.StylePreset)
	assert.Equal(t, "640x480", req.Size)
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "size: bad", (&ValidationError{Field: "size", Message: "bad"}).Error())
	assert.Equal(t, "bad", (&ValidationError{Message: "bad"}).Error())
}
