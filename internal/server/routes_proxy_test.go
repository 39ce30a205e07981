package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitModelAction(t *testing.T) {
	cases := []struct {
		name       string
		modelParam string
		actionParam string
		wantModel  string
		wantAction string
	}{
		{"generate", "gemini-pro", "/:generateContent", "gemini-pro", "generateContent"},
		{"stream", "gemini-pro", "/:streamGenerateContent", "gemini-pro", "streamGenerateContent"},
		{"no leading colon", "gemini-pro", "/generateContent", "gemini-pro", "generateContent"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model, action := splitModelAction(tc.modelParam, tc.actionParam)
			require.Equal(t, tc.wantModel, model)
			require.Equal(t, tc.wantAction, action)
		})
	}
}
