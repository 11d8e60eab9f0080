package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderStatus(t *testing.T) {
	assert.Equal(t, "2 out of 3 emails sent successfully!", RenderStatus(SendResult{Current: 2, Total: 3}))
	assert.Equal(t, "0 out of 0 emails sent successfully!", RenderStatus(SendResult{}))
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name   string
		result SendResult
		width  int
		want   string
	}{
		{name: "complete", result: SendResult{Current: 4, Total: 4}, width: 8, want: "[########] 100%"},
		{name: "half", result: SendResult{Current: 1, Total: 2}, width: 10, want: "[#####-----] 50%"},
		{name: "none sent", result: SendResult{Current: 0, Total: 3}, width: 6, want: "[------] 0%"},
		{name: "empty batch", result: SendResult{}, width: 4, want: "[----] 0%"},
		{name: "default width", result: SendResult{Current: 1, Total: 1}, width: 0, want: "[####################] 100%"},
		{name: "clamped", result: SendResult{Current: 9, Total: 3}, width: 3, want: "[###] 100%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProgressBar(tt.result, tt.width))
		})
	}
}
