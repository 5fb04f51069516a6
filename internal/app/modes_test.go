package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/pairsbot/internal/generator"
	"github.com/alanyoungcy/pairsbot/internal/notify"
)

func TestStopEvent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want notify.Event
	}{
		{"clean exit", nil, notify.EventWindDown},
		{"wind-down", errEngineDone, notify.EventWindDown},
		{"wrapped wind-down", fmt.Errorf("group: %w", errEngineDone), notify.EventWindDown},
		{"feed closed early", generator.ErrFeedClosed, notify.EventAbnormalStop},
		{"runtime failure", errors.New("kafka down"), notify.EventAbnormalStop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stopEvent(tt.err))
		})
	}
}
