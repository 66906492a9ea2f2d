package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarValidate(t *testing.T) {
	assert.NoError(t, Bar{Open: 100, Close: 101}.Validate())

	err := Bar{Open: 0, Close: 101}.Validate()
	require.Error(t, err)
	assert.True(t, IsDataError(err))

	err = Bar{Open: 100, Close: -1}.Validate()
	require.Error(t, err)
	assert.True(t, IsDataError(err))
}

func TestValidSignal(t *testing.T) {
	assert.True(t, ValidSignal(SignalShort))
	assert.True(t, ValidSignal(SignalFlat))
	assert.True(t, ValidSignal(SignalLong))
	assert.False(t, ValidSignal(2))
	assert.False(t, ValidSignal(-2))
}

func TestTradeWin(t *testing.T) {
	assert.True(t, Trade{PnL: 0.01}.Win())
	assert.False(t, Trade{PnL: 0}.Win())
	assert.False(t, Trade{PnL: -3}.Win())
}

func TestErrorClassification(t *testing.T) {
	cfgErr := NewConfigurationError("field", "must be positive")
	assert.True(t, IsConfigurationError(cfgErr))
	assert.False(t, IsDataError(cfgErr))
	assert.Contains(t, cfgErr.Error(), "field")

	dataErr := NewDataError("bad value %d", 7)
	assert.True(t, IsDataError(dataErr))
	assert.False(t, IsConfigurationError(dataErr))
	assert.Contains(t, dataErr.Error(), "bad value 7")

	// wrapped errors still classify
	wrapped := fmt.Errorf("context: %w", dataErr)
	assert.True(t, IsDataError(wrapped))
	assert.False(t, IsDataError(errors.New("plain")))
}
