package browser

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polzovatel/form-autofill-agent/internal/dom"
)

func TestScriptsUseDocumentMarkers(t *testing.T) {
	assert.Contains(t, captureScript, "'"+dom.HiddenMarker+"'")
	assert.Contains(t, observerScript, "'"+dom.UIMarker+"'")
	assert.Contains(t, observerScript, "window."+mutationBinding+"()")
	assert.True(t, strings.HasPrefix(captureScript, "() =>"))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, wrap(nil))

	base := errors.New("target closed")
	err := wrap(base)
	assert.EqualError(t, err, "playwright: target closed")
	assert.ErrorIs(t, err, base)
}
