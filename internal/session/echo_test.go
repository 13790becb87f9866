package session

import (
	"testing"

	"mocksync/internal/editor"

	"github.com/stretchr/testify/assert"
)

func TestGuardSuppressesSynchronousNotifications(t *testing.T) {
	var echo Suppressor
	ed := editor.NewMemory("", "")

	var forwarded int
	ed.OnChange(func() {
		if echo.Suppressed() {
			return
		}
		forwarded++
	})

	echo.Guard(func() {
		ed.SetMarkup("<p>remote</p>")
		ed.SetStyle("p{}")
	})
	assert.Equal(t, 0, forwarded)
	assert.False(t, echo.Suppressed())

	ed.Edit("<p>local</p>", "")
	assert.Equal(t, 1, forwarded)
}

func TestGuardDisarmsOnPanic(t *testing.T) {
	var echo Suppressor
	assert.Panics(t, func() {
		echo.Guard(func() { panic("apply failed") })
	})
	assert.False(t, echo.Suppressed())
}
