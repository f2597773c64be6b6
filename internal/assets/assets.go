// Package assets holds files compiled into the binary.
package assets

import (
	_ "embed"

	"fyne.io/fyne/v2"
)

//go:embed icon.svg
var iconSVG []byte

var icon = fyne.NewStaticResource("icon.svg", iconSVG)

// Icon is the application and window icon.
func Icon() fyne.Resource {
	return icon
}
