package commands

import (
	"fmt"
	"io"

	"github.com/NielsdaWheelz/dockstrap/internal/version"
)

// Version implements `dockstrap version`.
func Version(stdout io.Writer) {
	fmt.Fprintf(stdout, "dockstrap %s\n", version.Version)
}
