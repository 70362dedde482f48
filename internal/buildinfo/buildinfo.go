package buildinfo

import (
	"github.com/prometheus/common/version"
)

const Graffiti = "  ____   ____ ___ __  __ __  __ \n / ___| / ___|_ _|  \\/  |  \\/  |\n \\___ \\| |    | || |\\/| | |\\/| |\n  ___) | |___ | || |  | | |  | |\n |____/ \\____|___|_|  |_|_|  |_|\n\n"

// Name of the service, build metadata is set through
// github.com/prometheus/common/version ldflags.
var Name = "SCIMM"

func init() {
	if version.Version == "" {
		version.Version = "v0.0.0"
	}
}

type buildinfo struct{}

func (buildinfo) Tag() string {
	return version.Version
}

func (buildinfo) Name() string {
	return Name
}

func (buildinfo) Time() string {
	return version.BuildDate
}

// Print is the multi-line version report of program.
func (buildinfo) Print(program string) string {
	return version.Print(program)
}

var Info buildinfo

// UserAgent identifies the service in outgoing requests.
func UserAgent() string {
	return Name + "/" + version.Version
}
