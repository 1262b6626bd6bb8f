package buildinfo

import "runtime"

// Set with -ldflags "-X tripdispatch/internal/buildinfo.Version=..." at build time.
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

const Service = "tripdispatch"

func Info() map[string]string {
    return map[string]string{
        "service":   Service,
        "version":   Version,
        "commit":    Commit,
        "builtAt":   BuiltAt,
        "goVersion": runtime.Version(),
    }
}
