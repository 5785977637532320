package version

// Build metadata, set with -ldflags "-X crypto-price-tracker/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Service is the name reported by the health endpoint.
const Service = "crypto-price-tracker"
