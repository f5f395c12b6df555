package citylink

// Version is the citylink release, overridden at build time with
// -ldflags "-X github.com/aretw0/citylink.Version=...".
var Version = "0.1.0-dev"
