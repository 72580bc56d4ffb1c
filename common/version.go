package common

// Version is the service version, overridden at build time with
// -ldflags "-X github.com/selfhostd/appctl/common.Version=...".
var Version = "dev"
