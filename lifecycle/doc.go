// Package lifecycle sequences the app lifecycle commands.
//
// Each command is a strictly ordered sequence over the registry, the
// environment composer, the template renderer, the fragment planner,
// the container runtime, and the hidden-service synchronizer. The
// sequences are arranged so that partial failure never leaves the
// system inconsistent in the "installed but broken" direction: the
// registry mutation is the last step of install and uninstall, and
// update's manifest copy is deferred so it fires on every exit path.
//
// The bulk "installed" target fans the same command out concurrently to
// every registered app; results are collected per app and a failure in
// one app never cancels its siblings.
package lifecycle
