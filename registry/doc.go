// Package registry provides the durable set of installed app IDs.
//
// The registry is a single JSON document. Reads are lock-free and
// tolerate a missing or malformed document, which is treated as
// "nothing installed yet". Mutations serialize on an advisory file
// lock, read-modify-write the whole set, and replace the document
// atomically so a concurrent reader never observes a partial write.
//
// The lock lives in a sidecar file next to the document so that the
// atomic rename of the document itself never disturbs lock state. Lock
// release is deferred on every exit path, and because the lock is an
// OS-level advisory lock it is dropped automatically if the holding
// process dies, so a crashed writer cannot wedge the registry.
package registry
