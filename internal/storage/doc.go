// Package storage persists clocknag's durable state:
//   - Clock sessions (label + start/end), shared between the daemon and
//     the in/out/status subcommands
//   - The reminder log (what was delivered, when)
package storage
