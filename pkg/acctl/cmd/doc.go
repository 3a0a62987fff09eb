// Package cmd implements the acctl command tree: signing in to an account
// server, inspecting and renaming the device, managing identity keys and
// polling for device commands.
package cmd
