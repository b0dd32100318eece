// Package view defines the contract between the lifetime manager and the UI
// layer. The manager only ever sees opaque handles; rendering, layout and
// thread marshalling stay on the UI side.
package view
