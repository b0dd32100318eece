// Package id provides centralized ID generation for the lifetime manager.
//
// Sessions and tracked resources are identified by UUIDs so that they can be
// handed to external view layers and persisted by collaborators unchanged.
// Events use prefixed ULIDs: they are k-sortable, which keeps event logs in
// emission order without a separate sequence number.
package id
