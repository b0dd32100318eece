// Package profile loads named session presets from YAML.
//
// Example file:
//
//	profiles:
//	  - name: order-entry
//	    tag: workflow:order
//	    auto_close_when_empty: true
//	  - name: orders-db
//	    tag: database:orders
//	    auto_save: true
//	    modules: [orders-store]
//
// Module names are looked up in a Catalog supplied by the application.
package profile
