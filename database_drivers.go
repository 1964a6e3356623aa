//go:build !test

// Production builds link every SQL backend; go test and go vet skip this
// file through the build tag and only see the drivers their tests import.
package main

import (
	"log"

	"jigsaw-map/pkg/database/drivers"
)

func init() {
	checkDriver = func(dbType string) error {
		log.Printf("database backends: %v", drivers.Linked())
		return drivers.Check(dbType)
	}
}
