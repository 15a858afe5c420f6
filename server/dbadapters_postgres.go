//go:build postgres
// +build postgres

package main

import (
	_ "github.com/xmpub/pubsub/server/db/postgres"
)
