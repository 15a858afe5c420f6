//go:build mysql
// +build mysql

package main

import (
	_ "github.com/xmpub/pubsub/server/db/mysql"
)
