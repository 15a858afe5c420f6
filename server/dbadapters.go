// Database adapters always compiled into the binary.

package main

import (
	_ "github.com/xmpub/pubsub/server/db/mem"
)
