package config

import "runtime"

var currentGOOS = runtime.GOOS
