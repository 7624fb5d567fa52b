package cmd

import (
	_ "tunnel-keeper/cmd/auth"
	_ "tunnel-keeper/cmd/misc"
	_ "tunnel-keeper/cmd/root"
	_ "tunnel-keeper/cmd/server"
	_ "tunnel-keeper/cmd/tunnel"
)
