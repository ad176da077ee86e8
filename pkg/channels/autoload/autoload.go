// Package autoload registers every built-in channel.
package autoload

import (
	_ "plutus/pkg/channels/telegram"
	_ "plutus/pkg/channels/web"
)
