package assembly

import (
	"bytes"
	_ "embed"
)

//go:embed default.yaml
var defaultDefinition []byte

// Default returns the default pipeline definition. It expects BCIAdapter,
// BCIChannels, BCISampleRate and BCIInstance in the scope.
func Default() *Definition {
	d, err := Decode(bytes.NewReader(defaultDefinition))
	if err != nil {
		panic(err)
	}
	return d
}
