// internal/browser/scripts.go
package browser

import (
	"embed"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

//go:embed js/*.js
var scriptFS embed.FS

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	scriptExists    = "exists"
	scriptImageURL  = "image_url"
	scriptFetch     = "fetch"
	scriptCanvasPNG = "canvas_png"
	scriptSetValue  = "set_value"
	scriptClick     = "click"
	scriptObserve   = "observe"
)

func loadScript(name string) string {
	b, err := scriptFS.ReadFile("js/" + name + ".js")
	if err != nil {
		// The set of scripts is fixed at build time.
		panic(fmt.Sprintf("embedded script %s missing: %v", name, err))
	}
	return strings.TrimSpace(string(b))
}

// invoke renders a call of the named embedded function with JSON encoded arguments.
func invoke(name string, args ...any) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("failed to encode argument %d for %s: %w", i, name, err)
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf("(%s)(%s)", loadScript(name), strings.Join(encoded, ", ")), nil
}
