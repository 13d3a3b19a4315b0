package hostprobe

import (
	"strings"

	"manyllmd/pkg/types"
)

// runnableFormats are formats at least one engine backend can load directly.
var runnableFormats = map[string]bool{
	"gguf": true,
	"bin":  true,
}

// convertibleFormats are formats we can store and verify but not load without
// an external conversion step.
var convertibleFormats = map[string]bool{
	"safetensors": true,
}

// Classify computes the compatibility class of an artifact against the probed
// host. Pure function of metadata and probe results; the artifact never
// declares its own class.
func Classify(a types.Artifact, p Probe) types.CompatClass {
	total, err := p.TotalMemoryBytes()
	if err != nil || (a.Size == 0 && a.ParamCount == 0) {
		return types.CompatUnknown
	}
	if a.Size > 0 && a.Size >= total {
		return types.CompatIncompatible
	}
	runnable, convertible := false, false
	for _, f := range a.Formats {
		f = strings.ToLower(f)
		if runnableFormats[f] {
			runnable = true
		}
		if convertibleFormats[f] {
			convertible = true
		}
	}
	switch {
	case runnable:
		return types.CompatFull
	case convertible:
		return types.CompatPartial
	case len(a.Formats) == 0:
		return types.CompatUnknown
	default:
		return types.CompatIncompatible
	}
}
