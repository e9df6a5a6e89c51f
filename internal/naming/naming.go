// Package naming derives destination object names for produced audio.
package naming

import (
	"path"
	"strings"
)

// AudioExtension is appended to every derived name.
const AudioExtension = ".mp3"

// DeriveName strips the directory and extension from sourceName and returns
// "<base>.mp3", or "<base>_<lang>.mp3" when the body was translated to targetLanguage.
// Object keys use forward slashes regardless of platform.
func DeriveName(sourceName, targetLanguage string, translated bool) string {
	base := path.Base(strings.ReplaceAll(sourceName, `\`, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))

	if translated && targetLanguage != "" {
		return base + "_" + targetLanguage + AudioExtension
	}

	return base + AudioExtension
}
