package audio

import (
	"path/filepath"

	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
)

// unsupported reports a file the decoding pipeline cannot turn into PCM.
func unsupported(path string, cause error) error {
	return domainerrors.UnsupportedAudiof(
		"the recognizer does not support one or more of these audio files (%s)", filepath.Base(path),
	).WithCause(cause)
}
