//go:build !portaudio

package main

import (
	"context"
	"errors"
	"io"
)

var errNoMicrophone = errors.New("microphone capture needs a build with -tags portaudio; pipe PCM16 into --input - instead")

func openMicrophone(context.Context) (io.ReadCloser, error) {
	return nil, errNoMicrophone
}
