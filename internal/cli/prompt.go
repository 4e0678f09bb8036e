package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoRequest is returned when the user enters an empty request.
var ErrNoRequest = errors.New("no request entered")

// PromptForRequest asks for a scene description on w and reads one line from r.
func PromptForRequest(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "Describe the scene for TAL: ")

	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read request: %w", err)
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrNoRequest
	}
	return input, nil
}
