package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrTokenFile reports a token file that cannot be read or holds no tokens.
var ErrTokenFile = errors.New("token file error")

// LoadTokens reads one token per line from path.
//
// Surrounding whitespace is trimmed; blank lines and lines starting with
// "#" are skipped. Errors wrap [ErrTokenFile].
func LoadTokens(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenFile, err)
	}
	defer func() { _ = f.Close() }()

	tokens, err := ParseTokens(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tokens, nil
}

// ParseTokens reads tokens from r using the same rules as [LoadTokens].
func ParseTokens(r io.Reader) ([]string, error) {
	var tokens []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenFile, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no tokens found", ErrTokenFile)
	}
	return tokens, nil
}
