package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"folio/internal/config"
)

func parseBookID(raw string) (uint32, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("invalid book id %q", raw)
	}
	return uint32(value), nil
}

func parseBookIDs(args []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(args))
	for _, arg := range args {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := parseBookID(field)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// readBookIDFile reads one book id per line; blank lines and # comments are
// ignored.
func readBookIDFile(path string) ([]uint32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer file.Close()

	var ids []uint32
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := parseBookID(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	return ids, nil
}

// resolveBundle accepts a book id or a bundle file path.
func resolveBundle(cfg *config.Config, arg string) (string, uint32, error) {
	if id, err := parseBookID(arg); err == nil {
		return cfg.BundlePath(id), id, nil
	}
	path, err := config.ExpandPath(arg)
	if err != nil {
		return "", 0, err
	}
	return path, 0, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
