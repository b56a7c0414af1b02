package users

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

type Registry interface {
	Exists(username string) bool
}

// Snapshot is a fixed set of account names. It is read once and never refreshed,
// so accounts created later are treated as non-existent until restart.
type Snapshot struct {
	names map[string]struct{}
}

func NewSnapshot(names ...string) *Snapshot {
	s := &Snapshot{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		s.names[n] = struct{}{}
	}
	return s
}

func LoadPasswd(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open passwd: %w", err)
	}
	defer f.Close()
	return ParsePasswd(f)
}

// ParsePasswd reads the first colon-separated field of each line.
func ParsePasswd(r io.Reader) (*Snapshot, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, _, _ := strings.Cut(line, ":")
		if name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read passwd: %w", err)
	}
	return NewSnapshot(names...), nil
}

func (s *Snapshot) Exists(username string) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[username]
	return ok
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
