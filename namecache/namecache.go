// Package namecache persists resolved remote device names, one file per
// local controller under the storage directory.
package namecache

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hcibus/hcid"
)

const namesFile = "names"

// Store reads and writes the per-controller name files. Each line is
// "XX:XX:XX:XX:XX:XX name".
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(local hcid.BDAddr) string {
	return filepath.Join(s.dir, local.String(), namesFile)
}

// Name looks up the cached name of peer as seen by local.
func (s *Store) Name(local, peer hcid.BDAddr) (string, bool) {
	f, err := os.Open(s.path(local))
	if err != nil {
		return "", false
	}
	defer f.Close()

	key := peer.String()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		addr, name, ok := splitLine(sc.Text())
		if ok && addr == key {
			return name, true
		}
	}
	return "", false
}

// Put records the name of peer, replacing any previous entry. The file
// is rewritten whole; the cache stays small.
func (s *Store) Put(local, peer hcid.BDAddr, name string) error {
	entries := map[string]string{}
	if f, err := os.Open(s.path(local)); err == nil {
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if addr, n, ok := splitLine(sc.Text()); ok {
				entries[addr] = n
			}
		}
		f.Close()
	}
	entries[peer.String()] = sanitize(name)

	dir := filepath.Dir(s.path(local))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "can't create storage dir")
	}
	tmp, err := os.CreateTemp(dir, namesFile+".*")
	if err != nil {
		return errors.Wrap(err, "can't write name cache")
	}
	addrs := make([]string, 0, len(entries))
	for a := range entries {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		fmt.Fprintf(tmp, "%s %s\n", a, entries[a])
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "can't write name cache")
	}
	if err := os.Rename(tmp.Name(), s.path(local)); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "can't write name cache")
	}
	return nil
}

func splitLine(line string) (addr, name string, ok bool) {
	line = strings.TrimSpace(line)
	i := strings.IndexByte(line, ' ')
	if i != 17 {
		return "", "", false
	}
	return line[:i], line[i+1:], true
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, name)
}
