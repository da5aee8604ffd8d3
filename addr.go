package hcid

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// BDAddr is a Bluetooth device address, held in wire order (little-endian,
// as the controller transmits it). String renders the usual display order.
type BDAddr [6]byte

// ParseBDAddr parses a display-order address of the form "00:1A:7D:DA:71:13".
func ParseBDAddr(s string) (BDAddr, error) {
	var a BDAddr

	hexStr := strings.Replace(s, ":", "", -1)
	out, err := hex.DecodeString(hexStr)
	if err != nil {
		return a, errors.Wrapf(err, "can't parse address %q", s)
	}
	if len(out) != len(a) {
		return a, errors.Errorf("address %q: want 6 bytes, got %d", s, len(out))
	}

	// display order is the reverse of wire order
	for i, b := range out {
		a[len(a)-1-i] = b
	}
	return a, nil
}

// BDAddrFromWire copies a 6-byte wire-order address.
func BDAddrFromWire(b []byte) BDAddr {
	var a BDAddr
	copy(a[:], b)
	return a
}

func (a BDAddr) String() string {
	s := a.Swapped()
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		s[0], s[1], s[2], s[3], s[4], s[5])
}

// Wire returns the address bytes in wire order.
func (a BDAddr) Wire() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

// Swapped returns the bytes with the byte order reversed.
func (a BDAddr) Swapped() []byte {
	out := make([]byte, 0, len(a))
	out = append(out, a[:]...)
	for i := len(out)/2 - 1; i >= 0; i-- {
		opp := len(out) - 1 - i
		out[i], out[opp] = out[opp], out[i]
	}
	return out
}

// IsZero reports whether the address is all zeroes.
func (a BDAddr) IsZero() bool {
	return a == BDAddr{}
}
