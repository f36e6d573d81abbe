package tor

import (
	"encoding/base32"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// OnionSuffix is the common suffix for all onion addresses.
	OnionSuffix = ".onion"

	// OnionV3Version is the version byte of v3 addresses.
	OnionV3Version = 0x03
)

// Onion address validation errors.
var (
	// ErrInvalidOnionAddress is returned for a malformed onion host.
	ErrInvalidOnionAddress = errors.New("invalid onion address")

	// ErrV2AddressDeprecated is returned for a 16-character v2 host. Those
	// stopped working in October 2021.
	ErrV2AddressDeprecated = errors.New("v2 onion addresses are deprecated and no longer functional")
)

var (
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)
)

// checksumPrefix is the constant prefix of the v3 checksum input.
var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host is in the .onion domain. Subdomains
// (www.<addr>.onion) are onion hosts too.
func IsOnionHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return strings.HasSuffix(host, OnionSuffix)
}

// CheckOnionHost validates an onion host. Subdomain labels are ignored and
// the service address (the last label before .onion) must be a v3 address
// with a correct checksum.
func CheckOnionHost(host string) error {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if !strings.HasSuffix(host, OnionSuffix) {
		return ErrInvalidOnionAddress
	}
	labels := strings.Split(strings.TrimSuffix(host, OnionSuffix), ".")
	service := labels[len(labels)-1] + OnionSuffix
	if IsValidV3Address(service) {
		return nil
	}
	if onionV2Pattern.MatchString(service) {
		return ErrV2AddressDeprecated
	}
	return ErrInvalidOnionAddress
}

// IsValidV3Address checks the format, version byte and SHA3 checksum of a
// v3 onion address (with suffix).
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	// 32 bytes key, 2 bytes checksum, 1 byte version.
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != OnionV3Version {
		return false
	}
	want := computeV3Checksum(pubkey, version)
	return checksum[0] == want[0] && checksum[1] == want[1]
}

// ComputeV3AddressFromPublicKey derives the v3 address of an ed25519
// public key.
func ComputeV3AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}
	data := make([]byte, 35)
	copy(data[:32], pubkey)
	copy(data[32:34], computeV3Checksum(pubkey, OnionV3Version))
	data[34] = OnionV3Version
	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + OnionSuffix, nil
}

func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return sum[:2]
}
