package protocol

import (
	"fmt"
	"strings"
)

const (
	// Protocol prefix for the statement-distribution network protocol
	protocolPrefix = "brnp-s"

	// Current protocol version
	currentVersion = "0"

	// Observer suffix for non-validator connections
	observerSuffix = "observer"

	// Chain hash length in nibbles
	chainHashLength = 8
)

// ProtocolID represents a complete ALPN protocol identifier.
// Format: brnp-s/<version>/<chain-hash>[/observer]
type ProtocolID struct {
	// Version is the protocol version (currently only "0")
	Version string
	// ChainHash is the 8-nibble chain identifier
	ChainHash string
	// IsObserver indicates a non-validator connection
	IsObserver bool
}

// NewProtocolID creates a new ProtocolID with the specified chain hash and
// observer status. The version is set to the current supported version.
func NewProtocolID(chainHash string, isObserver bool) *ProtocolID {
	return &ProtocolID{
		Version:    currentVersion,
		ChainHash:  chainHash,
		IsObserver: isObserver,
	}
}

// String converts the ProtocolID to its string representation.
// Format examples:
//   - Validator: "brnp-s/0/deadbeef"
//   - Observer: "brnp-s/0/deadbeef/observer"
func (p *ProtocolID) String() string {
	parts := []string{protocolPrefix, p.Version, p.ChainHash}
	if p.IsObserver {
		parts = append(parts, observerSuffix)
	}
	return strings.Join(parts, "/")
}

// ParseProtocolID parses an ALPN protocol string into a ProtocolID.
// Validates the prefix, version, chain hash format (8 hex nibbles) and the
// optional observer suffix. Returns an error if any validation fails.
func ParseProtocolID(protocol string) (*ProtocolID, error) {
	parts := strings.Split(protocol, "/")

	if len(parts) < 3 || len(parts) > 4 {
		return nil, fmt.Errorf("invalid protocol format: %s", protocol)
	}

	if parts[0] != protocolPrefix {
		return nil, fmt.Errorf("invalid protocol prefix: %s", parts[0])
	}

	if parts[1] != currentVersion {
		return nil, fmt.Errorf("unsupported protocol version: %s", parts[1])
	}

	chainHash := parts[2]
	if len(chainHash) != chainHashLength {
		return nil, fmt.Errorf("invalid chain hash length: %s", chainHash)
	}
	for _, c := range chainHash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, fmt.Errorf("invalid chain hash character: %c", c)
		}
	}

	isObserver := false
	if len(parts) == 4 {
		if strings.ToLower(parts[3]) != observerSuffix {
			return nil, fmt.Errorf("invalid protocol suffix: %s", parts[3])
		}

		isObserver = true
	}

	return &ProtocolID{
		Version:    parts[1],
		ChainHash:  chainHash,
		IsObserver: isObserver,
	}, nil
}

// ValidateALPNProtocol validates an ALPN protocol string.
// This is a convenience wrapper around ParseProtocolID that only returns the error status.
func ValidateALPNProtocol(protocol string) error {
	_, err := ParseProtocolID(protocol)
	return err
}

// AcceptableProtocols returns all acceptable protocol strings for a given chain hash.
// Returns both observer and validator variants of the protocol identifier.
func AcceptableProtocols(chainHash string) []string {
	return []string{
		NewProtocolID(chainHash, false).String(),
		NewProtocolID(chainHash, true).String(),
	}
}
