package transaction

import (
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"
)

// IgnoreList represents a list of transaction hashes to be left out of filter results,
// such as spam airdrops.
type IgnoreList struct {
	hashes []IgnoredHash // slice of ignored transaction hashes
}

// IgnoredHash represents an ignored transaction hash.
type IgnoredHash struct {
	Hash   string // transaction hash
	Reason string // reason for ignoring the transaction
}

// NewIgnoreList builds an IgnoreList from the given entries.
func NewIgnoreList(hashes ...IgnoredHash) *IgnoreList {
	return &IgnoreList{hashes: hashes}
}

// Contains reports whether the given hash is ignored. A nil list ignores nothing.
func (l *IgnoreList) Contains(hash string) bool {
	if l == nil {
		return false
	}

	for _, ignored := range l.hashes {
		if strings.EqualFold(ignored.Hash, hash) {
			return true
		}
	}

	return false
}

// Len returns the number of ignored hashes.
func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}

	return len(l.hashes)
}

// IgnoreListFromYAML reads an IgnoreList from a YAML representation.
func IgnoreListFromYAML(reader io.Reader) (*IgnoreList, error) {
	var ymlList yamlIgnoreList
	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(&ymlList); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode ignore list from YAML: %w", err)
	}

	ignoreList := &IgnoreList{}
	for _, ymlHash := range ymlList.IgnoredHashes {
		ignoreList.hashes = append(ignoreList.hashes, IgnoredHash(ymlHash))
	}

	return ignoreList, nil
}

// IgnoreListToYAML writes an IgnoreList to a YAML representation.
func IgnoreListToYAML(ignoreList *IgnoreList, writer io.Writer) error {
	var ymlList yamlIgnoreList
	for _, hash := range ignoreList.hashes {
		ymlList.IgnoredHashes = append(ymlList.IgnoredHashes, yamlIgnoredHash(hash))
	}

	encoder := yaml.NewEncoder(writer)
	defer func() { _ = encoder.Close() }()

	if err := encoder.Encode(&ymlList); err != nil {
		return fmt.Errorf("failed to encode ignore list to YAML: %w", err)
	}

	return nil
}

type yamlIgnoredHash struct {
	Hash   string `yaml:"hash"`
	Reason string `yaml:"reason"`
}

type yamlIgnoreList struct {
	IgnoredHashes []yamlIgnoredHash `yaml:"ignored_hashes"`
}
