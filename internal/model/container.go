package model

// Partition identifier parts. A persistent partition keeps its storage on
// disk across runs; the prefix keeps the two forms of one name apart.
const (
	persistPrefix   = "persist:"
	partitionPrefix = "c-"
)

// Container is a named browsing identity with its own storage partition
// and its own routing choice.
type Container struct {
	// Name is the unique, case-sensitive key.
	Name string `json:"name"`
	// PartitionID is derived from Name and Persistent and never changes.
	PartitionID string `json:"partitionId"`
	// Persistent containers keep cookies and storage after shutdown.
	Persistent bool `json:"persistent"`
	// AnonymityEnabled routes the container through Tor.
	AnonymityEnabled bool `json:"anonymityEnabled"`
}

// NewContainer returns a container with anonymity disabled.
func NewContainer(name string, persistent bool) Container {
	return Container{
		Name:        name,
		PartitionID: PartitionID(name, persistent),
		Persistent:  persistent,
	}
}

// PartitionID derives the partition identifier: "persist:c-<name>" for
// persistent containers and "c-<name>" otherwise.
func PartitionID(name string, persistent bool) string {
	if persistent {
		return persistPrefix + partitionPrefix + name
	}
	return partitionPrefix + name
}

// IsPersistentPartition reports whether a partition identifier names
// on-disk storage.
func IsPersistentPartition(partitionID string) bool {
	return len(partitionID) > len(persistPrefix) && partitionID[:len(persistPrefix)] == persistPrefix
}
