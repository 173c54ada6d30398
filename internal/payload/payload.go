// Package payload is the boundary to the OTA payload codec. The codec
// itself (partition offsets, compression, ranged HTTP fetching) lives in
// the external payload-dumper helper; this package only speaks its two
// operations: list partitions of a remote archive, and extract one named
// partition from it.
package payload

import "context"

// PartitionInfo is one partition as reported by the remote listing.
type PartitionInfo struct {
	Name         string `json:"name"`
	SizeBytes    uint64 `json:"size_bytes"`
	Hash         string `json:"hash"`
	SizeReadable string `json:"size_readable"`
}

// ArchiveInfo is the remote listing for one OTA archive URL.
type ArchiveInfo struct {
	Partitions         []PartitionInfo `json:"partitions"`
	TotalPartitions    int             `json:"total_partitions"`
	TotalSizeReadable  string          `json:"total_size_readable"`
	SecurityPatchLevel string          `json:"security_patch_level"`
}

// Client lists and extracts partitions from a remote OTA archive. Both
// operations block for the duration of the underlying network work; the
// dump orchestrator is responsible for keeping them off its control path.
type Client interface {
	List(ctx context.Context, url string) (*ArchiveInfo, error)
	Extract(ctx context.Context, url, partition, outPath string) error
}

// Partition looks up a partition by name in the listing.
func (a *ArchiveInfo) Partition(name string) (PartitionInfo, bool) {
	for _, p := range a.Partitions {
		if p.Name == name {
			return p, true
		}
	}
	return PartitionInfo{}, false
}
