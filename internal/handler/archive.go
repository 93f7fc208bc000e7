package handler

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/model"
)

// nullPartitionLabel addresses the single partition of a POINT mode
// KID in resource paths and archive entries.
const nullPartitionLabel = "null"

func partitionLabel(id *string) string {
	if id == nil {
		return nullPartitionLabel
	}
	return *id
}

// writeSliceArchive streams the slices as a gzip'd tar archive, one
// entry per slice at kid/partition/chunk/sliceHash.
func writeSliceArchive(w io.Writer, slices []*model.Slice) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, s := range slices {
		name := fmt.Sprintf("%s/%s/%s/%s", s.KID, partitionLabel(s.PartitionID), s.Chunk, s.SliceID)
		header := &tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(s.BinaryData)),
			ModTime: s.LastUpdated,
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write archive header for %s: %w", name, err)
		}
		if _, err := tw.Write(s.BinaryData); err != nil {
			return fmt.Errorf("failed to write archive entry for %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return gz.Close()
}
